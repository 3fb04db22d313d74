// Package adapter contains the source adapters and message sinks the
// standup pipeline draws from: the SQLite metrics store, the Google
// Calendar client, the WhatsApp group listener, and the Slack and
// Telegram sinks.
package adapter

import (
	"context"
	"fmt"

	"github.com/stellarlinkco/standup/internal/registry"
)

// Adapter is the lifecycle every source and sink implements.
type Adapter interface {
	Name() string
	Connect(ctx context.Context) error
	Ready() bool
	// Close releases the adapter's resources. Safe to call twice.
	Close() error
	RegisterTools(reg *registry.Registry) error
}

// ConnectionError wraps a failure to establish or authenticate a
// backend connection.
type ConnectionError struct {
	Adapter string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connect: %v", e.Adapter, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError wraps a metrics store query failure.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("metrics query: %v", e.Err) }

func (e *QueryError) Unwrap() error { return e.Err }

// ProviderError wraps a calendar provider failure (transport, HTTP
// status, or unusable response).
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("calendar provider: %v", e.Err) }

func (e *ProviderError) Unwrap() error { return e.Err }

// ScrapeError marks a single chat group that could not be read. Other
// groups are unaffected.
type ScrapeError struct {
	Group string
	Err   error
}

func (e *ScrapeError) Error() string { return fmt.Sprintf("group %s: %v", e.Group, e.Err) }

func (e *ScrapeError) Unwrap() error { return e.Err }

// DeliveryError wraps a sink rejection. Code carries the provider's
// error code when one was returned.
type DeliveryError struct {
	Code string
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("delivery failed: %s", e.Code)
	}
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
