// Package registry holds the in-process tool registry. Source adapters
// register named handlers at startup and callers invoke them by name.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler is an invokable tool. Arguments are positional and loosely
// typed; each handler documents what it accepts.
type Handler func(ctx context.Context, args ...any) (any, error)

type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool already registered: %s", e.Name)
}

type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Handler
}

func New() *Registry {
	return &Registry{tools: make(map[string]Handler)}
}

// Register adds a named tool. Registering the same name twice fails so a
// misconfigured adapter cannot silently shadow another one.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if handler == nil {
		return fmt.Errorf("register tool %s: nil handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return &DuplicateToolError{Name: name}
	}
	r.tools[name] = handler
	return nil
}

// Invoke looks up and calls a tool by name. The handler runs outside the
// registry lock, so tools may themselves invoke other tools.
func (r *Registry) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	r.mu.RLock()
	handler, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return handler(ctx, args...)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
