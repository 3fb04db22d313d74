// Package report holds the standup data model and the pure Slack Block
// Kit renderer. Nothing in this package performs I/O.
package report

import (
	"strings"
	"time"
)

// Metrics is yesterday's business snapshot from the metrics store.
type Metrics struct {
	SalesCount      int
	Revenue         float64
	TicketsResolved int
	AsOf            time.Time
}

// Update is one group-chat message that passed the importance filter.
type Update struct {
	Group   string
	Sender  string
	Message string
	Time    string
}

// Event is one calendar event for today.
type Event struct {
	Summary     string
	Start       time.Time
	AllDay      bool
	Attendees   int
	Location    string
	MeetingLink string
}

// Outcome reports what happened to a published message.
type Outcome struct {
	Delivered bool
	MessageID string
	Reason    string
}

// Text is a Block Kit text object.
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block is a Block Kit layout block. Only the shapes the renderer emits
// are modeled: header, section (text and/or fields), divider.
type Block struct {
	Type   string `json:"type"`
	Text   *Text  `json:"text,omitempty"`
	Fields []Text `json:"fields,omitempty"`
}

// Message is a rendered standup ready for delivery.
type Message struct {
	Fallback string
	Blocks   []Block
}

// IsImportant reports whether text matches any keyword, case-insensitively.
// The same predicate filters chat messages and flags calendar events.
func IsImportant(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Flatten renders the message as plain text for sinks that cannot
// display Block Kit, dropping mrkdwn decoration.
func (m Message) Flatten() string {
	var b strings.Builder
	for _, block := range m.Blocks {
		switch {
		case block.Type == "divider":
			b.WriteString("---\n")
		case block.Text != nil:
			b.WriteString(stripMarkup(block.Text.Text))
			b.WriteString("\n")
		case len(block.Fields) > 0:
			for _, f := range block.Fields {
				b.WriteString(stripMarkup(f.Text))
				b.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func stripMarkup(s string) string {
	s = strings.ReplaceAll(s, "*", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}
