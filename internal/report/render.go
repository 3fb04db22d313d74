package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	maxUpdates = 5
	maxEvents  = 5

	// Above this many sales, yesterday counts as a record day.
	recordDayThreshold = 40

	noUpdatesText = "_No important updates from WhatsApp groups_"
	noEventsText  = "_No meetings scheduled for today_ 🎉"
	footerText    = "_Let's make it a great day, team!_ 💪"

	clockLayout = "03:04 PM"
)

// Build renders the standup message for the given clock time. It is
// deterministic: the same inputs always produce the same message.
func Build(now time.Time, metrics Metrics, updates []Update, events []Event, keywords []string) Message {
	blocks := []Block{
		{
			Type: "header",
			Text: &Text{
				Type: "plain_text",
				Text: "🌅 Daily Standup - " + now.Format("Monday, January 02"),
			},
		},
		{
			Type: "section",
			Text: &Text{Type: "mrkdwn", Text: "*📊 Yesterday's Performance:*"},
		},
		{
			Type: "section",
			Fields: []Text{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Sales:* %d orders", metrics.SalesCount)},
				{Type: "mrkdwn", Text: "*Revenue:* " + formatRevenue(metrics.Revenue)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Support:* %d tickets resolved", metrics.TicketsResolved)},
				{Type: "mrkdwn", Text: "*Status:* " + statusLine(metrics.SalesCount)},
			},
		},
		{Type: "divider"},
		{
			Type: "section",
			Text: &Text{Type: "mrkdwn", Text: "*💬 Key WhatsApp Updates (Last 24h):*"},
		},
		updatesBlock(updates),
		{
			Type: "section",
			Text: &Text{Type: "mrkdwn", Text: "*📅 Today's Schedule:*"},
		},
		eventsBlock(events),
	}

	if alert, ok := importantEventsBlock(events, keywords); ok {
		blocks = append(blocks, alert)
	}

	blocks = append(blocks, Block{
		Type: "section",
		Text: &Text{Type: "mrkdwn", Text: footerText},
	})

	return Message{Fallback: "Daily Standup", Blocks: blocks}
}

func statusLine(salesCount int) string {
	if salesCount > recordDayThreshold {
		return "🎉 Record day!"
	}
	return "✅ Solid performance!"
}

func formatRevenue(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

func updatesBlock(updates []Update) Block {
	if len(updates) == 0 {
		return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: noUpdatesText}}
	}

	var b strings.Builder
	for i, u := range updates {
		if i >= maxUpdates {
			break
		}
		fmt.Fprintf(&b, "• *[%s]* %s: %s\n", u.Group, u.Sender, u.Message)
	}
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: b.String()}}
}

func eventsBlock(events []Event) Block {
	if len(events) == 0 {
		return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: noEventsText}}
	}

	var b strings.Builder
	for i, e := range events {
		if i >= maxEvents {
			break
		}
		fmt.Fprintf(&b, "• %s - *%s*", eventClock(e), e.Summary)
		if e.Attendees > 0 {
			fmt.Fprintf(&b, " (%d attendees)", e.Attendees)
		}
		if e.MeetingLink != "" {
			fmt.Fprintf(&b, " <%s|Join>", e.MeetingLink)
		}
		b.WriteString("\n")
	}
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: b.String()}}
}

func importantEventsBlock(events []Event, keywords []string) (Block, bool) {
	var important []Event
	for _, e := range events {
		if IsImportant(e.Summary, keywords) {
			important = append(important, e)
		}
	}
	if len(important) == 0 {
		return Block{}, false
	}

	var b strings.Builder
	b.WriteString("⚠️ *Important events today:*\n")
	for _, e := range important {
		fmt.Fprintf(&b, "• %s at %s\n", e.Summary, eventClock(e))
	}
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: b.String()}}, true
}

func eventClock(e Event) string {
	if e.AllDay {
		return "All day"
	}
	return e.Start.Format(clockLayout)
}
