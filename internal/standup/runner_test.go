package standup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stellarlinkco/standup/internal/config"
	"github.com/stellarlinkco/standup/internal/report"
)

var runClock = time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)

type fakeMetrics struct {
	metrics report.Metrics
	err     error
	gotDay  time.Time
}

func (f *fakeMetrics) Snapshot(ctx context.Context, day time.Time) (report.Metrics, error) {
	f.gotDay = day
	return f.metrics, f.err
}

type fakeChat struct {
	updates []report.Update
	err     error
}

func (f *fakeChat) Updates(ctx context.Context, groups []config.GroupConfig, lookback time.Duration) ([]report.Update, error) {
	return f.updates, f.err
}

type fakeCalendar struct {
	events []report.Event
	err    error
}

func (f *fakeCalendar) TodayEvents(ctx context.Context) ([]report.Event, error) {
	return f.events, f.err
}

type fakeSink struct {
	outcome report.Outcome
	err     error
	got     report.Message
	calls   int
}

func (f *fakeSink) Publish(ctx context.Context, msg report.Message) (report.Outcome, error) {
	f.calls++
	f.got = msg
	return f.outcome, f.err
}

func deliveredSink() *fakeSink {
	return &fakeSink{outcome: report.Outcome{Delivered: true, MessageID: "1.23"}}
}

func newTestRunner(opts RunnerOptions) *Runner {
	if opts.Now == nil {
		opts.Now = func() time.Time { return runClock }
	}
	return NewRunner(opts)
}

func messageText(msg report.Message) string {
	var b strings.Builder
	for _, block := range msg.Blocks {
		if block.Text != nil {
			b.WriteString(block.Text.Text)
			b.WriteString("\n")
		}
		for _, f := range block.Fields {
			b.WriteString(f.Text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func TestRunner_SuccessfulRun(t *testing.T) {
	metrics := &fakeMetrics{metrics: report.Metrics{SalesCount: 45, Revenue: 12000.15, TicketsResolved: 3}}
	chat := &fakeChat{updates: []report.Update{{Group: "Dev", Sender: "John", Message: "deployed"}}}
	calendar := &fakeCalendar{events: []report.Event{{Summary: "Sprint Review", Start: runClock}}}
	sink := deliveredSink()

	r := newTestRunner(RunnerOptions{
		Metrics:  metrics,
		Chat:     chat,
		Calendar: calendar,
		Sink:     sink,
		Keywords: []string{"sprint"},
	})

	if !r.Run(context.Background()) {
		t.Fatal("Run = false, want true")
	}
	if r.State() != StateDone {
		t.Errorf("state = %s, want done", r.State())
	}
	if sink.calls != 1 {
		t.Fatalf("sink called %d times, want 1", sink.calls)
	}

	wantDay := runClock.AddDate(0, 0, -1)
	if !metrics.gotDay.Equal(wantDay) {
		t.Errorf("metrics day = %v, want %v", metrics.gotDay, wantDay)
	}

	text := messageText(sink.got)
	for _, want := range []string{
		"*Sales:* 45 orders",
		"*[Dev]* John: deployed",
		"Sprint Review",
		"⚠️ *Important events today:*",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestRunner_DegradesOnFetchErrors(t *testing.T) {
	sink := deliveredSink()
	r := newTestRunner(RunnerOptions{
		Metrics:  &fakeMetrics{err: errors.New("db locked")},
		Chat:     &fakeChat{err: errors.New("not connected")},
		Calendar: &fakeCalendar{err: errors.New("401")},
		Sink:     sink,
	})

	if !r.Run(context.Background()) {
		t.Fatal("Run = false, want true despite fetch failures")
	}

	text := messageText(sink.got)
	for _, want := range []string{
		"*Sales:* 0 orders",
		"_No important updates from WhatsApp groups_",
		"_No meetings scheduled for today_ 🎉",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("degraded message missing %q", want)
		}
	}
}

func TestRunner_NilSources(t *testing.T) {
	sink := deliveredSink()
	r := newTestRunner(RunnerOptions{Sink: sink})

	if !r.Run(context.Background()) {
		t.Fatal("Run = false, want true with nil sources")
	}
	if sink.calls != 1 {
		t.Errorf("sink called %d times, want 1", sink.calls)
	}
}

func TestRunner_PublishError(t *testing.T) {
	sink := &fakeSink{err: errors.New("invalid_auth")}
	r := newTestRunner(RunnerOptions{Sink: sink})

	if r.Run(context.Background()) {
		t.Fatal("Run = true, want false on publish error")
	}
	if r.State() != StateFailed {
		t.Errorf("state = %s, want failed", r.State())
	}
}

func TestRunner_NotDelivered(t *testing.T) {
	sink := &fakeSink{outcome: report.Outcome{Delivered: false, Reason: "rate_limited"}}
	r := newTestRunner(RunnerOptions{Sink: sink})

	if r.Run(context.Background()) {
		t.Fatal("Run = true, want false when not delivered")
	}
	if r.State() != StateFailed {
		t.Errorf("state = %s, want failed", r.State())
	}
}

func TestRunner_MirrorFailureIgnored(t *testing.T) {
	sink := deliveredSink()
	mirror := &fakeSink{err: errors.New("blocked")}
	r := newTestRunner(RunnerOptions{Sink: sink, Mirror: mirror})

	if !r.Run(context.Background()) {
		t.Fatal("Run = false, want true despite mirror failure")
	}
	if r.State() != StateDone {
		t.Errorf("state = %s, want done", r.State())
	}
	if mirror.calls != 1 {
		t.Errorf("mirror called %d times, want 1", mirror.calls)
	}
}

func TestRunner_AbandonedOnCancel(t *testing.T) {
	sink := deliveredSink()
	r := newTestRunner(RunnerOptions{
		Metrics: &fakeMetrics{},
		Sink:    sink,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if r.Run(ctx) {
		t.Fatal("Run = true, want false for canceled context")
	}
	if r.State() != StateIdle {
		t.Errorf("state = %s, want idle after abandoned run", r.State())
	}
	if sink.calls != 0 {
		t.Errorf("sink called %d times, want 0", sink.calls)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateFetchingMetrics, "fetching_metrics"},
		{StateFetchingChat, "fetching_chat"},
		{StateFetchingCalendar, "fetching_calendar"},
		{StateRendering, "rendering"},
		{StatePublishing, "publishing"},
		{StateDone, "done"},
		{StateFailed, "failed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
