// Package standup drives the daily pipeline: fetch metrics, chat
// updates and calendar events, render the message, and publish it.
package standup

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/stellarlinkco/standup/internal/config"
	"github.com/stellarlinkco/standup/internal/report"
)

// State is the runner's position in the pipeline.
type State int32

const (
	StateIdle State = iota
	StateFetchingMetrics
	StateFetchingChat
	StateFetchingCalendar
	StateRendering
	StatePublishing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingMetrics:
		return "fetching_metrics"
	case StateFetchingChat:
		return "fetching_chat"
	case StateFetchingCalendar:
		return "fetching_calendar"
	case StateRendering:
		return "rendering"
	case StatePublishing:
		return "publishing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Consumer-side views of the adapters. Any fetch failure degrades to an
// empty section; only rendering and publishing can fail a run.
type MetricsSource interface {
	Snapshot(ctx context.Context, day time.Time) (report.Metrics, error)
}

type ChatSource interface {
	Updates(ctx context.Context, groups []config.GroupConfig, lookback time.Duration) ([]report.Update, error)
}

type CalendarSource interface {
	TodayEvents(ctx context.Context) ([]report.Event, error)
}

type Sink interface {
	Publish(ctx context.Context, msg report.Message) (report.Outcome, error)
}

const defaultStageTimeout = 30 * time.Second

type RunnerOptions struct {
	Metrics  MetricsSource
	Chat     ChatSource
	Calendar CalendarSource
	Sink     Sink
	// Mirror is an optional secondary sink; its failures are logged
	// and never fail the run.
	Mirror       Sink
	Groups       []config.GroupConfig
	Lookback     time.Duration
	Keywords     []string
	StageTimeout time.Duration
	Now          func() time.Time
}

type Runner struct {
	opts  RunnerOptions
	state atomic.Int32
}

func NewRunner(opts RunnerOptions) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = defaultStageTimeout
	}
	return &Runner{opts: opts}
}

// State reports the runner's current pipeline position. Safe to call
// from any goroutine.
func (r *Runner) State() State {
	return State(r.state.Load())
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}

// stageContext detaches the stage from the run context's cancellation
// so an interrupt lets the in-flight stage finish, bounded by the
// stage timeout.
func (r *Runner) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.opts.StageTimeout)
}

// Run executes one standup. It returns true only when the primary sink
// confirmed delivery. Cancellation between stages abandons the run.
func (r *Runner) Run(ctx context.Context) bool {
	now := r.opts.Now()
	yesterday := now.AddDate(0, 0, -1)
	log.Printf("[runner] starting standup run for %s", now.Format("2006-01-02"))

	r.setState(StateFetchingMetrics)
	metrics := r.fetchMetrics(ctx, yesterday)

	if r.abandoned(ctx) {
		return false
	}
	r.setState(StateFetchingChat)
	updates := r.fetchUpdates(ctx)

	if r.abandoned(ctx) {
		return false
	}
	r.setState(StateFetchingCalendar)
	events := r.fetchEvents(ctx)

	if r.abandoned(ctx) {
		return false
	}
	r.setState(StateRendering)
	msg, err := r.render(now, metrics, updates, events)
	if err != nil {
		log.Printf("[runner] render failed: %v", err)
		r.setState(StateFailed)
		return false
	}

	if r.abandoned(ctx) {
		return false
	}
	r.setState(StatePublishing)
	stageCtx, cancel := r.stageContext(ctx)
	outcome, err := r.opts.Sink.Publish(stageCtx, msg)
	cancel()
	if err != nil {
		log.Printf("[runner] publish failed: %v", err)
		r.setState(StateFailed)
		return false
	}
	if !outcome.Delivered {
		log.Printf("[runner] publish not delivered: %s", outcome.Reason)
		r.setState(StateFailed)
		return false
	}

	if r.opts.Mirror != nil {
		mirrorCtx, cancel := r.stageContext(ctx)
		if _, err := r.opts.Mirror.Publish(mirrorCtx, msg); err != nil {
			log.Printf("[runner] mirror publish failed: %v", err)
		}
		cancel()
	}

	r.setState(StateDone)
	log.Printf("[runner] standup delivered (message %s)", outcome.MessageID)
	return true
}

func (r *Runner) abandoned(ctx context.Context) bool {
	if ctx.Err() != nil {
		log.Printf("[runner] run abandoned: %v", ctx.Err())
		r.setState(StateIdle)
		return true
	}
	return false
}

func (r *Runner) fetchMetrics(ctx context.Context, day time.Time) report.Metrics {
	if r.opts.Metrics == nil {
		return report.Metrics{AsOf: day}
	}
	stageCtx, cancel := r.stageContext(ctx)
	defer cancel()

	metrics, err := r.opts.Metrics.Snapshot(stageCtx, day)
	if err != nil {
		log.Printf("[runner] metrics unavailable, using zeros: %v", err)
		return report.Metrics{AsOf: day}
	}
	return metrics
}

func (r *Runner) fetchUpdates(ctx context.Context) []report.Update {
	if r.opts.Chat == nil {
		return nil
	}
	stageCtx, cancel := r.stageContext(ctx)
	defer cancel()

	updates, err := r.opts.Chat.Updates(stageCtx, r.opts.Groups, r.opts.Lookback)
	if err != nil {
		log.Printf("[runner] chat updates unavailable: %v", err)
		return updates
	}
	return updates
}

func (r *Runner) fetchEvents(ctx context.Context) []report.Event {
	if r.opts.Calendar == nil {
		return nil
	}
	stageCtx, cancel := r.stageContext(ctx)
	defer cancel()

	events, err := r.opts.Calendar.TodayEvents(stageCtx)
	if err != nil {
		log.Printf("[runner] calendar unavailable: %v", err)
		return nil
	}
	return events
}

func (r *Runner) render(now time.Time, metrics report.Metrics, updates []report.Update, events []report.Event) (msg report.Message, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render panic: %v", p)
		}
	}()
	return report.Build(now, metrics, updates, events, r.opts.Keywords), nil
}
