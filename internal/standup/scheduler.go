package standup

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers standup runs: once at startup, daily per the cron
// expression, and on a short interval in test mode. Triggers are
// dispatched from a single polling loop; a trigger that fires while a
// run is still in flight is dropped with a warning.
type Scheduler struct {
	run       func(ctx context.Context) bool
	schedule  cron.Schedule
	testMode  bool
	testEvery time.Duration
	tick      time.Duration
	now       func() time.Time

	inFlight atomic.Bool
	dropped  atomic.Int64
	wg       sync.WaitGroup
}

func NewScheduler(run func(ctx context.Context) bool, expr string, testMode bool, testEvery time.Duration) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	if testEvery <= 0 {
		testEvery = time.Minute
	}
	return &Scheduler{
		run:       run,
		schedule:  schedule,
		testMode:  testMode,
		testEvery: testEvery,
		tick:      time.Second,
		now:       time.Now,
	}, nil
}

// Start blocks until ctx is canceled, then waits for any in-flight run.
func (s *Scheduler) Start(ctx context.Context) {
	now := s.now()
	next := s.schedule.Next(now)
	nextTest := now.Add(s.testEvery)
	log.Printf("[scheduler] started, next daily run at %s", next.Format(time.RFC3339))
	if s.testMode {
		log.Printf("[scheduler] test mode on, interval %s", s.testEvery)
	}

	// Run once right away so a restart never skips the day's standup.
	s.dispatch(ctx, "startup")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now = s.now()
			if !now.Before(next) {
				s.dispatch(ctx, "daily")
				next = s.schedule.Next(now)
			}
			if s.testMode && !now.Before(nextTest) {
				s.dispatch(ctx, "interval")
				nextTest = now.Add(s.testEvery)
			}
		case <-ctx.Done():
			s.wg.Wait()
			log.Printf("[scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, trigger string) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		log.Printf("[scheduler] dropped %s trigger, run already in flight", trigger)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		s.run(ctx)
	}()
}

// Dropped reports how many triggers were discarded because a run was
// already in flight.
func (s *Scheduler) Dropped() int64 {
	return s.dropped.Load()
}
