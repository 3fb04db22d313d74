// Package bot wires the config, registry, adapters, runner and
// scheduler into a runnable standup service.
package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stellarlinkco/standup/internal/adapter"
	"github.com/stellarlinkco/standup/internal/config"
	"github.com/stellarlinkco/standup/internal/registry"
	"github.com/stellarlinkco/standup/internal/standup"
)

// Options for creating a Bot
type Options struct {
	SignalChan      chan os.Signal // for testing signal handling
	SlackFactory    adapter.SlackClientFactory
	TelegramFactory adapter.BotFactory
}

type Bot struct {
	cfg       *config.Config
	registry  *registry.Registry
	metrics   *adapter.MetricsStore
	whatsapp  *adapter.WhatsAppSource
	calendar  *adapter.GoogleCalendar
	slack     *adapter.SlackSink
	telegram  *adapter.TelegramSink
	runner    *standup.Runner
	scheduler *standup.Scheduler

	signalChan chan os.Signal // for testing
}

// New creates a Bot with default options
func New(cfg *config.Config) (*Bot, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Bot with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bot{
		cfg:        cfg,
		registry:   registry.New(),
		signalChan: opts.SignalChan,
	}
	ctx := context.Background()

	// Slack is the primary sink; failing to build it is fatal.
	var slack *adapter.SlackSink
	var err error
	if opts.SlackFactory != nil {
		slack, err = adapter.NewSlackSinkWithFactory(cfg.Slack.Token, cfg.Slack.Channel, opts.SlackFactory)
	} else {
		slack, err = adapter.NewSlackSink(cfg.Slack.Token, cfg.Slack.Channel)
	}
	if err != nil {
		return nil, fmt.Errorf("create slack sink: %w", err)
	}
	if err := slack.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect slack sink: %w", err)
	}
	b.slack = slack

	// The sources are optional: a source that cannot connect just
	// leaves its section of the standup empty.
	metrics := adapter.NewMetricsStore(cfg.Database.Path)
	if err := metrics.Connect(ctx); err != nil {
		log.Printf("[bot] metrics store unavailable: %v", err)
	} else {
		b.metrics = metrics
	}

	if cfg.WhatsApp.Enabled {
		whatsapp := adapter.NewWhatsAppSource(cfg.WhatsApp, cfg.Keywords)
		if err := whatsapp.Connect(ctx); err != nil {
			log.Printf("[bot] whatsapp unavailable: %v", err)
		} else {
			b.whatsapp = whatsapp
		}
	}

	if cfg.Calendar.Enabled {
		calendar := adapter.NewGoogleCalendar(cfg.Calendar.CredentialsFile, cfg.Calendar.TokenFile)
		if err := calendar.Connect(ctx); err != nil {
			log.Printf("[bot] calendar unavailable: %v", err)
		} else {
			b.calendar = calendar
		}
	}

	if cfg.Telegram.Enabled {
		var telegram *adapter.TelegramSink
		if opts.TelegramFactory != nil {
			telegram, err = adapter.NewTelegramSinkWithFactory(cfg.Telegram.Token, cfg.Telegram.ChatID, opts.TelegramFactory)
		} else {
			telegram, err = adapter.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID)
		}
		if err != nil {
			log.Printf("[bot] telegram mirror unavailable: %v", err)
		} else if err := telegram.Connect(ctx); err != nil {
			log.Printf("[bot] telegram mirror unavailable: %v", err)
		} else {
			b.telegram = telegram
		}
	}

	if err := b.registerTools(); err != nil {
		return nil, err
	}
	log.Printf("[bot] tools registered: %v", b.registry.Names())

	runnerOpts := standup.RunnerOptions{
		Sink:     b.slack,
		Groups:   cfg.WhatsApp.Groups,
		Lookback: time.Duration(cfg.WhatsApp.LookbackHours) * time.Hour,
		Keywords: cfg.Keywords,
	}
	if b.metrics != nil {
		runnerOpts.Metrics = b.metrics
	}
	if b.whatsapp != nil {
		runnerOpts.Chat = b.whatsapp
	}
	if b.calendar != nil {
		runnerOpts.Calendar = b.calendar
	}
	if b.telegram != nil {
		runnerOpts.Mirror = b.telegram
	}
	b.runner = standup.NewRunner(runnerOpts)

	interval := time.Duration(cfg.Schedule.TestIntervalSeconds) * time.Second
	scheduler, err := standup.NewScheduler(b.runner.Run, cfg.Schedule.Daily, cfg.Schedule.TestMode, interval)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	b.scheduler = scheduler

	return b, nil
}

func (b *Bot) registerTools() error {
	adapters := []adapter.Adapter{b.slack}
	if b.metrics != nil {
		adapters = append(adapters, b.metrics)
	}
	if b.whatsapp != nil {
		adapters = append(adapters, b.whatsapp)
	}
	if b.calendar != nil {
		adapters = append(adapters, b.calendar)
	}
	if b.telegram != nil {
		adapters = append(adapters, b.telegram)
	}
	for _, a := range adapters {
		if err := a.RegisterTools(b.registry); err != nil {
			return fmt.Errorf("register %s tools: %w", a.Name(), err)
		}
	}
	return nil
}

// Registry exposes the tool registry for external callers.
func (b *Bot) Registry() *registry.Registry {
	return b.registry
}

// Runner exposes the pipeline runner, mainly for one-shot invocations.
func (b *Bot) Runner() *standup.Runner {
	return b.runner
}

// Run starts the scheduler and blocks until SIGINT/SIGTERM.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.scheduler.Start(ctx)
		close(done)
	}()

	log.Printf("[bot] running, posting to %s on schedule %q", b.cfg.Slack.Channel, b.cfg.Schedule.Daily)

	// Use injected signal channel for testing, or create default
	sigCh := b.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[bot] shutting down...")
	cancel()
	<-done
	return b.Shutdown()
}

func (b *Bot) Shutdown() error {
	if b.whatsapp != nil {
		if err := b.whatsapp.Close(); err != nil {
			log.Printf("[bot] close whatsapp warning: %v", err)
		}
		b.whatsapp = nil
	}
	if b.calendar != nil {
		_ = b.calendar.Close()
		b.calendar = nil
	}
	if b.metrics != nil {
		if err := b.metrics.Close(); err != nil {
			log.Printf("[bot] close metrics store warning: %v", err)
		}
		b.metrics = nil
	}
	if b.telegram != nil {
		_ = b.telegram.Close()
		b.telegram = nil
	}
	if b.slack != nil {
		_ = b.slack.Close()
		b.slack = nil
	}
	log.Printf("[bot] shutdown complete")
	return nil
}
