package adapter

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	qrterminal "github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "modernc.org/sqlite"

	"github.com/stellarlinkco/standup/internal/config"
	"github.com/stellarlinkco/standup/internal/registry"
	"github.com/stellarlinkco/standup/internal/report"
)

// fallbackUpdates is how many raw messages a group contributes when
// nothing in it matched a keyword.
const fallbackUpdates = 3

type groupMessage struct {
	sender string
	text   string
	at     time.Time
}

// WhatsAppSource listens to configured WhatsApp groups and keeps a
// bounded in-memory history of their messages. The session persists in
// a local SQLite store; first login shows a QR code in the terminal.
type WhatsAppSource struct {
	cfg       config.WhatsAppConfig
	keywords  []string
	client    *whatsmeow.Client
	container *sqlstore.Container
	cancel    context.CancelFunc
	handlerID uint32

	mu      sync.Mutex
	history map[string][]groupMessage

	now func() time.Time
}

func NewWhatsAppSource(cfg config.WhatsAppConfig, keywords []string) *WhatsAppSource {
	return &WhatsAppSource{
		cfg:      cfg,
		keywords: keywords,
		history:  make(map[string][]groupMessage),
		now:      time.Now,
	}
}

func (w *WhatsAppSource) Name() string { return "whatsapp" }

func (w *WhatsAppSource) Connect(ctx context.Context) error {
	storePath := strings.TrimSpace(w.cfg.StorePath)
	if storePath == "" {
		storePath = filepath.Join(config.ConfigDir(), "whatsapp.db")
	}

	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return &ConnectionError{Adapter: w.Name(), Err: fmt.Errorf("create store dir: %w", err)}
	}

	storeDSN := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.ToSlash(storePath))
	container, err := sqlstore.New(ctx, "sqlite", storeDSN, waLog.Noop)
	if err != nil {
		return &ConnectionError{Adapter: w.Name(), Err: fmt.Errorf("init session store: %w", err)}
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return &ConnectionError{Adapter: w.Name(), Err: fmt.Errorf("get device: %w", err)}
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Noop)
	w.handlerID = client.AddEventHandler(w.handleEvent)

	ctx, w.cancel = context.WithCancel(ctx)

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			w.cancel()
			_ = container.Close()
			return &ConnectionError{Adapter: w.Name(), Err: fmt.Errorf("get qr channel: %w", err)}
		}
		go w.consumeQR(ctx, qrChan)
	}

	if err := client.Connect(); err != nil {
		w.cancel()
		_ = container.Close()
		return &ConnectionError{Adapter: w.Name(), Err: fmt.Errorf("connect: %w", err)}
	}

	w.client = client
	w.container = container
	log.Printf("[whatsapp] connected, watching %d groups", len(w.cfg.Groups))
	return nil
}

func (w *WhatsAppSource) Ready() bool { return w.client != nil }

func (w *WhatsAppSource) Close() error {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}

	if w.client != nil {
		if w.handlerID != 0 {
			w.client.RemoveEventHandler(w.handlerID)
			w.handlerID = 0
		}
		w.client.Disconnect()
		w.client = nil
	}

	if w.container != nil {
		if err := w.container.Close(); err != nil {
			return fmt.Errorf("close session store: %w", err)
		}
		w.container = nil
	}

	return nil
}

func (w *WhatsAppSource) consumeQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}

			switch evt.Event {
			case whatsmeow.QRChannelEventCode:
				log.Printf("[whatsapp] scan the QR code below to login")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			default:
				if evt.Error != nil {
					log.Printf("[whatsapp] login event=%s error=%v", evt.Event, evt.Error)
				} else {
					log.Printf("[whatsapp] login event=%s", evt.Event)
				}
			}
		}
	}
}

func (w *WhatsAppSource) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Message:
		w.handleMessage(e)
	}
}

func (w *WhatsAppSource) handleMessage(evt *events.Message) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe {
		return
	}
	if evt.Info.Chat.Server != types.GroupServer {
		return
	}

	text := strings.TrimSpace(evt.Message.GetConversation())
	if text == "" && evt.Message.GetExtendedTextMessage() != nil {
		text = strings.TrimSpace(evt.Message.GetExtendedTextMessage().GetText())
	}
	if text == "" {
		return
	}

	sender := evt.Info.PushName
	if sender == "" {
		sender = evt.Info.Sender.User
	}

	w.record(evt.Info.Chat.String(), sender, text, evt.Info.Timestamp)
}

func (w *WhatsAppSource) record(groupJID, sender, text string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	limit := w.cfg.HistoryLimit
	if limit <= 0 {
		limit = config.DefaultHistoryLimit
	}

	msgs := append(w.history[groupJID], groupMessage{sender: sender, text: text, at: at})
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	w.history[groupJID] = msgs
}

// Updates returns the important messages from each configured group
// within the lookback window. A group whose messages matched no keyword
// contributes its last few raw messages instead. Misconfigured groups
// are skipped; the result is whatever could be gathered.
func (w *WhatsAppSource) Updates(ctx context.Context, groups []config.GroupConfig, lookback time.Duration) ([]report.Update, error) {
	cutoff := w.now().Add(-lookback)

	var updates []report.Update
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return updates, err
		}
		if group.JID == "" {
			log.Printf("[whatsapp] %v", &ScrapeError{Group: group.Name, Err: fmt.Errorf("no jid configured")})
			continue
		}

		w.mu.Lock()
		msgs := append([]groupMessage(nil), w.history[group.JID]...)
		w.mu.Unlock()

		var recent []groupMessage
		for _, m := range msgs {
			if !m.at.Before(cutoff) {
				recent = append(recent, m)
			}
		}

		var matched []groupMessage
		for _, m := range recent {
			if report.IsImportant(m.text, w.keywords) {
				matched = append(matched, m)
			}
		}
		if len(matched) == 0 && len(recent) > 0 {
			start := len(recent) - fallbackUpdates
			if start < 0 {
				start = 0
			}
			matched = recent[start:]
		}

		for _, m := range matched {
			updates = append(updates, report.Update{
				Group:   group.Name,
				Sender:  m.sender,
				Message: m.text,
				Time:    m.at.Format("03:04 PM"),
			})
		}
	}
	return updates, nil
}

func (w *WhatsAppSource) RegisterTools(reg *registry.Registry) error {
	return reg.Register("get_group_updates", func(ctx context.Context, args ...any) (any, error) {
		lookback := time.Duration(w.cfg.LookbackHours) * time.Hour
		return w.Updates(ctx, w.cfg.Groups, lookback)
	})
}
