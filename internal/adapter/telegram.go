package adapter

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stellarlinkco/standup/internal/registry"
	"github.com/stellarlinkco/standup/internal/report"
)

// TelegramBot interface for sending messages (allows mocking)
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement TelegramBot interface
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramSink mirrors the plain-text rendering of the standup to a
// Telegram chat. It is a secondary sink; its failures never fail a run.
type TelegramSink struct {
	token      string
	chatID     int64
	bot        TelegramBot
	botFactory BotFactory
}

func NewTelegramSink(token, chatID string) (*TelegramSink, error) {
	return NewTelegramSinkWithFactory(token, chatID, defaultBotFactory)
}

func NewTelegramSinkWithFactory(token, chatID string, factory BotFactory) (*TelegramSink, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return &TelegramSink{token: token, chatID: id, botFactory: factory}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Connect(ctx context.Context) error {
	bot, err := t.botFactory(t.token, http.DefaultClient)
	if err != nil {
		return &ConnectionError{Adapter: t.Name(), Err: fmt.Errorf("create bot: %w", err)}
	}
	t.bot = bot
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramSink) Ready() bool { return t.bot != nil }

func (t *TelegramSink) Close() error {
	t.bot = nil
	return nil
}

// Publish sends the flattened message, chunked to stay under
// Telegram's message size limit.
func (t *TelegramSink) Publish(ctx context.Context, msg report.Message) (report.Outcome, error) {
	if t.bot == nil {
		return report.Outcome{Reason: "sink not connected"},
			&DeliveryError{Err: fmt.Errorf("telegram bot not initialized")}
	}

	content := msg.Flatten()
	if content == "" {
		content = msg.Fallback
	}

	// Telegram has a 4096 char limit per message
	const maxLen = 4000
	var lastID int
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			idx := strings.LastIndex(chunk[:maxLen], "\n")
			if idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = content[len(chunk):]

		sent, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, chunk))
		if err != nil {
			return report.Outcome{Reason: err.Error()},
				&DeliveryError{Err: fmt.Errorf("send telegram message: %w", err)}
		}
		lastID = sent.MessageID
	}

	return report.Outcome{Delivered: true, MessageID: strconv.Itoa(lastID)}, nil
}

func (t *TelegramSink) RegisterTools(reg *registry.Registry) error {
	// The Telegram mirror is driven by the runner, not invoked as a tool.
	return nil
}
