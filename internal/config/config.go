package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultChannel       = "#social"
	DefaultDailySchedule = "0 9 * * *"
	DefaultTestIntervalS = 60
	DefaultLookbackHours = 24
	DefaultHistoryLimit  = 200
)

// DefaultKeywords is the shared importance filter applied to both chat
// updates and calendar event summaries.
var DefaultKeywords = []string{
	"completed", "done", "finished", "deployed", "released",
	"blocked", "issue", "problem", "urgent", "help",
	"meeting", "demo", "presentation", "review",
	"milestone", "deadline", "update", "api", "integration",
	"standup", "working", "progress",
	"client", "interview", "sprint",
}

type Config struct {
	Slack    SlackConfig    `json:"slack"`
	Telegram TelegramConfig `json:"telegram"`
	Calendar CalendarConfig `json:"calendar"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Database DatabaseConfig `json:"database"`
	Schedule ScheduleConfig `json:"schedule"`
	Keywords []string       `json:"keywords,omitempty"`
}

type SlackConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chatId"`
}

type CalendarConfig struct {
	Enabled         bool   `json:"enabled"`
	CredentialsFile string `json:"credentialsFile,omitempty"`
	TokenFile       string `json:"tokenFile,omitempty"`
}

type GroupConfig struct {
	Name string `json:"name"`
	JID  string `json:"jid"`
}

type WhatsAppConfig struct {
	Enabled       bool          `json:"enabled"`
	StorePath     string        `json:"storePath,omitempty"`
	Groups        []GroupConfig `json:"groups"`
	LookbackHours int           `json:"lookbackHours,omitempty"`
	HistoryLimit  int           `json:"historyLimit,omitempty"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type ScheduleConfig struct {
	Daily               string `json:"daily"`
	TestMode            bool   `json:"testMode"`
	TestIntervalSeconds int    `json:"testIntervalSeconds,omitempty"`
}

// ConfigError marks a missing required credential or setting. It is fatal
// at startup, unlike adapter errors which only degrade a pipeline stage.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required config: %s", e.Key)
}

func DefaultConfig() *Config {
	dir := ConfigDir()
	return &Config{
		Slack: SlackConfig{
			Channel: DefaultChannel,
		},
		Calendar: CalendarConfig{
			CredentialsFile: filepath.Join(dir, "credentials.json"),
			TokenFile:       filepath.Join(dir, "token.json"),
		},
		WhatsApp: WhatsAppConfig{
			StorePath:     filepath.Join(dir, "whatsapp.db"),
			LookbackHours: DefaultLookbackHours,
			HistoryLimit:  DefaultHistoryLimit,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dir, "data", "business_data.db"),
		},
		Schedule: ScheduleConfig{
			Daily:               DefaultDailySchedule,
			TestIntervalSeconds: DefaultTestIntervalS,
		},
		Keywords: append([]string(nil), DefaultKeywords...),
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".standup")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		cfg.Slack.Token = token
	}
	if channel := os.Getenv("SLACK_CHANNEL"); channel != "" {
		cfg.Slack.Channel = channel
	}
	if mode := os.Getenv("TEST_MODE"); mode != "" {
		if parsed, err := strconv.ParseBool(mode); err == nil {
			cfg.Schedule.TestMode = parsed
		}
	}
	if expr := os.Getenv("STANDUP_SCHEDULE"); expr != "" {
		cfg.Schedule.Daily = expr
	}
	if token := os.Getenv("STANDUP_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := os.Getenv("STANDUP_TELEGRAM_CHAT_ID"); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if path := os.Getenv("STANDUP_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}

	if cfg.Slack.Channel == "" {
		cfg.Slack.Channel = DefaultChannel
	}
	if cfg.Schedule.Daily == "" {
		cfg.Schedule.Daily = DefaultDailySchedule
	}
	if cfg.Schedule.TestIntervalSeconds <= 0 {
		cfg.Schedule.TestIntervalSeconds = DefaultTestIntervalS
	}
	if cfg.WhatsApp.LookbackHours <= 0 {
		cfg.WhatsApp.LookbackHours = DefaultLookbackHours
	}
	if cfg.WhatsApp.HistoryLimit <= 0 {
		cfg.WhatsApp.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.WhatsApp.StorePath == "" {
		cfg.WhatsApp.StorePath = DefaultConfig().WhatsApp.StorePath
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultConfig().Database.Path
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = append([]string(nil), DefaultKeywords...)
	}

	return cfg, nil
}

// Validate reports the first fatal configuration problem, if any.
func (c *Config) Validate() error {
	if c.Slack.Token == "" {
		return &ConfigError{Key: "slack.token (SLACK_BOT_TOKEN)"}
	}
	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			return &ConfigError{Key: "telegram.token (STANDUP_TELEGRAM_TOKEN)"}
		}
		if c.Telegram.ChatID == "" {
			return &ConfigError{Key: "telegram.chatId (STANDUP_TELEGRAM_CHAT_ID)"}
		}
	}
	return nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
