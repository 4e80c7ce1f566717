package config

import (
	"encoding/json"
	"fmt"
)

// Config is the on-disk configuration. Every section is optional; Default()
// fills what a bare environment-only deployment needs.
//
// Durations are Go duration strings ("20s", "1m"). Monitor.Interval also
// accepts plain seconds ("600"), "HH:MM" and cron expressions.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Source   SourceConfig   `json:"source"`
	Monitor  MonitorConfig  `json:"monitor"`
	Notifier NotifierConfig `json:"notifier"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// UserID is the notification recipient: a numeric chat id or an @channel username.
	UserID  string `json:"user_id"`
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type SourceConfig struct {
	BaseURL   string `json:"base_url"`
	UserAgent string `json:"user_agent,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

type MonitorConfig struct {
	Interval  Interval `json:"interval"`
	BatchSize int      `json:"batch_size"`
}

// Interval is a poll schedule. In files it may be a bare number of seconds
// or a string.
type Interval string

func (i *Interval) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*i = Interval(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("interval must be a number of seconds or a string: %w", err)
	}
	*i = Interval(s)
	return nil
}

type NotifierConfig struct {
	Header         string `json:"header,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	SendTimeout    string `json:"send_timeout,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// StorageConfig selects the cursor store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./postwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors warnings and errors to the notification recipient.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

const (
	DefaultBaseURL   = "https://conscordoba.esteri.it/wp-json/wp/v2/posts"
	DefaultInterval  = "600"
	DefaultStatePath = "last_post_data.json"
	DefaultBatchSize = 5
	DefaultDriver    = "file"

	PlaceholderToken  = "YOUR_TELEGRAM_BOT_TOKEN"
	PlaceholderUserID = "YOUR_TELEGRAM_USER_ID"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Token:  PlaceholderToken,
			UserID: PlaceholderUserID,
		},
		Source: SourceConfig{
			BaseURL: DefaultBaseURL,
			Timeout: "20s",
		},
		Monitor: MonitorConfig{
			Interval:  DefaultInterval,
			BatchSize: DefaultBatchSize,
		},
		Storage: StorageConfig{
			Driver: DefaultDriver,
			Path:   DefaultStatePath,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Telegram: LoggingTelegram{
				MinLevel:   "error",
				RatePerSec: 1,
			},
		},
	}
}
