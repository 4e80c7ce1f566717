package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"postwatch/internal/monitor/schedule"
	"postwatch/internal/storage"
	kit "postwatch/internal/transport"
	logx "postwatch/pkg/logx"
)

// ErrPlaceholder means a required credential still holds its template value.
var ErrPlaceholder = errors.New("placeholder value")

const maxBatchSize = 100

// Settings is the validated, typed form of Config.
type Settings struct {
	Token           string
	APIURL          string
	TelegramTimeout time.Duration
	Recipient       kit.ChatTarget

	BaseURL       string
	UserAgent     string
	SourceTimeout time.Duration

	Schedule  schedule.Schedule
	BatchSize int

	Header         string
	RatePerSec     int
	SendTimeout    time.Duration
	DisablePreview bool
	HistorySize    int

	Storage storage.Config
	Logging logx.Config
}

// Validate reports every problem found in cfg.
func Validate(cfg *Config) error {
	_, err := Resolve(cfg)
	return err
}

// Resolve validates cfg and converts it to Settings.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, errors.New("config is nil")
	}
	var (
		s    Settings
		errs []error
	)
	fail := func(err error) { errs = append(errs, err) }
	dur := func(path, raw string) time.Duration {
		d, err := parseDuration(path, raw)
		if err != nil {
			fail(err)
		}
		return d
	}

	s.Token = strings.TrimSpace(cfg.Telegram.Token)
	switch s.Token {
	case "":
		fail(errors.New("telegram.token is required"))
	case PlaceholderToken:
		fail(fmt.Errorf("telegram.token: %w", ErrPlaceholder))
	}

	user := strings.TrimSpace(cfg.Telegram.UserID)
	switch user {
	case "":
		fail(errors.New("telegram.user_id is required"))
	case PlaceholderUserID:
		fail(fmt.Errorf("telegram.user_id: %w", ErrPlaceholder))
	default:
		to, ok := kit.ParseChatTarget(user)
		if !ok {
			fail(fmt.Errorf("telegram.user_id: %q is neither a chat id nor an @username", user))
		}
		s.Recipient = to
	}
	s.APIURL = strings.TrimSpace(cfg.Telegram.APIURL)
	s.TelegramTimeout = dur("telegram.timeout", cfg.Telegram.Timeout)

	s.BaseURL = strings.TrimSpace(cfg.Source.BaseURL)
	if u, err := url.Parse(s.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fail(fmt.Errorf("source.base_url: %q is not an http(s) URL", s.BaseURL))
	}
	s.UserAgent = strings.TrimSpace(cfg.Source.UserAgent)
	s.SourceTimeout = dur("source.timeout", cfg.Source.Timeout)

	sched, err := schedule.Parse(string(cfg.Monitor.Interval))
	if err != nil {
		fail(fmt.Errorf("monitor.interval: %w", err))
	}
	s.Schedule = sched
	s.BatchSize = cfg.Monitor.BatchSize
	if s.BatchSize < 1 || s.BatchSize > maxBatchSize {
		fail(fmt.Errorf("monitor.batch_size: %d out of range 1..%d", s.BatchSize, maxBatchSize))
	}

	s.Header = cfg.Notifier.Header
	s.RatePerSec = cfg.Notifier.RatePerSec
	if s.RatePerSec < 0 {
		fail(errors.New("notifier.rate_per_sec must be >= 0"))
	}
	s.SendTimeout = dur("notifier.send_timeout", cfg.Notifier.SendTimeout)
	s.DisablePreview = cfg.Notifier.DisablePreview
	s.HistorySize = cfg.Notifier.HistorySize

	s.Storage = storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: dur("storage.busy_timeout", cfg.Storage.BusyTimeout),
	}
	switch s.Storage.Driver {
	case "", "file", "sqlite", "sqlite3":
	default:
		fail(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if s.Storage.Path == "" {
		fail(errors.New("storage.path is required"))
	}

	s.Logging = cfg.Logging.LogConfig()

	return s, errors.Join(errs...)
}

func (l LoggingConfig) LogConfig() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// parseDuration accepts an empty string as zero so callers can fall back to defaults.
func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
