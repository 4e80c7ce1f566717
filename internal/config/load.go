package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvToken         = "TELEGRAM_BOT_TOKEN"
	EnvUserID        = "TELEGRAM_USER_ID"
	EnvCheckInterval = "CHECK_INTERVAL"
	EnvDataFile      = "DATA_FILE"
	EnvAPIURL        = "WORDPRESS_API_URL"
	EnvLogLevel      = "LOG_LEVEL"
	EnvStorageDriver = "STORAGE_DRIVER"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ParseFile decodes path on top of Default(). YAML files (.yaml, .yml) are
// converted to JSON first so both formats reject unknown keys.
func ParseFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseBytes(path, b)
}

func parseBytes(path string, b []byte) (*Config, error) {
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s config %s: %w", format, path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("parse %s config %s: trailing data", format, path)
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any environment variables that are set.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	if cfg == nil || lookup == nil {
		return
	}
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvToken, &cfg.Telegram.Token)
	set(EnvUserID, &cfg.Telegram.UserID)
	set(EnvCheckInterval, (*string)(&cfg.Monitor.Interval))
	set(EnvDataFile, &cfg.Storage.Path)
	set(EnvAPIURL, &cfg.Source.BaseURL)
	set(EnvLogLevel, &cfg.Logging.Level)
	set(EnvStorageDriver, &cfg.Storage.Driver)
}

// Load builds the effective configuration: defaults, then the optional
// config file, then environment overrides. The result is not validated.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		var err error
		if cfg, err = ParseFile(path); err != nil {
			return nil, err
		}
	}
	ApplyEnv(cfg, lookup)
	return cfg, nil
}
