package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"postwatch/internal/monitor/schedule"
)

func lookupMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func validEnv() map[string]string {
	return map[string]string{
		EnvToken:  "123:abc",
		EnvUserID: "42",
	}
}

func TestLoadDefaultsWithEnvOverrides(t *testing.T) {
	env := validEnv()
	env[EnvCheckInterval] = "120"
	env[EnvDataFile] = "/var/lib/postwatch/state.json"
	env[EnvAPIURL] = "https://blog.example.org/wp-json/wp/v2/posts"
	env[EnvLogLevel] = "debug"

	cfg, err := Load("", lookupMap(env))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Token != "123:abc" || s.Recipient.ChatID != 42 {
		t.Fatalf("unexpected telegram settings: %+v", s)
	}
	if s.Schedule.Kind != schedule.KindInterval || s.Schedule.Every != 2*time.Minute {
		t.Fatalf("schedule = %+v, want every 2m", s.Schedule)
	}
	if s.Storage.Path != "/var/lib/postwatch/state.json" || s.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", s.Storage)
	}
	if s.BaseURL != env[EnvAPIURL] || s.BatchSize != DefaultBatchSize {
		t.Fatalf("source = %q batch = %d", s.BaseURL, s.BatchSize)
	}
	if s.Logging.Level != "debug" {
		t.Fatalf("log level = %q", s.Logging.Level)
	}
}

func TestDefaultsMatchLegacyDeployment(t *testing.T) {
	cfg, err := Load("", lookupMap(validEnv()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Schedule.Every != 600*time.Second {
		t.Fatalf("interval = %v, want 600s", s.Schedule.Every)
	}
	if s.Storage.Path != "last_post_data.json" {
		t.Fatalf("state path = %q", s.Storage.Path)
	}
	if s.BaseURL != DefaultBaseURL || s.SourceTimeout != 20*time.Second {
		t.Fatalf("source = %q timeout = %v", s.BaseURL, s.SourceTimeout)
	}
}

func TestValidateRejectsPlaceholders(t *testing.T) {
	err := Validate(Default())
	if !errors.Is(err, ErrPlaceholder) {
		t.Fatalf("Validate() = %v, want ErrPlaceholder", err)
	}
	for _, field := range []string{"telegram.token", "telegram.user_id"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("error %q does not mention %s", err, field)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token is required"},
		{"bad recipient", func(c *Config) { c.Telegram.UserID = "someone" }, "telegram.user_id"},
		{"bad interval", func(c *Config) { c.Monitor.Interval = "often" }, "monitor.interval"},
		{"batch too small", func(c *Config) { c.Monitor.BatchSize = 0 }, "monitor.batch_size"},
		{"batch too large", func(c *Config) { c.Monitor.BatchSize = 101 }, "monitor.batch_size"},
		{"bad url", func(c *Config) { c.Source.BaseURL = "ftp://x" }, "source.base_url"},
		{"bad timeout", func(c *Config) { c.Source.Timeout = "soon" }, "source.timeout"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"no path", func(c *Config) { c.Storage.Path = " " }, "storage.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := Load("", lookupMap(validEnv()))
			tt.mutate(cfg)
			_, err := Resolve(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Resolve() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestResolveChannelRecipientAndCron(t *testing.T) {
	cfg, _ := Load("", lookupMap(map[string]string{
		EnvToken:         "t",
		EnvUserID:        "@consulate_feed",
		EnvCheckInterval: "*/10 * * * *",
	}))
	s, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Recipient.Username != "@consulate_feed" {
		t.Fatalf("recipient = %+v", s.Recipient)
	}
	if s.Schedule.Kind != schedule.KindCron {
		t.Fatalf("schedule = %+v, want cron", s.Schedule)
	}
}

func TestParseFileYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	y := writeFile(t, dir, "postwatch.yaml", `
telegram:
  token: "1:x"
  user_id: "7"
monitor:
  interval: 5m
  batch_size: 10
storage:
  driver: sqlite
  path: ./state.db
`)
	cfg, err := ParseFile(y)
	if err != nil {
		t.Fatalf("ParseFile(yaml): %v", err)
	}
	if cfg.Monitor.BatchSize != 10 || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected yaml config: %+v", cfg)
	}
	// Omitted sections keep their defaults.
	if cfg.Source.BaseURL != DefaultBaseURL {
		t.Fatalf("base url = %q, want default", cfg.Source.BaseURL)
	}

	j := writeFile(t, dir, "postwatch.json", `{"telegram":{"token":"1:x","user_id":"7"},"monitor":{"interval":"30","batch_size":3}}`)
	cfg, err = ParseFile(j)
	if err != nil {
		t.Fatalf("ParseFile(json): %v", err)
	}
	if cfg.Monitor.Interval != "30" || cfg.Storage.Path != DefaultStatePath {
		t.Fatalf("unexpected json config: %+v", cfg)
	}
}

func TestParseFileRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"a.json": `{"monitor":{"interval":"30","poll":"fast"}}`,
		"b.yaml": "monitor:\n  intervall: 30\n",
		"c.json": `{"monitor":{}}{"monitor":{}}`,
	} {
		if _, err := ParseFile(writeFile(t, dir, name, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "POSTWATCH_TEST_ENV_FILE_KEY"
	t.Setenv(key, "placeholder")
	os.Unsetenv(key)

	dir := t.TempDir()
	p := writeFile(t, dir, ".env", key+"=from-file\n")
	if err := LoadEnvFile(p); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Fatalf("%s = %q, want from-file", key, got)
	}
	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg, _ := Load("", lookupMap(validEnv()))
	newCfg, _ := Load("", lookupMap(validEnv()))
	if ch := SummarizeConfigChange(oldCfg, newCfg); !ch.Empty() {
		t.Fatalf("expected no change, got %v", ch.Sections)
	}

	newCfg.Monitor.Interval = "60"
	newCfg.Logging.Level = "debug"
	newCfg.Storage.Driver = "sqlite"
	newCfg.Telegram.Token = "999:secret"

	ch := SummarizeConfigChange(oldCfg, newCfg)
	if got := strings.Join(ch.Sections, ","); got != "logging,monitor,storage,telegram" {
		t.Fatalf("sections = %s", got)
	}
	if got := strings.Join(ch.Restart, ","); got != "storage,telegram" {
		t.Fatalf("restart = %s", got)
	}
}

func TestManagerReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "postwatch.json", `{"telegram":{"token":"1:x","user_id":"7"},"monitor":{"interval":"30","batch_size":5}}`)

	m := NewManager(p, lookupMap(nil))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	if changed, err := m.Reload(); err != nil || changed {
		t.Fatalf("Reload() unchanged = (%v, %v)", changed, err)
	}

	writeFile(t, dir, "postwatch.json", `{"telegram":{"token":"1:x","user_id":"7"},"monitor":{"interval":"45","batch_size":5}}`)
	if changed, err := m.Reload(); err != nil || !changed {
		t.Fatalf("Reload() changed = (%v, %v)", changed, err)
	}
	select {
	case cfg := <-ch:
		if cfg.Monitor.Interval != "45" {
			t.Fatalf("published interval = %q", cfg.Monitor.Interval)
		}
	default:
		t.Fatal("expected published config")
	}

	writeFile(t, dir, "postwatch.json", `{"telegram":{"token":"1:x","user_id":"7"},"monitor":{"interval":"45","batch_size":0}}`)
	if _, err := m.Reload(); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}
	if m.Get().Monitor.BatchSize != 5 {
		t.Fatalf("rejected config was committed: %+v", m.Get().Monitor)
	}
	select {
	case <-ch:
		t.Fatal("rejected config was published")
	default:
	}
}
