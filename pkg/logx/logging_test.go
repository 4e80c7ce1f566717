package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "postwatch/internal/transport"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info").With(String("comp", "monitor"))

	log.Debug("hidden")
	log.Info("cycle finished", Int64("last_post_id", 42), Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["message"] != "cycle finished" || m["comp"] != "monitor" || m["last_post_id"] != float64(42) || m["err"] != "boom" {
		t.Fatalf("unexpected entry: %v", m)
	}
	if _, ok := m["caller"]; !ok {
		t.Fatalf("missing caller: %v", m)
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	zero.Info("no panic")
	if Nop().IsZero() {
		t.Fatal("Nop() should not be zero")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("warning", LevelInfo) != LevelWarn {
		t.Fatal("warning should map to warn")
	}
	if parseLevel("nonsense", LevelError) != LevelError {
		t.Fatal("unknown level should fall back to default")
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	got := formatTelegramJSON([]byte(`{"level":"error","message":"error saving cursor","time":"x","cursor":"7"}`))
	if !strings.HasPrefix(got, "[ERROR] error saving cursor") || !strings.Contains(got, "- cursor=7") || strings.Contains(got, "time=") {
		t.Fatalf("formatTelegramJSON() = %q", got)
	}
}

type captureSender struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return kit.MessageRef{}, nil
}

func (c *captureSender) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func TestTelegramSinkHonoursMinLevel(t *testing.T) {
	sender := &captureSender{}
	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 50},
	}, sender)
	defer svc.Close()
	svc.SetTelegramTarget(kit.ChatTarget{ChatID: 1})

	log.Info("routine")
	log.Warn("possible missed posts")

	deadline := time.Now().Add(2 * time.Second)
	for len(sender.texts()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := sender.texts()
	if len(got) != 1 || !strings.Contains(got[0], "possible missed posts") {
		t.Fatalf("sink sent %q", got)
	}
}
