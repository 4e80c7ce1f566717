package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"postwatch/internal/eventbus"
	"postwatch/internal/source"
	kit "postwatch/internal/transport"
	logx "postwatch/pkg/logx"
)

var ErrDisabled = errors.New("notifier disabled")

// Service formats and delivers post notifications. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter kit.Adapter
	bus     eventbus.Bus
	log     logx.Logger

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, bus: bus, log: log}
	s.Apply(cfg)
	return s
}

// Apply swaps formatting and rate settings. The target may change too, though
// the app only does that on restart.
func (s *Service) Apply(cfg Config) {
	if strings.TrimSpace(cfg.Header) == "" {
		cfg.Header = DefaultHeader
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}

	s.mu.Lock()
	s.cfg = cfg
	// Token bucket: burst = rate per sec.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Notify delivers one message for item. It does not retry.
func (s *Service) Notify(ctx context.Context, item source.Item) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if s.adapter == nil || cfg.Target.IsZero() {
		return ErrDisabled
	}

	if err := lim.Wait(ctx); err != nil {
		return err
	}

	text := FormatMessage(cfg.Header, item)
	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	_, err := s.adapter.SendText(sendCtx, cfg.Target, text, &kit.SendOptions{
		ParseMode:      kit.ParseModeMarkdown,
		DisablePreview: cfg.DisablePreview,
	})
	cancel()

	ev := NotificationEvent{PostID: item.ID, Target: cfg.Target.String(), At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		s.publish(eventbus.TypeNotifyFailed, ev)
		return fmt.Errorf("send notification for post %d: %w", item.ID, err)
	}

	s.appendHistory(item.ID, text, cfg.HistorySize)
	s.publish(eventbus.TypeNotifySent, ev)
	s.log.Info("notification sent", logx.Int64("post_id", item.ID))
	return nil
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(postID int64, text string, limit int) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), PostID: postID, Text: text})
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev NotificationEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// FormatMessage renders the legacy-Markdown notification text for item.
func FormatMessage(header string, item source.Item) string {
	var b strings.Builder
	b.WriteString("🔔 *")
	b.WriteString(boldSafe(header))
	b.WriteString("*\n\n*")
	b.WriteString(boldSafe(item.Title))
	b.WriteString("*\n\n🔗 [Read more](")
	b.WriteString(strings.ReplaceAll(item.Link, ")", "%29"))
	b.WriteString(")")
	return b.String()
}

// boldSafe keeps text from closing a legacy-Markdown bold entity, where
// backslash escapes are not recognised.
func boldSafe(s string) string {
	return strings.ReplaceAll(s, "*", "∗")
}
