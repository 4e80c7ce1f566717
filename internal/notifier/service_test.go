package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"postwatch/internal/eventbus"
	"postwatch/internal/source"
	kit "postwatch/internal/transport"
	logx "postwatch/pkg/logx"
)

type sent struct {
	to   kit.ChatTarget
	text string
	opt  kit.SendOptions
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, sent{to: to, text: text, opt: *opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func TestFormatMessage(t *testing.T) {
	got := FormatMessage(DefaultHeader, source.Item{ID: 7, Title: "Hello", Link: "https://example.org/?p=7"})
	want := "🔔 *New Post Published!*\n\n*Hello*\n\n🔗 [Read more](https://example.org/?p=7)"
	if got != want {
		t.Fatalf("FormatMessage() =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatMessageNeutralisesMarkdown(t *testing.T) {
	got := FormatMessage("Hi", source.Item{Title: "5 * 3 = 15", Link: "https://example.org/a_(b)"})
	if strings.Contains(got, "*5 * 3") {
		t.Fatalf("asterisk in title not neutralised: %q", got)
	}
	if !strings.Contains(got, "(https://example.org/a_(b%29)") {
		t.Fatalf("closing paren in link not encoded: %q", got)
	}
}

func TestNotifySendsMarkdownWithPreview(t *testing.T) {
	ad := &fakeAdapter{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{Target: kit.ChatTarget{ChatID: 99}}, ad, logx.Nop(), bus)
	if err := s.Notify(context.Background(), source.Item{ID: 3, Title: "T", Link: "https://x"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(ad.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(ad.sent))
	}
	m := ad.sent[0]
	if m.to.ChatID != 99 || m.opt.ParseMode != kit.ParseModeMarkdown || m.opt.DisablePreview {
		t.Fatalf("unexpected send: %+v", m)
	}
	if h := s.Snapshot(); len(h) != 1 || h[0].PostID != 3 {
		t.Fatalf("unexpected history: %+v", h)
	}
	select {
	case e := <-events:
		if e.Type != eventbus.TypeNotifySent {
			t.Fatalf("event type = %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestNotifyFailureIsReturnedOnce(t *testing.T) {
	ad := &fakeAdapter{err: errors.New("telegram: bad gateway")}
	s := New(Config{Target: kit.ChatTarget{ChatID: 1}}, ad, logx.Nop(), nil)

	err := s.Notify(context.Background(), source.Item{ID: 14})
	if err == nil || !strings.Contains(err.Error(), "post 14") {
		t.Fatalf("Notify() = %v", err)
	}
	if len(s.Snapshot()) != 0 {
		t.Fatal("failed delivery must not enter history")
	}
}

func TestNotifyWithoutTargetIsDisabled(t *testing.T) {
	s := New(Config{}, &fakeAdapter{}, logx.Nop(), nil)
	if err := s.Notify(context.Background(), source.Item{ID: 1}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Notify() = %v, want ErrDisabled", err)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(Config{Target: kit.ChatTarget{ChatID: 1}, HistorySize: 2, RatePerSec: 100}, ad, logx.Nop(), nil)
	for i := int64(1); i <= 4; i++ {
		if err := s.Notify(context.Background(), source.Item{ID: i}); err != nil {
			t.Fatal(err)
		}
	}
	h := s.Snapshot()
	if len(h) != 2 || h[0].PostID != 3 || h[1].PostID != 4 {
		t.Fatalf("unexpected history: %+v", h)
	}
}
