package notifier

import (
	"time"

	kit "postwatch/internal/transport"
)

const (
	DefaultHeader      = "New Post Published!"
	DefaultRatePerSec  = 3
	DefaultSendTimeout = 10 * time.Second
	defaultHistorySize = 50
)

// Config controls message formatting and delivery.
type Config struct {
	Target      kit.ChatTarget
	Header      string
	RatePerSec  int
	SendTimeout time.Duration
	// DisablePreview suppresses the link preview; previews are on by default.
	DisablePreview bool
	HistorySize    int
}

type HistoryItem struct {
	At     time.Time
	PostID int64
	Text   string
}

// NotificationEvent is emitted on the event bus after each delivery attempt.
type NotificationEvent struct {
	PostID int64     `json:"post_id"`
	Target string    `json:"target"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
