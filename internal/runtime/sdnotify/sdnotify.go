// Package sdnotify reports service state to systemd.
//
// Every call is a no-op when the process is not started by systemd
// (NOTIFY_SOCKET unset), so callers never need to check.
package sdnotify

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "postwatch/pkg/logx"
)

type Notifier struct {
	log logx.Logger
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log}
}

func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Watchdog pings the systemd watchdog. The monitor calls it once per cycle.
func (n *Notifier) Watchdog() { n.send(daemon.SdNotifyWatchdog) }

// WatchdogInterval returns the configured WatchdogSec, or 0 when disabled.
func (n *Notifier) WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.log.Debug("systemd watchdog query failed", logx.Err(err))
		return 0
	}
	return d
}

func (n *Notifier) send(state string) {
	if n == nil {
		return
	}
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Debug("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("systemd notified", logx.String("state", state))
	}
}
