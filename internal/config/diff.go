package config

import (
	"sort"
	"strings"

	logx "postwatch/pkg/logx"
)

// Change is the outcome of comparing two configs.
type Change struct {
	// Sections lists every changed top-level section, sorted.
	Sections []string
	// Restart lists changed sections that only take effect after a restart.
	Restart []string
	// Fields are safe to log; tokens are never included.
	Fields []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeConfigChange compares oldCfg with newCfg.
// logging, monitor and notifier are applied live; the rest needs a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if restart {
			ch.Restart = append(ch.Restart, section)
		}
		ch.Fields = append(ch.Fields, fields...)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || !trimEq(ot.UserID, nt.UserID) ||
		!trimEq(ot.APIURL, nt.APIURL) || !trimEq(ot.Timeout, nt.Timeout) {
		mark("telegram", true,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Bool("telegram.user_id_changed", !trimEq(ot.UserID, nt.UserID)),
		)
	}

	if oldCfg.Source != newCfg.Source {
		mark("source", true,
			logx.String("source.base_url", strings.TrimSpace(newCfg.Source.BaseURL)),
			logx.String("source.timeout", strings.TrimSpace(newCfg.Source.Timeout)),
		)
	}

	if oldCfg.Monitor != newCfg.Monitor {
		mark("monitor", false,
			logx.String("monitor.interval", strings.TrimSpace(string(newCfg.Monitor.Interval))),
			logx.Int("monitor.batch_size", newCfg.Monitor.BatchSize),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		mark("notifier", false,
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.String("notifier.send_timeout", strings.TrimSpace(newCfg.Notifier.SendTimeout)),
			logx.Bool("notifier.disable_preview", newCfg.Notifier.DisablePreview),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_changed", !trimEq(oldCfg.Storage.Path, newCfg.Storage.Path)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.Restart)
	return ch
}

func trimEq(a, b string) bool { return strings.TrimSpace(a) == strings.TrimSpace(b) }
