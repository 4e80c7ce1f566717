package app

import (
	"postwatch/internal/config"
	"postwatch/internal/monitor"
	"postwatch/internal/notifier"
	"postwatch/internal/source/wordpress"
	"postwatch/internal/transport/telegram"
)

func telegramConfig(s config.Settings) telegram.Config {
	return telegram.Config{Token: s.Token, APIURL: s.APIURL, Timeout: s.TelegramTimeout}
}

func sourceConfig(s config.Settings) wordpress.Config {
	return wordpress.Config{BaseURL: s.BaseURL, UserAgent: s.UserAgent, Timeout: s.SourceTimeout}
}

func notifierConfig(s config.Settings) notifier.Config {
	return notifier.Config{
		Target:         s.Recipient,
		Header:         s.Header,
		RatePerSec:     s.RatePerSec,
		SendTimeout:    s.SendTimeout,
		DisablePreview: s.DisablePreview,
		HistorySize:    s.HistorySize,
	}
}

func monitorOptions(s config.Settings) monitor.Options {
	return monitor.Options{BatchSize: s.BatchSize, Schedule: s.Schedule}
}
