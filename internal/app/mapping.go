package app

import (
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/pprof"
	"remindbot/internal/services/scheduler"
	"remindbot/internal/storage"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

// The helpers below expect a normalized, validated config.

func adapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, nil
}

func logConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     cfg.Telegram.LogChatID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func notifierConfig(cfg *config.Config) (notifier.Config, error) {
	d, err := config.ParseDurationOrDefault("notifier.send_timeout", cfg.Notifier.SendTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{SendTimeout: d, RatePerSec: cfg.Notifier.RatePerSec}, nil
}

func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	d, err := config.ParseDurationOrDefault("scheduler.fire_timeout", cfg.Scheduler.FireTimeout, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	spec := ""
	if cfg.Scheduler.ResyncEnabled() {
		spec = strings.TrimSpace(cfg.Scheduler.ResyncSpec)
	}
	return scheduler.Config{ResyncSpec: spec, FireTimeout: d}, nil
}

func pprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled: cfg.Pprof.Enabled,
		Addr:    strings.TrimSpace(cfg.Pprof.Addr),
		Token:   strings.TrimSpace(cfg.Pprof.Token),
	}
}
