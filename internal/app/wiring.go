package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/events"
	"remindbot/internal/httpapi"
	"remindbot/internal/notifier"
	"remindbot/internal/persistence"
	"remindbot/internal/reminder"
	"remindbot/internal/router"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	"remindbot/internal/transport/line"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

// The map* helpers translate the file config into component configs.
// Durations were already checked by config.Validate, so errors here only
// surface when a caller skipped validation.

func location(cfg *config.Config) *time.Location {
	h := reminder.DefaultUTCOffsetHours
	if cfg.Reminder.UTCOffsetHours != nil {
		h = *cfg.Reminder.UTCOffsetHours
	}
	return reminder.Zone(h)
}

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:        l.Chat.Enabled,
			ConversationID: l.Chat.ConversationID,
			MinLevel:       l.Chat.MinLevel,
			RatePerSec:     l.Chat.RatePerSec,
		},
	}
}

func mapTelegram(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, nil
}

func mapLine(cfg *config.Config) (line.Config, error) {
	timeout, err := config.ParseDurationOrDefault("line.http_timeout", cfg.Line.HTTPTimeout, 10*time.Second)
	if err != nil {
		return line.Config{}, err
	}
	return line.Config{
		ChannelAccessToken: cfg.Line.ChannelAccessToken,
		ChannelSecret:      cfg.Line.ChannelSecret,
		APIBase:            cfg.Line.APIBase,
		HTTPTimeout:        timeout,
	}, nil
}

// mapStorage returns enabled=false for an empty or "none" driver.
func mapStorage(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, true, nil
}

func mapPersistence(cfg *config.Config) (persistence.Config, error) {
	timeout, err := config.ParseDurationOrDefault("persistence.timeout", cfg.Persistence.Timeout, 30*time.Second)
	if err != nil {
		return persistence.Config{}, err
	}
	return persistence.Config{
		ObjectName: cfg.Persistence.ObjectName,
		BackupCron: strings.TrimSpace(cfg.Persistence.BackupCron),
		Timeout:    timeout,
		Location:   location(cfg),
	}, nil
}

func mapSaveMode(cfg *config.Config) router.SaveMode {
	if strings.EqualFold(strings.TrimSpace(cfg.Persistence.UserSaveMode), config.SaveModeAsync) {
		return router.SaveAsync
	}
	return router.SaveSync
}

func mapScheduler(cfg *config.Config) (scheduler.Config, error) {
	interval, err := config.ParseDurationOrDefault("scheduler.interval", cfg.Scheduler.Interval, scheduler.DefaultInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	enabled := true
	if cfg.Scheduler.Enabled != nil {
		enabled = *cfg.Scheduler.Enabled
	}
	return scheduler.Config{Enabled: enabled, Interval: interval}, nil
}

func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	timeout, err := config.ParseDurationOrDefault("notifier.send_timeout", cfg.Notifier.SendTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:  cfg.Notifier.RatePerSec,
		SendTimeout: timeout,
		Location:    location(cfg),
	}, nil
}

func mapRouter(cfg *config.Config) (router.ManagerOptions, error) {
	timeout, err := config.ParseDurationOrDefault("router.timeout", cfg.Router.Timeout, 30*time.Second)
	if err != nil {
		return router.ManagerOptions{}, err
	}
	return router.ManagerOptions{
		Workers:   cfg.Router.Workers,
		QueueSize: cfg.Router.QueueSize,
		Timeout:   timeout,
	}, nil
}

func mapHTTP(cfg *config.Config) httpapi.Config {
	return httpapi.Config{
		Enabled:    cfg.HTTP.Enabled,
		Addr:       cfg.HTTP.Addr,
		Pprof:      cfg.HTTP.Pprof,
		PprofToken: cfg.HTTP.PprofToken,
	}
}

func mapKafka(cfg *config.Config) (events.Config, bool) {
	k := cfg.Events.Kafka
	if !k.Enabled {
		return events.Config{}, false
	}
	return events.Config{Brokers: k.Brokers, Topic: k.Topic, ClientID: k.ClientID}, true
}

// validateRuntime is installed as the config manager's extra validator:
// checks that need component packages live here to keep config free of
// those imports.
func validateRuntime(cfg *config.Config) error {
	if spec := strings.TrimSpace(cfg.Persistence.BackupCron); spec != "" {
		if err := persistence.ValidateCron(spec); err != nil {
			return fmt.Errorf("persistence.backup_cron %q: %w", spec, err)
		}
	}
	return nil
}
