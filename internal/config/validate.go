package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	PlatformTelegram = "telegram"
	PlatformLine     = "line"

	SaveModeSync  = "sync"
	SaveModeAsync = "async"
)

// Validate checks everything that can be checked without touching the
// network. It reports all problems at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch strings.ToLower(strings.TrimSpace(cfg.Platform)) {
	case PlatformTelegram:
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			add("telegram.token is required (or set %s)", EnvTelegramToken)
		}
	case PlatformLine:
		if strings.TrimSpace(cfg.Line.ChannelAccessToken) == "" {
			add("line.channel_access_token is required (or set %s)", EnvLineAccessToken)
		}
		if strings.TrimSpace(cfg.Line.ChannelSecret) == "" {
			add("line.channel_secret is required (or set %s)", EnvLineChannelSecret)
		}
		if !cfg.HTTP.Enabled {
			add("http.enabled must be true for platform=line (webhook)")
		}
	default:
		add("platform must be %q or %q, got %q", PlatformTelegram, PlatformLine, cfg.Platform)
	}

	if h := cfg.Reminder.UTCOffsetHours; h != nil && (*h < -12 || *h > 14) {
		add("reminder.utc_offset_hours out of range: %d", *h)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Persistence.UserSaveMode)) {
	case "", SaveModeSync, SaveModeAsync:
	default:
		add("persistence.user_save_mode must be %q or %q", SaveModeSync, SaveModeAsync)
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "none", "file":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add("storage.path is required when storage.driver=%s", d)
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add("storage.dsn is required when storage.driver=%s (or set %s)", d, EnvDatabaseURL)
		}
	default:
		add("unknown storage.driver: %s", cfg.Storage.Driver)
	}

	if cfg.Events.Kafka.Enabled {
		if len(cfg.Events.Kafka.Brokers) == 0 {
			add("events.kafka.brokers is required when kafka is enabled")
		}
		if strings.TrimSpace(cfg.Events.Kafka.Topic) == "" {
			add("events.kafka.topic is required when kafka is enabled")
		}
	}
	if cfg.Notifier.RatePerSec < 0 {
		add("notifier.rate_per_sec must be >= 0")
	}
	if cfg.Logging.Chat.Enabled && strings.TrimSpace(cfg.Logging.Chat.ConversationID) == "" {
		add("logging.chat.conversation_id is required when logging.chat is enabled")
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"line.http_timeout", cfg.Line.HTTPTimeout},
		{"scheduler.interval", cfg.Scheduler.Interval},
		{"persistence.timeout", cfg.Persistence.Timeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"notifier.send_timeout", cfg.Notifier.SendTimeout},
		{"router.timeout", cfg.Router.Timeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
