package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// LiveSections are applied without a restart.
var LiveSections = map[string]bool{"logging": true}

// SummarizeConfigChange returns the changed top-level sections and safe
// structured fields for logging. Secrets are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)
	section := func(name string, o, n any, fields ...logx.Field) {
		if reflect.DeepEqual(o, n) {
			return
		}
		changed = append(changed, name)
		attrs = append(attrs, fields...)
	}

	section("platform", oldCfg.Platform, newCfg.Platform, logx.String("platform", newCfg.Platform))
	section("telegram", oldCfg.Telegram, newCfg.Telegram,
		logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
	)
	section("line", oldCfg.Line, newCfg.Line,
		logx.Bool("line.token_set", strings.TrimSpace(newCfg.Line.ChannelAccessToken) != ""),
		logx.Bool("line.secret_set", strings.TrimSpace(newCfg.Line.ChannelSecret) != ""),
	)
	section("logging", oldCfg.Logging, newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.console", newCfg.Logging.Console),
		logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
	)
	section("reminder", oldCfg.Reminder, newCfg.Reminder)
	section("scheduler", oldCfg.Scheduler, newCfg.Scheduler, logx.String("scheduler.interval", newCfg.Scheduler.Interval))
	section("persistence", oldCfg.Persistence, newCfg.Persistence,
		logx.String("persistence.user_save_mode", newCfg.Persistence.UserSaveMode),
		logx.String("persistence.backup_cron", newCfg.Persistence.BackupCron),
	)
	section("storage", oldCfg.Storage, newCfg.Storage,
		logx.String("storage.driver", newCfg.Storage.Driver),
		logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""),
	)
	section("notifier", oldCfg.Notifier, newCfg.Notifier, logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec))
	section("router", oldCfg.Router, newCfg.Router, logx.Int("router.workers", newCfg.Router.Workers))
	section("http", oldCfg.HTTP, newCfg.HTTP,
		logx.Bool("http.enabled", newCfg.HTTP.Enabled),
		logx.String("http.addr", newCfg.HTTP.Addr),
		logx.Bool("http.pprof_token_set", newCfg.HTTP.PprofToken != ""),
	)
	section("events", oldCfg.Events, newCfg.Events, logx.Bool("events.kafka_enabled", newCfg.Events.Kafka.Enabled))

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired returns the changed sections that only take effect after
// a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !LiveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
