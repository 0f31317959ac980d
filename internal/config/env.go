package config

import "strings"

// Environment variables that override secrets in the file.
const (
	EnvTelegramToken       = "REMINDBOT_TELEGRAM_TOKEN"
	EnvLineAccessToken     = "LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret   = "LINE_CHANNEL_SECRET"
	EnvDatabaseURL         = "REMINDBOT_DATABASE_URL"
	EnvLegacyAccessToken   = "CHANNEL_ACCESS_TOKEN"
	EnvLegacyChannelSecret = "CHANNEL_SECRET"
)

// ApplyEnv fills secrets from the environment. A non-empty variable wins
// over the file value.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&cfg.Telegram.Token, EnvTelegramToken)
	set(&cfg.Line.ChannelAccessToken, EnvLineAccessToken, EnvLegacyAccessToken)
	set(&cfg.Line.ChannelSecret, EnvLineChannelSecret, EnvLegacyChannelSecret)
	set(&cfg.Storage.DSN, EnvDatabaseURL)
}
