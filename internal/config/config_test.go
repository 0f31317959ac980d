package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const yamlConfig = `
platform: line
line:
  channel_access_token: file-token
  channel_secret: file-secret
logging:
  level: debug
  console: true
reminder:
  utc_offset_hours: 7
scheduler:
  interval: 20s
persistence:
  object_name: remindbot_tasks.json
  user_save_mode: sync
  backup_cron: "0 */6 * * *"
storage:
  driver: sqlite
  path: ./remindbot.db
  busy_timeout: 2s
http:
  enabled: true
  addr: 127.0.0.1:8080
events:
  kafka:
    enabled: false
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func noEnv(string) string { return "" }

func TestLoadYAML(t *testing.T) {
	m := NewConfigManager(writeFile(t, t.TempDir(), "config.yaml", yamlConfig))
	m.SetEnv(noEnv)
	cfg, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform != "line" || cfg.Storage.Driver != "sqlite" || cfg.Persistence.BackupCron != "0 */6 * * *" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Reminder.UTCOffsetHours == nil || *cfg.Reminder.UTCOffsetHours != 7 {
		t.Fatalf("utc offset = %v", cfg.Reminder.UTCOffsetHours)
	}
	if m.Get() != cfg {
		t.Fatalf("Load did not commit")
	}
}

func TestLoadJSONStrict(t *testing.T) {
	dir := t.TempDir()
	m := NewConfigManager(writeFile(t, dir, "config.json", `{"platform":"telegram","telegram":{"token":"t"},"bogus":1}`))
	m.SetEnv(noEnv)
	if _, err := m.Load(context.Background()); err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("unknown field accepted: %v", err)
	}

	m = NewConfigManager(writeFile(t, dir, "trailing.json", `{"platform":"telegram","telegram":{"token":"t"}} {}`))
	m.SetEnv(noEnv)
	if _, err := m.Load(context.Background()); err == nil {
		t.Fatalf("trailing data accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvLegacyAccessToken: "legacy-token",
		EnvLineChannelSecret: "env-secret",
		EnvDatabaseURL:       "postgres://db/remindbot",
		EnvTelegramToken:     "tg",
	}
	cfg := &Config{Line: LineConfig{ChannelAccessToken: "file", ChannelSecret: "file"}}
	ApplyEnv(cfg, func(k string) string { return env[k] })
	if cfg.Line.ChannelAccessToken != "legacy-token" || cfg.Line.ChannelSecret != "env-secret" {
		t.Fatalf("line = %+v", cfg.Line)
	}
	if cfg.Storage.DSN != "postgres://db/remindbot" || cfg.Telegram.Token != "tg" {
		t.Fatalf("cfg = %+v", cfg)
	}

	// the primary variable wins over the legacy one
	env[EnvLineAccessToken] = "primary"
	ApplyEnv(cfg, func(k string) string { return env[k] })
	if cfg.Line.ChannelAccessToken != "primary" {
		t.Fatalf("token = %q", cfg.Line.ChannelAccessToken)
	}
}

func TestValidate(t *testing.T) {
	offset := func(n int) *int { return &n }
	base := func() *Config {
		return &Config{Platform: "telegram", Telegram: TelegramConfig{Token: "t"}}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"unknown platform", func(c *Config) { c.Platform = "slack" }, "platform must be"},
		{"telegram without token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"line without webhook", func(c *Config) {
			c.Platform = "line"
			c.Line = LineConfig{ChannelAccessToken: "a", ChannelSecret: "b"}
		}, "http.enabled"},
		{"bad save mode", func(c *Config) { c.Persistence.UserSaveMode = "later" }, "user_save_mode"},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = "sqlite" }, "storage.path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "s3" }, "unknown storage.driver"},
		{"bad duration", func(c *Config) { c.Scheduler.Interval = "soon" }, "scheduler.interval"},
		{"negative duration", func(c *Config) { c.Notifier.SendTimeout = "-1s" }, "notifier.send_timeout"},
		{"offset range", func(c *Config) { c.Reminder.UTCOffsetHours = offset(20) }, "utc_offset_hours"},
		{"kafka without brokers", func(c *Config) { c.Events.Kafka = KafkaConfig{Enabled: true, Topic: "t"} }, "brokers"},
		{"chat log without conversation", func(c *Config) { c.Logging.Chat.Enabled = true }, "conversation_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := Validate(c)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestCustomValidatorRejectsLoad(t *testing.T) {
	m := NewConfigManager(writeFile(t, t.TempDir(), "c.json", `{"platform":"telegram","telegram":{"token":"t"}}`))
	m.SetEnv(noEnv)
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return errors.New("bad cron") })
	if _, err := m.Load(context.Background()); err == nil || !strings.Contains(err.Error(), "bad cron") {
		t.Fatalf("Load = %v", err)
	}
	if m.Get() != nil {
		t.Fatalf("rejected config committed")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a := &Config{Platform: "telegram", Telegram: TelegramConfig{Token: "a"}, Logging: LoggingConfig{Level: "info"}}
	b := *a
	b.Logging.Level = "debug"
	b.Telegram.Token = "b"
	b.Storage.Driver = "file"

	changed, attrs := SummarizeConfigChange(a, &b)
	if strings.Join(changed, ",") != "logging,storage,telegram" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("no attrs")
	}
	if got := RestartRequired(changed); strings.Join(got, ",") != "storage,telegram" {
		t.Fatalf("restart required = %v", got)
	}
	if changed, _ := SummarizeConfigChange(a, a); len(changed) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDurationOrDefault("x", "", 3*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("default = %v %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "150ms", time.Second); err != nil || d != 150*time.Millisecond {
		t.Fatalf("explicit = %v %v", d, err)
	}
	if d, err := ParseDurationField("x", " 90 "); err != nil || d != 90*time.Second {
		t.Fatalf("bare seconds = %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "10 apples"); err == nil {
		t.Fatalf("garbage accepted")
	}
	if _, err := ParseDurationField("x", "-5"); err == nil {
		t.Fatalf("negative seconds accepted")
	}
}

func TestWatchReloadsAndPublishes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"platform":"telegram","telegram":{"token":"t"},"logging":{"level":"info"}}`)
	m := NewConfigManager(path)
	m.SetEnv(noEnv)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// invalid content is rejected and never published
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "config.json", `{"platform":"nope"}`)
	time.Sleep(3 * reloadDebounce)
	select {
	case cfg := <-updates:
		t.Fatalf("invalid config published: %+v", cfg)
	default:
	}

	deadline := time.After(5 * time.Second)
	writeFile(t, dir, "config.json", `{"platform":"telegram","telegram":{"token":"t"},"logging":{"level":"debug"}}`)
	for {
		select {
		case cfg := <-updates:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("published %+v", cfg.Logging)
			}
			if m.Get().Logging.Level != "debug" {
				t.Fatalf("not committed")
			}
			return
		case <-deadline:
			t.Fatalf("no reload observed")
		}
	}
}

func TestDecodeYAMLEmptyAndNonStringKeys(t *testing.T) {
	cfg, err := decodeConfig("c.yaml", []byte(""))
	if err != nil || cfg.Platform != "" {
		t.Fatalf("empty yaml = %+v %v", cfg, err)
	}
	// integer keys are stringified and then rejected as unknown fields
	if _, err := decodeConfig("c.yml", []byte("1: x\n")); err == nil || !strings.Contains(err.Error(), `"1"`) {
		t.Fatalf("non-string key = %v", err)
	}
	if formatOf("C.YAML") != "yaml" || formatOf("c.conf") != "json" {
		t.Fatalf("formatOf")
	}
}
