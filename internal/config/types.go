package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "20s", "1m").
// Secrets may be left empty and supplied through the environment; see
// ApplyEnv.
type Config struct {
	// Platform selects the chat platform: "telegram" or "line".
	Platform string `json:"platform"`

	Telegram    TelegramConfig    `json:"telegram"`
	Line        LineConfig        `json:"line"`
	Logging     LoggingConfig     `json:"logging"`
	Reminder    ReminderConfig    `json:"reminder"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
	Persistence PersistenceConfig `json:"persistence"`
	Storage     StorageConfig     `json:"storage"`
	Notifier    NotifierConfig    `json:"notifier"`
	Router      RouterConfig      `json:"router"`
	HTTP        HTTPConfig        `json:"http"`
	Events      EventsConfig      `json:"events"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LineConfig struct {
	ChannelAccessToken string `json:"channel_access_token"`
	ChannelSecret      string `json:"channel_secret"`
	// APIBase overrides https://api.line.me (tests, proxies).
	APIBase     string `json:"api_base,omitempty"`
	HTTPTimeout string `json:"http_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warnings into an operator conversation.
type LoggingChat struct {
	Enabled        bool   `json:"enabled"`
	ConversationID string `json:"conversation_id"`
	MinLevel       string `json:"min_level"`
	RatePerSec     int    `json:"rate_per_sec"`
}

type ReminderConfig struct {
	// UTCOffsetHours is the fixed zone used to read and render times.
	// Omitted means 7.
	UTCOffsetHours *int `json:"utc_offset_hours,omitempty"`
}

type SchedulerConfig struct {
	// Enabled is a pointer so an omitted value defaults to true.
	Enabled  *bool  `json:"enabled,omitempty"`
	Interval string `json:"interval,omitempty"`
}

type PersistenceConfig struct {
	ObjectName string `json:"object_name,omitempty"`
	// UserSaveMode is "sync" (default) or "async".
	UserSaveMode string `json:"user_save_mode,omitempty"`
	// BackupCron is an optional standard 5-field cron spec for periodic saves.
	BackupCron string `json:"backup_cron,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// StorageConfig selects the object store backing persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

type RouterConfig struct {
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

type HTTPConfig struct {
	Enabled    bool   `json:"enabled"`
	Addr       string `json:"addr,omitempty"`
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"`
}

type EventsConfig struct {
	Kafka KafkaConfig `json:"kafka"`
}

type KafkaConfig struct {
	Enabled  bool     `json:"enabled"`
	Brokers  []string `json:"brokers,omitempty"`
	Topic    string   `json:"topic,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
}
