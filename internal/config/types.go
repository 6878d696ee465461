package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "2m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Pprof     PprofConfig     `json:"pprof,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty when TELEGRAM_TOKEN is set.
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout"`
	// LogChatID receives warn+ log lines when logging.telegram.enabled is set.
	LogChatID int64 `json:"log_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the reminder backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./reminders.db", "busy_timeout": "2s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SchedulerConfig controls the reminder scheduler.
//
// ResyncSpec is a cron spec (seconds optional, descriptors like "@every 10m"
// accepted) for the periodic store reconciliation. "off" disables it.
type SchedulerConfig struct {
	ResyncSpec  string `json:"resync_spec"`
	FireTimeout string `json:"fire_timeout"`
}

// NotifierConfig controls reminder delivery.
type NotifierConfig struct {
	SendTimeout string `json:"send_timeout"`
	RatePerSec  int    `json:"rate_per_sec"`
}

// PprofConfig controls the optional debug HTTP server (/healthz and
// /debug/pprof). Prefer a loopback addr; any other addr needs a token.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default "127.0.0.1:6060"
	Token   string `json:"token,omitempty"` // never logged
}

const (
	DefaultPollTimeout = "10s"
	DefaultLogLevel    = "info"
	DefaultDriver      = "file"
	DefaultStorePath   = "./data/reminders.json"
	DefaultResyncSpec  = "@every 10m"
	DefaultFireTimeout = "30s"
	DefaultSendTimeout = "10s"
	DefaultRatePerSec  = 20
)
