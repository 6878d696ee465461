package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	logx "remindbot/pkg/logx"
)

// EnvToken overrides telegram.token when set.
const EnvToken = "TELEGRAM_TOKEN"

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Normalize fills defaults and applies environment overrides in place.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if tok := strings.TrimSpace(os.Getenv(EnvToken)); tok != "" {
		cfg.Telegram.Token = tok
	}
	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	if strings.TrimSpace(cfg.Telegram.PollTimeout) == "" {
		cfg.Telegram.PollTimeout = DefaultPollTimeout
	}

	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Telegram.RatePerSec <= 0 {
		cfg.Logging.Telegram.RatePerSec = 1
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultDriver
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	if cfg.Storage.Path == "" && cfg.Storage.Driver == DefaultDriver {
		cfg.Storage.Path = DefaultStorePath
	}

	if strings.TrimSpace(cfg.Scheduler.ResyncSpec) == "" {
		cfg.Scheduler.ResyncSpec = DefaultResyncSpec
	}
	if strings.TrimSpace(cfg.Scheduler.FireTimeout) == "" {
		cfg.Scheduler.FireTimeout = DefaultFireTimeout
	}

	if strings.TrimSpace(cfg.Notifier.SendTimeout) == "" {
		cfg.Notifier.SendTimeout = DefaultSendTimeout
	}
	if cfg.Notifier.RatePerSec <= 0 {
		cfg.Notifier.RatePerSec = DefaultRatePerSec
	}
}

// ResyncEnabled reports whether the periodic resync job should run.
func (c SchedulerConfig) ResyncEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(c.ResyncSpec)) {
	case "off", "none", "disabled":
		return false
	}
	return true
}

// Validate rejects configs that cannot be applied. It expects a normalized
// config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required (or set %s)", EnvToken)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if ml := strings.TrimSpace(cfg.Logging.Telegram.MinLevel); ml != "" && !logx.ValidLevel(ml) {
		return fmt.Errorf("logging.telegram.min_level: unknown level %q", ml)
	}
	if cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChatID == 0 {
		return errors.New("logging.telegram.enabled requires telegram.log_chat_id")
	}

	switch cfg.Storage.Driver {
	case "file", "json":
	case "sqlite", "sqlite3":
		if cfg.Storage.Path == "" {
			return errors.New("storage.path is required when storage.driver=sqlite")
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	if cfg.Scheduler.ResyncEnabled() {
		if _, err := resyncParser.Parse(strings.TrimSpace(cfg.Scheduler.ResyncSpec)); err != nil {
			return fmt.Errorf("scheduler.resync_spec: %w", err)
		}
	}
	if _, err := ParseDurationField("scheduler.fire_timeout", cfg.Scheduler.FireTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("notifier.send_timeout", cfg.Notifier.SendTimeout); err != nil {
		return err
	}
	if a := strings.TrimSpace(cfg.Pprof.Addr); a != "" {
		if _, _, err := net.SplitHostPort(a); err != nil {
			return fmt.Errorf("pprof.addr: %w", err)
		}
	}
	return nil
}

// resyncParser accepts the same specs the scheduler does.
var resyncParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)
