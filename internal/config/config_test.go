package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{name: "json", file: "c.json", body: `{"telegram":{"token":"x"}}`},
		{name: "yaml", file: "c.yaml", body: "telegram:\n  token: x\nnotifier:\n  rate_per_sec: 5\n"},
		{name: "empty yaml", file: "c.yml", body: ""},
		{name: "unknown field", file: "c.json", body: `{"telegram":{"tokn":"x"}}`, wantErr: "unknown field"},
		{name: "unknown yaml field", file: "c.yaml", body: "plugins: {}\n", wantErr: "unknown field"},
		{name: "trailing data", file: "c.json", body: `{} {}`, wantErr: "trailing data"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.file, []byte(tt.body))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Decode: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	t.Setenv(EnvToken, "")
	cfg := &Config{Telegram: TelegramConfig{Token: " abc "}}
	Normalize(cfg)

	if cfg.Telegram.Token != "abc" || cfg.Telegram.PollTimeout != DefaultPollTimeout {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != DefaultStorePath {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Scheduler.ResyncSpec != DefaultResyncSpec || cfg.Scheduler.FireTimeout != DefaultFireTimeout {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Notifier.RatePerSec != DefaultRatePerSec || cfg.Notifier.SendTimeout != DefaultSendTimeout {
		t.Fatalf("notifier = %+v", cfg.Notifier)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEnvTokenOverrides(t *testing.T) {
	t.Setenv(EnvToken, "from-env")
	cfg := &Config{Telegram: TelegramConfig{Token: "from-file"}}
	Normalize(cfg)
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv(EnvToken, "")
	os.Unsetenv(EnvToken)
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	writeFile(t, p, "TELEGRAM_TOKEN=dotenv-token\n")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), p); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(EnvToken); got != "dotenv-token" {
		t.Fatalf("env = %q", got)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv(EnvToken, "")
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "resync off", mutate: func(c *Config) { c.Scheduler.ResyncSpec = "off" }},
		{name: "six field resync", mutate: func(c *Config) { c.Scheduler.ResyncSpec = "0 */5 * * * *" }},
		{name: "no token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: "telegram.token"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "bad resync", mutate: func(c *Config) { c.Scheduler.ResyncSpec = "every tuesday" }, wantErr: "scheduler.resync_spec"},
		{name: "negative timeout", mutate: func(c *Config) { c.Notifier.SendTimeout = "-1s" }, wantErr: "notifier.send_timeout"},
		{name: "bad driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: "storage.driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage = StorageConfig{Driver: "sqlite"} }, wantErr: "storage.path"},
		{name: "telegram logs without chat", mutate: func(c *Config) { c.Logging.Telegram.Enabled = true }, wantErr: "log_chat_id"},
	}
	for _, tt := range tests {
		cfg := &Config{Telegram: TelegramConfig{Token: "t"}}
		Normalize(cfg)
		tt.mutate(cfg)
		err := Validate(cfg)
		if tt.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: Validate: %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Fatalf("%s: err = %v, want %q", tt.name, err, tt.wantErr)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := &Config{Telegram: TelegramConfig{Token: "secret-1"}}
	b := *a
	b.Telegram.Token = "secret-2"
	b.Notifier.RatePerSec = 5

	sections, attrs := SummarizeConfigChange(a, &b)
	if strings.Join(sections, ",") != "notifier,telegram" {
		t.Fatalf("sections = %v", sections)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(sections); len(got) != 1 || got[0] != "telegram" {
		t.Fatalf("RestartRequired = %v", got)
	}
	if s, _ := SummarizeConfigChange(a, a); len(s) != 0 {
		t.Fatalf("unchanged config reported %v", s)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Setenv(EnvToken, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "telegram:\n  token: t\nnotifier:\n  rate_per_sec: 3\n")

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// the watcher needs a moment to register the directory
	time.Sleep(200 * time.Millisecond)

	// invalid content is rejected and not published
	writeFile(t, path, "telegram:\n  token: t\nscheduler:\n  resync_spec: nonsense\n")
	time.Sleep(600 * time.Millisecond)
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config published: %+v", cfg)
	default:
	}

	writeFile(t, path, "telegram:\n  token: t\nnotifier:\n  rate_per_sec: 7\n")
	select {
	case cfg := <-sub:
		if cfg.Notifier.RatePerSec != 7 {
			t.Fatalf("rate = %d", cfg.Notifier.RatePerSec)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	if m.Get().Notifier.RatePerSec != 7 {
		t.Fatal("config not committed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not return")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 5 * time.Second},
		{raw: "0s", want: 5 * time.Second},
		{raw: " 250ms ", want: 250 * time.Millisecond},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationOrDefault("x.timeout", tt.raw, 5*time.Second)
		if tt.wantErr {
			if err == nil || !strings.Contains(err.Error(), "x.timeout") {
				t.Fatalf("%q: err = %v", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: got %v, %v want %v", tt.raw, got, err, tt.want)
		}
	}
}
