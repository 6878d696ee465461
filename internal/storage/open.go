package storage

import (
	"errors"
	"strings"

	logx "remindbot/pkg/logx"
)

const defaultPath = "./data/reminders.json"

// Open initializes the configured backend and wraps it in a Store.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file", "json":
		if strings.TrimSpace(cfg.Path) == "" {
			cfg.Path = defaultPath
		}
		b, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		b, err = openSQLite(cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return New(b, log), nil
}
