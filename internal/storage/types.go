package storage

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/reminder"
)

var (
	ErrDisabled  = errors.New("storage disabled")
	ErrNotFound  = errors.New("reminder not found")
	ErrAmbiguous = errors.New("reminder id suffix is ambiguous")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON document at Path (default)
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Backend loads and saves the whole reminder collection.
//
// A missing backing file or table is an empty collection, not an error.
type Backend interface {
	LoadAll(ctx context.Context) (map[reminder.ID]reminder.Record, error)
	SaveAll(ctx context.Context, all map[reminder.ID]reminder.Record) error
	Close() error
}
