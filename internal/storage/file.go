package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// fileBackend keeps the collection in one human-readable JSON document.
// Writes go to <path>.tmp and are renamed over the original.
type fileBackend struct {
	path string
	log  logx.Logger
}

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileBackend{path: path, log: log}, nil
}

func (f *fileBackend) LoadAll(ctx context.Context) (map[reminder.ID]reminder.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[reminder.ID]reminder.Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return map[reminder.ID]reminder.Record{}, nil
	}

	all := map[reminder.ID]reminder.Record{}
	if err := json.Unmarshal(b, &all); err != nil {
		if f.quarantine() {
			// the bad file is gone; what remains on disk is an empty collection
			return map[reminder.ID]reminder.Record{}, nil
		}
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return all, nil
}

// quarantine moves an undecodable file aside so the next save does not destroy it.
func (f *fileBackend) quarantine() bool {
	dst := fmt.Sprintf("%s.corrupt-%d", f.path, time.Now().Unix())
	if err := os.Rename(f.path, dst); err != nil {
		f.log.Warn("could not move corrupt reminder file aside", logx.String("path", f.path), logx.Err(err))
		return false
	}
	f.log.Warn("corrupt reminder file moved aside", logx.String("path", f.path), logx.String("backup", dst))
	return true
}

func (f *fileBackend) SaveAll(ctx context.Context, all map[reminder.ID]reminder.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if all == nil {
		all = map[reminder.ID]reminder.Record{}
	}
	// map keys are sorted by encoding/json, so equal collections encode to equal bytes
	b, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (f *fileBackend) Close() error { return nil }
