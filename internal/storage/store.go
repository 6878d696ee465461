package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Store is the reminder collection used by the scheduler and the commands.
//
// All reads and writes hold one store-wide mutex, so a load/modify/save
// cycle is never interleaved with another. The mutex is never held while
// calling out to anything but the backend.
type Store struct {
	mu  sync.Mutex
	b   Backend
	log logx.Logger
}

func New(b Backend, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{b: b, log: log}
}

// LoadAll returns every record. Backend failures are logged and read as an
// empty collection.
func (s *Store) LoadAll(ctx context.Context) map[reminder.ID]reminder.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) map[reminder.ID]reminder.Record {
	all, err := s.loadStrict(ctx)
	if err != nil {
		s.log.Warn("reminder store unreadable; treating as empty", logx.Err(err))
		return map[reminder.ID]reminder.Record{}
	}
	return all
}

// loadStrict is the write-path load. A failed read must abort the save, or
// the partial collection would overwrite every record it could not see.
func (s *Store) loadStrict(ctx context.Context) (map[reminder.ID]reminder.Record, error) {
	all, err := s.b.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	if all == nil {
		all = map[reminder.ID]reminder.Record{}
	}
	return all, nil
}

// SaveAll overwrites the collection.
func (s *Store) SaveAll(ctx context.Context, all map[reminder.ID]reminder.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.SaveAll(ctx, all)
}

func (s *Store) Get(ctx context.Context, id reminder.ID) (reminder.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.loadLocked(ctx)[id]
	return rec, ok
}

func (s *Store) Upsert(ctx context.Context, id reminder.ID, rec reminder.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadStrict(ctx)
	if err != nil {
		return err
	}
	all[id] = rec
	return s.b.SaveAll(ctx, all)
}

// Delete removes id and reports whether it was present.
func (s *Store) Delete(ctx context.Context, id reminder.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadStrict(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := all[id]; !ok {
		return false, nil
	}
	delete(all, id)
	return true, s.b.SaveAll(ctx, all)
}

// Update applies fn to the stored record and saves it. An absent record is
// left absent and reported with ok=false, so a reminder deleted in the
// meantime is never written back.
func (s *Store) Update(ctx context.Context, id reminder.ID, fn func(*reminder.Record)) (reminder.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadStrict(ctx)
	if err != nil {
		return reminder.Record{}, false, err
	}
	rec, ok := all[id]
	if !ok {
		return reminder.Record{}, false, nil
	}
	fn(&rec)
	all[id] = rec
	return rec, true, s.b.SaveAll(ctx, all)
}

// ListByOwner returns the owner's reminders ordered by next trigger.
func (s *Store) ListByOwner(ctx context.Context, owner int64) []reminder.Entry {
	s.mu.Lock()
	all := s.loadLocked(ctx)
	s.mu.Unlock()

	out := make([]reminder.Entry, 0, 8)
	for id, rec := range all {
		if rec.OwnerID == owner {
			out = append(out, reminder.Entry{ID: id, Record: rec})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Record.NextTrigger != out[j].Record.NextTrigger {
			return out[i].Record.NextTrigger < out[j].Record.NextTrigger
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindByShort resolves a user-typed ID suffix among the owner's reminders.
func (s *Store) FindByShort(ctx context.Context, owner int64, suffix string) (reminder.Entry, error) {
	var found []reminder.Entry
	for _, e := range s.ListByOwner(ctx, owner) {
		if e.ID.HasShort(suffix) {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return reminder.Entry{}, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return reminder.Entry{}, ErrAmbiguous
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Close()
}
