package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

var (
	ErrEmptyText = errors.New("reminder text required")
	ErrNoOwner   = errors.New("reminder owner required")
)

// Schedule stores rec under a fresh ID and arms it.
func (s *Service) Schedule(ctx context.Context, rec reminder.Record) (reminder.ID, error) {
	if strings.TrimSpace(rec.Text) == "" {
		return "", ErrEmptyText
	}
	if rec.OwnerID == 0 {
		return "", ErrNoOwner
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.clock.Now().UnixMilli()
	}
	id := reminder.NewID()
	if err := s.store.Upsert(ctx, id, rec); err != nil {
		return "", fmt.Errorf("store reminder: %w", err)
	}
	if !s.Arm(id, rec) {
		s.log.Warn("reminder stored while scheduler stopped; armed on next start", logx.String("id", string(id)))
	}
	s.log.Info("reminder scheduled",
		logx.String("id", string(id)),
		logx.Int64("owner", rec.OwnerID),
		logx.Bool("recurring", rec.IsRecurring()),
		logx.Int64("next", rec.NextTrigger),
	)
	return id, nil
}

// Cancel removes the owner's reminder whose ID ends in suffix.
func (s *Service) Cancel(ctx context.Context, owner int64, suffix string) (reminder.Entry, error) {
	e, err := s.store.FindByShort(ctx, owner, suffix)
	if err != nil {
		return reminder.Entry{}, err
	}
	if _, err := s.store.Delete(ctx, e.ID); err != nil {
		return reminder.Entry{}, fmt.Errorf("delete reminder: %w", err)
	}
	s.Disarm(e.ID)
	s.publish(eventbus.ReminderCancelled, e.ID, e.Record)
	s.log.Info("reminder cancelled", logx.String("id", string(e.ID)), logx.Int64("owner", owner))
	return e, nil
}

// List returns the owner's reminders ordered by next trigger.
func (s *Service) List(ctx context.Context, owner int64) []reminder.Entry {
	return s.store.ListByOwner(ctx, owner)
}
