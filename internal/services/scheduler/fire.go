package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Fire delivers the reminder id and then deletes it (one-shot) or advances
// and re-arms it (recurring). Delivery results never change that decision.
// A record that is absent, or that disappears while delivery is in flight,
// is left absent.
func (s *Service) Fire(ctx context.Context, id reminder.ID) (out Outcome) {
	log := s.log.With(logx.String("id", string(id)))
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in reminder fire", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			out = OutcomeFailed
		}
	}()

	rec, ok := s.store.Get(ctx, id)
	if !ok {
		log.Debug("fire skipped; reminder no longer stored")
		return OutcomeMissing
	}
	s.publish(eventbus.ReminderFired, id, rec)

	s.mu.Lock()
	timeout := s.cfg.FireTimeout
	s.mu.Unlock()

	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, timeout)
	res := s.disp.Deliver(dctx, id, rec)
	cancel()
	log.Debug("reminder delivered",
		logx.Bool("shared", res.SharedDelivered()),
		logx.Bool("private", res.PrivateErr == nil),
		logx.Duration("took", time.Since(start)),
	)

	// the state transition is committed even when the run is being stopped
	pctx := context.WithoutCancel(ctx)

	if !rec.IsRecurring() {
		if _, err := s.store.Delete(pctx, id); err != nil {
			log.Warn("one-shot reminder delete failed", logx.Err(err))
		}
		s.publish(eventbus.ReminderDeleted, id, rec)
		return OutcomeDeleted
	}

	now := s.clock.Now()
	next, ok, err := s.store.Update(pctx, id, func(r *reminder.Record) {
		r.NextTrigger = reminder.Advance(*r, now)
	})
	if err != nil {
		log.Warn("recurring reminder save failed", logx.Err(err))
	}
	if !ok {
		log.Debug("recurring reminder removed during fire; not re-armed")
		return OutcomeMissing
	}
	s.Arm(id, next)
	s.publish(eventbus.ReminderRescheduled, id, next)
	log.Debug("recurring reminder rescheduled", logx.Time("next", next.Due(now.Location())))
	return OutcomeRescheduled
}
