package scheduler

import (
	"context"
	"math"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const maxDelayMillis = int64(math.MaxInt64 / int64(time.Millisecond))

// ArmAll loads the store and arms every record, overdue ones included.
func (s *Service) ArmAll(ctx context.Context) int {
	n := 0
	for id, rec := range s.store.LoadAll(ctx) {
		if s.Arm(id, rec) {
			n++
		}
	}
	return n
}

// Arm (re)schedules the fire of id at rec.NextTrigger. A trigger at or before
// now fires immediately. Any previous timer for id is stopped first. It
// reports false when the service is not running.
func (s *Service) Arm(id reminder.ID, rec reminder.Record) bool {
	delay := s.delayUntil(rec.NextTrigger)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.armLocked(id, rec, delay)
	return true
}

// Disarm stops the timer of id. It reports whether one was armed.
func (s *Service) Disarm(id reminder.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.timers[id]
	if !ok {
		return false
	}
	a.timer.Stop()
	delete(s.timers, id)
	return true
}

func (s *Service) delayUntil(trigger int64) time.Duration {
	ms := trigger - s.clock.Now().UnixMilli()
	switch {
	case ms <= 0:
		return 0
	case ms > maxDelayMillis:
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// armLocked must not be given an AfterFunc that calls back synchronously.
func (s *Service) armLocked(id reminder.ID, rec reminder.Record, delay time.Duration) {
	if prev, ok := s.timers[id]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timers[id] = &armed{gen: gen, timer: s.after(delay, func() { s.onTimer(id, gen) })}
	s.log.Trace("armed", logx.String("id", string(id)), logx.Duration("in", delay))
	s.publish(eventbus.ReminderArmed, id, rec)
}

// onTimer runs on the timer goroutine. Callbacks of replaced or stopped
// timers are dropped by the generation check.
func (s *Service) onTimer(id reminder.ID, gen uint64) {
	s.mu.Lock()
	a, ok := s.timers[id]
	if !s.running || !ok || a.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.firing[id] = struct{}{}
	ctx := s.runCtx
	s.inflight.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.firing, id)
		s.mu.Unlock()
		s.inflight.Done()
	}()
	s.Fire(ctx, id)
}

// Resync reconciles the timer set with the store: records without a timer
// are armed and timers whose record is gone are stopped.
func (s *Service) Resync(ctx context.Context) (added, removed int) {
	// timers armed after the snapshot may belong to records it does not hold
	s.mu.Lock()
	snapGen := s.gen
	s.mu.Unlock()
	all := s.store.LoadAll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0, 0
	}
	for id, a := range s.timers {
		if a.gen > snapGen {
			continue
		}
		if _, ok := all[id]; !ok {
			a.timer.Stop()
			delete(s.timers, id)
			removed++
		}
	}
	for id, rec := range all {
		if _, ok := s.timers[id]; ok {
			continue
		}
		if _, ok := s.firing[id]; ok {
			continue
		}
		s.armLocked(id, rec, s.delayUntil(rec.NextTrigger))
		added++
	}
	if added > 0 || removed > 0 {
		s.log.Info("timers resynced", logx.Int("armed", added), logx.Int("disarmed", removed))
	}
	return added, removed
}
