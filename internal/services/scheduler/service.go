package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func New(cfg Config, store Store, disp Dispatcher, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    normalize(cfg),
		log:    log,
		store:  store,
		disp:   disp,
		bus:    eventbus.Nop(),
		clock:  systemClock{},
		after:  timeAfterFunc,
		parser: NewParser(),
		timers: map[reminder.ID]*armed{},
		firing: map[reminder.ID]struct{}{},
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.bus == nil {
		s.bus = eventbus.Nop()
	}
	return s
}

// NewParser returns the cron parser used for the resync spec.
// SecondOptional allows both 5-field and 6-field (with seconds) specs.
func NewParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func normalize(cfg Config) Config {
	cfg.ResyncSpec = strings.TrimSpace(cfg.ResyncSpec)
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = defaultFireTimeout
	}
	return cfg
}

// Apply swaps the runtime config. A changed resync spec restarts the cron.
func (s *Service) Apply(cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()

	oldSpec := s.cfg.ResyncSpec
	s.cfg = cfg
	if !s.running || oldSpec == cfg.ResyncSpec {
		return
	}
	s.restartCronLocked()
}

// Start arms every stored reminder and starts the resync job. It is a no-op
// when already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.restartCronLocked()
	runCtx := s.runCtx
	spec := s.cfg.ResyncSpec
	s.mu.Unlock()

	n := s.ArmAll(runCtx)
	s.log.Info("service started", logx.Int("armed", n), logx.String("resync", spec))
}

// Stop disarms all timers and waits for in-flight fires until ctx is done.
// Stored reminders are untouched and are re-armed by the next Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.c
	s.c = nil
	cancel := s.runCancel
	s.runCancel = nil
	for id, a := range s.timers {
		a.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		s.log.Warn("stop timed out; fires still in flight", logx.Err(ctx.Err()))
	}
}

// restartCronLocked replaces the resync cron. Call with s.mu held.
func (s *Service) restartCronLocked() {
	if s.c != nil {
		// not waited on: a running resync may be blocked on s.mu
		s.c.Stop()
		s.c = nil
	}
	spec := s.cfg.ResyncSpec
	if spec == "" {
		s.log.Debug("resync disabled")
		return
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	runCtx := s.runCtx
	if _, err := c.AddFunc(spec, func() { s.Resync(runCtx) }); err != nil {
		s.log.Error("resync schedule invalid; resync disabled", logx.String("spec", spec), logx.Err(err))
		return
	}
	c.Start()
	s.c = c
	s.log.Debug("resync scheduled", logx.String("spec", spec), logx.String("next", s.previewNextRunLocked(spec)))
}

func (s *Service) previewNextRunLocked(spec string) string {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	return sched.Next(s.clock.Now()).Format("2006-01-02 15:04:05")
}

// Armed reports how many reminders currently hold a timer.
func (s *Service) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Service) publish(typ string, id reminder.ID, rec reminder.Record) {
	s.bus.Publish(eventbus.Event{
		Type: typ,
		Time: s.clock.Now(),
		Data: eventbus.ReminderEvent{
			ID:          string(id),
			OwnerID:     rec.OwnerID,
			NextTrigger: rec.NextTrigger,
			Recurring:   rec.IsRecurring(),
		},
	})
}
