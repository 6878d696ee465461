package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	ResyncSpec  string        // cron spec or descriptor, e.g. "@every 10m"; "" disables resync
	FireTimeout time.Duration // bound on one delivery
}

const defaultFireTimeout = 30 * time.Second

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Timer is the handle of an armed callback.
type Timer interface {
	Stop() bool
}

// AfterFunc calls f on its own goroutine after d.
type AfterFunc func(d time.Duration, f func()) Timer

// Store is the subset of storage.Store the scheduler needs.
type Store interface {
	LoadAll(ctx context.Context) map[reminder.ID]reminder.Record
	Get(ctx context.Context, id reminder.ID) (reminder.Record, bool)
	Upsert(ctx context.Context, id reminder.ID, rec reminder.Record) error
	Delete(ctx context.Context, id reminder.ID) (bool, error)
	Update(ctx context.Context, id reminder.ID, fn func(*reminder.Record)) (reminder.Record, bool, error)
	ListByOwner(ctx context.Context, owner int64) []reminder.Entry
	FindByShort(ctx context.Context, owner int64, suffix string) (reminder.Entry, error)
}

// Dispatcher delivers a due reminder. It never fails the fire cycle.
type Dispatcher interface {
	Deliver(ctx context.Context, id reminder.ID, rec reminder.Record) notifier.Result
}

// Outcome is the state a reminder ends in after Fire.
type Outcome int

const (
	OutcomeMissing     Outcome = iota // record gone before or during the fire
	OutcomeDeleted                    // one-shot removed
	OutcomeRescheduled                // recurring advanced and re-armed
	OutcomeFailed                     // the fire panicked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMissing:
		return "missing"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeRescheduled:
		return "rescheduled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type armed struct {
	gen   uint64
	timer Timer
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config

	store Store
	disp  Dispatcher
	bus   eventbus.Bus
	clock Clock
	after AfterFunc

	parser cron.Parser
	c      *cron.Cron

	timers map[reminder.ID]*armed
	firing map[reminder.ID]struct{}
	gen    uint64

	running   bool
	runCtx    context.Context
	runCancel context.CancelFunc
	inflight  sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

func WithAfterFunc(f AfterFunc) Option { return func(s *Service) { s.after = f } }

func WithBus(b eventbus.Bus) Option { return func(s *Service) { s.bus = b } }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func timeAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
