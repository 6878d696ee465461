package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

const dayMs = int64(24 * time.Hour / time.Millisecond)

var testNow = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// fire runs the callback the way a real timer would, even if stopped, so
// stale-callback handling is exercised.
func (t *fakeTimer) fire() { t.f() }

type fakeTimers struct {
	mu  sync.Mutex
	all []*fakeTimer
}

func (ft *fakeTimers) after(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	ft.all = append(ft.all, t)
	return t
}

func (ft *fakeTimers) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.all)
}

func (ft *fakeTimers) last() *fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.all[len(ft.all)-1]
}

type fakeDispatcher struct {
	mu     sync.Mutex
	calls  []reminder.ID
	during func(id reminder.ID)
}

func (d *fakeDispatcher) Deliver(_ context.Context, id reminder.ID, _ reminder.Record) notifier.Result {
	d.mu.Lock()
	d.calls = append(d.calls, id)
	hook := d.during
	d.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return notifier.Result{}
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type harness struct {
	svc    *Service
	store  *storage.Store
	clock  *fakeClock
	timers *fakeTimers
	disp   *fakeDispatcher
	bus    eventbus.Bus
}

func newHarness(t *testing.T, seed map[reminder.ID]reminder.Record) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "r.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if seed != nil {
		if err := st.SaveAll(context.Background(), seed); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	h := &harness{
		store:  st,
		clock:  &fakeClock{now: testNow},
		timers: &fakeTimers{},
		disp:   &fakeDispatcher{},
		bus:    eventbus.New(),
	}
	h.svc = New(Config{}, st, h.disp, logx.Nop(),
		WithClock(h.clock),
		WithAfterFunc(h.timers.after),
		WithBus(h.bus),
	)
	h.svc.Start(context.Background())
	t.Cleanup(func() { h.svc.Stop(context.Background()) })
	return h
}

func oneShot(trigger int64) reminder.Record {
	return reminder.Record{OwnerID: 7, DisplayName: "Ann", Text: "drink water", NextTrigger: trigger}
}

func daily(trigger int64, interval int) reminder.Record {
	rec := oneShot(trigger)
	rec.Recurrence = &reminder.Recurrence{IntervalDays: interval, Description: "every"}
	return rec
}

func TestOverdueOneShotFiresOnceAndIsDeleted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	id := reminder.ID("overdue")
	h := newHarness(t, map[reminder.ID]reminder.Record{id: oneShot(testNow.UnixMilli() - 5000)})

	if h.timers.count() != 1 || h.timers.last().delay != 0 {
		t.Fatalf("expected one immediate timer, got %d", h.timers.count())
	}
	tm := h.timers.last()
	tm.fire()
	tm.fire() // a repeated callback must not fire twice

	if got := h.disp.count(); got != 1 {
		t.Fatalf("deliveries = %d, want 1", got)
	}
	if _, ok := h.store.Get(ctx, id); ok {
		t.Fatal("one-shot reminder still stored after firing")
	}
	if h.svc.Armed() != 0 || h.timers.count() != 1 {
		t.Fatalf("one-shot re-armed: armed=%d timers=%d", h.svc.Armed(), h.timers.count())
	}
}

func TestRecurringAdvancesByInterval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name     string
		interval int
	}{
		{name: "daily", interval: 1},
		{name: "every 2 days", interval: 2},
		{name: "weekly", interval: 7},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id := reminder.ID("rec")
			before := testNow.UnixMilli()
			h := newHarness(t, map[reminder.ID]reminder.Record{id: daily(before, tt.interval)})

			if out := h.svc.Fire(ctx, id); out != OutcomeRescheduled {
				t.Fatalf("Fire = %v, want rescheduled", out)
			}
			rec, ok := h.store.Get(ctx, id)
			if !ok {
				t.Fatal("recurring reminder deleted")
			}
			if want := before + int64(tt.interval)*dayMs; rec.NextTrigger != want {
				t.Fatalf("NextTrigger = %d, want %d", rec.NextTrigger, want)
			}
			if got := h.timers.last().delay; got != time.Duration(tt.interval)*24*time.Hour {
				t.Fatalf("re-armed delay = %v", got)
			}
		})
	}
}

func TestOverdueRecurringCatchesUpOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	id := reminder.ID("late")
	missed := testNow.Add(-5*24*time.Hour + 2*time.Hour) // 5 days ago at 11:00
	h := newHarness(t, map[reminder.ID]reminder.Record{id: daily(missed.UnixMilli(), 1)})

	h.timers.last().fire()
	if got := h.disp.count(); got != 1 {
		t.Fatalf("deliveries = %d, want exactly one catch-up", got)
	}
	rec, _ := h.store.Get(ctx, id)
	want := time.Date(2026, time.March, 11, 11, 0, 0, 0, time.UTC).UnixMilli()
	if rec.NextTrigger != want {
		t.Fatalf("NextTrigger = %v, want %v", time.UnixMilli(rec.NextTrigger).UTC(), time.UnixMilli(want).UTC())
	}
}

func TestRecordRemovedDuringFireIsNotResurrected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	id := reminder.ID("gone")
	h := newHarness(t, map[reminder.ID]reminder.Record{id: daily(testNow.UnixMilli(), 1)})
	h.disp.during = func(id reminder.ID) {
		if _, err := h.store.Delete(ctx, id); err != nil {
			t.Errorf("delete: %v", err)
		}
	}
	timersBefore := h.timers.count()

	if out := h.svc.Fire(ctx, id); out != OutcomeMissing {
		t.Fatalf("Fire = %v, want missing", out)
	}
	if _, ok := h.store.Get(ctx, id); ok {
		t.Fatal("cancelled reminder written back")
	}
	if h.timers.count() != timersBefore {
		t.Fatal("cancelled reminder re-armed")
	}
}

func TestFireMissingRecordIsNoop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	if out := h.svc.Fire(context.Background(), "nope"); out != OutcomeMissing {
		t.Fatalf("Fire = %v", out)
	}
	if h.disp.count() != 0 {
		t.Fatal("delivered a missing reminder")
	}
}

func TestFirePanicIsContained(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, map[reminder.ID]reminder.Record{
		"a": oneShot(testNow.UnixMilli() + 1000),
		"b": oneShot(testNow.UnixMilli() + 2000),
	})
	h.disp.during = func(id reminder.ID) {
		if id == "a" {
			panic("boom")
		}
	}
	if out := h.svc.Fire(ctx, "a"); out != OutcomeFailed {
		t.Fatalf("Fire(a) = %v, want failed", out)
	}
	if out := h.svc.Fire(ctx, "b"); out != OutcomeDeleted {
		t.Fatalf("Fire(b) = %v, want deleted", out)
	}
}

func TestScheduleThenFireWhenDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)
	events, unsub := h.bus.Subscribe(16)
	defer unsub()

	id, err := h.svc.Schedule(ctx, oneShot(testNow.Add(30*time.Second).UnixMilli()))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if got := h.timers.last().delay; got != 30*time.Second {
		t.Fatalf("delay = %v, want 30s", got)
	}
	if list := h.svc.List(ctx, 7); len(list) != 1 || list[0].ID != id {
		t.Fatalf("List = %+v", list)
	}

	h.clock.Set(testNow.Add(30 * time.Second))
	h.timers.last().fire()
	if _, ok := h.store.Get(ctx, id); ok {
		t.Fatal("fired one-shot still stored")
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	want := []string{eventbus.ReminderArmed, eventbus.ReminderFired, eventbus.ReminderDeleted}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}

func TestScheduleRejectsEmptyText(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	rec := oneShot(testNow.UnixMilli())
	rec.Text = "  "
	if _, err := h.svc.Schedule(context.Background(), rec); err != ErrEmptyText {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestRearmDropsStaleCallback(t *testing.T) {
	t.Parallel()
	id := reminder.ID("x")
	h := newHarness(t, nil)
	rec := oneShot(testNow.Add(time.Hour).UnixMilli())
	if err := h.store.Upsert(context.Background(), id, rec); err != nil {
		t.Fatal(err)
	}

	h.svc.Arm(id, rec)
	first := h.timers.last()
	h.svc.Arm(id, rec)
	if !first.stopped {
		t.Fatal("previous timer not stopped on re-arm")
	}
	first.fire()
	if h.disp.count() != 0 {
		t.Fatal("stale timer fired")
	}
	h.timers.last().fire()
	if h.disp.count() != 1 {
		t.Fatal("current timer did not fire")
	}
}

func TestCancelDisarms(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)
	id, err := h.svc.Schedule(ctx, oneShot(testNow.Add(time.Hour).UnixMilli()))
	if err != nil {
		t.Fatal(err)
	}
	tm := h.timers.last()

	e, err := h.svc.Cancel(ctx, 7, id.Short())
	if err != nil || e.ID != id {
		t.Fatalf("Cancel = %+v, %v", e, err)
	}
	if !tm.stopped || h.svc.Armed() != 0 {
		t.Fatal("timer still armed after cancel")
	}
	tm.fire()
	if h.disp.count() != 0 {
		t.Fatal("cancelled reminder delivered")
	}
	if _, err := h.svc.Cancel(ctx, 7, id.Short()); err == nil {
		t.Fatal("second cancel succeeded")
	}
}

func TestResyncReconcilesWithStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)

	if err := h.store.Upsert(ctx, "side", oneShot(testNow.Add(time.Minute).UnixMilli())); err != nil {
		t.Fatal(err)
	}
	if added, removed := h.svc.Resync(ctx); added != 1 || removed != 0 {
		t.Fatalf("Resync = %d,%d want 1,0", added, removed)
	}
	if added, _ := h.svc.Resync(ctx); added != 0 {
		t.Fatal("Resync armed an already armed reminder")
	}

	if _, err := h.store.Delete(ctx, "side"); err != nil {
		t.Fatal(err)
	}
	if added, removed := h.svc.Resync(ctx); added != 0 || removed != 1 {
		t.Fatalf("Resync = %d,%d want 0,1", added, removed)
	}
}

// snapshotHookStore runs afterLoad once LoadAll has taken its snapshot.
type snapshotHookStore struct {
	Store
	afterLoad func()
}

func (s *snapshotHookStore) LoadAll(ctx context.Context) map[reminder.ID]reminder.Record {
	all := s.Store.LoadAll(ctx)
	if s.afterLoad != nil {
		s.afterLoad()
	}
	return all
}

func TestResyncKeepsTimerArmedAfterSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)
	h.svc.Stop(ctx)

	hs := &snapshotHookStore{Store: h.store}
	svc := New(Config{}, hs, h.disp, logx.Nop(),
		WithClock(h.clock),
		WithAfterFunc(h.timers.after),
	)
	svc.Start(ctx)
	t.Cleanup(func() { svc.Stop(context.Background()) })

	rec := oneShot(testNow.Add(time.Minute).UnixMilli())
	hs.afterLoad = func() {
		hs.afterLoad = nil
		if err := h.store.Upsert(ctx, "late", rec); err != nil {
			t.Errorf("Upsert: %v", err)
		}
		svc.Arm("late", rec)
	}
	if _, removed := svc.Resync(ctx); removed != 0 {
		t.Fatalf("Resync disarmed %d timers armed after its snapshot", removed)
	}
	if svc.Armed() != 1 {
		t.Fatalf("Armed = %d, want 1", svc.Armed())
	}
	if _, removed := svc.Resync(ctx); removed != 0 || svc.Armed() != 1 {
		t.Fatalf("second Resync removed=%d armed=%d", removed, svc.Armed())
	}
}

func TestStopDisarmsAndStartRearms(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, map[reminder.ID]reminder.Record{"a": oneShot(testNow.Add(time.Hour).UnixMilli())})
	tm := h.timers.last()

	h.svc.Stop(ctx)
	if !tm.stopped || h.svc.Armed() != 0 {
		t.Fatal("Stop left timers armed")
	}
	if h.svc.Arm("a", oneShot(0)) {
		t.Fatal("Arm succeeded while stopped")
	}

	h.svc.Start(ctx)
	if h.svc.Armed() != 1 {
		t.Fatalf("Armed after restart = %d, want 1", h.svc.Armed())
	}
}

func TestDelayUntilClamps(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, nil, logx.Nop(), WithClock(&fakeClock{now: testNow}))
	if d := s.delayUntil(0); d != 0 {
		t.Fatalf("past delay = %v", d)
	}
	if d := s.delayUntil(1<<62 + testNow.UnixMilli()); d <= 0 {
		t.Fatalf("far-future delay overflowed: %v", d)
	}
}
