package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
)

var testNow = time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

type fakeService struct {
	mu        sync.Mutex
	scheduled []reminder.Record
	entries   []reminder.Entry
	cancelErr error
}

func (f *fakeService) Schedule(_ context.Context, rec reminder.Record) (reminder.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, rec)
	return "0190a000-0000-7000-8000-000000abc123", nil
}

func (f *fakeService) Cancel(_ context.Context, _ int64, suffix string) (reminder.Entry, error) {
	if f.cancelErr != nil {
		return reminder.Entry{}, f.cancelErr
	}
	return reminder.Entry{ID: reminder.ID("xxxx" + suffix), Record: reminder.Record{Text: "tea"}}, nil
}

func (f *fakeService) List(context.Context, int64) []reminder.Entry { return f.entries }

type fakeDirectory struct {
	name string
	err  error
}

func (d fakeDirectory) DisplayName(context.Context, int64) (string, error) { return d.name, d.err }

type captureSender struct{ last string }

func (c *captureSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.last = text
	return kit.MessageRef{}, nil
}

func run(t *testing.T, h *Reminders, text string, group bool) string {
	t.Helper()
	cs := &captureSender{}
	msg := &kit.Message{ChatID: -100, ThreadID: 4, FromID: 42, FromName: "Ann Lee", Text: text, IsGroup: group}
	req := &router.Request{
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: "reminder",
		Args:    strings.Fields(text),
		Sender:  cs,
	}
	if err := h.Handle(context.Background(), req); err != nil {
		t.Fatalf("Handle(%q): %v", text, err)
	}
	return cs.last
}

func newHandler(svc *fakeService, dir kit.Directory) *Reminders {
	return NewReminders(svc, dir, WithNow(func() time.Time { return testNow }))
}

func TestSetInGroupStoresDestination(t *testing.T) {
	t.Parallel()
	svc := &fakeService{}
	h := newHandler(svc, fakeDirectory{name: "Ann Lee"})

	reply := run(t, h, "set 30s drink some water", true)
	if len(svc.scheduled) != 1 {
		t.Fatalf("scheduled = %d", len(svc.scheduled))
	}
	rec := svc.scheduled[0]
	if rec.Text != "drink some water" || rec.OwnerID != 42 || rec.DisplayName != "Ann Lee" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.NextTrigger != testNow.UnixMilli()+30000 || rec.Recurrence != nil {
		t.Fatalf("trigger = %d recurrence = %+v", rec.NextTrigger, rec.Recurrence)
	}
	if rec.Destination == nil || rec.Destination.ChatID != -100 || rec.Destination.ThreadID != 4 {
		t.Fatalf("destination = %+v", rec.Destination)
	}
	for _, want := range []string{"TIME CAPSULE SET", `📝 Message: "drink some water"`, "⏰ ", "👤 User: Ann Lee", "🆔 ID: abc123", "in this group + your inbox"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("reply missing %q:\n%s", want, reply)
		}
	}
}

func TestSetRecurringInPrivate(t *testing.T) {
	t.Parallel()
	svc := &fakeService{}
	h := newHandler(svc, fakeDirectory{err: errors.New("chat not found")})

	reply := run(t, h, "set every 2d 9am standup", false)
	if len(svc.scheduled) != 1 {
		t.Fatalf("scheduled = %d", len(svc.scheduled))
	}
	rec := svc.scheduled[0]
	if rec.Destination != nil {
		t.Fatal("private reminder got a shared destination")
	}
	if rec.Recurrence == nil || rec.Recurrence.IntervalDays != 2 {
		t.Fatalf("recurrence = %+v", rec.Recurrence)
	}
	// directory failure falls back to the name on the message
	if rec.DisplayName != "Ann Lee" {
		t.Fatalf("DisplayName = %q", rec.DisplayName)
	}
	if !strings.Contains(reply, "🔄 Every 2 days at 9:00 AM") || !strings.Contains(reply, "in DM + your inbox") {
		t.Fatalf("reply:\n%s", reply)
	}
}

func TestSetRejectsBadInput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "no args", text: "set", want: "Invalid Format"},
		{name: "no message", text: "set 30s", want: "Invalid Format"},
		{name: "expression only", text: "set every 2d 9am", want: "Invalid Format"},
		{name: "bad time", text: "set tomorrow buy milk", want: "Invalid Time"},
		{name: "bad hour", text: "set 25:00 late", want: "Invalid Time"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &fakeService{}
			reply := run(t, newHandler(svc, nil), tt.text, false)
			if !strings.Contains(reply, tt.want) {
				t.Fatalf("reply = %q, want %q", reply, tt.want)
			}
			if len(svc.scheduled) != 0 {
				t.Fatal("invalid input mutated state")
			}
		})
	}
}

func TestListSplitsComingAndPast(t *testing.T) {
	t.Parallel()
	svc := &fakeService{entries: []reminder.Entry{
		{ID: "aaaaaa111111", Record: reminder.Record{Text: "old", NextTrigger: testNow.Add(-time.Hour).UnixMilli()}},
		{ID: "bbbbbb222222", Record: reminder.Record{Text: "new", NextTrigger: testNow.Add(time.Hour).UnixMilli()}},
	}}
	reply := run(t, newHandler(svc, nil), "list", false)

	coming := strings.Index(reply, "Coming:")
	past := strings.Index(reply, "Past:")
	newAt := strings.Index(reply, "⦿ new")
	oldAt := strings.Index(reply, "⦿ old")
	if coming < 0 || past < 0 || newAt < coming || newAt > past || oldAt < past {
		t.Fatalf("unexpected layout:\n%s", reply)
	}
	if !strings.Contains(reply, "ID: 222222") || !strings.Contains(reply, "Tue, Mar 10, 03:30 PM") {
		t.Fatalf("entry line malformed:\n%s", reply)
	}

	empty := run(t, newHandler(&fakeService{}, nil), "list", false)
	if !strings.Contains(empty, "No Reminders") {
		t.Fatalf("empty list reply = %q", empty)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		err  error
		want string
	}{
		{name: "ok", text: "cancel abc123", want: "REMINDER CANCELLED"},
		{name: "missing id", text: "cancel", want: "Usage: /reminder cancel [ID]"},
		{name: "not found", text: "cancel zzz", err: storage.ErrNotFound, want: "Not Found"},
		{name: "ambiguous", text: "cancel 1", err: storage.ErrAmbiguous, want: "Ambiguous ID"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reply := run(t, newHandler(&fakeService{cancelErr: tt.err}, nil), tt.text, false)
			if !strings.Contains(reply, tt.want) {
				t.Fatalf("reply = %q, want %q", reply, tt.want)
			}
		})
	}
}

func TestUnknownSubcommandShowsGuide(t *testing.T) {
	t.Parallel()
	for _, text := range []string{"", "help", "sett 5m x"} {
		if reply := run(t, newHandler(&fakeService{}, nil), text, false); reply != guideText {
			t.Fatalf("reply for %q = %q", text, reply)
		}
	}
}

func TestCommandAliases(t *testing.T) {
	t.Parallel()
	c := newHandler(&fakeService{}, nil).Command()
	if c.Name != "reminder" || len(c.Aliases) != 2 || c.Aliases[0] != "remindme" || c.Aliases[1] != "schedule" {
		t.Fatalf("command = %+v", c)
	}
}
