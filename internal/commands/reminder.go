// Package commands holds the chat command handlers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

const (
	rule      = "━━━━━━━━━━━━"
	longRule  = "━━━━━━━━━━━━━━━━━━"
	nameLimit = 64
)

const (
	guideText = "📌 Usage:\n" +
		"• /reminder set [time] [message]\n" +
		"• /reminder list\n" +
		"• /reminder cancel [ID]\n\n" +
		"⏰ Time formats:\n" +
		"⌛ Relative: 30s, 2h, 1d\n" +
		"🕰️ Absolute: 4:30pm, 16:30\n" +
		"🔁 Recurring: everyday 9am, every2d 10pm"

	invalidFormatText = "⚠️ Invalid Format\n" + rule + "\n" +
		"Usage: /reminder set [time] [message]\n" +
		"Example: /reminder set 4:30pm Drink water"

	invalidTimeText = "❌ Invalid Time\n" + rule + "\n" +
		"Valid formats:\n" +
		"• 4:30pm, 16:30\n" +
		"• 30s, 2h, 1d\n" +
		"• everyday 9am, every3d 10pm"

	emptyListText = "📭 No Reminders\n" + rule + "\nYou have no active reminders!"

	cancelUsageText = "⚠️ Invalid Format\n" + rule + "\nUsage: /reminder cancel [ID]"

	saveFailedText = "❌ Could not save the reminder. Please try again later."
)

// ReminderService is what the reminder command needs from the scheduler.
type ReminderService interface {
	Schedule(ctx context.Context, rec reminder.Record) (reminder.ID, error)
	Cancel(ctx context.Context, owner int64, suffix string) (reminder.Entry, error)
	List(ctx context.Context, owner int64) []reminder.Entry
}

// Reminders implements /reminder (aliases /remindme, /schedule).
type Reminders struct {
	svc ReminderService
	dir kit.Directory
	now func() time.Time
}

type Option func(*Reminders)

// WithNow sets the clock used for parsing and for splitting list entries.
func WithNow(now func() time.Time) Option { return func(h *Reminders) { h.now = now } }

func NewReminders(svc ReminderService, dir kit.Directory, opts ...Option) *Reminders {
	h := &Reminders{svc: svc, dir: dir, now: time.Now}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	return h
}

func (h *Reminders) Command() router.Command {
	return router.Command{
		Name:        "reminder",
		Aliases:     []string{"remindme", "schedule"},
		Description: "⏳ Set one-time or recurring reminders",
		Timeout:     20 * time.Second,
		Handle:      h.Handle,
	}
}

func (h *Reminders) Handle(ctx context.Context, req *router.Request) error {
	switch req.Sub() {
	case "set":
		return req.Reply(ctx, h.set(ctx, req))
	case "list":
		return req.Reply(ctx, h.list(ctx, req.FromID))
	case "cancel", "delete", "remove":
		return req.Reply(ctx, h.cancel(ctx, req))
	default:
		return req.Reply(ctx, guideText)
	}
}

func (h *Reminders) set(ctx context.Context, req *router.Request) string {
	now := h.now()
	spec, text, err := reminder.ParseArgs(req.Args[1:], now)
	switch {
	case errors.Is(err, reminder.ErrMissingText) || len(req.Args) < 3:
		return invalidFormatText
	case err != nil:
		return invalidTimeText
	}

	name := h.displayName(ctx, req)
	rec := reminder.Record{
		OwnerID:     req.FromID,
		DisplayName: name,
		Text:        text,
		NextTrigger: spec.NextTrigger,
		Recurrence:  spec.Recurrence(),
		CreatedAt:   now.UnixMilli(),
	}
	isGroup := req.Message != nil && req.Message.IsGroup
	if isGroup {
		rec.Destination = &reminder.Destination{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID}
	}

	id, err := h.svc.Schedule(ctx, rec)
	if err != nil {
		req.Logger.Error("schedule reminder failed", logx.Err(err))
		return saveFailedText
	}

	when := "⏰ " + reminder.FormatTrigger(rec.NextTrigger, now.Location())
	if spec.Recurring {
		when = "🔄 " + spec.Description
	}
	where := "DM"
	if isGroup {
		where = "this group"
	}
	return "⏳ TIME CAPSULE SET\n" + longRule + "\n" +
		"📝 Message: \"" + text + "\"\n" +
		when + "\n" +
		"👤 User: " + name + "\n" +
		"🆔 ID: " + id.Short() + "\n\n" +
		"💬 I'll notify you in " + where + " + your inbox!"
}

// displayName prefers the directory, then the name on the message, then the
// username.
func (h *Reminders) displayName(ctx context.Context, req *router.Request) string {
	if h.dir != nil {
		name, err := h.dir.DisplayName(ctx, req.FromID)
		if err == nil && strings.TrimSpace(name) != "" {
			return truncate(strings.TrimSpace(name), nameLimit)
		}
		if err != nil {
			req.Logger.Debug("display name lookup failed", logx.Err(err))
		}
	}
	if m := req.Message; m != nil {
		if n := strings.TrimSpace(m.FromName); n != "" {
			return truncate(n, nameLimit)
		}
		if n := strings.TrimSpace(m.FromUsername); n != "" {
			return n
		}
	}
	return fmt.Sprintf("user%d", req.FromID)
}

func (h *Reminders) list(ctx context.Context, owner int64) string {
	entries := h.svc.List(ctx, owner)
	if len(entries) == 0 {
		return emptyListText
	}
	now := h.now()
	var coming, past strings.Builder
	for _, e := range entries {
		line := fmt.Sprintf("⦿ %s (%s) - ID: %s\n", e.Record.Text, reminder.FormatTrigger(e.Record.NextTrigger, now.Location()), e.ID.Short())
		if e.Record.NextTrigger > now.UnixMilli() {
			coming.WriteString(line)
		} else {
			past.WriteString(line)
		}
	}
	return "📋 REMINDER LIST\n" + longRule + "\n" +
		"🕒 Coming:\n" + orDefault(coming.String(), "⏳ None pending") + "\n\n" +
		"⌛ Past:\n" + orDefault(past.String(), "📭 None") + "\n\n" +
		"ℹ️ Use \"/reminder cancel [ID]\" to remove"
}

func (h *Reminders) cancel(ctx context.Context, req *router.Request) string {
	if len(req.Args) < 2 || strings.TrimSpace(req.Args[1]) == "" {
		return cancelUsageText
	}
	suffix := strings.TrimSpace(req.Args[1])
	e, err := h.svc.Cancel(ctx, req.FromID, suffix)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "❌ Not Found\n" + rule + "\nNo reminder of yours has ID \"" + suffix + "\"."
	case errors.Is(err, storage.ErrAmbiguous):
		return "⚠️ Ambiguous ID\n" + rule + "\nSeveral of your reminders match \"" + suffix + "\". Use more characters."
	case err != nil:
		req.Logger.Error("cancel reminder failed", logx.Err(err))
		return saveFailedText
	}
	return "🗑️ REMINDER CANCELLED\n" + rule + "\n" +
		"📝 Message: \"" + e.Record.Text + "\"\n" +
		"🆔 ID: " + e.ID.Short()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return strings.TrimRight(s, "\n")
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
