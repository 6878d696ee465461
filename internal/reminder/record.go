package reminder

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ShortIDLen is how many trailing ID characters users see and type.
const ShortIDLen = 6

// ID identifies a reminder. New IDs are UUIDv7 strings, so they sort in
// creation order.
type ID string

// NewID returns a fresh, time-ordered ID.
func NewID() ID {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return ID(u.String())
}

// Short returns the trailing characters shown to users.
func (id ID) Short() string {
	s := string(id)
	if len(s) <= ShortIDLen {
		return s
	}
	return s[len(s)-ShortIDLen:]
}

// HasShort reports whether suffix (case-insensitive) ends the ID.
func (id ID) HasShort(suffix string) bool {
	suffix = strings.ToLower(strings.TrimSpace(suffix))
	if suffix == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(string(id)), suffix)
}

// Destination is a shared chat (group or forum topic) that also receives the reminder.
type Destination struct {
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
}

type Recurrence struct {
	IntervalDays int    `json:"interval_days"`
	Description  string `json:"description"`
}

// Record is one persisted reminder.
type Record struct {
	OwnerID     int64        `json:"owner_id"`
	DisplayName string       `json:"display_name"`
	Destination *Destination `json:"destination,omitempty"`
	Text        string       `json:"text"`
	NextTrigger int64        `json:"next_trigger"` // epoch ms
	Recurrence  *Recurrence  `json:"recurrence,omitempty"`
	CreatedAt   int64        `json:"created_at,omitempty"` // epoch ms
}

func (r Record) IsRecurring() bool { return r.Recurrence != nil && r.Recurrence.IntervalDays > 0 }

// Due returns NextTrigger as a time in loc.
func (r Record) Due(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(r.NextTrigger).In(loc)
}

// Entry pairs a record with its ID for listings.
type Entry struct {
	ID     ID
	Record Record
}
