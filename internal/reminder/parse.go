package reminder

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidExpression = errors.New("invalid time expression")
	ErrMissingText       = errors.New("reminder text is empty")
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

var unitMillis = map[string]int64{
	"s": int64(time.Second / time.Millisecond),
	"m": int64(time.Minute / time.Millisecond),
	"h": int64(time.Hour / time.Millisecond),
	"d": dayMillis,
}

var (
	relativeRe  = regexp.MustCompile(`(?i)^(\d+)([smhd])$`)
	recurringRe = regexp.MustCompile(`(?i)^every\s*(?:(\d+)\s*(?:d|days?)?|day)?\s+(\d{1,2})(?::(\d{2}))?\s*([ap]m)?$`)
	absoluteRe  = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*([ap]m)?$`)
)

// TriggerSpec is a parsed time expression.
type TriggerSpec struct {
	NextTrigger  int64 // epoch ms
	Recurring    bool
	IntervalDays int
	Hour, Minute int // 24h clock; zero for relative expressions
	Description  string
}

// Recurrence returns the record recurrence for a recurring spec, nil otherwise.
func (t TriggerSpec) Recurrence() *Recurrence {
	if !t.Recurring {
		return nil
	}
	return &Recurrence{IntervalDays: t.IntervalDays, Description: t.Description}
}

// Parse converts a time expression into a trigger relative to now.
//
// Accepted forms, tried in order (case-insensitive):
//
//	30s, 15m, 2h, 1d          one-shot, now + amount
//	every 9am, everyday 9am,  recurring every N days at a clock time
//	every2d 10pm, every 3d 7:30
//	4:30pm, 16:30, 9am        one-shot at the next occurrence of that time
func Parse(input string, now time.Time) (TriggerSpec, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return TriggerSpec{}, ErrInvalidExpression
	}

	if m := relativeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n <= 0 {
			return TriggerSpec{}, fmt.Errorf("%w: amount must be a positive integer", ErrInvalidExpression)
		}
		unit := unitMillis[strings.ToLower(m[2])]
		if n > (math.MaxInt64-now.UnixMilli())/unit {
			return TriggerSpec{}, fmt.Errorf("%w: %q is too far away", ErrInvalidExpression, s)
		}
		return TriggerSpec{NextTrigger: now.UnixMilli() + n*unit}, nil
	}

	if m := recurringRe.FindStringSubmatch(s); m != nil {
		interval := 1
		if m[1] != "" {
			n, err := strconv.Atoi(m[1])
			if err != nil || n <= 0 || n > 3650 {
				return TriggerSpec{}, fmt.Errorf("%w: day interval must be between 1 and 3650", ErrInvalidExpression)
			}
			interval = n
		}
		h, mm, err := clock(m[2], m[3], m[4])
		if err != nil {
			return TriggerSpec{}, err
		}
		return TriggerSpec{
			NextTrigger:  NextOccurrence(now, h, mm, interval).UnixMilli(),
			Recurring:    true,
			IntervalDays: interval,
			Hour:         h,
			Minute:       mm,
			Description:  Describe(interval, h, mm),
		}, nil
	}

	if m := absoluteRe.FindStringSubmatch(s); m != nil {
		h, mm, err := clock(m[1], m[2], m[3])
		if err != nil {
			return TriggerSpec{}, err
		}
		return TriggerSpec{
			NextTrigger: NextOccurrence(now, h, mm, 0).UnixMilli(),
			Hour:        h,
			Minute:      mm,
		}, nil
	}

	return TriggerSpec{}, ErrInvalidExpression
}

// clock validates a clock time and converts it to 24-hour form.
func clock(hour, minute, meridiem string) (int, int, error) {
	h, err := strconv.Atoi(hour)
	if err != nil {
		return 0, 0, ErrInvalidExpression
	}
	mm := 0
	if minute != "" {
		if mm, err = strconv.Atoi(minute); err != nil {
			return 0, 0, ErrInvalidExpression
		}
	}
	if mm > 59 {
		return 0, 0, fmt.Errorf("%w: minute %d out of range", ErrInvalidExpression, mm)
	}

	switch strings.ToLower(meridiem) {
	case "":
		if h > 23 {
			return 0, 0, fmt.Errorf("%w: hour %d out of range", ErrInvalidExpression, h)
		}
	case "am":
		if h < 1 || h > 12 {
			return 0, 0, fmt.Errorf("%w: hour %d out of range for am/pm", ErrInvalidExpression, h)
		}
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 1 || h > 12 {
			return 0, 0, fmt.Errorf("%w: hour %d out of range for am/pm", ErrInvalidExpression, h)
		}
		if h < 12 {
			h += 12
		}
	}
	return h, mm, nil
}

// NextOccurrence returns hour:minute on today+dayOffset in now's location.
// With dayOffset 0 an instant that is not after now moves to tomorrow; a
// positive offset is used as given.
func NextOccurrence(now time.Time, hour, minute, dayOffset int) time.Time {
	y, mo, d := now.Date()
	t := time.Date(y, mo, d+dayOffset, hour, minute, 0, 0, now.Location())
	if dayOffset == 0 && !t.After(now) {
		t = time.Date(y, mo, d+1, hour, minute, 0, 0, now.Location())
	}
	return t
}

// Advance computes the next trigger of a recurring record that fired at now.
// It keeps the clock time of the current trigger (read in now's location).
func Advance(rec Record, now time.Time) int64 {
	due := time.UnixMilli(rec.NextTrigger).In(now.Location())
	return NextOccurrence(now, due.Hour(), due.Minute(), rec.Recurrence.IntervalDays).UnixMilli()
}

// ParseArgs splits command tokens into a time expression and the message.
// Multi-token expressions ("every 2d 9am", "4:30 pm") win over shorter ones
// as long as at least one token is left for the message.
func ParseArgs(args []string, now time.Time) (TriggerSpec, string, error) {
	if len(args) > 0 && len(args) <= 3 {
		if _, err := Parse(strings.Join(args, " "), now); err == nil {
			return TriggerSpec{}, "", ErrMissingText
		}
	}
	for n := min(3, len(args)-1); n >= 1; n-- {
		spec, err := Parse(strings.Join(args[:n], " "), now)
		if err == nil {
			return spec, strings.Join(args[n:], " "), nil
		}
	}
	return TriggerSpec{}, "", ErrInvalidExpression
}
