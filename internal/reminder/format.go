package reminder

import (
	"fmt"
	"time"
)

const triggerLayout = "Mon, Jan 2, 03:04 PM"

// FormatClock renders a 24h clock time as "9:05 AM".
func FormatClock(hour, minute int) string {
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, minute, period)
}

// Describe is the human form of a recurrence rule.
func Describe(intervalDays, hour, minute int) string {
	if intervalDays == 1 {
		return "Every day at " + FormatClock(hour, minute)
	}
	return fmt.Sprintf("Every %d days at %s", intervalDays, FormatClock(hour, minute))
}

// FormatTrigger renders an epoch-ms trigger as "Thu, Oct 16, 09:05 AM" in loc.
func FormatTrigger(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(triggerLayout)
}
