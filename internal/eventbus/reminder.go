package eventbus

// Reminder lifecycle event types.
const (
	ReminderArmed       = "reminder.armed"
	ReminderFired       = "reminder.fired"
	ReminderDeleted     = "reminder.deleted"
	ReminderRescheduled = "reminder.rescheduled"
	ReminderCancelled   = "reminder.cancelled"
)

// ReminderEvent is the Data payload of reminder.* events.
type ReminderEvent struct {
	ID          string `json:"id"`
	OwnerID     int64  `json:"owner_id"`
	NextTrigger int64  `json:"next_trigger,omitempty"`
	Recurring   bool   `json:"recurring,omitempty"`
}
