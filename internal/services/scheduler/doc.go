// Package scheduler arms one timer per stored reminder and runs the fire
// cycle when it elapses.
//
// # Model
//
// The reminder store is the source of truth. The timer set held by Service
// is a projection of it that can be rebuilt at any time (ArmAll on start, and
// periodically by a cron-driven resync job).
//
// Each reminder moves through
//
//	Pending -> Firing -> Deleted        (one-shot)
//	Pending -> Firing -> Pending(next)  (recurring)
//
// Fire is exported so the transition can be driven directly with a fake
// clock and fake timers.
//
// # Overdue reminders
//
// A reminder whose trigger is already in the past fires immediately, once.
// A recurring reminder that missed several intervals is not replayed; its
// next trigger is computed from the firing time.
//
// # Concurrency
//
// Timer callbacks run on their own goroutines. The Service mutex guards only
// the timer map and is never held across store or network calls. A record
// removed while its fire is in flight is not written back.
package scheduler
