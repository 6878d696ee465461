// Package notifier delivers due reminders.
//
// A delivery is fire-and-forget: it tries the shared chat (mention first,
// then plain text) and the owner's private chat, logs what failed and never
// reports an error to the scheduler. Each send is throttled by a token
// bucket and bounded by a timeout, and runs on its own goroutine so a hung
// transport call cannot hold up the caller past that timeout.
package notifier
