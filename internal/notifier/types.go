package notifier

import "time"

type Config struct {
	SendTimeout time.Duration
	RatePerSec  int
}

// Result summarizes one delivery for logs and tests.
type Result struct {
	Shared       bool  // a destination was present
	SharedErr    error // tagged send failure (nil on success)
	FallbackSent bool
	FallbackErr  error
	PrivateErr   error
}

// SharedDelivered reports whether either shared-chat attempt succeeded.
func (r Result) SharedDelivered() bool {
	return r.Shared && (r.SharedErr == nil || (r.FallbackSent && r.FallbackErr == nil))
}
