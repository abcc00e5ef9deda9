package dispatch

import "time"

// Backoff is the bounded retry schedule for transient booking failures.
// Attempts are counted explicitly so the schedule is testable on its
// own; nothing retries indefinitely.
type Backoff struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// Delay reports the wait before the next submission after `failed`
// attempts have failed, and whether another attempt is allowed at all.
func (b Backoff) Delay(failed int) (time.Duration, bool) {
	if failed >= b.MaxAttempts {
		return 0, false
	}
	d := b.Base
	for i := 1; i < failed; i++ {
		d *= 2
	}
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}
	return d, true
}
