// Package clock abstracts wall-clock time and timers so that timing-driven
// behavior (typing pacing, re-engagement backoff) can be tested with a fake
// clock instead of real sleeps.
package clock

import "time"

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// timer from firing.
	Stop() bool
}

// Real is a Clock backed by the time package.
type Real struct{}

// New returns the real clock.
func New() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct {
	t *time.Timer
}

func (rt realTimer) Stop() bool { return rt.t.Stop() }
