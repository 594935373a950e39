// Package sched schedules deferred callbacks.
// The real scheduler is backed by time.AfterFunc; the fake is driven
// manually so tests can fire relay and transit timers deterministically.
package sched

import "time"

// Timer is a pending callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// Real schedules callbacks on the runtime timer.
type Real struct{}

// AfterFunc calls f in its own goroutine after d.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Now returns the wall clock time.
func (Real) Now() time.Time {
	return time.Now()
}
