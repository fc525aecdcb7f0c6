package scheduler

import "time"

// Timer is a polled countdown with two states, running and expired.
// It never fires on its own and never restarts itself: the owner checks
// Expired on every loop pass and re-arms it with Start.
type Timer struct {
	duration time.Duration
	deadline time.Time
	running  bool
}

// NewTimer returns a timer in the expired state so the first poll fires
// the owner's task immediately.
func NewTimer(d time.Duration) *Timer {
	return &Timer{duration: d}
}

// Set changes the duration used by the next Start call. It does not
// touch an already armed deadline.
func (t *Timer) Set(d time.Duration) {
	t.duration = d
}

// Duration returns the duration the next Start call will arm.
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Start arms the timer at now + duration.
func (t *Timer) Start(now time.Time) {
	t.deadline = now.Add(t.duration)
	t.running = true
}

// Expired reports whether the deadline has passed. An expired timer
// stays expired until Start arms it again.
func (t *Timer) Expired(now time.Time) bool {
	if t.running && now.Before(t.deadline) {
		return false
	}
	t.running = false
	return true
}
