// Package clock abstracts time for the engine so that hot-path decisions
// can be timestamped in production and driven deterministically in tests.
package clock

import "time"

// Clock provides the current time and timer channels.
// Implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current time according to this clock.
	Now() time.Time

	// After returns a channel that receives the time after duration d.
	After(d time.Duration) <-chan time.Time
}

// Realtime is a Clock backed by the system wall clock.
type Realtime struct{}

// NewRealtime creates a new system-time clock.
func NewRealtime() Realtime {
	return Realtime{}
}

func (Realtime) Now() time.Time {
	return time.Now()
}

func (Realtime) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
