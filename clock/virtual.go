package clock

import (
	"sync"
	"time"
)

// Virtual is a Clock whose time only moves when explicitly advanced.
// It makes time-dependent engine behavior deterministic under test.
type Virtual struct {
	mu      sync.Mutex
	current time.Time
	timers  []*virtualTimer
}

type virtualTimer struct {
	deadline time.Time
	ch       chan time.Time
}

// NewVirtual creates a virtual clock starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{current: start}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

func (v *Virtual) After(d time.Duration) <-chan time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := &virtualTimer{
		deadline: v.current.Add(d),
		ch:       make(chan time.Time, 1),
	}
	if d <= 0 {
		t.ch <- v.current
		close(t.ch)
		return t.ch
	}
	v.timers = append(v.timers, t)
	return t.ch
}

// AdvanceTo moves the clock to t, firing any timers whose deadline passed.
// Moving backwards is ignored.
func (v *Virtual) AdvanceTo(t time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t.Before(v.current) {
		return
	}
	v.current = t
	remaining := v.timers[:0]
	for _, timer := range v.timers {
		if !timer.deadline.After(v.current) {
			timer.ch <- v.current
			close(timer.ch)
			continue
		}
		remaining = append(remaining, timer)
	}
	v.timers = remaining
}

// AdvanceBy moves the clock forward by d.
func (v *Virtual) AdvanceBy(d time.Duration) {
	v.AdvanceTo(v.Now().Add(d))
}
