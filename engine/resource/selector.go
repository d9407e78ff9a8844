package resource

import (
	"strconv"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Selector derives an allocation policy from recent load samples.
// Samples expire out of the window on their own, so a burst of load
// stops influencing policy once it ages out. The selector only picks
// policies; it is never consulted on the allocation path itself.
type Selector struct {
	samples *gocache.Cache
	seq     uint64

	hot  float64
	warm float64
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithThresholds sets the utilization cut-offs between the hot, warm,
// and cold policy bands.
func WithThresholds(hot, warm float64) SelectorOption {
	return func(s *Selector) {
		s.hot = hot
		s.warm = warm
	}
}

// WithWindow sets how long a load sample stays in the window.
func WithWindow(d time.Duration) SelectorOption {
	return func(s *Selector) {
		s.samples = gocache.New(d, d)
	}
}

// NewSelector creates an adaptive policy selector with a 30 second
// sample window.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		samples: gocache.New(30*time.Second, time.Minute),
		hot:     0.3,
		warm:    0.7,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe records a utilization sample in [0, 1].
func (s *Selector) Observe(util float64) {
	n := atomic.AddUint64(&s.seq, 1)
	s.samples.SetDefault(strconv.FormatUint(n, 10), util)
}

// Temperature is the mean of the samples currently in the window.
func (s *Selector) Temperature() float64 {
	items := s.samples.Items()
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += it.Object.(float64)
	}
	return sum / float64(len(items))
}

// Policy maps the current temperature to an allocation policy: a cold
// system optimizes for speed, a warm one for balance, and a hot one
// for placing work where it fits.
func (s *Selector) Policy() Policy {
	t := s.Temperature()
	switch {
	case t < s.hot:
		return PolicyFastestAvailable
	case t < s.warm:
		return PolicyLeastLoaded
	default:
		return PolicyCapabilityMatch
	}
}
