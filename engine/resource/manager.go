package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahalstead/caseng/clock"
	"github.com/ahalstead/caseng/logkeys"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// allocation is the manager's record of a granted reservation.
type allocation struct {
	resource *Resource
	demand   Demand
	begun    bool
}

// Manager grants and tracks resource allocations for work items.
type Manager struct {
	provider Provider
	logger   log.Logger
	clock    clock.Clock
	selector *Selector

	defaultPolicy uint32
	rrCounter     uint64

	mu          sync.Mutex
	allocations map[string]*allocation
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the manager time source.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithDefaultPolicy sets the policy used when callers pass PolicyDefault.
func WithDefaultPolicy(p Policy) Option {
	return func(m *Manager) {
		m.setDefaultPolicy(p)
	}
}

// WithSelector attaches an adaptive policy selector. The worker feeds
// it load samples and periodically refreshes the default policy.
func WithSelector(s *Selector) Option {
	return func(m *Manager) {
		m.selector = s
	}
}

// New creates a resource manager over the given provider.
func New(provider Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:    provider,
		logger:      log.NopLogger,
		clock:       clock.Realtime{},
		allocations: make(map[string]*allocation),
	}
	m.setDefaultPolicy(PolicyLeastLoaded)
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logkeys.GenericComponent, "resource-manager")
	return m
}

func (m *Manager) setDefaultPolicy(p Policy) {
	atomic.StoreUint32(&m.defaultPolicy, uint32(p))
}

// DefaultPolicy returns the policy used for PolicyDefault allocations.
func (m *Manager) DefaultPolicy() Policy {
	return Policy(atomic.LoadUint32(&m.defaultPolicy))
}

// Selector returns the attached adaptive selector, or nil.
func (m *Manager) Selector() *Selector {
	return m.selector
}

// RefreshPolicy re-derives the default policy from the adaptive
// selector. Intended to be called off the allocation path, e.g. from
// a worker tick. No-op without a selector.
func (m *Manager) RefreshPolicy(ctx context.Context) {
	if m.selector == nil {
		return
	}
	m.selector.Observe(m.Utilization())
	next := m.selector.Policy()
	if next == m.DefaultPolicy() {
		return
	}
	m.setDefaultPolicy(next)
	ctxlog.Logger(ctx, m.logger).Debug(
		logkeys.Message, "default policy changed",
		logkeys.Strategy, next.String(),
	)
}

// Utilization is the mean concurrency utilization across all resources.
func (m *Manager) Utilization() float64 {
	cands := m.provider.Candidates()
	if len(cands) == 0 {
		return 0
	}
	var sum float64
	for _, r := range cands {
		sum += r.utilization()
	}
	return sum / float64(len(cands))
}

// Allocate reserves capacity for the work item identified by itemID.
// The chosen resource's ID is returned. Failure modes: an
// UnavailableError when no candidate is available, or a
// ConstraintViolationError when the chosen resource's ceilings reject
// the demand.
func (m *Manager) Allocate(ctx context.Context, itemID string, d Demand, capabilities []string, policy Policy) (string, error) {
	if policy == PolicyDefault {
		policy = m.DefaultPolicy()
	}

	var cands []*Resource
	for _, r := range m.provider.Candidates() {
		if !r.hasCapabilities(capabilities) {
			continue
		}
		if !m.provider.Available(r) {
			continue
		}
		cands = append(cands, r)
	}
	if len(cands) == 0 {
		return "", &UnavailableError{NextAvailable: m.nextAvailable()}
	}

	var chosen *Resource
	switch policy {
	case PolicyFastestAvailable:
		chosen = pickFastest(cands)
	case PolicyLeastLoaded:
		chosen = pickLeastLoaded(cands)
	case PolicyCapabilityMatch:
		chosen = pickCapabilityMatch(cands, capabilities)
	case PolicyRoundRobin:
		chosen = pickRoundRobin(cands, atomic.AddUint64(&m.rrCounter, 1)-1)
	default:
		chosen = pickLeastLoaded(cands)
	}

	if violated := chosen.reserve(d); violated != nil {
		return "", &ConstraintViolationError{ResourceID: chosen.ID, Violated: violated}
	}

	m.mu.Lock()
	m.allocations[itemID] = &allocation{resource: chosen, demand: d}
	m.mu.Unlock()

	if pool, ok := m.provider.(*Pool); ok {
		pool.noteAllocated(chosen.ID, m.clock.Now())
	}

	ctxlog.Logger(ctx, m.logger).Debug(
		logkeys.Message, "allocated",
		logkeys.WorkItemID, itemID,
		logkeys.ResourceID, chosen.ID,
		logkeys.Strategy, policy.String(),
	)
	return chosen.ID, nil
}

// Begin marks the allocation as running, moving its reservation from
// the queue-depth counter to active only.
func (m *Manager) Begin(itemID string) error {
	m.mu.Lock()
	a, ok := m.allocations[itemID]
	if ok && !a.begun {
		a.begun = true
	} else {
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return ErrUnknownAllocation
	}
	a.resource.begin()
	return nil
}

// Release frees the allocation for itemID. Releasing an unknown or
// already-released allocation is a no-op so that cancellation cascades
// stay idempotent.
func (m *Manager) Release(itemID string) {
	m.mu.Lock()
	a, ok := m.allocations[itemID]
	if ok {
		delete(m.allocations, itemID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	a.resource.release(a.demand, a.begun)
}

// nextAvailable asks the provider for an availability estimate when it
// supports one.
func (m *Manager) nextAvailable() time.Time {
	if f, ok := m.provider.(interface{ NextAvailable() time.Time }); ok {
		return f.NextAvailable()
	}
	return time.Time{}
}
