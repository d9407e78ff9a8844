// Package resource implements the engine resource manager: tracking
// execution capacity and allocating it to work items under constraints.
package resource

import (
	"sync"
	"time"
)

// Demand is the capacity a work item asks of a resource.
type Demand struct {
	CPU    int64
	Memory int64
}

// Loads is a point-in-time copy of a resource's load counters.
type Loads struct {
	CPU        int64
	Memory     int64
	QueueDepth int64
	Active     int64
}

// Resource is an allocatable execution capacity unit.
// Load counters are mutated only by the Manager under the resource
// mutex; pattern executors and callers never touch them directly.
type Resource struct {
	ID           string
	Capabilities []string

	// Speed is a relative performance rating used by the
	// fastest-available strategy. Higher is faster.
	Speed int

	CPUCeiling         int64
	MemoryCeiling      int64
	QueueCeiling       int64
	ConcurrencyCeiling int64

	mu     sync.Mutex
	cpu    int64
	memory int64
	queue  int64
	active int64
}

// Loads returns a copy of the current load counters.
func (r *Resource) Loads() Loads {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Loads{CPU: r.cpu, Memory: r.memory, QueueDepth: r.queue, Active: r.active}
}

// hasCapabilities reports whether r has every capability in want.
func (r *Resource) hasCapabilities(want []string) bool {
	for _, w := range want {
		found := false
		for _, c := range r.Capabilities {
			if c == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// reserve applies d to the load counters if no ceiling would be
// exceeded. The four constraints are checked in order (CPU, memory,
// queue depth, concurrency) and every violation is collected; nothing
// is applied unless all checks pass.
func (r *Resource) reserve(d Demand) []Constraint {
	r.mu.Lock()
	defer r.mu.Unlock()
	var violated []Constraint
	if r.CPUCeiling > 0 && r.cpu+d.CPU > r.CPUCeiling {
		violated = append(violated, ConstraintCPU)
	}
	if r.MemoryCeiling > 0 && r.memory+d.Memory > r.MemoryCeiling {
		violated = append(violated, ConstraintMemory)
	}
	if r.QueueCeiling > 0 && r.queue+1 > r.QueueCeiling {
		violated = append(violated, ConstraintQueueDepth)
	}
	if r.ConcurrencyCeiling > 0 && r.active+1 > r.ConcurrencyCeiling {
		violated = append(violated, ConstraintConcurrency)
	}
	if len(violated) > 0 {
		return violated
	}
	r.cpu += d.CPU
	r.memory += d.Memory
	r.queue++
	r.active++
	return nil
}

// release undoes a reserve.
func (r *Resource) release(d Demand, begun bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cpu -= d.CPU
	r.memory -= d.Memory
	if !begun {
		r.queue--
	}
	r.active--
}

// begin moves a reservation from queued to running.
func (r *Resource) begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue--
}

// utilization is the fraction of the concurrency ceiling in use.
func (r *Resource) utilization() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ConcurrencyCeiling <= 0 {
		return 0
	}
	return float64(r.active) / float64(r.ConcurrencyCeiling)
}

// Provider supplies candidate resources and their availability.
// How the candidate list is populated is not this package's concern.
type Provider interface {
	// Candidates returns the resources to consider for allocation.
	Candidates() []*Resource

	// Available reports whether r can take on more work right now.
	Available(r *Resource) bool
}

// Pool is a static in-memory Provider.
type Pool struct {
	mu        sync.RWMutex
	resources []*Resource
	holdHint  time.Duration
	lastAlloc map[string]time.Time
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithHoldHint supplies a typical work-item hold duration so the pool
// can derive an earliest-future-availability estimate when saturated.
func WithHoldHint(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.holdHint = d
	}
}

// NewPool creates a static pool of resources.
func NewPool(resources []*Resource, opts ...PoolOption) *Pool {
	p := &Pool{
		resources: resources,
		lastAlloc: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Candidates implements the Provider interface method.
func (p *Pool) Candidates() []*Resource {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Resource, len(p.resources))
	copy(out, p.resources)
	return out
}

// Available implements the Provider interface method.
func (p *Pool) Available(r *Resource) bool {
	if r.ConcurrencyCeiling <= 0 {
		return true
	}
	loads := r.Loads()
	return loads.Active < r.ConcurrencyCeiling
}

// Add appends a resource to the pool.
func (p *Pool) Add(r *Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources = append(p.resources, r)
}

// noteAllocated records an allocation time for availability estimates.
func (p *Pool) noteAllocated(id string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAlloc[id] = at
}

// NextAvailable estimates the earliest future availability of any
// resource in the pool. Returns the zero time if not derivable.
func (p *Pool) NextAvailable() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.holdHint <= 0 {
		return time.Time{}
	}
	var earliest time.Time
	for _, at := range p.lastAlloc {
		next := at.Add(p.holdHint)
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}
