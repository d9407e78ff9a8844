package resource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResource(id string, speed int) *Resource {
	return &Resource{
		ID:                 id,
		Speed:              speed,
		CPUCeiling:         100,
		MemoryCeiling:      1000,
		QueueCeiling:       10,
		ConcurrencyCeiling: 4,
	}
}

func TestAllocateRelease(t *testing.T) {
	pool := NewPool([]*Resource{testResource("res-1", 1)})
	m := New(pool)
	ctx := context.Background()

	id, err := m.Allocate(ctx, "wi-1", Demand{CPU: 10, Memory: 100}, nil, PolicyLeastLoaded)
	require.NoError(t, err)
	assert.Equal(t, "res-1", id)

	loads := pool.Candidates()[0].Loads()
	assert.Equal(t, int64(10), loads.CPU)
	assert.Equal(t, int64(100), loads.Memory)
	assert.Equal(t, int64(1), loads.QueueDepth)
	assert.Equal(t, int64(1), loads.Active)

	require.NoError(t, m.Begin("wi-1"))
	loads = pool.Candidates()[0].Loads()
	assert.Equal(t, int64(0), loads.QueueDepth)
	assert.Equal(t, int64(1), loads.Active)

	m.Release("wi-1")
	loads = pool.Candidates()[0].Loads()
	assert.Equal(t, Loads{}, loads)

	// releasing again must be a no-op
	m.Release("wi-1")
	assert.Equal(t, Loads{}, pool.Candidates()[0].Loads())
}

func TestConstraintViolation(t *testing.T) {
	r := testResource("res-1", 1)
	pool := NewPool([]*Resource{r})
	m := New(pool)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "wi-1", Demand{CPU: 120, Memory: 2000}, nil, PolicyLeastLoaded)
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "res-1", cv.ResourceID)
	// violations reported in check order
	assert.Equal(t, []Constraint{ConstraintCPU, ConstraintMemory}, cv.Violated)

	// a rejected allocation must not leak partial reservations
	assert.Equal(t, Loads{}, r.Loads())
}

func TestUnavailable(t *testing.T) {
	r := testResource("res-1", 1)
	r.ConcurrencyCeiling = 1
	pool := NewPool([]*Resource{r})
	m := New(pool)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "wi-1", Demand{}, nil, PolicyDefault)
	require.NoError(t, err)

	_, err = m.Allocate(ctx, "wi-2", Demand{}, nil, PolicyDefault)
	var ua *UnavailableError
	require.ErrorAs(t, err, &ua)
	assert.True(t, ua.NextAvailable.IsZero())
}

func TestUnavailableNextEstimate(t *testing.T) {
	r := testResource("res-1", 1)
	r.ConcurrencyCeiling = 1
	pool := NewPool([]*Resource{r}, WithHoldHint(time.Minute))
	m := New(pool)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "wi-1", Demand{}, nil, PolicyDefault)
	require.NoError(t, err)

	_, err = m.Allocate(ctx, "wi-2", Demand{}, nil, PolicyDefault)
	var ua *UnavailableError
	require.ErrorAs(t, err, &ua)
	assert.False(t, ua.NextAvailable.IsZero())
}

func TestCapabilityFilter(t *testing.T) {
	gpu := testResource("res-gpu", 1)
	gpu.Capabilities = []string{"gpu", "x86"}
	cpu := testResource("res-cpu", 9)
	cpu.Capabilities = []string{"x86"}
	pool := NewPool([]*Resource{cpu, gpu})
	m := New(pool)
	ctx := context.Background()

	// only the gpu resource qualifies despite being slower
	id, err := m.Allocate(ctx, "wi-1", Demand{}, []string{"gpu"}, PolicyFastestAvailable)
	require.NoError(t, err)
	assert.Equal(t, "res-gpu", id)

	_, err = m.Allocate(ctx, "wi-2", Demand{}, []string{"arm"}, PolicyFastestAvailable)
	var ua *UnavailableError
	require.ErrorAs(t, err, &ua)
}

func TestPolicies(t *testing.T) {
	slow := testResource("res-slow", 1)
	fast := testResource("res-fast", 5)
	pool := NewPool([]*Resource{slow, fast})
	m := New(pool)
	ctx := context.Background()

	id, err := m.Allocate(ctx, "wi-1", Demand{}, nil, PolicyFastestAvailable)
	require.NoError(t, err)
	assert.Equal(t, "res-fast", id)

	// fast has load now; least-loaded goes to slow
	id, err = m.Allocate(ctx, "wi-2", Demand{}, nil, PolicyLeastLoaded)
	require.NoError(t, err)
	assert.Equal(t, "res-slow", id)

	// round robin rotates over both
	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		id, err = m.Allocate(ctx, "wi-rr-"+id, Demand{}, nil, PolicyRoundRobin)
		require.NoError(t, err)
		seen[id] = true
	}
	assert.Len(t, seen, 2)
}

func TestCapabilityMatchPrefersTightest(t *testing.T) {
	broad := testResource("res-broad", 1)
	broad.Capabilities = []string{"gpu", "x86", "fpga"}
	tight := testResource("res-tight", 1)
	tight.Capabilities = []string{"gpu"}
	pool := NewPool([]*Resource{broad, tight})
	m := New(pool)

	id, err := m.Allocate(context.Background(), "wi-1", Demand{}, []string{"gpu"}, PolicyCapabilityMatch)
	require.NoError(t, err)
	assert.Equal(t, "res-tight", id)
}

func TestBeginUnknown(t *testing.T) {
	m := New(NewPool(nil))
	assert.True(t, errors.Is(m.Begin("nope"), ErrUnknownAllocation))
}

// Ceilings must hold under concurrent allocation pressure.
func TestConcurrencyCeilingNeverExceeded(t *testing.T) {
	r := testResource("res-1", 1)
	r.ConcurrencyCeiling = 4
	r.QueueCeiling = 4
	pool := NewPool([]*Resource{r})
	m := New(pool)
	ctx := context.Background()

	var wg sync.WaitGroup
	granted := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "wi-" + string(rune('a'+n%26)) + string(rune('a'+n/26))
			if _, err := m.Allocate(ctx, id, Demand{CPU: 1}, nil, PolicyDefault); err == nil {
				granted <- id
			}
		}(i)
	}
	wg.Wait()
	close(granted)

	var ids []string
	for id := range granted {
		ids = append(ids, id)
	}
	assert.LessOrEqual(t, len(ids), 4)
	loads := r.Loads()
	assert.LessOrEqual(t, loads.Active, int64(4))
	assert.LessOrEqual(t, loads.QueueDepth, int64(4))

	for _, id := range ids {
		m.Release(id)
	}
	assert.Equal(t, Loads{}, r.Loads())
}

func TestSelectorBands(t *testing.T) {
	s := NewSelector()

	assert.Equal(t, PolicyFastestAvailable, s.Policy())

	s.Observe(0.5)
	assert.Equal(t, PolicyLeastLoaded, s.Policy())

	s.Observe(0.9)
	s.Observe(0.95)
	s.Observe(0.99)
	assert.Equal(t, PolicyCapabilityMatch, s.Policy())
}

func TestManagerRefreshPolicy(t *testing.T) {
	r := testResource("res-1", 1)
	r.ConcurrencyCeiling = 2
	pool := NewPool([]*Resource{r})
	m := New(pool, WithSelector(NewSelector()), WithDefaultPolicy(PolicyRoundRobin))
	ctx := context.Background()

	// idle system: selector routes to the fastest-available policy
	m.RefreshPolicy(ctx)
	assert.Equal(t, PolicyFastestAvailable, m.DefaultPolicy())

	_, err := m.Allocate(ctx, "wi-1", Demand{}, nil, PolicyDefault)
	require.NoError(t, err)
	_, err = m.Allocate(ctx, "wi-2", Demand{}, nil, PolicyDefault)
	require.NoError(t, err)

	// fully loaded now; enough samples to pull the mean into the hot band
	for i := 0; i < 8; i++ {
		m.RefreshPolicy(ctx)
	}
	assert.Equal(t, PolicyCapabilityMatch, m.DefaultPolicy())
}
