package workflow

import "sync"

// Data is the mutable key/value store belonging to a single case.
// It is owned by the case: only work items of that case mutate it and
// no cross-case sharing is permitted.
type Data struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewData creates an empty case data store.
func NewData() *Data {
	return &Data{m: make(map[string]any)}
}

// Get returns the value for k.
func (d *Data) Get(k string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.m[k]
	return v, ok
}

// Set stores v under k.
func (d *Data) Set(k string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.m == nil {
		d.m = make(map[string]any)
	}
	d.m[k] = v
}

// SetAll stores every pair in m.
func (d *Data) SetAll(m map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.m == nil {
		d.m = make(map[string]any, len(m))
	}
	for k, v := range m {
		d.m[k] = v
	}
}

// Snapshot returns a copy of the current contents.
func (d *Data) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.m))
	for k, v := range d.m {
		out[k] = v
	}
	return out
}
