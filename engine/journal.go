package engine

import (
	"sync"

	"github.com/ahalstead/caseng/engine/storage"
)

// journal buffers lifecycle events in memory. State transitions append
// here on the hot path; the worker drains it to the audit sink off the
// hot path.
type journal struct {
	mu     sync.Mutex
	events []storage.Event
}

func (j *journal) append(e storage.Event) {
	j.mu.Lock()
	j.events = append(j.events, e)
	j.mu.Unlock()
}

// drain takes all buffered events, leaving the journal empty.
func (j *journal) drain() []storage.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	events := j.events
	j.events = nil
	return events
}

// requeue puts events back at the front after a failed flush.
func (j *journal) requeue(events []storage.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(events, j.events...)
}

func (j *journal) pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.events)
}
