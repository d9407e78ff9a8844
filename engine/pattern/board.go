package pattern

import (
	"sort"

	"github.com/ahalstead/caseng/workflow"
)

// Activation records one firing of an OR-split: which branches it
// activated and which of them have since arrived at the paired join.
type Activation struct {
	ID        string
	SplitTask workflow.TaskID
	Activated map[workflow.TaskID]bool
	Arrived   map[workflow.TaskID]bool
}

// complete reports whether every activated branch has arrived.
func (a *Activation) complete() bool {
	for to := range a.Activated {
		if !a.Arrived[to] {
			return false
		}
	}
	return true
}

// discState tracks a discriminator join activation: the first arrival
// fires, the remaining fan-in minus one arrivals are absorbed, and the
// state resets once all have been seen.
type discState struct {
	fired   bool
	arrived int
}

// Board is the per-case correlation state consulted by join executors.
// It is not safe for concurrent use; the engine serializes all pattern
// evaluation for a case.
type Board struct {
	andJoins       map[workflow.TaskID]map[workflow.TaskID]bool
	orActivations  map[string]*Activation
	discriminators map[workflow.TaskID]*discState
}

// NewBoard creates an empty correlation board for one case.
func NewBoard() *Board {
	return &Board{
		andJoins:       make(map[workflow.TaskID]map[workflow.TaskID]bool),
		orActivations:  make(map[string]*Activation),
		discriminators: make(map[workflow.TaskID]*discState),
	}
}

// RecordActivation registers an OR-split firing so the paired join can
// later correlate arrivals against the activated branch set.
func (b *Board) RecordActivation(a *Activation) {
	b.orActivations[a.ID] = a
}

// ActivationByID returns the recorded activation or nil.
func (b *Board) ActivationByID(id string) *Activation {
	return b.orActivations[id]
}

// OpenActivations returns the IDs of all unretired activations.
func (b *Board) OpenActivations() []string {
	out := make([]string, 0, len(b.orActivations))
	for id := range b.orActivations {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RetireActivation drops a completed activation record.
func (b *Board) RetireActivation(id string) {
	delete(b.orActivations, id)
}

// BranchCancelled removes a cancelled branch from its activation's
// activated set so the paired OR-join does not wait for it forever.
// Retires the activation when nothing activated remains outstanding.
func (b *Board) BranchCancelled(activationID string, branch workflow.TaskID) {
	a := b.orActivations[activationID]
	if a == nil {
		return
	}
	delete(a.Activated, branch)
	delete(a.Arrived, branch)
	if len(a.Activated) == 0 {
		delete(b.orActivations, activationID)
	}
}

func (b *Board) andArrivals(task workflow.TaskID) map[workflow.TaskID]bool {
	m := b.andJoins[task]
	if m == nil {
		m = make(map[workflow.TaskID]bool)
		b.andJoins[task] = m
	}
	return m
}

func (b *Board) resetAndJoin(task workflow.TaskID) {
	delete(b.andJoins, task)
}

func (b *Board) discriminator(task workflow.TaskID) *discState {
	s := b.discriminators[task]
	if s == nil {
		s = &discState{}
		b.discriminators[task] = s
	}
	return s
}

func (b *Board) resetDiscriminator(task workflow.TaskID) {
	delete(b.discriminators, task)
}
