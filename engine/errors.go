package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a case, definition, or work item
	// lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned registering a definition name twice.
	ErrDuplicateName = errors.New("duplicate definition name")

	// ErrEngineStopped is returned for operations on a stopped engine.
	ErrEngineStopped = errors.New("engine stopped")
)

// InvalidTransitionError reports an attempted illegal case transition.
// Work item transitions cannot produce this by construction; only the
// case state machine has runtime guards.
type InvalidTransitionError struct {
	CaseID string
	From   CaseState
	Event  CaseEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("case %s: invalid transition: %s on %s", e.CaseID, e.Event, e.From)
}

// AllocationTimeoutError reports that a work item could not be
// allocated a resource within the retry window.
type AllocationTimeoutError struct {
	WorkItemID string
	Waited     time.Duration
}

func (e *AllocationTimeoutError) Error() string {
	return fmt.Sprintf("work item %s: allocation timed out after %s", e.WorkItemID, e.Waited)
}
