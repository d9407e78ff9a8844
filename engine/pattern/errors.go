package pattern

import (
	"errors"
	"fmt"

	"github.com/ahalstead/caseng/workflow"
)

var (
	// ErrNoMatchingBranch is returned by an XOR- or OR-split when no
	// outgoing guard matches and no default flow exists.
	ErrNoMatchingBranch = errors.New("no matching branch")

	// ErrUnknownPattern is returned for a split or join type the
	// registry has no executor for.
	ErrUnknownPattern = errors.New("unknown pattern")
)

// CorrelationNotFoundError reports an arrival carrying an activation ID
// the correlation board has no record of.
type CorrelationNotFoundError struct {
	ActivationID string
	TaskID       workflow.TaskID
}

func (e *CorrelationNotFoundError) Error() string {
	return fmt.Sprintf("correlation not found: activation %s at task %s", e.ActivationID, e.TaskID)
}

// DuplicateArrivalError reports a second token arriving on an incoming
// flow an AND-join has already marked for the current activation.
type DuplicateArrivalError struct {
	TaskID workflow.TaskID
	From   workflow.TaskID
}

func (e *DuplicateArrivalError) Error() string {
	return fmt.Sprintf("duplicate arrival at task %s from %s", e.TaskID, e.From)
}
