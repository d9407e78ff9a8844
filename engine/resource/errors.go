package resource

import (
	"errors"
	"strings"
	"time"
)

// ErrUnknownAllocation is returned when releasing or beginning an
// allocation the manager has no record of.
var ErrUnknownAllocation = errors.New("unknown allocation")

// Constraint names one of the four per-resource ceilings.
type Constraint uint8

const (
	ConstraintCPU Constraint = iota
	ConstraintMemory
	ConstraintQueueDepth
	ConstraintConcurrency
)

// String returns the constraint name.
func (c Constraint) String() string {
	switch c {
	case ConstraintCPU:
		return "cpu"
	case ConstraintMemory:
		return "memory"
	case ConstraintQueueDepth:
		return "queue_depth"
	case ConstraintConcurrency:
		return "concurrency"
	}
	return "unknown"
}

// ConstraintViolationError reports a rejected allocation. Violated
// lists every ceiling the demand would have exceeded, in check order.
type ConstraintViolationError struct {
	ResourceID string
	Violated   []Constraint
}

// Error implements the error interface method.
func (e *ConstraintViolationError) Error() string {
	names := make([]string, len(e.Violated))
	for i, c := range e.Violated {
		names[i] = c.String()
	}
	return "resource " + e.ResourceID + ": constraint violation: " + strings.Join(names, ", ")
}

// UnavailableError reports that no resource could take the work item.
// NextAvailable is the earliest known future availability, or the zero
// time when no estimate is derivable.
type UnavailableError struct {
	NextAvailable time.Time
}

// Error implements the error interface method.
func (e *UnavailableError) Error() string {
	if e.NextAvailable.IsZero() {
		return "no resource available"
	}
	return "no resource available until " + e.NextAvailable.Format(time.RFC3339)
}
