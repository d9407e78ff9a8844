// Package pattern implements the control-flow pattern executors: the
// split and join semantics evaluated when tokens leave and enter tasks.
//
// Executors are pure routing decisions over the definition graph, case
// data, and the per-case correlation Board. They never touch storage,
// resources, or work items; the engine acts on their results.
package pattern

import (
	"fmt"

	"github.com/ahalstead/caseng/workflow"
)

// SplitContext carries everything a split executor may consult.
type SplitContext struct {
	CaseID string
	Task   *workflow.Task

	// Outgoing flows of Task in definition order.
	Outgoing []*workflow.Flow

	Data  *workflow.Data
	Board *Board

	// ActivationID is a fresh ID for this split firing, generated by
	// the engine before evaluation.
	ActivationID string
}

// SplitResult is a split executor's routing decision.
type SplitResult struct {
	// Enable lists the branch targets to enable, in flow order.
	Enable []workflow.TaskID

	// ActivationID, when set, is carried by the enabled work items so
	// a downstream join can correlate them back to this firing.
	ActivationID string
}

// JoinContext carries everything a join executor may consult for one
// arrival on an incoming flow.
type JoinContext struct {
	CaseID string
	Task   *workflow.Task

	// From is the source task of the flow the token arrived on.
	From workflow.TaskID

	// Branch is the branch root the arriving token descends from: the
	// split successor it was first enabled as. Used by OR-joins to
	// match arrivals against the activated branch set.
	Branch workflow.TaskID

	// Incoming flows of Task in definition order.
	Incoming []*workflow.Flow

	// ActivationID carried by the arriving work item; empty when the
	// producing split recorded no activation.
	ActivationID string

	Board *Board
}

// JoinResult is a join executor's decision for one arrival.
type JoinResult struct {
	// Fire enables the join task now.
	Fire bool

	// Absorbed means the arrival was consumed without firing and
	// without error, e.g. a late discriminator arrival.
	Absorbed bool
}

// SplitExecutor evaluates a split type.
type SplitExecutor interface {
	// Select decides which outgoing branches to enable.
	Select(sctx *SplitContext) (*SplitResult, error)
}

// JoinExecutor evaluates a join type, one arrival at a time.
type JoinExecutor interface {
	// Arrive processes a token arriving on an incoming flow.
	Arrive(jctx *JoinContext) (*JoinResult, error)
}

// Registry maps split and join types to their executors. The zero
// value is unusable; NewRegistry installs the built-in executors.
type Registry struct {
	splits map[workflow.SplitType]SplitExecutor
	joins  map[workflow.JoinType]JoinExecutor
}

// NewRegistry creates a registry with all built-in pattern executors
// installed.
func NewRegistry() *Registry {
	r := &Registry{
		splits: make(map[workflow.SplitType]SplitExecutor),
		joins:  make(map[workflow.JoinType]JoinExecutor),
	}
	r.RegisterSplit(workflow.SplitNone, SequenceSplit{})
	r.RegisterSplit(workflow.SplitAND, ANDSplit{})
	r.RegisterSplit(workflow.SplitXOR, XORSplit{})
	r.RegisterSplit(workflow.SplitOR, ORSplit{})
	r.RegisterJoin(workflow.JoinNone, PassJoin{})
	r.RegisterJoin(workflow.JoinAND, ANDJoin{})
	r.RegisterJoin(workflow.JoinXOR, XORJoin{})
	r.RegisterJoin(workflow.JoinOR, ORJoin{})
	r.RegisterJoin(workflow.JoinDiscriminator, Discriminator{})
	return r
}

// RegisterSplit installs (or replaces) the executor for a split type.
func (r *Registry) RegisterSplit(t workflow.SplitType, e SplitExecutor) {
	r.splits[t] = e
}

// RegisterJoin installs (or replaces) the executor for a join type.
func (r *Registry) RegisterJoin(t workflow.JoinType, e JoinExecutor) {
	r.joins[t] = e
}

// Split returns the executor for a split type.
func (r *Registry) Split(t workflow.SplitType) (SplitExecutor, error) {
	e, ok := r.splits[t]
	if !ok {
		return nil, fmt.Errorf("%w: split %s", ErrUnknownPattern, t)
	}
	return e, nil
}

// Join returns the executor for a join type.
func (r *Registry) Join(t workflow.JoinType) (JoinExecutor, error) {
	e, ok := r.joins[t]
	if !ok {
		return nil, fmt.Errorf("%w: join %s", ErrUnknownPattern, t)
	}
	return e, nil
}
