package pattern

import (
	"fmt"

	"github.com/ahalstead/caseng/workflow"
)

// SequenceSplit routes a task with a single outgoing flow.
type SequenceSplit struct{}

// Select implements the SplitExecutor interface method.
func (SequenceSplit) Select(sctx *SplitContext) (*SplitResult, error) {
	r := new(SplitResult)
	for _, f := range sctx.Outgoing {
		r.Enable = append(r.Enable, f.To)
	}
	return r, nil
}

// ANDSplit enables every outgoing branch unconditionally.
type ANDSplit struct{}

// Select implements the SplitExecutor interface method.
func (ANDSplit) Select(sctx *SplitContext) (*SplitResult, error) {
	r := new(SplitResult)
	for _, f := range sctx.Outgoing {
		r.Enable = append(r.Enable, f.To)
	}
	return r, nil
}

// XORSplit enables exactly one branch: guards are evaluated in flow
// order and the first match wins. With no match the default flow is
// taken; with no default the split fails.
type XORSplit struct{}

// Select implements the SplitExecutor interface method.
func (XORSplit) Select(sctx *SplitContext) (*SplitResult, error) {
	var fallback *workflow.Flow
	for _, f := range sctx.Outgoing {
		if f.Default {
			fallback = f
			continue
		}
		ok, err := evalGuard(f, sctx.Data)
		if err != nil {
			return nil, err
		}
		if ok {
			return &SplitResult{Enable: []workflow.TaskID{f.To}}, nil
		}
	}
	if fallback != nil {
		return &SplitResult{Enable: []workflow.TaskID{fallback.To}}, nil
	}
	return nil, fmt.Errorf("%w: XOR-split at task %s", ErrNoMatchingBranch, sctx.Task.ID)
}

// ORSplit enables every branch whose guard matches and records the
// firing on the board so the paired OR-join can correlate arrivals.
// With no match the default flow is taken; with no default the split
// fails.
type ORSplit struct{}

// Select implements the SplitExecutor interface method.
func (ORSplit) Select(sctx *SplitContext) (*SplitResult, error) {
	var fallback *workflow.Flow
	var enable []workflow.TaskID
	for _, f := range sctx.Outgoing {
		if f.Default {
			fallback = f
			continue
		}
		ok, err := evalGuard(f, sctx.Data)
		if err != nil {
			return nil, err
		}
		if ok {
			enable = append(enable, f.To)
		}
	}
	if len(enable) == 0 {
		if fallback == nil {
			return nil, fmt.Errorf("%w: OR-split at task %s", ErrNoMatchingBranch, sctx.Task.ID)
		}
		enable = append(enable, fallback.To)
	}

	activated := make(map[workflow.TaskID]bool, len(enable))
	for _, to := range enable {
		activated[to] = true
	}
	sctx.Board.RecordActivation(&Activation{
		ID:        sctx.ActivationID,
		SplitTask: sctx.Task.ID,
		Activated: activated,
		Arrived:   make(map[workflow.TaskID]bool),
	})

	return &SplitResult{Enable: enable, ActivationID: sctx.ActivationID}, nil
}

func evalGuard(f *workflow.Flow, data *workflow.Data) (bool, error) {
	if f.Guard == nil {
		return true, nil
	}
	ok, err := f.Guard(data)
	if err != nil {
		return false, fmt.Errorf("guard on flow %s to %s: %w", f.From, f.To, err)
	}
	return ok, nil
}
