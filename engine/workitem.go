package engine

import (
	"fmt"
	"time"

	"github.com/ahalstead/caseng/clock"
	"github.com/ahalstead/caseng/engine/storage"
	"github.com/ahalstead/caseng/workflow"
)

// ItemState names a work item lifecycle phase.
type ItemState uint

const (
	ItemEnabled ItemState = iota
	ItemAllocated
	ItemExecuting
	ItemCompleted
	ItemCancelled
	ItemFailed
)

// String returns the state name.
func (s ItemState) String() string {
	switch s {
	case ItemEnabled:
		return "enabled"
	case ItemAllocated:
		return "allocated"
	case ItemExecuting:
		return "executing"
	case ItemCompleted:
		return "completed"
	case ItemCancelled:
		return "cancelled"
	case ItemFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown item state: %d", uint(s))
	}
}

// Terminal reports whether s is a terminal state.
func (s ItemState) Terminal() bool {
	switch s {
	case ItemCompleted, ItemCancelled, ItemFailed:
		return true
	}
	return false
}

// itemCore is the single allocation backing a work item across its
// whole lifecycle. The typed phase wrappers below all point at the
// same core; a transition is a timestamp write, an event record, and a
// new (stack) wrapper value. Nothing on this path blocks.
type itemCore struct {
	id     string
	caseID string
	taskID workflow.TaskID

	// branch is the split successor this item's token was first
	// enabled as; propagated unchanged along sequence flows so an
	// OR-join can match the arrival to its activation.
	branch workflow.TaskID

	// activationID correlates the item back to the split firing that
	// produced it. Empty outside OR-split branches.
	activationID string

	resourceID string

	enabledAt   time.Time
	allocatedAt time.Time
	startedAt   time.Time
	endedAt     time.Time

	suspended bool
	detail    string

	input  map[string]any
	output map[string]any

	clock  clock.Clock
	record func(storage.Event)
}

func (c *itemCore) event(from, to ItemState, at time.Time) {
	if c.record == nil {
		return
	}
	c.record(storage.Event{
		EntityKind:    storage.KindWorkItem,
		EntityID:      c.id,
		CaseID:        c.caseID,
		TaskID:        string(c.taskID),
		From:          from.String(),
		To:            to.String(),
		At:            at,
		CorrelationID: c.activationID,
		Detail:        c.detail,
	})
}

func (c *itemCore) snapshot(state ItemState) *storage.WorkItemSnapshot {
	return &storage.WorkItemSnapshot{
		WorkItemID:   c.id,
		CaseID:       c.caseID,
		TaskID:       string(c.taskID),
		State:        state.String(),
		ResourceID:   c.resourceID,
		ActivationID: c.activationID,
		EnabledAt:    c.enabledAt,
		AllocatedAt:  c.allocatedAt,
		StartedAt:    c.startedAt,
		EndedAt:      c.endedAt,
	}
}

// WorkItem is the phase-independent view of a work item. The phase
// wrappers implement it; code that needs to transition an item must
// hold the typed wrapper, which is the only place transition methods
// exist.
type WorkItem interface {
	ID() string
	CaseID() string
	TaskID() workflow.TaskID
	Branch() workflow.TaskID
	ActivationID() string
	ResourceID() string
	State() ItemState
	Snapshot() *storage.WorkItemSnapshot
}

// EnabledItem is a work item whose task has been enabled by a pattern
// decision but not yet assigned a resource.
type EnabledItem struct{ core *itemCore }

// AllocatedItem is a work item holding a resource reservation.
type AllocatedItem struct{ core *itemCore }

// ExecutingItem is a work item currently running on its resource.
type ExecutingItem struct{ core *itemCore }

// CompletedItem is a terminal, successfully finished work item.
type CompletedItem struct{ core *itemCore }

// CancelledItem is a terminal, withdrawn work item.
type CancelledItem struct{ core *itemCore }

// FailedItem is a terminal, unsuccessfully finished work item.
type FailedItem struct{ core *itemCore }

// enableItem creates a work item in the Enabled state and records the
// enabling event.
func enableItem(c *itemCore) EnabledItem {
	c.enabledAt = c.clock.Now()
	if c.record != nil {
		c.record(storage.Event{
			EntityKind:    storage.KindWorkItem,
			EntityID:      c.id,
			CaseID:        c.caseID,
			TaskID:        string(c.taskID),
			From:          "none",
			To:            ItemEnabled.String(),
			At:            c.enabledAt,
			CorrelationID: c.activationID,
		})
	}
	return EnabledItem{core: c}
}

// Allocate records the resource assignment and moves to Allocated.
func (i EnabledItem) Allocate(resourceID string) AllocatedItem {
	i.core.resourceID = resourceID
	i.core.allocatedAt = i.core.clock.Now()
	i.core.event(ItemEnabled, ItemAllocated, i.core.allocatedAt)
	return AllocatedItem{core: i.core}
}

// Cancel withdraws the item before allocation.
func (i EnabledItem) Cancel(reason string) CancelledItem {
	return cancelItem(i.core, ItemEnabled, reason)
}

// Start moves the item to Executing.
func (i AllocatedItem) Start() ExecutingItem {
	i.core.startedAt = i.core.clock.Now()
	i.core.event(ItemAllocated, ItemExecuting, i.core.startedAt)
	return ExecutingItem{core: i.core}
}

// Cancel withdraws the item before it starts.
func (i AllocatedItem) Cancel(reason string) CancelledItem {
	return cancelItem(i.core, ItemAllocated, reason)
}

// Complete finishes the item successfully with its output payload.
func (i ExecutingItem) Complete(output map[string]any) CompletedItem {
	i.core.output = output
	i.core.endedAt = i.core.clock.Now()
	i.core.suspended = false
	i.core.event(ItemExecuting, ItemCompleted, i.core.endedAt)
	return CompletedItem{core: i.core}
}

// Fail finishes the item unsuccessfully.
func (i ExecutingItem) Fail(cause error) FailedItem {
	if cause != nil {
		i.core.detail = cause.Error()
	}
	i.core.endedAt = i.core.clock.Now()
	i.core.suspended = false
	i.core.event(ItemExecuting, ItemFailed, i.core.endedAt)
	return FailedItem{core: i.core}
}

// Cancel withdraws the running item.
func (i ExecutingItem) Cancel(reason string) CancelledItem {
	return cancelItem(i.core, ItemExecuting, reason)
}

// Suspend pauses the item. It stays Executing; suspension is a
// sub-state, not a lifecycle phase.
func (i ExecutingItem) Suspend() {
	i.core.suspended = true
}

// Resume clears the suspension sub-state.
func (i ExecutingItem) Resume() {
	i.core.suspended = false
}

// Suspended reports the suspension sub-state.
func (i ExecutingItem) Suspended() bool {
	return i.core.suspended
}

func cancelItem(c *itemCore, from ItemState, reason string) CancelledItem {
	c.detail = reason
	c.endedAt = c.clock.Now()
	c.suspended = false
	c.event(from, ItemCancelled, c.endedAt)
	return CancelledItem{core: c}
}

// Input returns the item's input payload.
func (i ExecutingItem) Input() map[string]any { return i.core.input }

// Output returns the completed item's output payload.
func (i CompletedItem) Output() map[string]any { return i.core.output }

// Reason returns the cancellation reason.
func (i CancelledItem) Reason() string { return i.core.detail }

// Cause returns the failure detail.
func (i FailedItem) Cause() string { return i.core.detail }

func (i EnabledItem) ID() string                          { return i.core.id }
func (i EnabledItem) CaseID() string                      { return i.core.caseID }
func (i EnabledItem) TaskID() workflow.TaskID             { return i.core.taskID }
func (i EnabledItem) Branch() workflow.TaskID             { return i.core.branch }
func (i EnabledItem) ActivationID() string                { return i.core.activationID }
func (i EnabledItem) ResourceID() string                  { return i.core.resourceID }
func (i EnabledItem) State() ItemState                    { return ItemEnabled }
func (i EnabledItem) Snapshot() *storage.WorkItemSnapshot { return i.core.snapshot(ItemEnabled) }

func (i AllocatedItem) ID() string                          { return i.core.id }
func (i AllocatedItem) CaseID() string                      { return i.core.caseID }
func (i AllocatedItem) TaskID() workflow.TaskID             { return i.core.taskID }
func (i AllocatedItem) Branch() workflow.TaskID             { return i.core.branch }
func (i AllocatedItem) ActivationID() string                { return i.core.activationID }
func (i AllocatedItem) ResourceID() string                  { return i.core.resourceID }
func (i AllocatedItem) State() ItemState                    { return ItemAllocated }
func (i AllocatedItem) Snapshot() *storage.WorkItemSnapshot { return i.core.snapshot(ItemAllocated) }

func (i ExecutingItem) ID() string                          { return i.core.id }
func (i ExecutingItem) CaseID() string                      { return i.core.caseID }
func (i ExecutingItem) TaskID() workflow.TaskID             { return i.core.taskID }
func (i ExecutingItem) Branch() workflow.TaskID             { return i.core.branch }
func (i ExecutingItem) ActivationID() string                { return i.core.activationID }
func (i ExecutingItem) ResourceID() string                  { return i.core.resourceID }
func (i ExecutingItem) State() ItemState                    { return ItemExecuting }
func (i ExecutingItem) Snapshot() *storage.WorkItemSnapshot { return i.core.snapshot(ItemExecuting) }

func (i CompletedItem) ID() string                          { return i.core.id }
func (i CompletedItem) CaseID() string                      { return i.core.caseID }
func (i CompletedItem) TaskID() workflow.TaskID             { return i.core.taskID }
func (i CompletedItem) Branch() workflow.TaskID             { return i.core.branch }
func (i CompletedItem) ActivationID() string                { return i.core.activationID }
func (i CompletedItem) ResourceID() string                  { return i.core.resourceID }
func (i CompletedItem) State() ItemState                    { return ItemCompleted }
func (i CompletedItem) Snapshot() *storage.WorkItemSnapshot { return i.core.snapshot(ItemCompleted) }

func (i CancelledItem) ID() string                          { return i.core.id }
func (i CancelledItem) CaseID() string                      { return i.core.caseID }
func (i CancelledItem) TaskID() workflow.TaskID             { return i.core.taskID }
func (i CancelledItem) Branch() workflow.TaskID             { return i.core.branch }
func (i CancelledItem) ActivationID() string                { return i.core.activationID }
func (i CancelledItem) ResourceID() string                  { return i.core.resourceID }
func (i CancelledItem) State() ItemState                    { return ItemCancelled }
func (i CancelledItem) Snapshot() *storage.WorkItemSnapshot { return i.core.snapshot(ItemCancelled) }

func (i FailedItem) ID() string                          { return i.core.id }
func (i FailedItem) CaseID() string                      { return i.core.caseID }
func (i FailedItem) TaskID() workflow.TaskID             { return i.core.taskID }
func (i FailedItem) Branch() workflow.TaskID             { return i.core.branch }
func (i FailedItem) ActivationID() string                { return i.core.activationID }
func (i FailedItem) ResourceID() string                  { return i.core.resourceID }
func (i FailedItem) State() ItemState                    { return ItemFailed }
func (i FailedItem) Snapshot() *storage.WorkItemSnapshot { return i.core.snapshot(ItemFailed) }
