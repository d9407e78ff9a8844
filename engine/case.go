package engine

import (
	"fmt"
	"time"

	"github.com/ahalstead/caseng/clock"
	"github.com/ahalstead/caseng/engine/pattern"
	"github.com/ahalstead/caseng/engine/storage"
	"github.com/ahalstead/caseng/workflow"
)

// CaseState names a case lifecycle state.
type CaseState uint

const (
	CaseCreated CaseState = iota
	CaseRunning
	CaseSuspended
	CaseCompleted
	CaseFailed
	CaseCancelled
)

// String returns the state name.
func (s CaseState) String() string {
	switch s {
	case CaseCreated:
		return "created"
	case CaseRunning:
		return "running"
	case CaseSuspended:
		return "suspended"
	case CaseCompleted:
		return "completed"
	case CaseFailed:
		return "failed"
	case CaseCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown case state: %d", uint(s))
	}
}

// Terminal reports whether s is one of the three terminal states.
func (s CaseState) Terminal() bool {
	switch s {
	case CaseCompleted, CaseFailed, CaseCancelled:
		return true
	}
	return false
}

// CaseEvent names a case transition trigger.
type CaseEvent uint

const (
	EventStart CaseEvent = iota
	EventSuspend
	EventResume
	EventComplete
	EventFail
	EventCancel
)

// String returns the event name.
func (e CaseEvent) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventSuspend:
		return "suspend"
	case EventResume:
		return "resume"
	case EventComplete:
		return "complete"
	case EventFail:
		return "fail"
	case EventCancel:
		return "cancel"
	default:
		return fmt.Sprintf("unknown case event: %d", uint(e))
	}
}

// caseEdges is the case transition table. Cancel edges from every
// non-terminal state are added in init.
var caseEdges = map[CaseState]map[CaseEvent]CaseState{
	CaseCreated: {
		EventStart: CaseRunning,
	},
	CaseRunning: {
		EventSuspend:  CaseSuspended,
		EventComplete: CaseCompleted,
		EventFail:     CaseFailed,
	},
	CaseSuspended: {
		EventResume: CaseRunning,
	},
}

func init() {
	for _, s := range []CaseState{CaseCreated, CaseRunning, CaseSuspended} {
		caseEdges[s][EventCancel] = CaseCancelled
	}
}

// Case is one running instance of a workflow definition. All fields
// are guarded by the engine's per-case serialization; a Case is never
// touched from two goroutines at once.
type Case struct {
	id     string
	number uint64
	def    *workflow.Definition
	state  CaseState

	data  *workflow.Data
	board *pattern.Board

	// items holds every work item of the case, live and terminal,
	// keyed by work item ID. Values are the typed phase wrappers;
	// transitioning an item requires asserting back to its phase type.
	items map[string]WorkItem

	// deferred holds the open deferred-choice groups: competing
	// enabled items awaiting an external trigger, keyed by group ID.
	deferred map[string][]string

	createdAt  time.Time
	terminalAt time.Time
	failure    string

	clock  clock.Clock
	record func(storage.Event)
}

// newCase creates a case in the Created state.
func newCase(id string, number uint64, def *workflow.Definition, input map[string]any, clk clock.Clock, record func(storage.Event)) *Case {
	data := workflow.NewData()
	data.SetAll(input)
	c := &Case{
		id:        id,
		number:    number,
		def:       def,
		state:     CaseCreated,
		data:      data,
		board:     pattern.NewBoard(),
		items:     make(map[string]WorkItem),
		deferred:  make(map[string][]string),
		createdAt: clk.Now(),
		clock:     clk,
		record:    record,
	}
	if record != nil {
		record(storage.Event{
			EntityKind: storage.KindCase,
			EntityID:   id,
			CaseID:     id,
			From:       "none",
			To:         CaseCreated.String(),
			At:         c.createdAt,
		})
	}
	return c
}

// ID returns the case ID.
func (c *Case) ID() string { return c.id }

// Number returns the engine-assigned monotonic case number.
func (c *Case) Number() uint64 { return c.number }

// State returns the current case state.
func (c *Case) State() CaseState { return c.state }

// Definition returns the case's workflow definition.
func (c *Case) Definition() *workflow.Definition { return c.def }

// Data returns the case data store.
func (c *Case) Data() *workflow.Data { return c.data }

// Failure returns the recorded error for a Failed case.
func (c *Case) Failure() string { return c.failure }

// transition applies ev against the transition table. It is the only
// code that writes c.state. Guards are the caller's responsibility;
// transition only enforces the table edges.
func (c *Case) transition(ev CaseEvent) error {
	next, ok := caseEdges[c.state][ev]
	if !ok {
		return &InvalidTransitionError{CaseID: c.id, From: c.state, Event: ev}
	}
	from := c.state
	c.state = next
	at := c.clock.Now()
	if next.Terminal() {
		c.terminalAt = at
	}
	if c.record != nil {
		c.record(storage.Event{
			EntityKind: storage.KindCase,
			EntityID:   c.id,
			CaseID:     c.id,
			From:       from.String(),
			To:         next.String(),
			At:         at,
			Detail:     c.failure,
		})
	}
	return nil
}

// anyExecuting reports whether any work item is actively Executing.
// Items paused in the suspended sub-state do not count.
func (c *Case) anyExecuting() bool {
	for _, it := range c.items {
		if exec, ok := it.(ExecutingItem); ok && !exec.Suspended() {
			return true
		}
	}
	return false
}

// outputCompleted reports whether a work item on the output condition
// task has reached Completed.
func (c *Case) outputCompleted() bool {
	for _, it := range c.items {
		if it.TaskID() == c.def.Output && it.State() == ItemCompleted {
			return true
		}
	}
	return false
}

// inDeferredGroup reports whether itemID belongs to an open
// deferred-choice group.
func (c *Case) inDeferredGroup(itemID string) bool {
	for _, ids := range c.deferred {
		for _, id := range ids {
			if id == itemID {
				return true
			}
		}
	}
	return false
}

// findDeferred locates the open group holding an enabled item on
// taskID, returning the group ID and the item ID.
func (c *Case) findDeferred(taskID workflow.TaskID) (string, string) {
	for groupID, ids := range c.deferred {
		for _, id := range ids {
			it, ok := c.items[id]
			if ok && it.TaskID() == taskID && it.State() == ItemEnabled {
				return groupID, id
			}
		}
	}
	return "", ""
}

// liveItems returns the non-terminal work items of the case.
func (c *Case) liveItems() []WorkItem {
	var out []WorkItem
	for _, it := range c.items {
		if !it.State().Terminal() {
			out = append(out, it)
		}
	}
	return out
}

// Snapshot returns the persistable form of the case.
func (c *Case) Snapshot() *storage.CaseSnapshot {
	return &storage.CaseSnapshot{
		CaseID:          c.id,
		DefinitionName:  c.def.Name,
		Number:          c.number,
		State:           c.state.String(),
		Error:           c.failure,
		CreatedAt:       c.createdAt,
		TerminalAt:      c.terminalAt,
		CorrelationKeys: c.board.OpenActivations(),
	}
}

// ItemSnapshots returns the persistable form of every work item.
func (c *Case) ItemSnapshots() []*storage.WorkItemSnapshot {
	out := make([]*storage.WorkItemSnapshot, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it.Snapshot())
	}
	return out
}
