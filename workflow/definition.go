package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrMissingName       = errors.New("missing definition name")
	ErrMissingInputTask  = errors.New("missing input task")
	ErrMissingOutputTask = errors.New("missing output task")
	ErrDuplicateTask     = errors.New("duplicate task")
	ErrUnknownTask       = errors.New("unknown task")
	ErrJoinFanIn         = errors.New("join requires at least two incoming flows")
	ErrMissingPairedSplit = errors.New("OR-join requires a paired split")
)

// TaskID identifies a task within a single definition.
type TaskID string

// SplitType describes how control fans out of a task after it completes.
type SplitType uint

const (
	SplitNone SplitType = iota // sequence: single outgoing flow
	SplitAND                   // enable all outgoing flows
	SplitXOR                   // enable first flow whose guard matches
	SplitOR                    // enable every flow whose guard matches
	maxSplitType
)

func (s SplitType) Valid() bool {
	return s < maxSplitType
}

func (s SplitType) String() string {
	switch s {
	case SplitNone:
		return "none"
	case SplitAND:
		return "and"
	case SplitXOR:
		return "xor"
	case SplitOR:
		return "or"
	default:
		return fmt.Sprintf("unknown split type: %d", uint(s))
	}
}

// JoinType describes how arrivals on a task's incoming flows synchronize.
type JoinType uint

const (
	JoinNone JoinType = iota // single incoming flow
	JoinAND                  // wait for a token on every incoming flow
	JoinXOR                  // enable on each arrival
	JoinOR                   // wait for every flow the paired split activated
	JoinDiscriminator        // enable on first arrival, absorb the rest
	maxJoinType
)

func (j JoinType) Valid() bool {
	return j < maxJoinType
}

func (j JoinType) String() string {
	switch j {
	case JoinNone:
		return "none"
	case JoinAND:
		return "and"
	case JoinXOR:
		return "xor"
	case JoinOR:
		return "or"
	case JoinDiscriminator:
		return "discriminator"
	default:
		return fmt.Sprintf("unknown join type: %d", uint(j))
	}
}

// Guard is a predicate over case data deciding whether a flow is taken.
// Guards must be pure and fast: they run on the engine's decision path.
type Guard func(data *Data) (bool, error)

// Flow is a directed edge between two tasks.
type Flow struct {
	From TaskID
	To   TaskID

	// Guard is consulted by XOR- and OR-splits on the From task.
	// A nil guard always matches.
	Guard Guard

	// Default marks this flow as the XOR-split fallback when no guard
	// matches. At most one outgoing flow of a task should be default.
	Default bool
}

// Task is a node in the definition graph.
type Task struct {
	ID   TaskID
	Name string

	Split SplitType
	Join  JoinType

	// PairedSplit names the OR-split whose activation record the
	// OR-join on this task consults. Required when Join is JoinOR.
	PairedSplit TaskID

	// Capabilities a resource must have to execute this task.
	Capabilities []string

	// CPUDemand and MemoryDemand are the capacity this task asks of
	// its allocated resource.
	CPUDemand    int64
	MemoryDemand int64

	// Deferred marks the task as a deferred-choice site: its outgoing
	// flows compete and exactly one commits on an external trigger.
	Deferred bool
}

// Definition is an immutable workflow definition graph.
// Build it with AddTask/AddFlow, then Validate. The engine never
// mutates a Definition.
type Definition struct {
	Name string

	// Input and Output name the definition's input and output
	// condition tasks.
	Input  TaskID
	Output TaskID

	tasks map[TaskID]*Task
	flows []*Flow

	// adjacency, built on Validate
	out map[TaskID][]*Flow
	in  map[TaskID][]*Flow
}

// NewDefinition creates an empty definition named name.
func NewDefinition(name string) *Definition {
	return &Definition{
		Name:  name,
		tasks: make(map[TaskID]*Task),
	}
}

// AddTask adds t to the definition.
func (d *Definition) AddTask(t *Task) error {
	if _, ok := d.tasks[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	d.tasks[t.ID] = t
	return nil
}

// AddFlow adds a directed edge. Order of addition is significant for
// XOR-split guard evaluation.
func (d *Definition) AddFlow(f *Flow) error {
	if _, ok := d.tasks[f.From]; !ok {
		return fmt.Errorf("%w: flow from %s", ErrUnknownTask, f.From)
	}
	if _, ok := d.tasks[f.To]; !ok {
		return fmt.Errorf("%w: flow to %s", ErrUnknownTask, f.To)
	}
	d.flows = append(d.flows, f)
	return nil
}

// Task returns the task or nil.
func (d *Definition) Task(id TaskID) *Task {
	return d.tasks[id]
}

// Outgoing returns the outgoing flows of id in addition order.
func (d *Definition) Outgoing(id TaskID) []*Flow {
	return d.out[id]
}

// Incoming returns the incoming flows of id in addition order.
func (d *Definition) Incoming(id TaskID) []*Flow {
	return d.in[id]
}

// Tasks returns all tasks. The map must not be mutated.
func (d *Definition) Tasks() map[TaskID]*Task {
	return d.tasks
}

// Validate checks graph-level invariants and builds the adjacency
// indexes. A definition must be validated before use by the engine.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return ErrMissingName
	}
	if _, ok := d.tasks[d.Input]; !ok {
		return ErrMissingInputTask
	}
	if _, ok := d.tasks[d.Output]; !ok {
		return ErrMissingOutputTask
	}

	d.out = make(map[TaskID][]*Flow)
	d.in = make(map[TaskID][]*Flow)
	for _, f := range d.flows {
		d.out[f.From] = append(d.out[f.From], f)
		d.in[f.To] = append(d.in[f.To], f)
	}

	for id, t := range d.tasks {
		if !t.Split.Valid() {
			return fmt.Errorf("task %s: invalid split type: %d", id, uint(t.Split))
		}
		if !t.Join.Valid() {
			return fmt.Errorf("task %s: invalid join type: %d", id, uint(t.Join))
		}

		// a synchronizing join over a single flow is meaningless
		if t.Join != JoinNone && len(d.in[id]) < 2 {
			return fmt.Errorf("%w: task %s has %d", ErrJoinFanIn, id, len(d.in[id]))
		}
		if t.Join == JoinNone && len(d.in[id]) > 1 {
			return fmt.Errorf("task %s: %d incoming flows but no join annotation", id, len(d.in[id]))
		}

		if t.Join == JoinOR {
			if t.PairedSplit == "" {
				return fmt.Errorf("%w: task %s", ErrMissingPairedSplit, id)
			}
			split, ok := d.tasks[t.PairedSplit]
			if !ok {
				return fmt.Errorf("%w: paired split %s for task %s", ErrUnknownTask, t.PairedSplit, id)
			}
			if split.Split != SplitOR {
				return fmt.Errorf("task %s: paired split %s is not an OR-split", id, t.PairedSplit)
			}
		}

		if t.Split != SplitNone && len(d.out[id]) < 2 {
			return fmt.Errorf("task %s: split %s with %d outgoing flows", id, t.Split, len(d.out[id]))
		}
		if t.Split == SplitNone && len(d.out[id]) > 1 && !t.Deferred {
			return fmt.Errorf("task %s: %d outgoing flows but no split annotation", id, len(d.out[id]))
		}

		if t.Split == SplitXOR {
			defaults := 0
			for _, f := range d.out[id] {
				if f.Default {
					defaults++
				}
			}
			if defaults > 1 {
				return fmt.Errorf("task %s: %d default flows", id, defaults)
			}
		}

		if t.Deferred && len(d.out[id]) < 2 {
			return fmt.Errorf("task %s: deferred choice with %d outgoing flows", id, len(d.out[id]))
		}
	}

	if len(d.out[d.Output]) > 0 {
		return fmt.Errorf("output task %s has outgoing flows", d.Output)
	}

	return nil
}
