// Package engine implements the workflow runtime: case and work item
// lifecycles, control-flow pattern evaluation, and resource-backed
// dispatch of enabled work.
package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahalstead/caseng/clock"
	"github.com/ahalstead/caseng/engine/pattern"
	"github.com/ahalstead/caseng/engine/resource"
	"github.com/ahalstead/caseng/engine/storage"
	"github.com/ahalstead/caseng/logkeys"
	"github.com/ahalstead/caseng/utils/uuid"
	"github.com/ahalstead/caseng/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// ErrItemState is returned when an external signal addresses a work
// item that is not in the state the signal requires.
var ErrItemState = errors.New("work item not in expected state")

// TaskExecutor performs the actual work of a task. The engine starts
// the work item, invokes Execute, and feeds the result back in as a
// completion or failure. A nil executor leaves items Executing until
// an external CompleteWorkItem or FailWorkItem signal.
type TaskExecutor interface {
	Execute(ctx context.Context, task *workflow.Task, input map[string]any) (map[string]any, error)
}

// TaskExecutorFunc adapts a function to the TaskExecutor interface.
type TaskExecutorFunc func(ctx context.Context, task *workflow.Task, input map[string]any) (map[string]any, error)

// Execute implements the TaskExecutor interface method.
func (f TaskExecutorFunc) Execute(ctx context.Context, task *workflow.Task, input map[string]any) (map[string]any, error) {
	return f(ctx, task, input)
}

const numShards = 16

type caseShard struct {
	mu    sync.Mutex
	cases map[string]*Case
}

type pendingAlloc struct {
	caseID string
	itemID string
	since  time.Time
}

// Engine is the workflow runtime orchestrator.
type Engine struct {
	store     storage.AllStorage
	resources *resource.Manager
	patterns  *pattern.Registry
	executor  TaskExecutor

	logger log.Logger
	clock  clock.Clock
	ider   uuid.IDer

	concurrent   bool
	allocTimeout time.Duration

	journal *journal

	defsMu sync.RWMutex
	defs   map[string]*workflow.Definition

	shards    [numShards]*caseShard
	caseCount uint64

	dirtyMu sync.Mutex
	dirty   map[string]struct{}

	pendingMu sync.Mutex
	pending   map[string]pendingAlloc

	flushMu sync.Mutex

	stepMu sync.Mutex
	steps  []func(context.Context)

	status uint32
	wg     sync.WaitGroup
}

// engine run statuses
const (
	statusRunning uint32 = iota
	statusTerminating
	statusStopped
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the engine time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDer sets the engine ID generator.
func WithIDer(ider uuid.IDer) Option {
	return func(e *Engine) {
		e.ider = ider
	}
}

// WithTaskExecutor sets the task executor invoked for started items.
func WithTaskExecutor(exec TaskExecutor) Option {
	return func(e *Engine) {
		e.executor = exec
	}
}

// WithConcurrentExecution runs task executors on their own goroutines
// so independent cases and parallel branches execute concurrently.
// Without it the engine queues executor runs for Step/Drain, which is
// single-threaded and deterministic.
func WithConcurrentExecution() Option {
	return func(e *Engine) {
		e.concurrent = true
	}
}

// WithPatternRegistry overrides the built-in pattern registry.
func WithPatternRegistry(r *pattern.Registry) Option {
	return func(e *Engine) {
		e.patterns = r
	}
}

// WithAllocationTimeout bounds how long an enabled item may wait for a
// resource before its case fails.
func WithAllocationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.allocTimeout = d
	}
}

// New creates a workflow engine over the given storage and resources.
func New(store storage.AllStorage, resources *resource.Manager, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		resources:    resources,
		patterns:     pattern.NewRegistry(),
		logger:       log.NopLogger,
		clock:        clock.Realtime{},
		ider:         uuid.NewUUID(),
		allocTimeout: 30 * time.Second,
		journal:      new(journal),
		defs:         make(map[string]*workflow.Definition),
		dirty:        make(map[string]struct{}),
		pending:      make(map[string]pendingAlloc),
	}
	for i := range e.shards {
		e.shards[i] = &caseShard{cases: make(map[string]*Case)}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status reports the engine run status: "running" while accepting new
// cases, "terminating" while Shutdown drains in-flight work, and
// "stopped" once all state is flushed.
func (e *Engine) Status() string {
	switch atomic.LoadUint32(&e.status) {
	case statusTerminating:
		return "terminating"
	case statusStopped:
		return "stopped"
	}
	return "running"
}

// CaseCount returns the number of cases started since engine creation.
func (e *Engine) CaseCount() uint64 {
	return atomic.LoadUint64(&e.caseCount)
}

// RegisterDefinition validates def and makes it available for cases.
func (e *Engine) RegisterDefinition(def *workflow.Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("validating definition: %w", err)
	}
	e.defsMu.Lock()
	defer e.defsMu.Unlock()
	if _, ok := e.defs[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, def.Name)
	}
	e.defs[def.Name] = def
	return nil
}

// Definition returns a registered definition.
func (e *Engine) Definition(name string) (*workflow.Definition, error) {
	e.defsMu.RLock()
	defer e.defsMu.RUnlock()
	def, ok := e.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: definition %s", ErrNotFound, name)
	}
	return def, nil
}

func (e *Engine) shardFor(caseID string) *caseShard {
	h := fnv.New32a()
	h.Write([]byte(caseID))
	return e.shards[h.Sum32()%numShards]
}

// withCase runs fn with the case locked. All case and work item state
// mutation happens inside fn; this is the per-case serialization the
// correlation board depends on.
func (e *Engine) withCase(caseID string, fn func(c *Case) error) error {
	shard := e.shardFor(caseID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	c, ok := shard.cases[caseID]
	if !ok {
		return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	return fn(c)
}

func (e *Engine) markDirty(caseID string) {
	e.dirtyMu.Lock()
	e.dirty[caseID] = struct{}{}
	e.dirtyMu.Unlock()
}

// StartCase creates a case of the named definition, starts it, and
// dispatches its input task. Returns the new case ID.
func (e *Engine) StartCase(ctx context.Context, definitionName string, input map[string]any) (string, error) {
	if atomic.LoadUint32(&e.status) != statusRunning {
		return "", ErrEngineStopped
	}
	def, err := e.Definition(definitionName)
	if err != nil {
		return "", err
	}

	id := e.ider.ID()
	number := atomic.AddUint64(&e.caseCount, 1)
	c := newCase(id, number, def, input, e.clock, e.journal.append)

	shard := e.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.cases[id] = c

	item := e.enableTask(c, def.Input, "", "")
	if err := c.transition(EventStart); err != nil {
		return "", err
	}
	if err := e.dispatch(ctx, c, item); err != nil {
		return "", err
	}
	e.markDirty(id)

	ctxlog.Logger(ctx, e.logger).Info(
		logkeys.Message, "case started",
		logkeys.CaseID, id,
		logkeys.CaseNumber, number,
		logkeys.DefinitionName, definitionName,
	)
	return id, nil
}

// enableTask creates an Enabled work item on taskID and registers it
// with the case.
func (e *Engine) enableTask(c *Case, taskID workflow.TaskID, branch workflow.TaskID, activationID string) EnabledItem {
	core := &itemCore{
		id:           e.ider.ID(),
		caseID:       c.id,
		taskID:       taskID,
		branch:       branch,
		activationID: activationID,
		clock:        e.clock,
		record:       c.record,
	}
	item := enableItem(core)
	c.items[item.ID()] = item
	return item
}

// dispatch allocates a resource for an enabled item and starts it.
// Allocation rejections park the item for the retry worker instead of
// failing the case.
func (e *Engine) dispatch(ctx context.Context, c *Case, item EnabledItem) error {
	if c.state != CaseRunning {
		return nil
	}
	task := c.def.Task(item.TaskID())

	demand := resource.Demand{CPU: task.CPUDemand, Memory: task.MemoryDemand}
	resourceID, err := e.resources.Allocate(ctx, item.ID(), demand, task.Capabilities, resource.PolicyDefault)
	if err != nil {
		var unavail *resource.UnavailableError
		var violation *resource.ConstraintViolationError
		if errors.As(err, &unavail) || errors.As(err, &violation) {
			e.parkAllocation(c.id, item.ID())
			ctxlog.Logger(ctx, e.logger).Debug(
				logkeys.Message, "allocation parked",
				logkeys.CaseID, c.id,
				logkeys.WorkItemID, item.ID(),
				logkeys.Error, err,
			)
			return nil
		}
		return fmt.Errorf("allocating work item %s: %w", item.ID(), err)
	}

	allocated := item.Allocate(resourceID)
	exec := allocated.Start()
	if err := e.resources.Begin(item.ID()); err != nil {
		ctxlog.Logger(ctx, e.logger).Info(
			logkeys.Message, "beginning allocation",
			logkeys.WorkItemID, item.ID(),
			logkeys.Error, err,
		)
	}
	exec.core.input = c.data.Snapshot()
	c.items[exec.ID()] = exec

	if e.executor == nil {
		return nil
	}
	caseID, itemID, input := c.id, exec.ID(), exec.Input()
	run := func(runCtx context.Context) {
		output, err := e.executor.Execute(runCtx, task, input)
		if err != nil {
			if ferr := e.FailWorkItem(runCtx, caseID, itemID, err); ferr != nil && !errors.Is(ferr, ErrNotFound) && !errors.Is(ferr, ErrItemState) {
				e.logger.Info(logkeys.Message, "failing work item", logkeys.WorkItemID, itemID, logkeys.Error, ferr)
			}
			return
		}
		if cerr := e.CompleteWorkItem(runCtx, caseID, itemID, output); cerr != nil && !errors.Is(cerr, ErrNotFound) && !errors.Is(cerr, ErrItemState) {
			e.logger.Info(logkeys.Message, "completing work item", logkeys.WorkItemID, itemID, logkeys.Error, cerr)
		}
	}
	if e.concurrent {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			run(context.Background())
		}()
	} else {
		e.enqueue(run)
	}
	return nil
}

func (e *Engine) parkAllocation(caseID, itemID string) {
	e.pendingMu.Lock()
	if _, ok := e.pending[itemID]; !ok {
		e.pending[itemID] = pendingAlloc{caseID: caseID, itemID: itemID, since: e.clock.Now()}
	}
	e.pendingMu.Unlock()
}

// enqueue appends a deferred executor run for Step/Drain.
func (e *Engine) enqueue(fn func(context.Context)) {
	e.stepMu.Lock()
	e.steps = append(e.steps, fn)
	e.stepMu.Unlock()
}

// Step runs one queued executor step. Returns false when the queue is
// empty. Only meaningful without WithConcurrentExecution.
func (e *Engine) Step(ctx context.Context) bool {
	e.stepMu.Lock()
	if len(e.steps) == 0 {
		e.stepMu.Unlock()
		return false
	}
	fn := e.steps[0]
	e.steps = e.steps[1:]
	e.stepMu.Unlock()
	fn(ctx)
	return true
}

// Drain runs queued executor steps until none remain, returning how
// many ran.
func (e *Engine) Drain(ctx context.Context) int {
	n := 0
	for e.Step(ctx) {
		n++
	}
	return n
}

// CompleteWorkItem finishes an Executing work item with its output,
// merges the output into case data, and advances the case.
func (e *Engine) CompleteWorkItem(ctx context.Context, caseID, itemID string, output map[string]any) error {
	err := e.withCase(caseID, func(c *Case) error {
		it, ok := c.items[itemID]
		if !ok {
			return fmt.Errorf("%w: work item %s", ErrNotFound, itemID)
		}
		exec, ok := it.(ExecutingItem)
		if !ok {
			return fmt.Errorf("%w: %s is %s", ErrItemState, itemID, it.State())
		}
		done := exec.Complete(output)
		c.items[itemID] = done
		e.resources.Release(itemID)
		if output != nil {
			c.data.SetAll(output)
		}
		return e.advance(ctx, c, done)
	})
	if err == nil {
		e.markDirty(caseID)
	}
	return err
}

// FailWorkItem finishes an Executing work item unsuccessfully. A work
// item failure has no compensation path: the case fails with it.
func (e *Engine) FailWorkItem(ctx context.Context, caseID, itemID string, cause error) error {
	err := e.withCase(caseID, func(c *Case) error {
		it, ok := c.items[itemID]
		if !ok {
			return fmt.Errorf("%w: work item %s", ErrNotFound, itemID)
		}
		exec, ok := it.(ExecutingItem)
		if !ok {
			return fmt.Errorf("%w: %s is %s", ErrItemState, itemID, it.State())
		}
		failed := exec.Fail(cause)
		c.items[itemID] = failed
		e.resources.Release(itemID)
		e.failCase(ctx, c, cause)
		return nil
	})
	if err == nil {
		e.markDirty(caseID)
	}
	return err
}

// advance evaluates the completed item's split, routes arrivals into
// downstream joins, and enables whatever fires. Runs under the case
// lock; everything here is in-memory.
func (e *Engine) advance(ctx context.Context, c *Case, done CompletedItem) error {
	task := c.def.Task(done.TaskID())

	if task.ID == c.def.Output {
		return e.completeIfReady(ctx, c)
	}

	outgoing := c.def.Outgoing(task.ID)
	if len(outgoing) == 0 {
		return nil
	}

	splitExec, err := e.patterns.Split(task.Split)
	if err != nil {
		e.failCase(ctx, c, err)
		return nil
	}
	result, err := splitExec.Select(&pattern.SplitContext{
		CaseID:       c.id,
		Task:         task,
		Outgoing:     outgoing,
		Data:         c.data,
		Board:        c.board,
		ActivationID: e.ider.ID(),
	})
	if err != nil {
		// no matching branch or a guard error leaves the case
		// unable to progress
		e.failCase(ctx, c, err)
		return nil
	}

	groupID := ""
	if task.Deferred {
		groupID = e.ider.ID()
	}

	for _, to := range result.Enable {
		target := c.def.Task(to)
		joinExec, err := e.patterns.Join(target.Join)
		if err != nil {
			e.failCase(ctx, c, err)
			return nil
		}
		jr, err := joinExec.Arrive(&pattern.JoinContext{
			CaseID:       c.id,
			Task:         target,
			From:         task.ID,
			Branch:       done.Branch(),
			Incoming:     c.def.Incoming(to),
			ActivationID: done.ActivationID(),
			Board:        c.board,
		})
		if err != nil {
			// duplicate arrivals and broken correlation are
			// modeling or engine bugs, never swallowed
			e.failCase(ctx, c, err)
			return nil
		}
		if jr.Absorbed {
			ctxlog.Logger(ctx, e.logger).Debug(
				logkeys.Message, "arrival absorbed",
				logkeys.CaseID, c.id,
				logkeys.TaskID, string(to),
				logkeys.FlowFrom, string(task.ID),
			)
			continue
		}
		if !jr.Fire {
			continue
		}

		branch, activationID := done.Branch(), done.ActivationID()
		if result.ActivationID != "" {
			// fresh OR-split firing: items carry its activation
			branch, activationID = to, result.ActivationID
		}
		switch target.Join {
		case workflow.JoinAND, workflow.JoinOR, workflow.JoinDiscriminator:
			// a synchronizing join consumed the tokens and with
			// them the correlation they carried
			branch, activationID = "", ""
		}

		item := e.enableTask(c, to, branch, activationID)
		if groupID != "" {
			c.deferred[groupID] = append(c.deferred[groupID], item.ID())
			continue
		}
		if err := e.dispatch(ctx, c, item); err != nil {
			return err
		}
	}
	return nil
}

// completeIfReady transitions the case to Completed once the output
// condition's work item has completed. Safe to call repeatedly.
func (e *Engine) completeIfReady(ctx context.Context, c *Case) error {
	if c.state != CaseRunning || !c.outputCompleted() {
		return nil
	}
	if err := c.transition(EventComplete); err != nil {
		return err
	}
	ctxlog.Logger(ctx, e.logger).Info(
		logkeys.Message, "case completed",
		logkeys.CaseID, c.id,
	)
	return nil
}

// failCase records the originating error and moves the case to Failed,
// cancelling outstanding work. No-op on an already-terminal case.
func (e *Engine) failCase(ctx context.Context, c *Case, cause error) {
	if c.state.Terminal() {
		return
	}
	c.failure = cause.Error()
	e.cancelLiveItems(c, "case failed")
	ev := EventFail
	if c.state != CaseRunning {
		ev = EventCancel
	}
	if err := c.transition(ev); err != nil {
		ctxlog.Logger(ctx, e.logger).Info(
			logkeys.Message, "failing case",
			logkeys.CaseID, c.id,
			logkeys.Error, err,
		)
		return
	}
	ctxlog.Logger(ctx, e.logger).Info(
		logkeys.Message, "case failed",
		logkeys.CaseID, c.id,
		logkeys.Error, cause,
	)
}

// cancelLiveItems cancels every non-terminal work item of the case and
// releases anything it holds. Idempotent.
func (e *Engine) cancelLiveItems(c *Case, reason string) {
	for id, it := range c.items {
		var cancelled CancelledItem
		switch v := it.(type) {
		case EnabledItem:
			cancelled = v.Cancel(reason)
		case AllocatedItem:
			cancelled = v.Cancel(reason)
		case ExecutingItem:
			cancelled = v.Cancel(reason)
		default:
			continue
		}
		c.items[id] = cancelled
		e.resources.Release(id)
		e.unparkAllocation(id)
		if actID := cancelled.ActivationID(); actID != "" {
			c.board.BranchCancelled(actID, cancelled.Branch())
		}
	}
	for groupID := range c.deferred {
		delete(c.deferred, groupID)
	}
}

func (e *Engine) unparkAllocation(itemID string) {
	e.pendingMu.Lock()
	delete(e.pending, itemID)
	e.pendingMu.Unlock()
}

// touchAllocation restarts the allocation wait for a parked item.
func (e *Engine) touchAllocation(itemID string) {
	e.pendingMu.Lock()
	if p, ok := e.pending[itemID]; ok {
		p.since = e.clock.Now()
		e.pending[itemID] = p
	}
	e.pendingMu.Unlock()
}

// CancelCase cancels the case and cascades to every non-terminal work
// item, releasing all held resources. Cancelling an already-cancelled
// case is a no-op so retries are safe.
func (e *Engine) CancelCase(ctx context.Context, caseID, reason string) error {
	err := e.withCase(caseID, func(c *Case) error {
		if c.state == CaseCancelled {
			return nil
		}
		if err := c.transition(EventCancel); err != nil {
			return err
		}
		c.failure = reason
		e.cancelLiveItems(c, reason)
		ctxlog.Logger(ctx, e.logger).Info(
			logkeys.Message, "case cancelled",
			logkeys.CaseID, caseID,
		)
		return nil
	})
	if err == nil {
		e.markDirty(caseID)
	}
	return err
}

// SuspendCase pauses a running case. Guarded: a case with actively
// executing work cannot suspend; suspend those items first.
func (e *Engine) SuspendCase(ctx context.Context, caseID string) error {
	err := e.withCase(caseID, func(c *Case) error {
		if c.anyExecuting() {
			return &InvalidTransitionError{CaseID: caseID, From: c.state, Event: EventSuspend}
		}
		return c.transition(EventSuspend)
	})
	if err == nil {
		e.markDirty(caseID)
	}
	return err
}

// ResumeCase resumes a suspended case and dispatches any work items
// that enabled while it was suspended. The output condition may also
// have completed during the pause, so completion is re-checked here.
func (e *Engine) ResumeCase(ctx context.Context, caseID string) error {
	err := e.withCase(caseID, func(c *Case) error {
		if err := c.transition(EventResume); err != nil {
			return err
		}
		for _, it := range c.items {
			enabled, ok := it.(EnabledItem)
			if !ok || c.inDeferredGroup(enabled.ID()) {
				continue
			}
			if err := e.dispatch(ctx, c, enabled); err != nil {
				return err
			}
		}
		return e.completeIfReady(ctx, c)
	})
	if err == nil {
		e.markDirty(caseID)
	}
	return err
}

// SuspendWorkItem pauses an executing work item in place.
func (e *Engine) SuspendWorkItem(ctx context.Context, caseID, itemID string) error {
	return e.withCase(caseID, func(c *Case) error {
		exec, ok := c.items[itemID].(ExecutingItem)
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemState, itemID)
		}
		exec.Suspend()
		return nil
	})
}

// ResumeWorkItem resumes a suspended work item.
func (e *Engine) ResumeWorkItem(ctx context.Context, caseID, itemID string) error {
	return e.withCase(caseID, func(c *Case) error {
		exec, ok := c.items[itemID].(ExecutingItem)
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemState, itemID)
		}
		exec.Resume()
		return nil
	})
}

// TriggerDeferredChoice commits the deferred-choice branch on taskID:
// its work item dispatches and every competing sibling cancels, in one
// atomic step. The retraction is pattern-local and does not touch the
// case state.
func (e *Engine) TriggerDeferredChoice(ctx context.Context, caseID string, taskID workflow.TaskID) error {
	err := e.withCase(caseID, func(c *Case) error {
		groupID, winner := c.findDeferred(taskID)
		if groupID == "" {
			return fmt.Errorf("%w: no deferred choice awaiting %s", ErrNotFound, taskID)
		}
		for _, id := range c.deferred[groupID] {
			if id == winner {
				continue
			}
			sibling, ok := c.items[id].(EnabledItem)
			if !ok {
				continue
			}
			cancelled := sibling.Cancel("deferred choice lost")
			c.items[id] = cancelled
			if actID := cancelled.ActivationID(); actID != "" {
				c.board.BranchCancelled(actID, cancelled.Branch())
			}
		}
		delete(c.deferred, groupID)
		item, ok := c.items[winner].(EnabledItem)
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemState, winner)
		}
		ctxlog.Logger(ctx, e.logger).Info(
			logkeys.Message, "deferred choice committed",
			logkeys.CaseID, caseID,
			logkeys.TaskID, string(taskID),
		)
		return e.dispatch(ctx, c, item)
	})
	if err == nil {
		e.markDirty(caseID)
	}
	return err
}

// DeadlineAction is the transition OnDeadlineExceeded applies.
type DeadlineAction uint

const (
	DeadlineCancel DeadlineAction = iota
	DeadlineFail
)

// OnDeadlineExceeded is the hook for an external timer service. It
// applies the same transitions a normal execution path would use; the
// timer has no privileged access to the state machine.
func (e *Engine) OnDeadlineExceeded(ctx context.Context, caseID, itemID string, action DeadlineAction) error {
	err := e.withCase(caseID, func(c *Case) error {
		it, ok := c.items[itemID]
		if !ok {
			return fmt.Errorf("%w: work item %s", ErrNotFound, itemID)
		}
		const reason = "deadline exceeded"
		switch v := it.(type) {
		case EnabledItem:
			c.items[itemID] = v.Cancel(reason)
			e.unparkAllocation(itemID)
		case AllocatedItem:
			c.items[itemID] = v.Cancel(reason)
			e.resources.Release(itemID)
		case ExecutingItem:
			if action == DeadlineFail {
				c.items[itemID] = v.Fail(errors.New(reason))
				e.resources.Release(itemID)
				e.failCase(ctx, c, errors.New(reason))
				return nil
			}
			c.items[itemID] = v.Cancel(reason)
			e.resources.Release(itemID)
		default:
			return fmt.Errorf("%w: %s is %s", ErrItemState, itemID, it.State())
		}
		if actID := it.ActivationID(); actID != "" {
			c.board.BranchCancelled(actID, it.Branch())
		}
		return nil
	})
	if err == nil {
		e.markDirty(caseID)
	}
	return err
}

// RetryAllocations re-attempts parked allocations and fails cases
// whose items have waited past the allocation timeout. Called from the
// worker, off the hot path.
func (e *Engine) RetryAllocations(ctx context.Context) {
	e.pendingMu.Lock()
	parked := make([]pendingAlloc, 0, len(e.pending))
	for _, p := range e.pending {
		parked = append(parked, p)
	}
	e.pendingMu.Unlock()

	for _, p := range parked {
		err := e.withCase(p.caseID, func(c *Case) error {
			item, ok := c.items[p.itemID].(EnabledItem)
			if !ok {
				e.unparkAllocation(p.itemID)
				return nil
			}
			if c.state != CaseRunning {
				// paused cases do not accrue allocation wait
				e.touchAllocation(p.itemID)
				return nil
			}
			if waited := e.clock.Now().Sub(p.since); waited >= e.allocTimeout {
				e.unparkAllocation(p.itemID)
				cause := &AllocationTimeoutError{WorkItemID: p.itemID, Waited: waited}
				c.items[p.itemID] = item.Cancel(cause.Error())
				e.failCase(ctx, c, cause)
				return nil
			}
			e.unparkAllocation(p.itemID)
			return e.dispatch(ctx, c, item)
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			ctxlog.Logger(ctx, e.logger).Info(
				logkeys.Message, "retrying allocation",
				logkeys.WorkItemID, p.itemID,
				logkeys.Error, err,
			)
		}
	}
}

// FlushEvents drains the journal to the audit sink, preserving order.
// The flush mutex spans drain and store: concurrent flushes (worker
// and Events readers) must not interleave their batches in the sink.
func (e *Engine) FlushEvents(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	events := e.journal.drain()
	if len(events) == 0 {
		return nil
	}
	if err := e.store.StoreEvents(ctx, events); err != nil {
		e.journal.requeue(events)
		return fmt.Errorf("flushing %d events: %w", len(events), err)
	}
	return nil
}

// PersistDirty writes snapshots for every case mutated since the last
// flush. Terminal cases are evicted from memory once persisted.
func (e *Engine) PersistDirty(ctx context.Context) error {
	e.dirtyMu.Lock()
	ids := make([]string, 0, len(e.dirty))
	for id := range e.dirty {
		ids = append(ids, id)
	}
	e.dirty = make(map[string]struct{})
	e.dirtyMu.Unlock()

	for _, id := range ids {
		var terminal bool
		err := e.withCase(id, func(c *Case) error {
			if err := e.store.StoreCaseSnapshot(ctx, c.Snapshot()); err != nil {
				return err
			}
			for _, snap := range c.ItemSnapshots() {
				if err := e.store.StoreWorkItemSnapshot(ctx, snap); err != nil {
					return err
				}
			}
			terminal = c.state.Terminal()
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			e.markDirty(id)
			return fmt.Errorf("persisting case %s: %w", id, err)
		}
		if terminal {
			shard := e.shardFor(id)
			shard.mu.Lock()
			delete(shard.cases, id)
			shard.mu.Unlock()
		}
	}
	return nil
}

// Shutdown stops accepting work, waits for in-flight executors, and
// flushes all state to storage.
func (e *Engine) Shutdown(ctx context.Context) error {
	atomic.StoreUint32(&e.status, statusTerminating)
	defer atomic.StoreUint32(&e.status, statusStopped)
	e.wg.Wait()
	e.Drain(ctx)
	if err := e.FlushEvents(ctx); err != nil {
		return err
	}
	e.dirtyMu.Lock()
	for _, shard := range e.shards {
		shard.mu.Lock()
		for id := range shard.cases {
			e.dirty[id] = struct{}{}
		}
		shard.mu.Unlock()
	}
	e.dirtyMu.Unlock()
	return e.PersistDirty(ctx)
}
