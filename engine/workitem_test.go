package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/ahalstead/caseng/clock"
	"github.com/ahalstead/caseng/engine/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(clk clock.Clock, record func(storage.Event)) *itemCore {
	return &itemCore{
		id:     "wi-1",
		caseID: "case-1",
		taskID: "a",
		clock:  clk,
		record: record,
	}
}

func TestItemLifecycle(t *testing.T) {
	start := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	var events []storage.Event
	record := func(e storage.Event) { events = append(events, e) }

	enabled := enableItem(newTestCore(clk, record))
	assert.Equal(t, ItemEnabled, enabled.State())
	assert.Equal(t, start, enabled.Snapshot().EnabledAt)

	clk.AdvanceBy(time.Second)
	allocated := enabled.Allocate("res-1")
	assert.Equal(t, ItemAllocated, allocated.State())
	assert.Equal(t, "res-1", allocated.ResourceID())
	assert.Equal(t, start.Add(time.Second), allocated.Snapshot().AllocatedAt)

	clk.AdvanceBy(time.Second)
	exec := allocated.Start()
	assert.Equal(t, ItemExecuting, exec.State())

	// suspension is a sub-state, not a lifecycle phase
	exec.Suspend()
	assert.True(t, exec.Suspended())
	assert.Equal(t, ItemExecuting, exec.State())
	exec.Resume()
	assert.False(t, exec.Suspended())

	clk.AdvanceBy(time.Second)
	done := exec.Complete(map[string]any{"n": 1})
	assert.Equal(t, ItemCompleted, done.State())
	assert.True(t, done.State().Terminal())
	assert.Equal(t, map[string]any{"n": 1}, done.Output())
	assert.Equal(t, start.Add(3*time.Second), done.Snapshot().EndedAt)

	// one lifecycle event per transition, in order
	require.Len(t, events, 4)
	var transitions [][2]string
	for _, ev := range events {
		assert.Equal(t, storage.KindWorkItem, ev.EntityKind)
		assert.Equal(t, "wi-1", ev.EntityID)
		assert.Equal(t, "case-1", ev.CaseID)
		transitions = append(transitions, [2]string{ev.From, ev.To})
	}
	assert.Equal(t, [][2]string{
		{"none", "enabled"},
		{"enabled", "allocated"},
		{"allocated", "executing"},
		{"executing", "completed"},
	}, transitions)
}

func TestItemCancelPaths(t *testing.T) {
	clk := clock.NewVirtual(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))

	fromEnabled := enableItem(newTestCore(clk, nil)).Cancel("retracted")
	assert.Equal(t, ItemCancelled, fromEnabled.State())
	assert.Equal(t, "retracted", fromEnabled.Reason())

	fromAllocated := enableItem(newTestCore(clk, nil)).Allocate("res-1").Cancel("case cancelled")
	assert.Equal(t, ItemCancelled, fromAllocated.State())

	fromExecuting := enableItem(newTestCore(clk, nil)).Allocate("res-1").Start().Cancel("deadline")
	assert.Equal(t, ItemCancelled, fromExecuting.State())
	assert.Equal(t, "deadline", fromExecuting.Reason())
}

func TestItemFail(t *testing.T) {
	clk := clock.NewVirtual(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))

	failed := enableItem(newTestCore(clk, nil)).Allocate("res-1").Start().Fail(errors.New("exploded"))
	assert.Equal(t, ItemFailed, failed.State())
	assert.Equal(t, "exploded", failed.Cause())
	assert.True(t, failed.State().Terminal())
}
