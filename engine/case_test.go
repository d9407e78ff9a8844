package engine

import (
	"testing"
	"time"

	"github.com/ahalstead/caseng/clock"
	"github.com/ahalstead/caseng/engine/storage"
	"github.com/ahalstead/caseng/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func caseDef(t *testing.T) *workflow.Definition {
	t.Helper()
	def := workflow.NewDefinition("test")
	def.Input = "in"
	def.Output = "out"
	require.NoError(t, def.AddTask(&workflow.Task{ID: "in"}))
	require.NoError(t, def.AddTask(&workflow.Task{ID: "out"}))
	require.NoError(t, def.AddFlow(&workflow.Flow{From: "in", To: "out"}))
	require.NoError(t, def.Validate())
	return def
}

func TestCaseTransitionTable(t *testing.T) {
	for _, tt := range []struct {
		name string
		path []CaseEvent
		want CaseState
	}{
		{"complete", []CaseEvent{EventStart, EventComplete}, CaseCompleted},
		{"fail", []CaseEvent{EventStart, EventFail}, CaseFailed},
		{"cancel from created", []CaseEvent{EventCancel}, CaseCancelled},
		{"cancel from running", []CaseEvent{EventStart, EventCancel}, CaseCancelled},
		{"suspend resume", []CaseEvent{EventStart, EventSuspend, EventResume, EventComplete}, CaseCompleted},
		{"cancel from suspended", []CaseEvent{EventStart, EventSuspend, EventCancel}, CaseCancelled},
	} {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewVirtual(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
			c := newCase("case-1", 1, caseDef(t), nil, clk, nil)
			for _, ev := range tt.path {
				require.NoError(t, c.transition(ev))
			}
			assert.Equal(t, tt.want, c.State())
			assert.True(t, c.State().Terminal())
			assert.False(t, c.Snapshot().TerminalAt.IsZero())
		})
	}
}

func TestCaseInvalidTransitions(t *testing.T) {
	for _, tt := range []struct {
		name string
		path []CaseEvent
		ev   CaseEvent
	}{
		{"complete before start", nil, EventComplete},
		{"suspend before start", nil, EventSuspend},
		{"resume while running", []CaseEvent{EventStart}, EventResume},
		{"start twice", []CaseEvent{EventStart}, EventStart},
		{"complete while suspended", []CaseEvent{EventStart, EventSuspend}, EventComplete},
		{"cancel after complete", []CaseEvent{EventStart, EventComplete}, EventCancel},
		{"fail after cancel", []CaseEvent{EventCancel}, EventFail},
	} {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewVirtual(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
			c := newCase("case-1", 1, caseDef(t), nil, clk, nil)
			for _, ev := range tt.path {
				require.NoError(t, c.transition(ev))
			}
			before := c.State()
			err := c.transition(tt.ev)
			var invalid *InvalidTransitionError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, before, invalid.From)
			assert.Equal(t, tt.ev, invalid.Event)
			// a rejected transition leaves the state untouched
			assert.Equal(t, before, c.State())
		})
	}
}

func TestCaseEvents(t *testing.T) {
	clk := clock.NewVirtual(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
	var events []storage.Event
	c := newCase("case-1", 7, caseDef(t), map[string]any{"k": "v"}, clk, func(e storage.Event) {
		events = append(events, e)
	})
	require.NoError(t, c.transition(EventStart))
	clk.AdvanceBy(time.Minute)
	require.NoError(t, c.transition(EventComplete))

	require.Len(t, events, 3)
	assert.Equal(t, "none", events[0].From)
	assert.Equal(t, "created", events[0].To)
	assert.Equal(t, "created", events[1].From)
	assert.Equal(t, "running", events[1].To)
	assert.Equal(t, "running", events[2].From)
	assert.Equal(t, "completed", events[2].To)
	for _, ev := range events {
		assert.Equal(t, storage.KindCase, ev.EntityKind)
		assert.Equal(t, "case-1", ev.CaseID)
	}

	v, ok := c.Data().Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	snap := c.Snapshot()
	assert.Equal(t, uint64(7), snap.Number)
	assert.Equal(t, "completed", snap.State)
}
