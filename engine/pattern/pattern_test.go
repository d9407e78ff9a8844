package pattern

import (
	"errors"
	"testing"

	"github.com/ahalstead/caseng/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func dataWith(kv map[string]any) *workflow.Data {
	d := new(workflow.Data)
	d.SetAll(kv)
	return d
}

func keyEquals(key string, want any) workflow.Guard {
	return func(data *workflow.Data) (bool, error) {
		v, _ := data.Get(key)
		return v == want, nil
	}
}

func outgoing(from workflow.TaskID, flows ...*workflow.Flow) []*workflow.Flow {
	for _, f := range flows {
		f.From = from
	}
	return flows
}

func TestSequenceSplit(t *testing.T) {
	r, err := SequenceSplit{}.Select(&SplitContext{
		Task:     &workflow.Task{ID: "a"},
		Outgoing: outgoing("a", &workflow.Flow{To: "b"}),
	})
	require.NoError(t, err)
	assert.Equal(t, []workflow.TaskID{"b"}, r.Enable)
	assert.Empty(t, r.ActivationID)
}

func TestANDSplit(t *testing.T) {
	r, err := ANDSplit{}.Select(&SplitContext{
		Task:     &workflow.Task{ID: "a", Split: workflow.SplitAND},
		Outgoing: outgoing("a", &workflow.Flow{To: "b"}, &workflow.Flow{To: "c"}),
	})
	require.NoError(t, err)
	assert.Equal(t, []workflow.TaskID{"b", "c"}, r.Enable)
}

func TestXORSplit(t *testing.T) {
	task := &workflow.Task{ID: "a", Split: workflow.SplitXOR}
	flows := outgoing("a",
		&workflow.Flow{To: "b", Guard: keyEquals("route", "b")},
		&workflow.Flow{To: "c", Guard: keyEquals("route", "c")},
		&workflow.Flow{To: "d", Default: true},
	)

	r, err := XORSplit{}.Select(&SplitContext{Task: task, Outgoing: flows, Data: dataWith(map[string]any{"route": "c"})})
	require.NoError(t, err)
	assert.Equal(t, []workflow.TaskID{"c"}, r.Enable)

	// first match wins when several guards hold
	both := outgoing("a",
		&workflow.Flow{To: "b"},
		&workflow.Flow{To: "c"},
	)
	r, err = XORSplit{}.Select(&SplitContext{Task: task, Outgoing: both, Data: new(workflow.Data)})
	require.NoError(t, err)
	assert.Equal(t, []workflow.TaskID{"b"}, r.Enable)

	// no match falls back to the default flow
	r, err = XORSplit{}.Select(&SplitContext{Task: task, Outgoing: flows, Data: dataWith(map[string]any{"route": "x"})})
	require.NoError(t, err)
	assert.Equal(t, []workflow.TaskID{"d"}, r.Enable)

	// no match and no default is an error
	noDefault := outgoing("a", &workflow.Flow{To: "b", Guard: keyEquals("route", "b")}, &workflow.Flow{To: "c", Guard: keyEquals("route", "c")})
	_, err = XORSplit{}.Select(&SplitContext{Task: task, Outgoing: noDefault, Data: dataWith(map[string]any{"route": "x"})})
	assert.True(t, errors.Is(err, ErrNoMatchingBranch))
}

func TestXORSplitGuardError(t *testing.T) {
	boom := func(*workflow.Data) (bool, error) { return false, errors.New("boom") }
	_, err := XORSplit{}.Select(&SplitContext{
		Task:     &workflow.Task{ID: "a", Split: workflow.SplitXOR},
		Outgoing: outgoing("a", &workflow.Flow{To: "b", Guard: boom}, &workflow.Flow{To: "c"}),
		Data:     new(workflow.Data),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestORSplit(t *testing.T) {
	board := NewBoard()
	task := &workflow.Task{ID: "a", Split: workflow.SplitOR}
	flows := outgoing("a",
		&workflow.Flow{To: "b", Guard: keyEquals("b", true)},
		&workflow.Flow{To: "c", Guard: keyEquals("c", true)},
		&workflow.Flow{To: "d", Guard: keyEquals("d", true)},
	)

	r, err := ORSplit{}.Select(&SplitContext{
		Task:         task,
		Outgoing:     flows,
		Data:         dataWith(map[string]any{"b": true, "d": true}),
		Board:        board,
		ActivationID: "act-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []workflow.TaskID{"b", "d"}, r.Enable)
	assert.Equal(t, "act-1", r.ActivationID)

	a := board.ActivationByID("act-1")
	require.NotNil(t, a)
	assert.Equal(t, workflow.TaskID("a"), a.SplitTask)
	assert.Equal(t, map[workflow.TaskID]bool{"b": true, "d": true}, a.Activated)

	// no guard matches and no default flow
	_, err = ORSplit{}.Select(&SplitContext{
		Task:         task,
		Outgoing:     flows,
		Data:         new(workflow.Data),
		Board:        board,
		ActivationID: "act-2",
	})
	assert.True(t, errors.Is(err, ErrNoMatchingBranch))
	assert.Nil(t, board.ActivationByID("act-2"))
}

func TestORSplitDefault(t *testing.T) {
	board := NewBoard()
	flows := outgoing("a",
		&workflow.Flow{To: "b", Guard: keyEquals("b", true)},
		&workflow.Flow{To: "d", Default: true},
	)
	r, err := ORSplit{}.Select(&SplitContext{
		Task:         &workflow.Task{ID: "a", Split: workflow.SplitOR},
		Outgoing:     flows,
		Data:         new(workflow.Data),
		Board:        board,
		ActivationID: "act-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []workflow.TaskID{"d"}, r.Enable)
}

func andJoinCtx(board *Board, from workflow.TaskID) *JoinContext {
	return &JoinContext{
		Task:     &workflow.Task{ID: "j", Join: workflow.JoinAND},
		From:     from,
		Incoming: []*workflow.Flow{{From: "b", To: "j"}, {From: "c", To: "j"}, {From: "d", To: "j"}},
		Board:    board,
	}
}

func TestANDJoin(t *testing.T) {
	board := NewBoard()

	r, err := ANDJoin{}.Arrive(andJoinCtx(board, "b"))
	require.NoError(t, err)
	assert.False(t, r.Fire)

	// duplicate before the join fires
	_, err = ANDJoin{}.Arrive(andJoinCtx(board, "b"))
	var dup *DuplicateArrivalError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, workflow.TaskID("b"), dup.From)

	r, err = ANDJoin{}.Arrive(andJoinCtx(board, "c"))
	require.NoError(t, err)
	assert.False(t, r.Fire)

	r, err = ANDJoin{}.Arrive(andJoinCtx(board, "d"))
	require.NoError(t, err)
	assert.True(t, r.Fire)

	// join reset: a second round synchronizes again
	r, err = ANDJoin{}.Arrive(andJoinCtx(board, "d"))
	require.NoError(t, err)
	assert.False(t, r.Fire)
}

// The join must fire exactly once no matter which order the branches
// arrive in.
func TestANDJoinFiresOncePerPermutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		perm := []workflow.TaskID{"b", "c", "d"}
		for i := len(perm) - 1; i > 0; i-- {
			j := rapid.IntRange(0, i).Draw(t, "swap")
			perm[i], perm[j] = perm[j], perm[i]
		}
		board := NewBoard()
		fires := 0
		for _, from := range perm {
			r, err := ANDJoin{}.Arrive(andJoinCtx(board, from))
			if err != nil {
				t.Fatalf("arrive from %s: %v", from, err)
			}
			if r.Fire {
				fires++
			}
		}
		if fires != 1 {
			t.Fatalf("join fired %d times", fires)
		}
	})
}

func TestXORJoin(t *testing.T) {
	board := NewBoard()
	for i := 0; i < 3; i++ {
		r, err := XORJoin{}.Arrive(&JoinContext{
			Task:  &workflow.Task{ID: "j", Join: workflow.JoinXOR},
			From:  "b",
			Board: board,
		})
		require.NoError(t, err)
		assert.True(t, r.Fire)
	}
}

func orJoinCtx(board *Board, branch workflow.TaskID, actID string) *JoinContext {
	return &JoinContext{
		Task:         &workflow.Task{ID: "j", Join: workflow.JoinOR, PairedSplit: "a"},
		From:         branch,
		Branch:       branch,
		ActivationID: actID,
		Board:        board,
	}
}

func TestORJoin(t *testing.T) {
	board := NewBoard()
	board.RecordActivation(&Activation{
		ID:        "act-1",
		SplitTask: "a",
		Activated: map[workflow.TaskID]bool{"b": true, "d": true},
		Arrived:   make(map[workflow.TaskID]bool),
	})

	// waits for exactly the activated subset: b and d, not c
	r, err := ORJoin{}.Arrive(orJoinCtx(board, "b", "act-1"))
	require.NoError(t, err)
	assert.False(t, r.Fire)

	r, err = ORJoin{}.Arrive(orJoinCtx(board, "d", "act-1"))
	require.NoError(t, err)
	assert.True(t, r.Fire)

	// activation retired after firing
	assert.Nil(t, board.ActivationByID("act-1"))
}

func TestORJoinErrors(t *testing.T) {
	board := NewBoard()
	board.RecordActivation(&Activation{
		ID:        "act-1",
		SplitTask: "a",
		Activated: map[workflow.TaskID]bool{"b": true, "d": true},
		Arrived:   make(map[workflow.TaskID]bool),
	})

	// unknown activation
	_, err := ORJoin{}.Arrive(orJoinCtx(board, "b", "act-9"))
	var cnf *CorrelationNotFoundError
	require.ErrorAs(t, err, &cnf)
	assert.Equal(t, "act-9", cnf.ActivationID)

	// arrival from a branch the split never activated
	_, err = ORJoin{}.Arrive(orJoinCtx(board, "c", "act-1"))
	require.ErrorAs(t, err, &cnf)

	// duplicate branch arrival
	_, err = ORJoin{}.Arrive(orJoinCtx(board, "b", "act-1"))
	require.NoError(t, err)
	_, err = ORJoin{}.Arrive(orJoinCtx(board, "b", "act-1"))
	var dup *DuplicateArrivalError
	require.ErrorAs(t, err, &dup)
}

func TestORJoinBranchCancelled(t *testing.T) {
	board := NewBoard()
	board.RecordActivation(&Activation{
		ID:        "act-1",
		SplitTask: "a",
		Activated: map[workflow.TaskID]bool{"b": true, "d": true},
		Arrived:   make(map[workflow.TaskID]bool),
	})

	// d's branch is cancelled; the join must fire on b alone
	board.BranchCancelled("act-1", "d")
	r, err := ORJoin{}.Arrive(orJoinCtx(board, "b", "act-1"))
	require.NoError(t, err)
	assert.True(t, r.Fire)
}

func TestDiscriminator(t *testing.T) {
	board := NewBoard()
	ctx := func(from workflow.TaskID) *JoinContext {
		return &JoinContext{
			Task:     &workflow.Task{ID: "j", Join: workflow.JoinDiscriminator},
			From:     from,
			Incoming: []*workflow.Flow{{From: "b", To: "j"}, {From: "c", To: "j"}, {From: "d", To: "j"}},
			Board:    board,
		}
	}

	r, err := Discriminator{}.Arrive(ctx("c"))
	require.NoError(t, err)
	assert.True(t, r.Fire)

	// the remaining two arrivals are absorbed without effect
	for _, from := range []workflow.TaskID{"b", "d"} {
		r, err = Discriminator{}.Arrive(ctx(from))
		require.NoError(t, err)
		assert.False(t, r.Fire)
		assert.True(t, r.Absorbed)
	}

	// after absorbing fan-in minus one the discriminator resets
	r, err = Discriminator{}.Arrive(ctx("b"))
	require.NoError(t, err)
	assert.True(t, r.Fire)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	for _, st := range []workflow.SplitType{workflow.SplitNone, workflow.SplitAND, workflow.SplitXOR, workflow.SplitOR} {
		e, err := r.Split(st)
		require.NoError(t, err)
		assert.NotNil(t, e)
	}
	for _, jt := range []workflow.JoinType{workflow.JoinNone, workflow.JoinAND, workflow.JoinXOR, workflow.JoinOR, workflow.JoinDiscriminator} {
		e, err := r.Join(jt)
		require.NoError(t, err)
		assert.NotNil(t, e)
	}

	_, err := r.Split(workflow.SplitType(99))
	assert.True(t, errors.Is(err, ErrUnknownPattern))
	_, err = r.Join(workflow.JoinType(99))
	assert.True(t, errors.Is(err, ErrUnknownPattern))
}
