package workflow

import (
	"errors"
	"testing"
)

func seqDef(t *testing.T) *Definition {
	t.Helper()
	d := NewDefinition("test.sequence")
	d.Input, d.Output = "in", "out"
	for _, id := range []TaskID{"in", "mid", "out"} {
		if err := d.AddTask(&Task{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []*Flow{{From: "in", To: "mid"}, {From: "mid", To: "out"}} {
		if err := d.AddFlow(f); err != nil {
			t.Fatal(err)
		}
	}
	return d
}

func TestValidateSequence(t *testing.T) {
	if err := seqDef(t).Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateMissingTasks(t *testing.T) {
	d := NewDefinition("test.empty")
	d.Input, d.Output = "a", "b"
	if err := d.Validate(); !errors.Is(err, ErrMissingInputTask) {
		t.Errorf("have %v, want ErrMissingInputTask", err)
	}
}

func TestValidateJoinFanIn(t *testing.T) {
	d := NewDefinition("test.joinfanin")
	d.Input, d.Output = "a", "j"
	d.AddTask(&Task{ID: "a"})
	d.AddTask(&Task{ID: "j", Join: JoinAND})
	d.AddFlow(&Flow{From: "a", To: "j"})
	if err := d.Validate(); !errors.Is(err, ErrJoinFanIn) {
		t.Errorf("have %v, want ErrJoinFanIn", err)
	}
}

func TestValidateORJoinPairing(t *testing.T) {
	d := NewDefinition("test.orjoin")
	d.Input, d.Output = "s", "j"
	d.AddTask(&Task{ID: "s", Split: SplitOR})
	d.AddTask(&Task{ID: "b1"})
	d.AddTask(&Task{ID: "b2"})
	d.AddTask(&Task{ID: "j", Join: JoinOR})
	d.AddFlow(&Flow{From: "s", To: "b1"})
	d.AddFlow(&Flow{From: "s", To: "b2"})
	d.AddFlow(&Flow{From: "b1", To: "j"})
	d.AddFlow(&Flow{From: "b2", To: "j"})

	if err := d.Validate(); !errors.Is(err, ErrMissingPairedSplit) {
		t.Fatalf("have %v, want ErrMissingPairedSplit", err)
	}

	d.Task("j").PairedSplit = "s"
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateUnannotatedFanOut(t *testing.T) {
	d := NewDefinition("test.fanout")
	d.Input, d.Output = "a", "c"
	d.AddTask(&Task{ID: "a"})
	d.AddTask(&Task{ID: "b"})
	d.AddTask(&Task{ID: "c", Join: JoinXOR})
	d.AddFlow(&Flow{From: "a", To: "b"})
	d.AddFlow(&Flow{From: "a", To: "c"})
	d.AddFlow(&Flow{From: "b", To: "c"})
	if err := d.Validate(); err == nil {
		t.Error("expected error for fan-out without split annotation")
	}
}

func TestValidateDuplicateDefault(t *testing.T) {
	d := NewDefinition("test.defaults")
	d.Input, d.Output = "a", "m"
	d.AddTask(&Task{ID: "a", Split: SplitXOR})
	d.AddTask(&Task{ID: "b"})
	d.AddTask(&Task{ID: "c"})
	d.AddTask(&Task{ID: "m", Join: JoinXOR})
	d.AddFlow(&Flow{From: "a", To: "b", Default: true})
	d.AddFlow(&Flow{From: "a", To: "c", Default: true})
	d.AddFlow(&Flow{From: "b", To: "m"})
	d.AddFlow(&Flow{From: "c", To: "m"})
	if err := d.Validate(); err == nil {
		t.Error("expected error for multiple default flows")
	}
}

func TestAddFlowUnknownTask(t *testing.T) {
	d := NewDefinition("test.unknown")
	d.AddTask(&Task{ID: "a"})
	if err := d.AddFlow(&Flow{From: "a", To: "nope"}); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("have %v, want ErrUnknownTask", err)
	}
}

func TestAdjacency(t *testing.T) {
	d := seqDef(t)
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
	if n := len(d.Outgoing("in")); n != 1 {
		t.Errorf("outgoing(in): have %d, want 1", n)
	}
	if n := len(d.Incoming("out")); n != 1 {
		t.Errorf("incoming(out): have %d, want 1", n)
	}
	if d.Outgoing("in")[0].To != "mid" {
		t.Error("unexpected successor")
	}
}

func TestDataSnapshot(t *testing.T) {
	data := NewData()
	data.Set("amount", 100)
	snap := data.Snapshot()
	data.Set("amount", 200)
	if snap["amount"] != 100 {
		t.Error("snapshot should not see later writes")
	}
	if v, _ := data.Get("amount"); v != 200 {
		t.Error("data should see latest write")
	}
}
