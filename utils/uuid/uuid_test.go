package uuid

import "testing"

func TestStaticIDs(t *testing.T) {
	ider := NewStaticIDs("a", "b")
	for i, expect := range []string{"a", "b", "a"} {
		if have := ider.ID(); have != expect {
			t.Errorf("id %d: have %q, want %q", i, have, expect)
		}
	}
}

func TestSequentialIDs(t *testing.T) {
	ider := NewSequentialIDs("case")
	for i, expect := range []string{"case-1", "case-2"} {
		if have := ider.ID(); have != expect {
			t.Errorf("id %d: have %q, want %q", i, have, expect)
		}
	}
}

func TestUUIDUnique(t *testing.T) {
	ider := NewUUID()
	a, b := ider.ID(), ider.ID()
	if a == b {
		t.Error("expected unique IDs")
	}
	if len(a) != 36 {
		t.Errorf("unexpected UUID length: %d", len(a))
	}
}
