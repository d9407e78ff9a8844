package clock

import (
	"testing"
	"time"
)

func TestVirtualNow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewVirtual(start)
	if !c.Now().Equal(start) {
		t.Errorf("have %v, want %v", c.Now(), start)
	}
	c.AdvanceBy(time.Minute)
	if !c.Now().Equal(start.Add(time.Minute)) {
		t.Errorf("have %v, want %v", c.Now(), start.Add(time.Minute))
	}
}

func TestVirtualAfter(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewVirtual(start)
	ch := c.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before time advanced")
	default:
	}

	c.AdvanceBy(2 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	c.AdvanceBy(3 * time.Second)
	select {
	case now := <-ch:
		if !now.Equal(start.Add(5 * time.Second)) {
			t.Errorf("have %v, want %v", now, start.Add(5*time.Second))
		}
	default:
		t.Fatal("timer did not fire")
	}
}

func TestVirtualAfterZero(t *testing.T) {
	c := NewVirtual(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("zero-duration timer should fire immediately")
	}
}

func TestVirtualBackwardsIgnored(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewVirtual(start)
	c.AdvanceTo(start.Add(-time.Hour))
	if !c.Now().Equal(start) {
		t.Error("clock moved backwards")
	}
}
