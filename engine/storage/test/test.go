// Package test implements shared tests for engine storage backends.
package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahalstead/caseng/engine/storage"
)

// TestEngineStorage runs the storage conformance tests against s.
func TestEngineStorage(t *testing.T, newStorage func() storage.AllStorage) {
	s := newStorage()
	ctx := context.Background()

	t.Run("testEvents", func(t *testing.T) {
		testEvents(t, ctx, s)
	})

	t.Run("testCaseSnapshots", func(t *testing.T) {
		testCaseSnapshots(t, ctx, s)
	})

	t.Run("testWorkItemSnapshots", func(t *testing.T) {
		testWorkItemSnapshots(t, ctx, s)
	})

	t.Run("testDeleteCase", func(t *testing.T) {
		testDeleteCase(t, ctx, newStorage())
	})
}

func testEvent(caseID, entityID, from, to string) storage.Event {
	return storage.Event{
		EntityKind: storage.KindWorkItem,
		EntityID:   entityID,
		CaseID:     caseID,
		TaskID:     "task-a",
		From:       from,
		To:         to,
		At:         time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func testEvents(t *testing.T, ctx context.Context, s storage.AllStorage) {
	if err := s.StoreEvents(ctx, []storage.Event{{}}); err == nil {
		t.Error("expected error storing invalid event")
	}

	events := []storage.Event{
		testEvent("case-1", "wi-1", "enabled", "allocated"),
		testEvent("case-1", "wi-1", "allocated", "executing"),
		testEvent("case-2", "wi-9", "enabled", "cancelled"),
	}
	if err := s.StoreEvents(ctx, events); err != nil {
		t.Fatal(err)
	}
	// second batch to the same case should append
	if err := s.StoreEvents(ctx, []storage.Event{
		testEvent("case-1", "wi-1", "executing", "completed"),
	}); err != nil {
		t.Fatal(err)
	}

	have, err := s.RetrieveEvents(ctx, "case-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(have) != 3 {
		t.Fatalf("case-1 events: have %d, want 3", len(have))
	}
	for i, to := range []string{"allocated", "executing", "completed"} {
		if have[i].To != to {
			t.Errorf("event %d: have to=%q, want %q", i, have[i].To, to)
		}
	}

	have, err = s.RetrieveEvents(ctx, "case-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(have) != 1 {
		t.Fatalf("case-2 events: have %d, want 1", len(have))
	}
	if have[0].CorrelationID != "" || have[0].EntityID != "wi-9" {
		t.Error("unexpected case-2 event contents")
	}

	if have, err = s.RetrieveEvents(ctx, "case-none"); err != nil {
		t.Fatal(err)
	} else if len(have) != 0 {
		t.Errorf("unknown case events: have %d, want 0", len(have))
	}
}

func testCaseSnapshots(t *testing.T, ctx context.Context, s storage.AllStorage) {
	if _, err := s.RetrieveCaseSnapshot(ctx, "case-none"); !errors.Is(err, storage.ErrSnapshotNotFound) {
		t.Errorf("have %v, want ErrSnapshotNotFound", err)
	}

	snap := &storage.CaseSnapshot{
		CaseID:          "case-1",
		DefinitionName:  "test.def",
		Number:          7,
		State:           "running",
		CreatedAt:       time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC),
		CorrelationKeys: []string{"act-1"},
	}
	if err := s.StoreCaseSnapshot(ctx, snap); err != nil {
		t.Fatal(err)
	}

	// replace
	snap.State = "completed"
	snap.TerminalAt = time.Date(2024, 2, 1, 11, 0, 0, 0, time.UTC)
	if err := s.StoreCaseSnapshot(ctx, snap); err != nil {
		t.Fatal(err)
	}

	have, err := s.RetrieveCaseSnapshot(ctx, "case-1")
	if err != nil {
		t.Fatal(err)
	}
	if have.State != "completed" ||
		have.Number != 7 ||
		have.DefinitionName != "test.def" ||
		len(have.CorrelationKeys) != 1 {
		t.Errorf("unexpected snapshot: %+v", have)
	}
	if !have.TerminalAt.Equal(snap.TerminalAt) {
		t.Errorf("terminal at: have %v, want %v", have.TerminalAt, snap.TerminalAt)
	}
}

func testWorkItemSnapshots(t *testing.T, ctx context.Context, s storage.AllStorage) {
	for _, snap := range []*storage.WorkItemSnapshot{
		{WorkItemID: "wi-1", CaseID: "case-3", TaskID: "a", State: "completed"},
		{WorkItemID: "wi-2", CaseID: "case-3", TaskID: "b", State: "executing", ResourceID: "res-1"},
		{WorkItemID: "wi-3", CaseID: "case-4", TaskID: "a", State: "enabled"},
	} {
		if err := s.StoreWorkItemSnapshot(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}

	have, err := s.RetrieveWorkItemSnapshots(ctx, "case-3")
	if err != nil {
		t.Fatal(err)
	}
	if len(have) != 2 {
		t.Fatalf("case-3 work items: have %d, want 2", len(have))
	}
	byID := make(map[string]*storage.WorkItemSnapshot)
	for _, snap := range have {
		byID[snap.WorkItemID] = snap
	}
	if snap := byID["wi-2"]; snap == nil || snap.ResourceID != "res-1" {
		t.Errorf("unexpected wi-2 snapshot: %+v", snap)
	}
}

func testDeleteCase(t *testing.T, ctx context.Context, s storage.AllStorage) {
	if err := s.StoreEvents(ctx, []storage.Event{
		testEvent("case-del", "wi-1", "enabled", "completed"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreCaseSnapshot(ctx, &storage.CaseSnapshot{
		CaseID: "case-del", State: "completed",
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreWorkItemSnapshot(ctx, &storage.WorkItemSnapshot{
		WorkItemID: "wi-1", CaseID: "case-del", TaskID: "a", State: "completed",
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteCase(ctx, "case-del"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.RetrieveCaseSnapshot(ctx, "case-del"); !errors.Is(err, storage.ErrSnapshotNotFound) {
		t.Errorf("have %v, want ErrSnapshotNotFound", err)
	}
	if events, err := s.RetrieveEvents(ctx, "case-del"); err != nil {
		t.Fatal(err)
	} else if len(events) != 0 {
		t.Errorf("events after delete: have %d, want 0", len(events))
	}
	if snaps, err := s.RetrieveWorkItemSnapshots(ctx, "case-del"); err != nil {
		t.Fatal(err)
	} else if len(snaps) != 0 {
		t.Errorf("work items after delete: have %d, want 0", len(snaps))
	}

	// deleting again is not an error
	if err := s.DeleteCase(ctx, "case-del"); err != nil {
		t.Error(err)
	}
}
