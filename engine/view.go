package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahalstead/caseng/engine/storage"
)

// GetCase returns the case and work item snapshots for caseID,
// preferring live in-memory state and falling back to storage for
// archived cases.
func (e *Engine) GetCase(ctx context.Context, caseID string) (*storage.CaseSnapshot, []*storage.WorkItemSnapshot, error) {
	var caseSnap *storage.CaseSnapshot
	var itemSnaps []*storage.WorkItemSnapshot
	err := e.withCase(caseID, func(c *Case) error {
		caseSnap = c.Snapshot()
		itemSnaps = c.ItemSnapshots()
		return nil
	})
	if err == nil {
		return caseSnap, itemSnaps, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	caseSnap, err = e.store.RetrieveCaseSnapshot(ctx, caseID)
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		return nil, nil, fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	if err != nil {
		return nil, nil, err
	}
	itemSnaps, err = e.store.RetrieveWorkItemSnapshots(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	return caseSnap, itemSnaps, nil
}

// Events returns the audit trail for caseID in emit order. The
// journal is flushed first so recent transitions are included.
func (e *Engine) Events(ctx context.Context, caseID string) ([]storage.Event, error) {
	if err := e.FlushEvents(ctx); err != nil {
		return nil, err
	}
	return e.store.RetrieveEvents(ctx, caseID)
}
