// Package kv implements an engine storage backend using a key-value interface.
package kv

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahalstead/caseng/engine/storage"
	"github.com/ahalstead/caseng/utils/kv"
)

// KV is an engine storage backend using a key-value interface.
type KV struct {
	mu         sync.RWMutex
	eventStore kv.TraversingBucket
	caseStore  kv.TraversingBucket
	itemStore  kv.TraversingBucket
}

// New creates a new key-value engine storage backend.
func New(eventStore, caseStore, itemStore kv.TraversingBucket) *KV {
	return &KV{
		eventStore: eventStore,
		caseStore:  caseStore,
		itemStore:  itemStore,
	}
}

// StoreEvents implements the storage interface method.
func (s *KV) StoreEvents(ctx context.Context, events []storage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, event := range events {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("validating event %d: %w", i, err)
		}
		if err := kvAppendEvent(ctx, s.eventStore, &event); err != nil {
			return fmt.Errorf("appending event %d for %s: %w", i, event.CaseID, err)
		}
	}
	return nil
}

// RetrieveEvents implements the storage interface method.
func (s *KV) RetrieveEvents(ctx context.Context, caseID string) ([]storage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return kvGetEvents(ctx, s.eventStore, caseID)
}

// StoreCaseSnapshot implements the storage interface method.
func (s *KV) StoreCaseSnapshot(ctx context.Context, snap *storage.CaseSnapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("validating case snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return kvSetJSON(ctx, s.caseStore, snap.CaseID, snap)
}

// RetrieveCaseSnapshot implements the storage interface method.
func (s *KV) RetrieveCaseSnapshot(ctx context.Context, caseID string) (*storage.CaseSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if found, err := s.caseStore.Has(ctx, caseID); err != nil {
		return nil, fmt.Errorf("checking case %s: %w", caseID, err)
	} else if !found {
		return nil, fmt.Errorf("case %s: %w", caseID, storage.ErrSnapshotNotFound)
	}
	snap := new(storage.CaseSnapshot)
	if err := kvGetJSON(ctx, s.caseStore, caseID, snap); err != nil {
		return nil, fmt.Errorf("getting case %s: %w", caseID, err)
	}
	return snap, nil
}

// StoreWorkItemSnapshot implements the storage interface method.
func (s *KV) StoreWorkItemSnapshot(ctx context.Context, snap *storage.WorkItemSnapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("validating work item snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return kvSetJSON(ctx, s.itemStore, itemKey(snap.CaseID, snap.WorkItemID), snap)
}

// RetrieveWorkItemSnapshots implements the storage interface method.
func (s *KV) RetrieveWorkItemSnapshots(ctx context.Context, caseID string) ([]*storage.WorkItemSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snaps []*storage.WorkItemSnapshot
	for _, k := range kv.AllKeysPrefix(s.itemStore, caseID+".") {
		snap := new(storage.WorkItemSnapshot)
		if err := kvGetJSON(ctx, s.itemStore, k, snap); err != nil {
			return snaps, fmt.Errorf("getting work item %s: %w", k, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// DeleteCase implements the storage interface method.
func (s *KV) DeleteCase(ctx context.Context, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := kvDeleteEvents(ctx, s.eventStore, caseID); err != nil {
		return fmt.Errorf("deleting events for %s: %w", caseID, err)
	}
	if err := kv.DeleteSlice(ctx, s.itemStore, kv.AllKeysPrefix(s.itemStore, caseID+".")); err != nil {
		return fmt.Errorf("deleting work items for %s: %w", caseID, err)
	}
	if found, err := s.caseStore.Has(ctx, caseID); err != nil {
		return fmt.Errorf("checking case %s: %w", caseID, err)
	} else if found {
		if err = s.caseStore.Delete(ctx, caseID); err != nil {
			return fmt.Errorf("deleting case %s: %w", caseID, err)
		}
	}
	return nil
}

func itemKey(caseID, workItemID string) string {
	return caseID + "." + workItemID
}
