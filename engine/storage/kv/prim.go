package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ahalstead/caseng/engine/storage"
	"github.com/ahalstead/caseng/utils/kv"
)

// key primitives for the event log. events for a case are stored under
// "<caseID>.<n>" with a "<caseID>.count" counter preserving append order.

const countSuffix = ".count"

func eventKey(caseID string, n uint64) string {
	return caseID + "." + strconv.FormatUint(n, 10)
}

func kvGetEventCount(ctx context.Context, b kv.Bucket, caseID string) (uint64, error) {
	found, err := b.Has(ctx, caseID+countSuffix)
	if err != nil || !found {
		return 0, err
	}
	raw, err := b.Get(ctx, caseID+countSuffix)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

func kvAppendEvent(ctx context.Context, b kv.Bucket, event *storage.Event) error {
	n, err := kvGetEventCount(ctx, b, event.CaseID)
	if err != nil {
		return fmt.Errorf("reading event count: %w", err)
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err = b.Set(ctx, eventKey(event.CaseID, n), raw); err != nil {
		return fmt.Errorf("setting event %d: %w", n, err)
	}
	return b.Set(ctx, event.CaseID+countSuffix, []byte(strconv.FormatUint(n+1, 10)))
}

func kvGetEvents(ctx context.Context, b kv.Bucket, caseID string) ([]storage.Event, error) {
	n, err := kvGetEventCount(ctx, b, caseID)
	if err != nil {
		return nil, fmt.Errorf("reading event count: %w", err)
	}
	var events []storage.Event
	for i := uint64(0); i < n; i++ {
		raw, err := b.Get(ctx, eventKey(caseID, i))
		if err != nil {
			return events, fmt.Errorf("getting event %d: %w", i, err)
		}
		var event storage.Event
		if err = json.Unmarshal(raw, &event); err != nil {
			return events, fmt.Errorf("unmarshaling event %d: %w", i, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func kvDeleteEvents(ctx context.Context, b kv.Bucket, caseID string) error {
	n, err := kvGetEventCount(ctx, b, caseID)
	if err != nil {
		return fmt.Errorf("reading event count: %w", err)
	}
	for i := uint64(0); i < n; i++ {
		if err = b.Delete(ctx, eventKey(caseID, i)); err != nil {
			return fmt.Errorf("deleting event %d: %w", i, err)
		}
	}
	if n > 0 {
		return b.Delete(ctx, caseID+countSuffix)
	}
	return nil
}

func kvSetJSON(ctx context.Context, b kv.Bucket, k string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", k, err)
	}
	return b.Set(ctx, k, raw)
}

func kvGetJSON(ctx context.Context, b kv.Bucket, k string, v any) error {
	raw, err := b.Get(ctx, k)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
