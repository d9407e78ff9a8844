// Package storage defines types and primitives for engine audit and snapshot storage backends.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyEvent       = errors.New("empty event")
	ErrMissingEntityID  = errors.New("missing entity id")
	ErrMissingCaseID    = errors.New("missing case id")
	ErrMissingStates    = errors.New("missing from/to states")
	ErrEmptySnapshot    = errors.New("empty snapshot")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// EntityKind discriminates which state machine an Event belongs to.
type EntityKind string

const (
	KindCase     EntityKind = "case"
	KindWorkItem EntityKind = "work_item"
)

// Event is one structured lifecycle event per state transition.
// The engine emits exactly one per case or work item transition.
type Event struct {
	EntityKind EntityKind `json:"entity_kind"`
	EntityID   string     `json:"entity_id"`
	CaseID     string     `json:"case_id"`
	TaskID     string     `json:"task_id,omitempty"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	At         time.Time  `json:"at"`

	// CorrelationID carries the split activation instance, when the
	// transition relates to one.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Detail carries a reason or error string for cancel/fail events.
	Detail string `json:"detail,omitempty"`
}

// Validate checks for missing values.
func (e *Event) Validate() error {
	if e == nil {
		return ErrEmptyEvent
	}
	if e.EntityID == "" {
		return ErrMissingEntityID
	}
	if e.CaseID == "" {
		return ErrMissingCaseID
	}
	if e.From == "" || e.To == "" {
		return ErrMissingStates
	}
	return nil
}

// CaseSnapshot is the persistable form of a case.
// A case is reconstructible from (state, timestamps, correlation keys).
type CaseSnapshot struct {
	CaseID         string    `json:"case_id"`
	DefinitionName string    `json:"definition_name"`
	Number         uint64    `json:"number"`
	State          string    `json:"state"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	TerminalAt     time.Time `json:"terminal_at,omitempty"`

	// CorrelationKeys are the open split activation instances.
	CorrelationKeys []string `json:"correlation_keys,omitempty"`
}

// Validate checks for missing values.
func (s *CaseSnapshot) Validate() error {
	if s == nil {
		return ErrEmptySnapshot
	}
	if s.CaseID == "" {
		return ErrMissingCaseID
	}
	if s.State == "" {
		return ErrMissingStates
	}
	return nil
}

// WorkItemSnapshot is the persistable form of a work item.
type WorkItemSnapshot struct {
	WorkItemID   string    `json:"work_item_id"`
	CaseID       string    `json:"case_id"`
	TaskID       string    `json:"task_id"`
	State        string    `json:"state"`
	ResourceID   string    `json:"resource_id,omitempty"`
	ActivationID string    `json:"activation_id,omitempty"`
	EnabledAt    time.Time `json:"enabled_at"`
	AllocatedAt  time.Time `json:"allocated_at,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
}

// Validate checks for missing values.
func (s *WorkItemSnapshot) Validate() error {
	if s == nil {
		return ErrEmptySnapshot
	}
	if s.WorkItemID == "" {
		return ErrMissingEntityID
	}
	if s.CaseID == "" {
		return ErrMissingCaseID
	}
	if s.State == "" {
		return ErrMissingStates
	}
	return nil
}

// EventStorage is the audit/history sink.
// The engine journals events in memory on the hot path and flushes
// them here in batches off the hot path.
type EventStorage interface {
	// StoreEvents appends events in order.
	// Implementations must preserve per-case append order.
	StoreEvents(ctx context.Context, events []Event) error

	// RetrieveEvents returns all events for a case in append order.
	RetrieveEvents(ctx context.Context, caseID string) ([]Event, error)
}

// SnapshotStorage persists case and work item snapshots.
type SnapshotStorage interface {
	// StoreCaseSnapshot stores (or replaces) a case snapshot.
	StoreCaseSnapshot(ctx context.Context, snap *CaseSnapshot) error

	// RetrieveCaseSnapshot returns the snapshot for caseID.
	// Returns ErrSnapshotNotFound if the case has never been stored.
	RetrieveCaseSnapshot(ctx context.Context, caseID string) (*CaseSnapshot, error)

	// StoreWorkItemSnapshot stores (or replaces) a work item snapshot.
	StoreWorkItemSnapshot(ctx context.Context, snap *WorkItemSnapshot) error

	// RetrieveWorkItemSnapshots returns all work item snapshots for caseID.
	RetrieveWorkItemSnapshots(ctx context.Context, caseID string) ([]*WorkItemSnapshot, error)

	// DeleteCase removes the case snapshot, its work item snapshots,
	// and its events. Used when a terminal case is archived elsewhere.
	DeleteCase(ctx context.Context, caseID string) error
}

// AllStorage is the full set of engine storage capabilities.
type AllStorage interface {
	EventStorage
	SnapshotStorage
}
