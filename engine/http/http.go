// Package http contains HTTP handlers that work with the workflow engine.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/ahalstead/caseng/engine"
	"github.com/ahalstead/caseng/engine/storage"
	"github.com/ahalstead/caseng/http/api"
	"github.com/ahalstead/caseng/workflow"

	"github.com/micromdm/nanolib/log"
)

// CaseStarter starts cases of registered definitions.
type CaseStarter interface {
	StartCase(ctx context.Context, definitionName string, input map[string]any) (string, error)
}

// CaseGetter retrieves case and work item snapshots.
type CaseGetter interface {
	GetCase(ctx context.Context, caseID string) (*storage.CaseSnapshot, []*storage.WorkItemSnapshot, error)
	Events(ctx context.Context, caseID string) ([]storage.Event, error)
}

// CaseController drives case-level transitions.
type CaseController interface {
	CancelCase(ctx context.Context, caseID, reason string) error
	SuspendCase(ctx context.Context, caseID string) error
	ResumeCase(ctx context.Context, caseID string) error
}

// ItemSignaler feeds external work item signals into the engine.
type ItemSignaler interface {
	CompleteWorkItem(ctx context.Context, caseID, itemID string, output map[string]any) error
	FailWorkItem(ctx context.Context, caseID, itemID string, cause error) error
	SuspendWorkItem(ctx context.Context, caseID, itemID string) error
	ResumeWorkItem(ctx context.Context, caseID, itemID string) error
	TriggerDeferredChoice(ctx context.Context, caseID string, taskID workflow.TaskID) error
	OnDeadlineExceeded(ctx context.Context, caseID, itemID string, action engine.DeadlineAction) error
}

// APIEngine is the full engine surface the API handlers consume.
type APIEngine interface {
	CaseStarter
	CaseGetter
	CaseController
	ItemSignaler
	Status() string
	CaseCount() uint64
}

// Mux can register HTTP handlers.
// Ostensibly this supports flow router.
type Mux interface {
	// Handle registers the handler for the given pattern.
	Handle(pattern string, handler http.Handler, methods ...string)
}

// HandleAPIv1 registers the various API handlers into mux.
// API endpoint paths are prepended with prefix.
// Authentication or any other layered handlers are not present.
// They are assumed to be layered with mux, possibly at the Handle call.
func HandleAPIv1(prefix string, mux Mux, logger log.Logger, e APIEngine) {
	// cases

	mux.Handle(
		prefix+"/definition/:name/start",
		StartCaseHandler(e, logger.With("handler", "start case")),
		"POST",
	)
	mux.Handle(
		prefix+"/case/:id",
		GetCaseHandler(e, logger.With("handler", "get case")),
		"GET",
	)
	mux.Handle(
		prefix+"/case/:id/events",
		GetEventsHandler(e, logger.With("handler", "get events")),
		"GET",
	)
	mux.Handle(
		prefix+"/case/:id/cancel",
		CancelCaseHandler(e, logger.With("handler", "cancel case")),
		"POST",
	)
	mux.Handle(
		prefix+"/case/:id/suspend",
		SuspendCaseHandler(e, logger.With("handler", "suspend case")),
		"POST",
	)
	mux.Handle(
		prefix+"/case/:id/resume",
		ResumeCaseHandler(e, logger.With("handler", "resume case")),
		"POST",
	)

	// work items

	mux.Handle(
		prefix+"/case/:id/item/:item/complete",
		CompleteItemHandler(e, logger.With("handler", "complete work item")),
		"POST",
	)
	mux.Handle(
		prefix+"/case/:id/item/:item/fail",
		FailItemHandler(e, logger.With("handler", "fail work item")),
		"POST",
	)
	mux.Handle(
		prefix+"/case/:id/item/:item/suspend",
		SuspendItemHandler(e, logger.With("handler", "suspend work item")),
		"POST",
	)
	mux.Handle(
		prefix+"/case/:id/item/:item/resume",
		ResumeItemHandler(e, logger.With("handler", "resume work item")),
		"POST",
	)
	mux.Handle(
		prefix+"/case/:id/item/:item/deadline",
		DeadlineHandler(e, logger.With("handler", "deadline exceeded")),
		"POST",
	)
	mux.Handle(
		prefix+"/case/:id/choose/:task",
		DeferredChoiceHandler(e, logger.With("handler", "deferred choice")),
		"POST",
	)

	// engine

	mux.Handle(
		prefix+"/status",
		StatusHandler(e),
		"GET",
	)
}

// jsonStatus maps engine errors onto HTTP status codes.
func jsonStatus(err error) int {
	var invalid *engine.InvalidTransitionError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrItemState), errors.As(err, &invalid):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEngineStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func jsonErrorFor(w http.ResponseWriter, err error) {
	api.JSONError(w, err, jsonStatus(err))
}
