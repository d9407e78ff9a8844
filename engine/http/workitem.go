package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ahalstead/caseng/engine"
	"github.com/ahalstead/caseng/logkeys"
	"github.com/ahalstead/caseng/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// ErrUnknownAction is returned for a deadline action other than
// "cancel" or "fail".
var ErrUnknownAction = errors.New("unknown deadline action")

// CompleteItemHandler creates a HandlerFunc that completes an
// executing work item. The request body, if present, is the JSON
// output payload merged into case data.
func CompleteItemHandler(signaler ItemSignaler, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		caseID := flow.Param(r.Context(), "id")
		itemID := flow.Param(r.Context(), "item")
		logger = logger.With(
			logkeys.CaseID, caseID,
			logkeys.WorkItemID, itemID,
		)

		var output map[string]any
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&output); err != nil {
				logger.Info(logkeys.Message, "decoding output", logkeys.Error, err)
				jsonErrorFor(w, err)
				return
			}
		}

		logger.Debug(logkeys.Message, "completing work item")
		if err := signaler.CompleteWorkItem(r.Context(), caseID, itemID, output); err != nil {
			logger.Info(logkeys.Message, "completing work item", logkeys.Error, err)
			jsonErrorFor(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// FailItemHandler creates a HandlerFunc that fails an executing work
// item with the error message in the request body.
func FailItemHandler(signaler ItemSignaler, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		caseID := flow.Param(r.Context(), "id")
		itemID := flow.Param(r.Context(), "item")
		logger = logger.With(
			logkeys.CaseID, caseID,
			logkeys.WorkItemID, itemID,
		)

		body := &struct {
			Error string `json:"error"`
		}{}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(body); err != nil {
				logger.Info(logkeys.Message, "decoding failure", logkeys.Error, err)
				jsonErrorFor(w, err)
				return
			}
		}
		if body.Error == "" {
			body.Error = "failed via api"
		}

		logger.Debug(logkeys.Message, "failing work item")
		if err := signaler.FailWorkItem(r.Context(), caseID, itemID, errors.New(body.Error)); err != nil {
			logger.Info(logkeys.Message, "failing work item", logkeys.Error, err)
			jsonErrorFor(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SuspendItemHandler creates a HandlerFunc that pauses an executing
// work item.
func SuspendItemHandler(signaler ItemSignaler, logger log.Logger) http.HandlerFunc {
	return itemSignalHandler(signaler.SuspendWorkItem, "suspending work item", logger)
}

// ResumeItemHandler creates a HandlerFunc that resumes a suspended
// work item.
func ResumeItemHandler(signaler ItemSignaler, logger log.Logger) http.HandlerFunc {
	return itemSignalHandler(signaler.ResumeWorkItem, "resuming work item", logger)
}

func itemSignalHandler(signal func(ctx context.Context, caseID, itemID string) error, msg string, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		caseID := flow.Param(r.Context(), "id")
		itemID := flow.Param(r.Context(), "item")

		if err := signal(r.Context(), caseID, itemID); err != nil {
			logger.Info(
				logkeys.Message, msg,
				logkeys.CaseID, caseID,
				logkeys.WorkItemID, itemID,
				logkeys.Error, err,
			)
			jsonErrorFor(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeadlineHandler creates a HandlerFunc for the external timer
// service. The "action" query parameter selects the transition:
// "cancel" (default) or "fail".
func DeadlineHandler(signaler ItemSignaler, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		caseID := flow.Param(r.Context(), "id")
		itemID := flow.Param(r.Context(), "item")

		var action engine.DeadlineAction
		switch r.URL.Query().Get("action") {
		case "", "cancel":
			action = engine.DeadlineCancel
		case "fail":
			action = engine.DeadlineFail
		default:
			jsonErrorFor(w, ErrUnknownAction)
			return
		}

		if err := signaler.OnDeadlineExceeded(r.Context(), caseID, itemID, action); err != nil {
			logger.Info(
				logkeys.Message, "deadline exceeded",
				logkeys.CaseID, caseID,
				logkeys.WorkItemID, itemID,
				logkeys.Error, err,
			)
			jsonErrorFor(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeferredChoiceHandler creates a HandlerFunc that commits a deferred
// choice branch by task ID.
func DeferredChoiceHandler(signaler ItemSignaler, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		caseID := flow.Param(r.Context(), "id")
		taskID := flow.Param(r.Context(), "task")

		logger.Debug(
			logkeys.Message, "committing deferred choice",
			logkeys.CaseID, caseID,
			logkeys.TaskID, taskID,
		)
		if err := signaler.TriggerDeferredChoice(r.Context(), caseID, workflow.TaskID(taskID)); err != nil {
			logger.Info(
				logkeys.Message, "committing deferred choice",
				logkeys.CaseID, caseID,
				logkeys.TaskID, taskID,
				logkeys.Error, err,
			)
			jsonErrorFor(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
