package http

import (
	"encoding/json"
	"net/http"

	"github.com/ahalstead/caseng/logkeys"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// StartCaseHandler creates a HandlerFunc that starts a case of the
// named definition. The request body, if present, is the JSON input
// data for the case.
func StartCaseHandler(starter CaseStarter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		name := flow.Param(r.Context(), "name")
		logger = logger.With(logkeys.DefinitionName, name)

		var input map[string]any
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
				logger.Info(logkeys.Message, "decoding input", logkeys.Error, err)
				jsonErrorFor(w, err)
				return
			}
		}

		logger.Debug(logkeys.Message, "starting case")
		caseID, err := starter.StartCase(r.Context(), name, input)
		if err != nil {
			logger.Info(logkeys.Message, "starting case", logkeys.Error, err)
			jsonErrorFor(w, err)
			return
		}

		jsonResp := &struct {
			CaseID string `json:"case_id"`
		}{CaseID: caseID}
		if err = json.NewEncoder(w).Encode(jsonResp); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

// GetCaseHandler creates a HandlerFunc returning a case snapshot and
// its work item snapshots.
func GetCaseHandler(getter CaseGetter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		caseID := flow.Param(r.Context(), "id")

		caseSnap, itemSnaps, err := getter.GetCase(r.Context(), caseID)
		if err != nil {
			logger.Info(logkeys.Message, "retrieving case", logkeys.CaseID, caseID, logkeys.Error, err)
			jsonErrorFor(w, err)
			return
		}

		jsonResp := &struct {
			Case  any `json:"case"`
			Items any `json:"work_items"`
		}{Case: caseSnap, Items: itemSnaps}
		if err = json.NewEncoder(w).Encode(jsonResp); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

// GetEventsHandler creates a HandlerFunc returning the audit trail of
// a case in emit order.
func GetEventsHandler(getter CaseGetter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		caseID := flow.Param(r.Context(), "id")

		events, err := getter.Events(r.Context(), caseID)
		if err != nil {
			logger.Info(logkeys.Message, "retrieving events", logkeys.CaseID, caseID, logkeys.Error, err)
			jsonErrorFor(w, err)
			return
		}
		if err = json.NewEncoder(w).Encode(events); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

// CancelCaseHandler creates a HandlerFunc that cancels a case. The
// optional "reason" query parameter is recorded with the cancellation.
func CancelCaseHandler(ctrl CaseController, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		caseID := flow.Param(r.Context(), "id")
		reason := r.URL.Query().Get("reason")
		if reason == "" {
			reason = "cancelled via api"
		}

		logger.Debug(logkeys.Message, "cancelling case", logkeys.CaseID, caseID)
		if err := ctrl.CancelCase(r.Context(), caseID, reason); err != nil {
			logger.Info(logkeys.Message, "cancelling case", logkeys.CaseID, caseID, logkeys.Error, err)
			jsonErrorFor(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SuspendCaseHandler creates a HandlerFunc that suspends a case.
func SuspendCaseHandler(ctrl CaseController, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		caseID := flow.Param(r.Context(), "id")
		if err := ctrl.SuspendCase(r.Context(), caseID); err != nil {
			logger.Info(logkeys.Message, "suspending case", logkeys.CaseID, caseID, logkeys.Error, err)
			jsonErrorFor(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ResumeCaseHandler creates a HandlerFunc that resumes a suspended case.
func ResumeCaseHandler(ctrl CaseController, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		caseID := flow.Param(r.Context(), "id")
		if err := ctrl.ResumeCase(r.Context(), caseID); err != nil {
			logger.Info(logkeys.Message, "resuming case", logkeys.CaseID, caseID, logkeys.Error, err)
			jsonErrorFor(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// StatusHandler creates a HandlerFunc reporting engine liveness and
// the running case counter.
func StatusHandler(e APIEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jsonResp := &struct {
			Status    string `json:"status"`
			CaseCount uint64 `json:"case_count"`
		}{Status: e.Status(), CaseCount: e.CaseCount()}
		json.NewEncoder(w).Encode(jsonResp)
	}
}
