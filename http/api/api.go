// Package api contains API response helpers.
package api

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Err string `json:"error"`
}

// JSONError writes err to w as a JSON error envelope with statusCode.
// A non-positive statusCode falls back to 500.
func JSONError(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	if statusCode < 1 {
		statusCode = http.StatusInternalServerError
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(&errorResponse{Err: err.Error()})
}
