package httpapi

import (
	"encoding/json"
	"net/http"

	"vllmd/internal/store"
	"vllmd/internal/supervisor"
	"vllmd/internal/tasks"
	"vllmd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeServiceError maps well-known service errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case supervisor.IsConflict(err) || tasks.IsConflict(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	case supervisor.IsNotFound(err) || tasks.IsNotFound(err) || store.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	// Preconditions are conflicts too; the message tells them apart.
	case supervisor.IsPrecondition(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		if he, ok := err.(HTTPError); ok {
			writeJSONError(w, he.StatusCode(), he.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
