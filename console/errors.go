package console

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/tokendesk/client"
	"github.com/jmcleod/tokendesk/guard"
	"github.com/jmcleod/tokendesk/session"
	"github.com/jmcleod/tokendesk/storage"
)

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError translates store and client errors into console responses.
// Upstream statuses are passed through so the caller sees what the token
// service said.
func mapError(w http.ResponseWriter, err error) {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.StatusCode, ErrorResponse{Error: apiErr.Message(), Status: apiErr.StatusCode})
	case errors.Is(err, client.ErrNoSession), errors.Is(err, guard.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, session.ErrEmptyToken):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
