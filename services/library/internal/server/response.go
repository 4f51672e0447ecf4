package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"libraryhub/services/library/internal/app"
)

// envelope is the response shape shared by every API endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Length  *int   `json:"length,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// writeAppError maps an app error kind to a status code. Only persistence
// failures expose the underlying error text.
func writeAppError(w http.ResponseWriter, err error) {
	var appErr *app.Error
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, envelope{
			Success: false,
			Message: "Internal server error",
			Error:   err.Error(),
		})
		return
	}
	body := envelope{Success: false, Message: appErr.Message}
	if appErr.Kind == app.KindPersistence && appErr.Err != nil {
		body.Error = appErr.Err.Error()
	}
	writeJSON(w, statusForKind(appErr.Kind), body)
}

func statusForKind(kind app.Kind) int {
	switch kind {
	case app.KindInvalidArgument, app.KindInvalidState:
		return http.StatusBadRequest
	case app.KindNotFound:
		return http.StatusNotFound
	case app.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
