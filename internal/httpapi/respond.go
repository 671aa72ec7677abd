package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"keygate.io/internal/audit"
	"keygate.io/internal/auth"
	"keygate.io/internal/obs"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{
		Error:     msg,
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

// decodeJSON enforces a strict request body: JSON only, unknown fields
// rejected, one value per request.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	if dec.More() {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// writeServiceError maps auth-core sentinels onto HTTP statuses. Integrity
// failures and unknown errors collapse to a generic 500 response; the full
// error is written to the server log here, never into the response body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAuthFailed):
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	default:
		logInternalError(r, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func logInternalError(r *http.Request, err error) {
	msg := "request failed"
	var integrity *auth.IntegrityError
	if errors.As(err, &integrity) {
		msg = "data integrity error"
	}
	obs.LogEvent(map[string]any{
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"level":      "error",
		"msg":        msg,
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": audit.RequestIDFromContext(r.Context()),
		"error":      err.Error(),
	})
}
