package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-panel/internal/backend"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeRejected     = "rejected"
	ErrCodeUpstream     = "upstream_unavailable"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeTimeout      = "timeout"
)

// Request validation errors.
var (
	errConflictingAreaFilter = errors.New("area_id and unassigned=true are mutually exclusive")
	errInvalidBool           = errors.New("unassigned must be true or false")
	errNotSwitchable         = errors.New("device does not accept commands")
	errOnOffTarget           = errors.New("target_value must be 0 or 1 for this device")
	errLevelTarget           = errors.New("target_value must be between 0 and 100")
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeValidationError writes a 422 error response.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeBackendError translates a failed backend call.
//
// A 401 from the backend means the token is dead: the session is cleared,
// which also stops the sync engine.
func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, action string, err error) {
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrAuth):
		s.logger.Warn("backend rejected session", "action", action, "request_id", r.Context().Value(ctxKeyRequestID))
		s.session.ClearSession()
		writeUnauthorized(w, "session expired")
	case errors.Is(err, backend.ErrNotFound):
		writeNotFound(w, action+": not found")
	case errors.Is(err, backend.ErrRejected) && errors.As(err, &statusErr):
		message := statusErr.Message
		if message == "" {
			message = action + " rejected"
		}
		writeError(w, statusErr.Status, ErrCodeRejected, message)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, action+" timed out")
	default:
		s.logger.Error("backend call failed",
			"action", action,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, action+" failed")
	}
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
// It writes the 400 itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
