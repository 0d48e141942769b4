package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/feeder-core/internal/audit"
	"github.com/nerrad567/feeder-core/internal/auth"
	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/events"
	"github.com/nerrad567/feeder-core/internal/schedule"
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
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeBadGateway   = "bad_gateway"
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

// writeDomainError maps a domain sentinel to a response. Anything
// unrecognised is logged and reported as a 500.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, schedule.ErrScheduleNotFound):
		writeNotFound(w, "schedule not found")
	case errors.Is(err, device.ErrDeviceExists), errors.Is(err, auth.ErrUsernameExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, device.ErrInvalidSerial),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidSettings),
		errors.Is(err, schedule.ErrInvalidSchedule),
		errors.Is(err, schedule.ErrInvalidTime),
		errors.Is(err, audit.ErrInvalidEntry),
		errors.Is(err, events.ErrReservedMessage):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
	}
}
