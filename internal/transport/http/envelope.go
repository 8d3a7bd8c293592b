package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/domain"
)

const (
	codeValidationError      = "VALIDATION_ERROR"
	codeSessionNotFound      = "SESSION_NOT_FOUND"
	codeSessionInactive      = "SESSION_INACTIVE"
	codeHoldNotFound         = "HOLD_NOT_FOUND"
	codeHoldExpired          = "HOLD_EXPIRED"
	codeInsufficientCapacity = "INSUFFICIENT_CAPACITY"
	codeInvalidState         = "INVALID_STATE"
	codeNotFound             = "NOT_FOUND"
	codeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	codeRateLimited          = "RATE_LIMITED"
	codeInternalError        = "INTERNAL_ERROR"
)

// envelope is the uniform response shape on every endpoint.
type envelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func writeFailure(w http.ResponseWriter, status int, code, message string, data any) {
	writeJSON(w, status, envelope{
		Success:   false,
		Message:   message,
		Data:      data,
		Error:     code,
		Timestamp: time.Now().UTC(),
	})
}

// writeJSON serializes before touching the ResponseWriter, so a failed
// encode can still produce a whole envelope instead of a truncated one.
func writeJSON(w http.ResponseWriter, status int, body envelope) {
	buf, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		buf = []byte(`{"success":false,"message":"internal error","error":"INTERNAL_ERROR"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// writeDomainError translates the error taxonomy into the envelope and
// status-code contract. Capacity denials carry the observed availability
// so callers can show an accurate figure.
func writeDomainError(w http.ResponseWriter, err error) {
	var capErr *domain.CapacityError
	if errors.As(err, &capErr) {
		writeFailure(w, http.StatusConflict, codeInsufficientCapacity, capErr.Error(), map[string]int{
			"availableCapacity": capErr.Available,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrQuantityMismatch),
		errors.Is(err, domain.ErrSessionNameRequired),
		errors.Is(err, domain.ErrInvalidCapacity),
		errors.Is(err, domain.ErrInvalidID):
		writeFailure(w, http.StatusBadRequest, codeValidationError, err.Error(), nil)
	case errors.Is(err, domain.ErrSessionNotFound):
		writeFailure(w, http.StatusNotFound, codeSessionNotFound, err.Error(), nil)
	case errors.Is(err, domain.ErrHoldNotFound):
		writeFailure(w, http.StatusNotFound, codeHoldNotFound, err.Error(), nil)
	case errors.Is(err, domain.ErrSessionInactive):
		writeFailure(w, http.StatusConflict, codeSessionInactive, err.Error(), nil)
	case errors.Is(err, domain.ErrInsufficientCapacity):
		writeFailure(w, http.StatusConflict, codeInsufficientCapacity, err.Error(), nil)
	case errors.Is(err, domain.ErrHoldExpired):
		writeFailure(w, http.StatusConflict, codeHoldExpired, err.Error(), nil)
	case errors.Is(err, domain.ErrHoldNotActive),
		errors.Is(err, domain.ErrCapacityBelowUsage):
		writeFailure(w, http.StatusConflict, codeInvalidState, err.Error(), nil)
	default:
		writeFailure(w, http.StatusInternalServerError, codeInternalError, "internal error", nil)
	}
}

// NotFoundHandler returns an enveloped 404 for unknown routes.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, codeNotFound, "not found", nil)
	})
}
