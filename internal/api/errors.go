package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-cloud/internal/bridge"
	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/coordinator"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes. Vendor failures use the cloud error codes instead.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
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

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeCommandError maps a refresh or command failure to a response.
func writeCommandError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeError(w, status, code, err.Error())
}

// errorStatus returns the HTTP status and error code for err.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, coordinator.ErrDeviceNotFound),
		errors.Is(err, bridge.ErrUnknownEntity):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, coordinator.ErrNoStatus),
		errors.Is(err, coordinator.ErrPollInFlight):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, coordinator.ErrStopped):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.Is(err, bridge.ErrNotSupported),
		errors.Is(err, bridge.ErrInvalidCommand):
		return http.StatusBadRequest, bridge.ErrorCode(err)
	case errors.Is(err, cloud.ErrInvalidArgument):
		return http.StatusBadRequest, cloud.ErrorCode(err)
	case errors.Is(err, cloud.ErrCommandRejected):
		return http.StatusUnprocessableEntity, cloud.ErrorCode(err)
	case errors.Is(err, cloud.ErrRateLimited):
		return http.StatusTooManyRequests, cloud.ErrorCode(err)
	case errors.Is(err, cloud.ErrDeviceOffline):
		return http.StatusServiceUnavailable, cloud.ErrorCode(err)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, cloud.ErrorCode(err)
	default:
		// auth, network and unclassified vendor errors
		return http.StatusBadGateway, cloud.ErrorCode(err)
	}
}
