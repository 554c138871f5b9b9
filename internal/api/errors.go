package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arndt-labs/codesandbox/internal/controller"
)

// Error codes returned in API responses.
const (
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeSessionBusy     = "SESSION_BUSY"
	ErrCodeCreateFailed    = "CREATE_FAILED"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// APIError is the structured body every non-2xx response carries.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// writeAPIError maps a controller error to an HTTP status and a
// structured APIError body, the same mapping table
// internal/api/errors.go's writeAPIError performs over session package
// sentinels.
func writeAPIError(w http.ResponseWriter, err error) {
	apiErr := APIError{Code: ErrCodeInternalError, Message: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, controller.ErrSessionNotFound):
		apiErr.Code = ErrCodeSessionNotFound
		status = http.StatusNotFound
	case errors.Is(err, controller.ErrSessionBusy):
		apiErr.Code = ErrCodeSessionBusy
		status = http.StatusConflict
	case errors.Is(err, controller.ErrCreateFailed):
		apiErr.Code = ErrCodeCreateFailed
		status = http.StatusBadGateway
	}

	writeJSON(w, status, apiErr)
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, APIError{Code: ErrCodeInvalidRequest, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
