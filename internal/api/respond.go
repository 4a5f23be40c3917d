package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hackgods/dental-clinic-portal/internal/apperr"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: could not parse JSON body", apperr.ErrValidation)
	}
	return nil
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrDuplicateEmail),
		errors.Is(err, apperr.ErrSlotConflict),
		errors.Is(err, apperr.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeAppError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "path", r.URL.Path, "request_id", GetRequestID(r.Context()))
		writeError(w, status, "internal_error", "something went wrong")
		return
	}
	if errors.Is(err, apperr.ErrInvalidCredentials) {
		writeError(w, status, apperr.Kind(err), "email or password is incorrect")
		return
	}
	writeError(w, status, apperr.Kind(err), err.Error())
}
