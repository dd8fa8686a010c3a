package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError converts a domain error into its HTTP status.
func handleError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Code:   "validation_failed",
			Fields: verr.Fields,
		})
		return
	}

	var (
		httpStatus int
		code       string
		message    = err.Error()
	)
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		httpStatus, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		httpStatus, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		httpStatus, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidOperation):
		httpStatus, code = http.StatusConflict, "invalid_operation"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus, code, message = http.StatusGatewayTimeout, "timeout", "request timed out"
	case errors.Is(err, domain.ErrPersistence):
		log.Printf("persistence failure: %v", err)
		httpStatus, code, message = http.StatusServiceUnavailable, "service_unavailable", persistenceMessage(err)
	default:
		log.Printf("unhandled error: %v", err)
		httpStatus, code, message = http.StatusInternalServerError, "internal_error", "internal server error"
	}

	respondError(w, httpStatus, code, message)
}

// persistenceMessage names the failed operation so the user knows what to
// retry. The driver error stays in the log.
func persistenceMessage(err error) string {
	var perr *domain.PersistenceError
	if errors.As(err, &perr) && perr.Op != "" {
		return perr.Op + " failed: storage temporarily unavailable, please retry"
	}
	return "storage temporarily unavailable, please retry"
}
