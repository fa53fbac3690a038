package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.Any(logger.KeyError, err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// errorStatus maps the error taxonomy onto HTTP. Authentication wins over everything so
// the browser always gets a chance to sign in again.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrLineNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrMutationInFlight):
		return http.StatusConflict, "mutation_in_flight"
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return http.StatusConflict, "checkout_in_progress"
	case errors.Is(err, domain.ErrPaymentCancelled):
		return http.StatusPaymentRequired, "payment_cancelled"
	case errors.Is(err, domain.ErrPaymentFailed):
		return http.StatusPaymentRequired, "payment_failed"
	case errors.Is(err, domain.ErrVerification):
		return http.StatusUnprocessableEntity, "verification_failed"
	case errors.Is(err, domain.ErrPaymentGatewayUnavailable):
		return http.StatusBadGateway, "payment_gateway_unavailable"
	case errors.Is(err, domain.ErrOrderCreation):
		return http.StatusBadGateway, "order_creation_failed"
	case errors.Is(err, domain.ErrOrderPersist):
		return http.StatusBadGateway, "order_persist_failed"
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrServer):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String(logger.KeyRequestID, getRequestID(r.Context())),
			slog.Any(logger.KeyError, err))
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	respondError(w, status, code, message)
}
