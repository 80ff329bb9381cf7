package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"payflow/internal/core/domain"
)

// ErrorResponse is a standard structure for returning errors in JSON format.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write json response", "error", err)
	}
}

// writeJSONError sends {"error": message} with the given status.
func writeJSONError(w http.ResponseWriter, message string, status int, logger *slog.Logger) {
	writeJSON(w, status, ErrorResponse{Error: message}, logger)
}

var (
	badRequestErrors = []error{
		domain.ErrInvalidAmount,
		domain.ErrUnsupportedCurrency,
		domain.ErrUnsupportedMethod,
		domain.ErrInvalidCard,
		domain.ErrInvalidCaptureMode,
		domain.ErrInvalidRefundAmount,
		domain.ErrInvalidPeriod,
		domain.ErrInvalidLookback,
		domain.ErrInvalidFinancialYear,
		domain.ErrMissingField,
		domain.ErrIdempotencyKeyReused,
	}
	notFoundErrors = []error{
		domain.ErrOrderNotFound,
		domain.ErrPaymentNotFound,
		domain.ErrMerchantNotFound,
		domain.ErrAPIKeyNotFound,
		domain.ErrTransactionNotFound,
	}
	conflictErrors = []error{
		domain.ErrOrderAlreadyPaid,
		domain.ErrOrderExpired,
		domain.ErrInvalidTransition,
		domain.ErrRefundExceedsBalance,
		domain.ErrConcurrentUpdate,
		domain.ErrMerchantExists,
		domain.ErrIdempotencyKeyUsed,
	}
	unavailableErrors = []error{
		domain.ErrStorageUnavailable,
		domain.ErrBrokerUnavailable,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// statusFor maps a service error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case isAny(err, badRequestErrors):
		return http.StatusBadRequest
	case isAny(err, notFoundErrors):
		return http.StatusNotFound
	case isAny(err, conflictErrors):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrMerchantInactive):
		return http.StatusForbidden
	case isAny(err, unavailableErrors):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError reports a service error. Client errors carry the error text, which for
// state conflicts includes the current state; server errors are logged and hidden.
func writeServiceError(w http.ResponseWriter, err error, logger *slog.Logger) {
	status := statusFor(err)
	switch status {
	case http.StatusServiceUnavailable:
		logger.Warn("temporary failure in external dependency", "error", err)
		writeJSONError(w, "service temporarily unavailable", status, logger)
	case http.StatusInternalServerError:
		logger.Error("unexpected error", "error", err)
		writeJSONError(w, "internal server error", status, logger)
	default:
		writeJSONError(w, err.Error(), status, logger)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
