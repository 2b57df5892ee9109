package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the core taxonomy. Services wrap these with
// fmt.Errorf("...: %w", ...) so callers can errors.Is against them.
var (
	// ErrValidation covers bad input shape or range.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is the typed absence for missing services, variants,
	// orders, payments and refunds.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for status changes outside the
	// whitelist; state is left unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvariant marks programming-level faults (totals mismatch,
	// refund over balance) that abort before persistence.
	ErrInvariant = errors.New("invariant violation")

	// ErrConflict covers lost races: duplicate order numbers, a held
	// order lock, replayed gateway transactions.
	ErrConflict = errors.New("concurrency conflict")
)

// GatewayError wraps a third-party payment gateway failure and carries the
// raw error payload for audit on the Payment/Refund record.
type GatewayError struct {
	Gateway string
	Code    string
	Message string
	Raw     string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s gateway error [%s]: %s", e.Gateway, e.Code, e.Message)
	}
	return fmt.Sprintf("%s gateway error: %s", e.Gateway, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps taxonomy errors onto HTTP status codes for the API
// layer. Unknown errors are 500s.
func HTTPStatus(err error) int {
	var gw *GatewayError
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvariant):
		return http.StatusUnprocessableEntity
	case errors.As(err, &gw):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
