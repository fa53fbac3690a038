package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuth       = errors.New("authentication required")
	ErrValidation = errors.New("validation failed")
	ErrNetwork    = errors.New("network error")
	ErrServer     = errors.New("server error")

	ErrMutationInFlight = errors.New("cart mutation already in flight")
	ErrLineNotFound     = errors.New("cart line not found")

	ErrPaymentGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrOrderCreation             = errors.New("payment order creation failed")
	ErrVerification              = errors.New("payment verification failed")
	ErrOrderPersist              = errors.New("order creation failed")
	ErrPaymentCancelled          = errors.New("payment cancelled")
	ErrPaymentFailed             = errors.New("payment failed")
	ErrCheckoutInProgress        = errors.New("checkout already in progress")
	ErrAttemptNotFound           = errors.New("checkout attempt not found")
)

// ServerError is a non-success response from the commerce API.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error: status %d: %s", e.StatusCode, e.Message)
}

func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}
