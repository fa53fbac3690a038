package checkout

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

// PaymentGateway is the third-party payment widget as seen by the checkout flow.
type PaymentGateway interface {
	// Acquire makes the widget available, loading it if it is not already present.
	Acquire(ctx context.Context) error
	// CreateSession opens the widget for a gateway order.
	CreateSession(ctx context.Context, s domain.PaymentSession) (PendingPayment, error)
}

// PendingPayment is an open widget waiting for the user.
type PendingPayment interface {
	// AwaitOutcome blocks until the widget reports success, cancellation or failure,
	// or ctx is done.
	AwaitOutcome(ctx context.Context) (domain.PaymentOutcome, error)
}
