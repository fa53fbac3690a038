package domain

type CheckoutStatus string

const (
	CheckoutStatusInitiated           CheckoutStatus = "INITIATED"
	CheckoutStatusGatewayOrderCreated CheckoutStatus = "GATEWAY_ORDER_CREATED"
	CheckoutStatusAwaitingPayment     CheckoutStatus = "AWAITING_PAYMENT"
	CheckoutStatusPaymentAuthorized   CheckoutStatus = "PAYMENT_AUTHORIZED"
	CheckoutStatusVerified            CheckoutStatus = "VERIFIED"
	CheckoutStatusCompleted           CheckoutStatus = "COMPLETED"
	CheckoutStatusCancelled           CheckoutStatus = "CANCELLED"
	CheckoutStatusFailed              CheckoutStatus = "FAILED"
)

var checkoutTransitions = map[CheckoutStatus]CheckoutStatus{
	CheckoutStatusInitiated:           CheckoutStatusGatewayOrderCreated,
	CheckoutStatusGatewayOrderCreated: CheckoutStatusAwaitingPayment,
	CheckoutStatusAwaitingPayment:     CheckoutStatusPaymentAuthorized,
	CheckoutStatusPaymentAuthorized:   CheckoutStatusVerified,
	CheckoutStatusVerified:            CheckoutStatusCompleted,
}

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusCancelled || s == CheckoutStatusFailed
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether an attempt may move from one status to another.
// Attempts only move forward one step, and any non-terminal attempt may be cancelled or fail.
func CanTransitionTo(from, to CheckoutStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == CheckoutStatusCancelled || to == CheckoutStatusFailed {
		return true
	}
	return checkoutTransitions[from] == to
}
