package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a currency amount to integer minor units, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// PaymentSession is a gateway order opened for one checkout attempt.
type PaymentSession struct {
	AttemptID      string `json:"attempt_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeFailed    OutcomeKind = "failed"
)

// PaymentOutcome is the tagged result delivered by the payment widget.
// PaymentID, GatewayOrderID and Signature are set for OutcomeSucceeded only;
// Reason is set for OutcomeFailed.
type PaymentOutcome struct {
	Kind           OutcomeKind `json:"kind"`
	PaymentID      string      `json:"payment_id,omitempty"`
	GatewayOrderID string      `json:"gateway_order_id,omitempty"`
	Signature      string      `json:"signature,omitempty"`
	Reason         string      `json:"reason,omitempty"`
}
