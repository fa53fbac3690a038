package cart

import (
	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeGrandTotal applies the discount to the subtotal only, then adds the
// server-supplied charges unchanged.
func ComputeGrandTotal(s *domain.CartSnapshot, discountPercent decimal.Decimal) domain.Totals {
	pct := clampPercent(discountPercent)
	t := domain.Totals{DiscountPercent: pct}
	if s == nil {
		return t
	}
	t.Subtotal = s.Subtotal
	t.DiscountedSubtotal = s.Subtotal.Mul(hundred.Sub(pct)).Div(hundred)
	t.Discount = t.Subtotal.Sub(t.DiscountedSubtotal)
	t.PlatformFee = s.Charges.PlatformFee
	t.Tax = s.Charges.Tax
	t.DeliveryFee = s.Charges.DeliveryFee
	t.GrandTotal = t.DiscountedSubtotal.Add(s.Charges.Total())
	return t
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
