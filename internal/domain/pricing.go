package domain

import "github.com/shopspring/decimal"

// Totals is the price breakdown shown at checkout.
type Totals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountPercent    decimal.Decimal `json:"discount_percent"`
	Discount           decimal.Decimal `json:"discount"`
	DiscountedSubtotal decimal.Decimal `json:"discounted_subtotal"`
	PlatformFee        decimal.Decimal `json:"platform_fee"`
	Tax                decimal.Decimal `json:"tax"`
	DeliveryFee        decimal.Decimal `json:"delivery_fee"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
}

// PricedCart is a reconciled snapshot together with the promo and totals it was priced with.
type PricedCart struct {
	Snapshot *CartSnapshot `json:"snapshot"`
	Promo    PromoCode     `json:"promo"`
	Totals   Totals        `json:"totals"`
}

// ProductIDs lists the distinct products of the cart in line order.
func (p PricedCart) ProductIDs() []string {
	if p.Snapshot == nil {
		return nil
	}
	seen := make(map[string]bool, len(p.Snapshot.Lines))
	ids := make([]string, 0, len(p.Snapshot.Lines))
	for _, l := range p.Snapshot.Lines {
		if l.ProductID == "" || seen[l.ProductID] {
			continue
		}
		seen[l.ProductID] = true
		ids = append(ids, l.ProductID)
	}
	return ids
}
