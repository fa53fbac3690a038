package domain

import "github.com/shopspring/decimal"

// PromoCode is a client-side discount. At most one is applied at a time.
type PromoCode struct {
	Code    string          `json:"code,omitempty"`
	Percent decimal.Decimal `json:"percent"`
	Applied bool            `json:"applied"`
}
