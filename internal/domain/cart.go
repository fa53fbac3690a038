package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Attribute is one selected option of a cart line, e.g. size=50ml.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type CartLine struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	VariantID  string          `json:"variant_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	Attributes []Attribute     `json:"attributes,omitempty"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

// Charges are supplied by the server for a loaded snapshot and never recomputed locally.
type Charges struct {
	PlatformFee decimal.Decimal `json:"platform_fee"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
}

func (c Charges) Total() decimal.Decimal {
	return c.PlatformFee.Add(c.Tax).Add(c.DeliveryFee)
}

// CartSnapshot represents the cart as last reported by the commerce API,
// possibly adjusted by optimistic edits that are not yet reconciled.
type CartSnapshot struct {
	Lines      []CartLine      `json:"lines"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	ItemCount  int             `json:"item_count"`
	Charges    Charges         `json:"charges"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

func (s *CartSnapshot) IsEmpty() bool {
	return s == nil || len(s.Lines) == 0
}

// FindLine returns the index of the line with the given id or -1.
func (s *CartSnapshot) FindLine(lineID string) int {
	if s == nil {
		return -1
	}
	for i := range s.Lines {
		if s.Lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

// SumLineTotals is what Subtotal must equal once the snapshot is reconciled.
func (s *CartSnapshot) SumLineTotals() decimal.Decimal {
	sum := decimal.Zero
	if s == nil {
		return sum
	}
	for _, l := range s.Lines {
		sum = sum.Add(l.LineTotal)
	}
	return sum
}

// Clone returns a deep copy so callers can mutate lines without sharing backing arrays.
func (s *CartSnapshot) Clone() *CartSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Lines = make([]CartLine, len(s.Lines))
	for i, l := range s.Lines {
		l.Attributes = append([]Attribute(nil), l.Attributes...)
		c.Lines[i] = l
	}
	return &c
}
