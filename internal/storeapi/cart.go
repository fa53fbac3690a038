package storeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/session"
	"github.com/shopspring/decimal"
)

type QuantityAction string

const (
	ActionIncrement QuantityAction = "increment"
	ActionDecrement QuantityAction = "decrement"
)

type attributeDTO struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type cartItemDTO struct {
	ID         string              `json:"_id"`
	ProductID  string              `json:"productId"`
	VariantID  string              `json:"variantId"`
	Name       string              `json:"name"`
	Price      decimal.Decimal     `json:"price"`
	Quantity   int                 `json:"quantity"`
	Attributes []attributeDTO      `json:"attributes"`
	Total      decimal.NullDecimal `json:"total"`
}

type cartSummaryDTO struct {
	Subtotal    decimal.NullDecimal `json:"subtotal"`
	ItemCount   *int                `json:"itemCount"`
	PlatformFee decimal.Decimal     `json:"platformFee"`
	GST         decimal.Decimal     `json:"gst"`
	DeliveryFee decimal.Decimal     `json:"deliveryFee"`
	GrandTotal  decimal.NullDecimal `json:"grandTotal"`
}

type cartResponse struct {
	envelope
	Data struct {
		Items   []cartItemDTO  `json:"items"`
		Summary cartSummaryDTO `json:"summary"`
	} `json:"data"`
}

func (r *cartResponse) toSnapshot() *domain.CartSnapshot {
	s := &domain.CartSnapshot{
		Lines: make([]domain.CartLine, 0, len(r.Data.Items)),
		Charges: domain.Charges{
			PlatformFee: r.Data.Summary.PlatformFee,
			Tax:         r.Data.Summary.GST,
			DeliveryFee: r.Data.Summary.DeliveryFee,
		},
	}
	for _, it := range r.Data.Items {
		line := domain.CartLine{
			ID:        it.ID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Name,
			UnitPrice: it.Price,
			Quantity:  it.Quantity,
			LineTotal: it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
		}
		if it.Total.Valid {
			line.LineTotal = it.Total.Decimal
		}
		for _, a := range it.Attributes {
			line.Attributes = append(line.Attributes, domain.Attribute{Key: a.Key, Value: a.Value})
		}
		s.Lines = append(s.Lines, line)
	}

	s.Subtotal = s.SumLineTotals()
	if r.Data.Summary.Subtotal.Valid {
		s.Subtotal = r.Data.Summary.Subtotal.Decimal
	}
	s.ItemCount = len(s.Lines)
	if r.Data.Summary.ItemCount != nil {
		s.ItemCount = *r.Data.Summary.ItemCount
	}
	s.GrandTotal = s.Subtotal.Add(s.Charges.Total())
	if r.Data.Summary.GrandTotal.Valid {
		s.GrandTotal = r.Data.Summary.GrandTotal.Decimal
	}
	return s
}

// GetCart fetches the authoritative cart for the session.
func (c *Client) GetCart(ctx context.Context, sess session.Session) (*domain.CartSnapshot, error) {
	var resp cartResponse
	if err := c.do(ctx, sess, http.MethodGet, "/web/get-cart", nil, &resp); err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	snapshot := resp.toSnapshot()
	snapshot.FetchedAt = c.now()
	return snapshot, nil
}

type quantityUpdateRequest struct {
	Action QuantityAction `json:"action"`
}

// UpdateQuantity moves a cart line one step up or down.
func (c *Client) UpdateQuantity(ctx context.Context, sess session.Session, lineID string, action QuantityAction) error {
	var resp envelope
	path := "/web/quantity-update/" + url.PathEscape(lineID)
	if err := c.do(ctx, sess, http.MethodPatch, path, quantityUpdateRequest{Action: action}, &resp); err != nil {
		return fmt.Errorf("update quantity of line %s: %w", lineID, err)
	}
	return nil
}

type removeFromCartRequest struct {
	VariantID string `json:"variantId"`
}

// RemoveFromCart removes the line holding the given variant.
func (c *Client) RemoveFromCart(ctx context.Context, sess session.Session, variantID string) error {
	var resp envelope
	if err := c.do(ctx, sess, http.MethodPost, "/web/remove-from-cart", removeFromCartRequest{VariantID: variantID}, &resp); err != nil {
		return fmt.Errorf("remove variant %s: %w", variantID, err)
	}
	return nil
}
