package storeapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/session"
)

type addressDTO struct {
	ID           string `json:"_id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
	Country      string `json:"country"`
	IsDefault    bool   `json:"isDefault"`
}

type addressResponse struct {
	envelope
	Data []addressDTO `json:"data"`
}

// GetAddresses lists the saved delivery addresses of the session user.
func (c *Client) GetAddresses(ctx context.Context, sess session.Session) ([]domain.DeliveryAddress, error) {
	var resp addressResponse
	if err := c.do(ctx, sess, http.MethodGet, "/web/get-address", nil, &resp); err != nil {
		return nil, fmt.Errorf("get addresses: %w", err)
	}
	out := make([]domain.DeliveryAddress, 0, len(resp.Data))
	for _, a := range resp.Data {
		out = append(out, domain.DeliveryAddress{
			ID:         a.ID,
			Name:       a.Name,
			Phone:      a.Phone,
			Line1:      a.AddressLine1,
			Line2:      a.AddressLine2,
			City:       a.City,
			State:      a.State,
			PostalCode: a.Pincode,
			Country:    a.Country,
			IsDefault:  a.IsDefault,
		})
	}
	return out, nil
}
