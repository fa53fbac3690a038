package storeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/session"
	"github.com/shopspring/decimal"
)

// GatewayOrder is the payment-provider order created server-side for one attempt.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
}

type gatewayOrderRequest struct {
	Amount int64 `json:"amount"`
}

type gatewayOrderResponse struct {
	envelope
	Order struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"order"`
}

// CreateGatewayOrder asks the commerce API to open a payment-gateway order for amount minor units.
func (c *Client) CreateGatewayOrder(ctx context.Context, sess session.Session, amount int64) (*GatewayOrder, error) {
	var resp gatewayOrderResponse
	if err := c.do(ctx, sess, http.MethodPost, "/web/create-razorpay-order", gatewayOrderRequest{Amount: amount}, &resp); err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}
	return &GatewayOrder{
		ID:       resp.Order.ID,
		Amount:   resp.Order.Amount,
		Currency: resp.Order.Currency,
	}, nil
}

type VerifyPaymentRequest struct {
	PaymentID      string   `json:"razorpay_payment_id"`
	GatewayOrderID string   `json:"razorpay_order_id"`
	Signature      string   `json:"razorpay_signature"`
	Amount         int64    `json:"amount"`
	AddressID      string   `json:"addressId"`
	ProductIDs     []string `json:"product_id"`
	Currency       string   `json:"currency"`
}

// VerifyPayment has the commerce API check the gateway signature for the amount and address.
func (c *Client) VerifyPayment(ctx context.Context, sess session.Session, req VerifyPaymentRequest) error {
	var resp envelope
	if err := c.do(ctx, sess, http.MethodPost, "/web/verify-payment", req, &resp); err != nil {
		return fmt.Errorf("verify payment %s: %w", req.PaymentID, err)
	}
	return nil
}

type CreateOrderRequest struct {
	PaymentID   string
	AddressID   string
	TotalAmount decimal.Decimal
	OrderStatus domain.OrderStatus
	PaymentMode string
	GST         decimal.Decimal
	Discount    decimal.Decimal
	CouponCode  string
	Notes       string
}

type createOrderBody struct {
	PaymentID   string      `json:"paymentId"`
	AddressID   string      `json:"addressId"`
	TotalAmount json.Number `json:"totalAmount"`
	OrderStatus string      `json:"orderStatus"`
	PaymentMode string      `json:"paymentMode"`
	GST         json.Number `json:"gst"`
	Discount    json.Number `json:"discount"`
	CouponCode  string      `json:"couponCode"`
	Notes       string      `json:"notes"`
}

type createOrderResponse struct {
	envelope
	Order struct {
		ID          string          `json:"_id"`
		PaymentID   string          `json:"paymentId"`
		AddressID   string          `json:"addressId"`
		TotalAmount decimal.Decimal `json:"totalAmount"`
		Status      string          `json:"orderStatus"`
		CreatedAt   string          `json:"createdAt"`
	} `json:"order"`
}

// CreateOrder persists the order after verified payment.
func (c *Client) CreateOrder(ctx context.Context, sess session.Session, req CreateOrderRequest) (*domain.Order, error) {
	body := createOrderBody{
		PaymentID:   req.PaymentID,
		AddressID:   req.AddressID,
		TotalAmount: json.Number(req.TotalAmount.StringFixed(2)),
		OrderStatus: string(req.OrderStatus),
		PaymentMode: req.PaymentMode,
		GST:         json.Number(req.GST.StringFixed(2)),
		Discount:    json.Number(req.Discount.StringFixed(2)),
		CouponCode:  req.CouponCode,
		Notes:       req.Notes,
	}
	var resp createOrderResponse
	if err := c.do(ctx, sess, http.MethodPost, "/web/create-order", body, &resp); err != nil {
		return nil, fmt.Errorf("create order for payment %s: %w", req.PaymentID, err)
	}

	o := &domain.Order{
		ID:          resp.Order.ID,
		PaymentID:   resp.Order.PaymentID,
		AddressID:   resp.Order.AddressID,
		TotalAmount: resp.Order.TotalAmount,
		Status:      domain.OrderStatus(resp.Order.Status),
		CreatedAt:   parseTimestamp(resp.Order.CreatedAt),
	}
	if o.PaymentID == "" {
		o.PaymentID = req.PaymentID
	}
	if o.AddressID == "" {
		o.AddressID = req.AddressID
	}
	if o.TotalAmount.IsZero() {
		o.TotalAmount = req.TotalAmount
	}
	if o.Status == "" {
		o.Status = req.OrderStatus
	}
	return o, nil
}

// parseTimestamp reads an RFC 3339 timestamp. Anything else yields the zero time.
func parseTimestamp(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
