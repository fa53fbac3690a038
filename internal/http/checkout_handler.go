package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
)

type CheckoutHandler struct {
	svc     *service.Storefront
	timeout time.Duration
}

func NewCheckoutHandler(svc *service.Storefront, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		svc:     svc,
		timeout: timeout,
	}
}

type StartCheckoutRequestDTO struct {
	AddressID string `json:"address_id"`
}

type PaymentOutcomeRequestDTO struct {
	Kind           domain.OutcomeKind `json:"kind"`
	PaymentID      string             `json:"payment_id"`
	GatewayOrderID string             `json:"gateway_order_id"`
	Signature      string             `json:"signature"`
	Reason         string             `json:"reason"`
}

type OrderResponseDTO struct {
	Order *domain.Order `json:"order"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := getSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	var req StartCheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	params, err := h.svc.StartCheckout(ctx, sess, req.AddressID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, params)
}

// POST /api/v1/checkout/{attemptID}/outcome
func (h *CheckoutHandler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := getSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	var req PaymentOutcomeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	switch req.Kind {
	case domain.OutcomeSucceeded, domain.OutcomeCancelled, domain.OutcomeFailed:
	default:
		respondError(w, http.StatusBadRequest, "invalid_outcome", "kind must be succeeded, cancelled or failed")
		return
	}

	order, err := h.svc.CompleteCheckout(ctx, sess, chi.URLParam(r, "attemptID"), domain.PaymentOutcome{
		Kind:           req.Kind,
		PaymentID:      req.PaymentID,
		GatewayOrderID: req.GatewayOrderID,
		Signature:      req.Signature,
		Reason:         req.Reason,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, OrderResponseDTO{Order: order})
}

// DELETE /api/v1/checkout
func (h *CheckoutHandler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := getSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	if err := h.svc.CancelCheckout(sess); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
