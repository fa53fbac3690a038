package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	svc     *service.Storefront
	timeout time.Duration
}

func NewCartHandler(svc *service.Storefront, timeout time.Duration) *CartHandler {
	return &CartHandler{
		svc:     svc,
		timeout: timeout,
	}
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type PromoRequestDTO struct {
	Code string `json:"code"`
}

// CartResponseDTO is the displayed cart with its totals.
type CartResponseDTO struct {
	Status          cart.Status                  `json:"status"`
	Snapshot        *domain.CartSnapshot         `json:"snapshot,omitempty"`
	Stale           bool                         `json:"stale"`
	Promo           domain.PromoCode             `json:"promo"`
	PromoInput      string                       `json:"promo_input"`
	Banner          string                       `json:"banner,omitempty"`
	InFlight        map[string]cart.MutationKind `json:"in_flight,omitempty"`
	Totals          domain.Totals                `json:"totals"`
	CheckoutEnabled bool                         `json:"checkout_enabled"`
	PromoApplied    *bool                        `json:"promo_applied,omitempty"`
}

func toCartResponse(s cart.State) CartResponseDTO {
	return CartResponseDTO{
		Status:          s.Status,
		Snapshot:        s.Snapshot,
		Stale:           s.Stale,
		Promo:           s.Promo,
		PromoInput:      s.PromoInput,
		Banner:          s.Banner,
		InFlight:        s.InFlight,
		Totals:          s.Totals(),
		CheckoutEnabled: !s.Mutating() && !s.Stale && !s.Snapshot.IsEmpty(),
	}
}

// respondCart answers with the reconciled cart. Failures the cart recovers from by
// reloading are reported through the banner, not the status code.
func respondCart(w http.ResponseWriter, r *http.Request, s cart.State, err error) {
	if err != nil && !recoverable(err) {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(s))
}

func recoverable(err error) bool {
	return errors.Is(err, domain.ErrNetwork) || errors.Is(err, domain.ErrServer)
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := getSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	s, err := h.svc.Cart(sess).LoadCart(ctx)
	respondCart(w, r, s, err)
}

// PATCH /api/v1/cart/lines/{lineID}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := getSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	lineID := chi.URLParam(r, "lineID")
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	s, err := h.svc.Cart(sess).ChangeQuantity(ctx, lineID, *req.Quantity)
	respondCart(w, r, s, err)
}

// DELETE /api/v1/cart/lines/{lineID}
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := getSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	s, err := h.svc.Cart(sess).RemoveLine(ctx, chi.URLParam(r, "lineID"))
	respondCart(w, r, s, err)
}

// PUT /api/v1/cart/promo-input
func (h *CartHandler) SetPromoInput(w http.ResponseWriter, r *http.Request) {
	sess, ok := getSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	var req PromoRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(h.svc.Cart(sess).SetPromoInput(req.Code)))
}

// POST /api/v1/cart/promo
func (h *CartHandler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	sess, ok := getSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	var req PromoRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s, applied := h.svc.Cart(sess).ApplyPromoCode(req.Code)
	resp := toCartResponse(s)
	resp.PromoApplied = &applied
	respondJSON(w, http.StatusOK, resp)
}

// DELETE /api/v1/cart/promo
func (h *CartHandler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	sess, ok := getSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(h.svc.Cart(sess).RemovePromoCode()))
}
