package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
)

type AddressHandler struct {
	svc     *service.Storefront
	timeout time.Duration
}

func NewAddressHandler(svc *service.Storefront, timeout time.Duration) *AddressHandler {
	return &AddressHandler{
		svc:     svc,
		timeout: timeout,
	}
}

type AddressesResponseDTO struct {
	Addresses []domain.DeliveryAddress `json:"addresses"`
}

// GET /api/v1/addresses
func (h *AddressHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, ok := getSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	addrs, err := h.svc.Addresses(ctx, sess)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if addrs == nil {
		addrs = []domain.DeliveryAddress{}
	}
	respondJSON(w, http.StatusOK, AddressesResponseDTO{Addresses: addrs})
}
