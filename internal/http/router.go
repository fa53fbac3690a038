package http

import (
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	MaxRequestBody int64
}

// NewRouter wires the storefront API. Every /api/v1 route requires a bearer credential.
func NewRouter(svc *service.Storefront, cfg RouterConfig) http.Handler {
	cartHandler := NewCartHandler(svc, cfg.RequestTimeout)
	checkoutHandler := NewCheckoutHandler(svc, cfg.RequestTimeout)
	addressHandler := NewAddressHandler(svc, cfg.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	if cfg.MaxRequestBody > 0 {
		r.Use(MaxBodyMiddleware(cfg.MaxRequestBody))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Patch("/lines/{lineID}", cartHandler.UpdateQuantity)
			r.Delete("/lines/{lineID}", cartHandler.RemoveLine)
			r.Put("/promo-input", cartHandler.SetPromoInput)
			r.Post("/promo", cartHandler.ApplyPromo)
			r.Delete("/promo", cartHandler.RemovePromo)
		})

		r.Get("/addresses", addressHandler.ListAddresses)

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkoutHandler.StartCheckout)
			r.Delete("/", checkoutHandler.CancelCheckout)
			r.Post("/{attemptID}/outcome", checkoutHandler.CompleteCheckout)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
