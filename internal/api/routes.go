package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Compress)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// The websocket upgrade hijacks the connection, which
	// http.TimeoutHandler's response writer cannot do, so the timeout
	// applies to every route except /v1/ws.
	r.Group(func(r chi.Router) {
		r.Use(m.Timeout(15 * time.Second))

		// Health endpoints
		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)

		// v1 API routes
		r.Route("/v1", func(r chi.Router) {
			// Listings
			r.Route("/listings", func(r chi.Router) {
				r.Get("/", h.ListListings)
				r.Post("/", h.CreateListing)
				r.Get("/{id}", h.GetListing)
				r.Patch("/{id}", h.UpdateListing)
				r.Delete("/{id}", h.RemoveListing)
				r.Post("/{id}/buy", h.BuyNFT)
			})

			// Statistics
			r.Route("/stats", func(r chi.Router) {
				r.Get("/live", h.GetLiveStats)
				r.Get("/sold", h.GetSoldStats)
			})

			// Sale history
			r.Get("/sales/recent", h.GetRecentSales)

			// Admin
			r.Route("/admin", func(r chi.Router) {
				r.Get("/fees", h.GetFeeInfo)
				r.Put("/fee-rate", h.SetFeeRate)
				r.Post("/withdraw", h.WithdrawFees)
			})
		})
	})

	// Live updates
	r.Get("/v1/ws", h.HandleWebSocket)

	return r
}
