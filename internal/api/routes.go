package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Health
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Subscriptions
	mux.Handle("GET /api/v1/subscriptions", chain(http.HandlerFunc(h.ListSubscriptions)))
	mux.Handle("GET /api/v1/subscriptions/{id}", chain(http.HandlerFunc(h.GetSubscription)))
	mux.Handle("GET /api/v1/subscriptions/{id}/metrics", chain(http.HandlerFunc(h.GetSubscriptionMetrics)))

	// Import cycles
	mux.Handle("POST /api/v1/import", chain(http.HandlerFunc(h.RunImport)))
	mux.Handle("GET /api/v1/import/last", chain(http.HandlerFunc(h.LastImport)))

	// Schedule
	mux.Handle("POST /api/v1/schedule/update", chain(http.HandlerFunc(h.UpdateSchedule)))
}
