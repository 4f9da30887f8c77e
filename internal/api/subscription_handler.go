package api

import (
	"net/http"
)

// ListSubscriptions возвращает список подписок.
// GET /api/v1/subscriptions?limit=...
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r.URL.Query().Get("limit"))
	if !ok {
		BadRequest(w, "invalid limit")
		return
	}

	subs, err := h.subscriptions.List(r.Context(), limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, subs, len(subs))
}

// GetSubscription возвращает подписку по ID.
// GET /api/v1/subscriptions/{id}
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		BadRequest(w, "invalid subscription id")
		return
	}

	sub, err := h.subscriptions.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "subscription not found") {
		return
	}

	Success(w, sub)
}

// GetSubscriptionMetrics возвращает историю импорта подписки.
// GET /api/v1/subscriptions/{id}/metrics
func (h *Handler) GetSubscriptionMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		BadRequest(w, "invalid subscription id")
		return
	}

	sub, err := h.subscriptions.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "subscription not found") {
		return
	}

	metrics, err := h.metrics.FindBySubscription(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, MetricsFromDomain(*sub, metrics))
}
