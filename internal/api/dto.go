package api

import (
	"strconv"

	"github.com/shaiso/Buffy/internal/domain"
	"github.com/shaiso/Buffy/internal/scheduler"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// MetricsResponse — история импорта подписки и прогноз следующего пересчёта tier.
type MetricsResponse struct {
	Subscription      domain.Subscription          `json:"subscription"`
	Metrics           []domain.SubscriptionMetrics `json:"metrics"`
	ConsecutiveMisses int                          `json:"consecutive_misses"`
	NextTier          string                       `json:"next_tier,omitempty"`
}

// MetricsFromDomain строит MetricsResponse. NextTier пуст для неизвестного tier.
func MetricsFromDomain(sub domain.Subscription, metrics []domain.SubscriptionMetrics) MetricsResponse {
	resp := MetricsResponse{
		Subscription: sub,
		Metrics:      metrics,
	}
	if resp.Metrics == nil {
		resp.Metrics = []domain.SubscriptionMetrics{}
	}

	if tier, ok := sub.Tier(); ok {
		next, misses := scheduler.Reschedule(tier, metrics)
		resp.ConsecutiveMisses = misses
		resp.NextTier = next.String()
	}
	return resp
}

// parseLimit парсит limit с дефолтным значением и верхней границей.
func parseLimit(s string) (int, bool) {
	if s == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxListLimit), true
}

// parseID парсит числовой идентификатор из пути.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}
