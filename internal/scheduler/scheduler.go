package scheduler

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shaiso/Buffy/internal/domain"
	"github.com/shaiso/Buffy/internal/telemetry"
)

// SubscriptionStore — подписки и пакетная запись tier'ов.
type SubscriptionStore interface {
	FindAllActive(ctx context.Context) ([]domain.Subscription, error)
	UpdateScheduleTiers(ctx context.Context, updates []domain.TierUpdate) error
}

// MetricsStore — история метрик импорта.
type MetricsStore interface {
	FindBySubscription(ctx context.Context, subscriptionID int64) ([]domain.SubscriptionMetrics, error)
}

// Scheduler — адаптивный планировщик: понижает tier подписок,
// которые подряд не приносят новых items.
type Scheduler struct {
	subscriptions SubscriptionStore
	metrics       MetricsStore
	logger        *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Subscriptions SubscriptionStore
	Metrics       MetricsStore
	Logger        *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		subscriptions: cfg.Subscriptions,
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

// UpdateReport — итог прохода Update.
type UpdateReport struct {
	Active     int                 `json:"active"`
	Skipped    int                 `json:"skipped"`
	Downgraded []domain.TierUpdate `json:"downgraded"`
}

// Update пересчитывает tier'ы всех активных подписок.
//
// 1. Для каждой подписки читает историю метрик
// 2. Считает подряд идущие промахи от самой свежей попытки
// 3. Промахов больше MaxMisses — tier понижается на один
// 4. Все изменения записываются одним пакетом
//
// Проход best-effort: любая ошибка (и panic) логируется; возвращается
// только для вызывающего (CLI), изменения до сбоя не записываются.
func (s *Scheduler) Update(ctx context.Context) (report UpdateReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler update panicked: %v", r)
		}
		if err != nil {
			s.logger.Error("schedule update failed", "error", err)
		}
	}()

	active, err := s.subscriptions.FindAllActive(ctx)
	if err != nil {
		return report, fmt.Errorf("find active subscriptions: %w", err)
	}
	report.Active = len(active)

	for i := range active {
		sub := &active[i]
		logger := telemetry.WithSubscriptionID(s.logger, sub.ID)

		current, ok := sub.Tier()
		if !ok {
			logger.Warn("unknown schedule tier, skipping", "schedule_tier", sub.ScheduleTier)
			report.Skipped++
			continue
		}

		metrics, err := s.metrics.FindBySubscription(ctx, sub.ID)
		if err != nil {
			return report, fmt.Errorf("find metrics of subscription %d: %w", sub.ID, err)
		}

		next, misses := Reschedule(current, metrics)
		if next == current {
			logger.Debug("import misses within limit",
				"schedule_tier", current.String(),
				"misses", misses,
				"max_misses", current.MaxMisses(),
			)
			continue
		}

		logger.Info("downgrading schedule tier",
			"from", current.String(),
			"to", next.String(),
			"misses", misses,
			"max_misses", current.MaxMisses(),
		)
		report.Downgraded = append(report.Downgraded, domain.TierUpdate{
			Tier:           next.String(),
			SubscriptionID: sub.ID,
		})
		telemetry.TierDowngradesTotal.WithLabelValues(current.String(), next.String()).Inc()
	}

	if len(report.Downgraded) == 0 {
		s.logger.Info("schedule update completed", "active", report.Active, "downgraded", 0)
		return report, nil
	}

	if err := s.subscriptions.UpdateScheduleTiers(ctx, report.Downgraded); err != nil {
		return report, fmt.Errorf("update schedule tiers: %w", err)
	}

	s.logger.Info("schedule update completed",
		"active", report.Active,
		"downgraded", len(report.Downgraded),
		"skipped", report.Skipped,
	)
	return report, nil
}

// Reschedule вычисляет tier подписки по истории метрик.
//
// Промахи считаются от самой свежей метрики и только подряд: первая
// метрика, не являющаяся промахом на current, останавливает счёт.
// Возвращает новый tier (или current) и число промахов.
func Reschedule(current domain.ScheduleTier, metrics []domain.SubscriptionMetrics) (domain.ScheduleTier, int) {
	sorted := slices.Clone(metrics)
	slices.SortStableFunc(sorted, func(a, b domain.SubscriptionMetrics) int {
		return cmp.Compare(b.ImportedAt.UnixNano(), a.ImportedAt.UnixNano())
	})

	var misses int
	for i := range sorted {
		if !sorted[i].IsMiss(current) {
			break
		}
		misses++
	}

	if misses > current.MaxMisses() {
		return current.Next(), misses
	}
	return current, misses
}
