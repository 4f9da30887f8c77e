package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Buffy/internal/app"
	"github.com/shaiso/Buffy/internal/domain"
	"github.com/shaiso/Buffy/internal/orchestrator"
	"github.com/shaiso/Buffy/internal/scheduler"
)

// SubscriptionReader — чтение подписок.
type SubscriptionReader interface {
	List(ctx context.Context, limit int) ([]domain.Subscription, error)
	GetByID(ctx context.Context, id int64) (*domain.Subscription, error)
}

// MetricsReader — чтение истории импорта.
type MetricsReader interface {
	FindBySubscription(ctx context.Context, subscriptionID int64) ([]domain.SubscriptionMetrics, error)
}

// CycleRunner — ручной запуск цикла импорта.
type CycleRunner interface {
	RunImportCycle(ctx context.Context) (*orchestrator.CycleReport, error)
	LastCycle() *orchestrator.CycleReport
}

// TierUpdater — ручной пересчёт tier'ов.
type TierUpdater interface {
	Update(ctx context.Context) (scheduler.UpdateReport, error)
}

// HealthChecker — состояние процесса.
type HealthChecker interface {
	Health() app.Health
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	subscriptions SubscriptionReader
	metrics       MetricsReader
	cycles        CycleRunner
	tiers         TierUpdater
	health        HealthChecker
	logger        *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Subscriptions SubscriptionReader
	Metrics       MetricsReader
	Cycles        CycleRunner
	Tiers         TierUpdater
	Health        HealthChecker
	Logger        *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Handler{
		subscriptions: cfg.Subscriptions,
		metrics:       cfg.Metrics,
		cycles:        cfg.Cycles,
		tiers:         cfg.Tiers,
		health:        cfg.Health,
		logger:        cfg.Logger,
	}
}

// FromApp собирает Handler из компонентов App.
func FromApp(a *app.App) *Handler {
	return NewHandler(Config{
		Subscriptions: a.Subscriptions,
		Metrics:       a.Metrics,
		Cycles:        a.Orchestrator,
		Tiers:         a.Scheduler,
		Health:        a,
		Logger:        a.Logger,
	})
}
