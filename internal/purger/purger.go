package purger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Buffy/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultMaxPostAge   = 90 * 24 * time.Hour
	DefaultMaxUnreadAge = 30 * 24 * time.Hour
	DefaultMaxReadAge   = 7 * 24 * time.Hour
)

// ItemStore — очистка items.
type ItemStore interface {
	MarkIdleForArchive(ctx context.Context, unreadBefore, readBefore time.Time) (int64, error)
	PurgeArchived(ctx context.Context, archivedBefore time.Time) (int64, error)
}

// MetricsStore — очистка метрик.
type MetricsStore interface {
	PurgeOrphaned(ctx context.Context) (int64, error)
}

// Purger удаляет устаревшие items и метрики.
type Purger struct {
	items   ItemStore
	metrics MetricsStore

	maxPostAge   time.Duration
	maxUnreadAge time.Duration
	maxReadAge   time.Duration

	now    func() time.Time
	logger *slog.Logger
}

// Config — конфигурация Purger.
type Config struct {
	Items   ItemStore
	Metrics MetricsStore

	// MaxPostAge — сколько item хранится в архиве (default: 90 дней).
	MaxPostAge time.Duration

	// MaxUnreadAge — через сколько непрочитанный item уходит в архив (default: 30 дней).
	MaxUnreadAge time.Duration

	// MaxReadAge — через сколько прочитанный item уходит в архив (default: 7 дней).
	MaxReadAge time.Duration

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Purger.
func New(cfg Config) *Purger {
	p := &Purger{
		items:        cfg.Items,
		metrics:      cfg.Metrics,
		maxPostAge:   cfg.MaxPostAge,
		maxUnreadAge: cfg.MaxUnreadAge,
		maxReadAge:   cfg.MaxReadAge,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}

	if p.maxPostAge <= 0 {
		p.maxPostAge = DefaultMaxPostAge
	}
	if p.maxUnreadAge <= 0 {
		p.maxUnreadAge = DefaultMaxUnreadAge
	}
	if p.maxReadAge <= 0 {
		p.maxReadAge = DefaultMaxReadAge
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Report — итог Run.
type Report struct {
	MarkedIdle     int64
	PurgedArchived int64
	PurgedOrphaned int64
}

// Run выполняет все шаги очистки.
//
// Сбой шага не отменяет остальные; ошибки объединяются.
func (p *Purger) Run(ctx context.Context) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, fmt.Errorf("purge panicked: %v", r))
		}
		if err != nil {
			p.logger.Error("purge failed", "error", err)
		}
	}()

	var errs []error

	if report.MarkedIdle, err = p.MarkIdlePostsForArchive(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.PurgedArchived, err = p.PurgeArchivedPosts(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.PurgedOrphaned, err = p.PurgeOrphanedMetrics(ctx); err != nil {
		errs = append(errs, err)
	}

	p.logger.Info("purge completed",
		"marked_idle", report.MarkedIdle,
		"purged_archived", report.PurgedArchived,
		"purged_orphaned_metrics", report.PurgedOrphaned,
	)

	return report, errors.Join(errs...)
}

// MarkIdlePostsForArchive архивирует давно непрочитанные и давно прочитанные items.
func (p *Purger) MarkIdlePostsForArchive(ctx context.Context) (int64, error) {
	now := p.now()
	p.logger.Debug("marking idle items for archive",
		"max_unread_age", p.maxUnreadAge,
		"max_read_age", p.maxReadAge,
	)

	n, err := p.items.MarkIdleForArchive(ctx, now.Add(-p.maxUnreadAge), now.Add(-p.maxReadAge))
	if err != nil {
		return 0, fmt.Errorf("mark idle items: %w", err)
	}
	telemetry.PurgedTotal.WithLabelValues("idle_archived").Add(float64(n))
	return n, nil
}

// PurgeArchivedPosts удаляет items, находящиеся в архиве дольше MaxPostAge.
func (p *Purger) PurgeArchivedPosts(ctx context.Context) (int64, error) {
	p.logger.Debug("purging archived items", "max_post_age", p.maxPostAge)

	n, err := p.items.PurgeArchived(ctx, p.now().Add(-p.maxPostAge))
	if err != nil {
		return 0, fmt.Errorf("purge archived items: %w", err)
	}
	telemetry.PurgedTotal.WithLabelValues("archived").Add(float64(n))
	return n, nil
}

// PurgeOrphanedMetrics удаляет метрики удалённых подписок.
func (p *Purger) PurgeOrphanedMetrics(ctx context.Context) (int64, error) {
	p.logger.Debug("purging orphaned metrics")

	n, err := p.metrics.PurgeOrphaned(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge orphaned metrics: %w", err)
	}
	telemetry.PurgedTotal.WithLabelValues("orphaned_metrics").Add(float64(n))
	return n, nil
}
