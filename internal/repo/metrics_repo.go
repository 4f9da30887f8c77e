package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Buffy/internal/domain"
)

// MetricsRepo — репозиторий метрик импорта подписок.
type MetricsRepo struct {
	pool *pgxpool.Pool
}

// NewMetricsRepo создаёт новый MetricsRepo.
func NewMetricsRepo(pool *pgxpool.Pool) *MetricsRepo {
	return &MetricsRepo{pool: pool}
}

// FindBySubscription возвращает метрики подписки, новые первыми.
func (r *MetricsRepo) FindBySubscription(ctx context.Context, subscriptionID int64) ([]domain.SubscriptionMetrics, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subscription_id, username, imported_at, schedule_tier,
		       import_ct, persist_ct, skip_ct, archive_ct, error_type
		FROM subscription_metrics
		WHERE subscription_id = $1
		ORDER BY imported_at DESC
	`, subscriptionID)
	if err != nil {
		return nil, accessError("find metrics", err)
	}

	metrics, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SubscriptionMetrics, error) {
		var m domain.SubscriptionMetrics
		var id uuid.UUID
		err := row.Scan(
			&id,
			&m.SubscriptionID,
			&m.Username,
			&m.ImportedAt,
			&m.ScheduleTier,
			&m.ImportCt,
			&m.PersistCt,
			&m.SkipCt,
			&m.ArchiveCt,
			&m.ErrorType,
		)
		m.ID = id.String()
		return m, err
	})
	if err != nil {
		return nil, accessError("scan metrics", err)
	}
	return metrics, nil
}

// Add сохраняет метрику. Пустой ID заменяется новым UUID.
func (r *MetricsRepo) Add(ctx context.Context, m *domain.SubscriptionMetrics) error {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		id = uuid.New()
		m.ID = id.String()
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO subscription_metrics (id, subscription_id, username, imported_at,
		                                  schedule_tier, import_ct, persist_ct,
		                                  skip_ct, archive_ct, error_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		id,
		m.SubscriptionID,
		m.Username,
		m.ImportedAt,
		m.ScheduleTier,
		m.ImportCt,
		m.PersistCt,
		m.SkipCt,
		m.ArchiveCt,
		m.ErrorType,
	)
	if err != nil {
		return updateError("insert metrics", err)
	}
	return nil
}

// PurgeOrphaned удаляет метрики подписок, которых больше нет.
func (r *MetricsRepo) PurgeOrphaned(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM subscription_metrics m
		WHERE NOT EXISTS (SELECT 1 FROM subscriptions s WHERE s.id = m.subscription_id)
	`)
	if err != nil {
		return 0, updateError("purge orphaned metrics", err)
	}
	return result.RowsAffected(), nil
}
