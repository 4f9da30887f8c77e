package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Buffy/internal/domain"
)

// SubscriptionRepo — репозиторий подписок.
type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo создаёт новый SubscriptionRepo.
func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, username, queue_id, url, title, active, schedule_tier`

// FindAllActive возвращает все активные подписки.
func (r *SubscriptionRepo) FindAllActive(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, accessError("find active subscriptions", err)
	}
	return collectSubscriptions(rows)
}

// List возвращает подписки (включая неактивные), не больше limit.
func (r *SubscriptionRepo) List(ctx context.Context, limit int) ([]domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, accessError("list subscriptions", err)
	}
	return collectSubscriptions(rows)
}

// GetByID возвращает подписку по ID.
func (r *SubscriptionRepo) GetByID(ctx context.Context, id int64) (*domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, accessError("get subscription", err)
	}

	sub, err := pgx.CollectExactlyOneRow(rows, scanSubscription)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, accessError("scan subscription", err)
	}
	return &sub, nil
}

// Create сохраняет новую подписку. Пустой tier — "A".
func (r *SubscriptionRepo) Create(ctx context.Context, sub *domain.Subscription) error {
	if sub.ScheduleTier == "" {
		sub.ScheduleTier = domain.TierA.String()
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (username, queue_id, url, title, active, schedule_tier)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		sub.Username,
		sub.QueueID,
		sub.URL,
		nullString(sub.Title),
		sub.Active,
		sub.ScheduleTier,
	).Scan(&sub.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("subscription %s: %w", sub.URL, ErrAlreadyExists)
	}
	if err != nil {
		return updateError("insert subscription", err)
	}
	return nil
}

// UpdateScheduleTiers записывает новые tier'ы одной транзакцией.
func (r *SubscriptionRepo) UpdateScheduleTiers(ctx context.Context, updates []domain.TierUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return updateError("begin tier update", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`UPDATE subscriptions SET schedule_tier = $1 WHERE id = $2`, u.Tier, u.SubscriptionID)
	}

	results := tx.SendBatch(ctx, batch)
	for _, u := range updates {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return updateError(fmt.Sprintf("update tier of subscription %d", u.SubscriptionID), err)
		}
	}
	if err := results.Close(); err != nil {
		return updateError("close tier batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return updateError("commit tier update", err)
	}
	return nil
}

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	subs, err := pgx.CollectRows(rows, scanSubscription)
	if err != nil {
		return nil, accessError("scan subscriptions", err)
	}
	return subs, nil
}

func scanSubscription(row pgx.CollectableRow) (domain.Subscription, error) {
	var s domain.Subscription
	var title *string

	err := row.Scan(
		&s.ID,
		&s.Username,
		&s.QueueID,
		&s.URL,
		&title,
		&s.Active,
		&s.ScheduleTier,
	)
	if err != nil {
		return s, err
	}

	if title != nil {
		s.Title = *title
	}
	return s, nil
}
