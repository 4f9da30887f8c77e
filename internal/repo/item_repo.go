package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Buffy/internal/domain"
)

// ItemRepo — репозиторий импортированных items.
type ItemRepo struct {
	pool *pgxpool.Pool
}

// NewItemRepo создаёт новый ItemRepo.
func NewItemRepo(pool *pgxpool.Pool) *ItemRepo {
	return &ItemRepo{pool: pool}
}

// Exists проверяет, сохранён ли item с данным content hash.
func (r *ItemRepo) Exists(ctx context.Context, contentHash string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM items WHERE content_hash = $1)`,
		contentHash,
	).Scan(&exists)
	if err != nil {
		return false, accessError("check item", err)
	}
	return exists, nil
}

// Add сохраняет item.
//
// Нарушение уникальности content_hash возвращается как ErrAlreadyExists.
func (r *ItemRepo) Add(ctx context.Context, item *domain.Item) error {
	title, err := nullJSON(item.Title)
	if err != nil {
		return fmt.Errorf("marshal title: %w", err)
	}
	description, err := nullJSON(item.Description)
	if err != nil {
		return fmt.Errorf("marshal description: %w", err)
	}
	contents, err := nullJSON(item.Contents)
	if err != nil {
		return fmt.Errorf("marshal contents: %w", err)
	}

	var archivedAt *time.Time
	if item.IsArchived() {
		archivedAt = &item.ImportedAt
	}

	query := `
		INSERT INTO items (content_hash, subscription_id, queue_id, username,
		                   importer_id, importer_desc, title, description, contents,
		                   link, published_at, last_updated_at, read_status,
		                   post_status, imported_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.pool.Exec(ctx, query,
		item.ContentHash,
		item.SubscriptionID,
		item.QueueID,
		item.Username,
		item.ImporterID,
		nullString(item.ImporterDesc),
		title,
		description,
		contents,
		nullString(item.Link),
		item.PublishedAt,
		item.LastUpdatedAt,
		string(item.ReadStatus),
		string(item.PostStatus),
		item.ImportedAt,
		archivedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("item %s: %w", item.ContentHash, ErrAlreadyExists)
	}
	if err != nil {
		return updateError("insert item", err)
	}
	return nil
}

// MarkIdleForArchive архивирует опубликованные items, которые долго лежат без внимания:
// непрочитанные, импортированные раньше unreadBefore, и прочитанные раньше readBefore.
// READ_LATER не трогаются.
func (r *ItemRepo) MarkIdleForArchive(ctx context.Context, unreadBefore, readBefore time.Time) (int64, error) {
	query := `
		UPDATE items
		SET post_status = 'ARCHIVED', archived_at = NOW()
		WHERE post_status = 'PUBLISHED'
		  AND ((read_status = 'UNREAD' AND imported_at < $1)
		    OR (read_status = 'READ' AND COALESCE(last_read_at, imported_at) < $2))
	`
	result, err := r.pool.Exec(ctx, query, unreadBefore, readBefore)
	if err != nil {
		return 0, updateError("mark idle items", err)
	}
	return result.RowsAffected(), nil
}

// PurgeArchived удаляет items, находящиеся в архиве дольше, чем до archivedBefore.
func (r *ItemRepo) PurgeArchived(ctx context.Context, archivedBefore time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM items
		WHERE post_status = 'ARCHIVED'
		  AND COALESCE(archived_at, imported_at) < $1
	`, archivedBefore)
	if err != nil {
		return 0, updateError("purge archived items", err)
	}
	return result.RowsAffected(), nil
}

// nullJSON сериализует v; nil-указатель и пустой срез дают NULL.
func nullJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case *domain.ContentObject:
		if t == nil {
			return nil, nil
		}
	case []domain.ContentObject:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
