package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Buffy/internal/domain"
	"github.com/shaiso/Buffy/internal/repo"
)

// Resolution — итог обработки одного item.
type Resolution string

const (
	ResolutionPersisted     Resolution = "PERSISTED"
	ResolutionArchived      Resolution = "ARCHIVED"
	ResolutionAlreadyExists Resolution = "SKIP_ALREADY_EXISTS"
)

// Resolve обрабатывает новый item:
//
//  1. item с таким content hash уже есть — SKIP_ALREADY_EXISTS, без изменений;
//  2. применяются наборы правил подписки;
//  3. ArchivePolicy решает, уходит ли item сразу в архив;
//  4. item сохраняется. Конфликт уникальности — тоже SKIP_ALREADY_EXISTS.
//
// Шаги одного item выполняются строго последовательно.
func (o *Orchestrator) Resolve(ctx context.Context, item *domain.Item, ruleSets []domain.RuleSet) (Resolution, error) {
	exists, err := o.items.Exists(ctx, item.ContentHash)
	if err != nil {
		return "", fmt.Errorf("check item %s: %w", item.ContentHash, err)
	}
	if exists {
		return ResolutionAlreadyExists, nil
	}

	if item.ReadStatus == "" {
		item.ReadStatus = domain.ReadStatusUnread
	}
	if item.PostStatus == "" {
		item.PostStatus = domain.PostStatusPublished
	}
	if item.ImportedAt.IsZero() {
		item.ImportedAt = o.now()
	}

	if o.rules != nil {
		for i := range ruleSets {
			o.rules.Execute(&ruleSets[i], item)
		}
	}

	if o.archive.ShouldArchive(item) {
		item.MarkArchived()
	}

	if err := o.items.Add(ctx, item); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return ResolutionAlreadyExists, nil
		}
		return "", fmt.Errorf("add item %s: %w", item.ContentHash, err)
	}

	if item.IsArchived() {
		return ResolutionArchived, nil
	}
	return ResolutionPersisted, nil
}
