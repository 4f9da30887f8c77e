package orchestrator

import (
	"time"

	"github.com/shaiso/Buffy/internal/domain"
)

// DefaultArchiveThreshold — возраст, после которого новый item сразу уходит в архив.
const DefaultArchiveThreshold = 90 * 24 * time.Hour

// ArchivePolicy решает, архивировать ли item сразу при импорте.
type ArchivePolicy struct {
	// Threshold — порог возраста (default: 90 дней).
	Threshold time.Duration

	// Now — источник времени (default: time.Now).
	Now func() time.Time
}

// ShouldArchive возвращает true, если:
//   - у item нет ни даты публикации, ни даты обновления;
//   - есть только дата публикации, и она старше порога;
//   - дата обновления старше порога.
func (p ArchivePolicy) ShouldArchive(item *domain.Item) bool {
	published, updated := item.PublishedAt, item.LastUpdatedAt

	if published == nil && updated == nil {
		return true
	}

	cutoff := p.now().Add(-p.threshold())

	if updated == nil {
		return published.Before(cutoff)
	}
	return updated.Before(cutoff)
}

func (p ArchivePolicy) threshold() time.Duration {
	if p.Threshold <= 0 {
		return DefaultArchiveThreshold
	}
	return p.Threshold
}

func (p ArchivePolicy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
