package domain

import "time"

// Subscription — подписка пользователя на внешний источник.
//
// Tier меняется только Adaptive Scheduler'ом и определяет,
// в какие часы подписка опрашивается.
type Subscription struct {
	// ID — идентификатор подписки.
	ID int64 `json:"id"`

	// Username — владелец подписки.
	Username string `json:"username"`

	// QueueID — очередь, в которую попадают items подписки.
	QueueID int64 `json:"queue_id"`

	// URL — адрес источника.
	URL string `json:"url"`

	// Title — человекочитаемое имя.
	Title string `json:"title,omitempty"`

	// Active — участвует ли подписка в импорте.
	Active bool `json:"active"`

	// ScheduleTier — текущий tier расписания ("A".."D").
	ScheduleTier string `json:"schedule_tier"`
}

// Tier возвращает разобранный tier подписки.
func (s *Subscription) Tier() (ScheduleTier, bool) {
	return ParseScheduleTier(s.ScheduleTier)
}

// SubscriptionMetrics — результат одной попытки импорта подписки.
//
// Создаётся оркестратором в конце обработки items подписки,
// после записи не меняется. Читается Scheduler'ом и purger'ом.
type SubscriptionMetrics struct {
	// ID — идентификатор записи.
	ID string `json:"id"`

	SubscriptionID int64  `json:"subscription_id"`
	Username       string `json:"username"`

	// ImportedAt — время попытки импорта.
	ImportedAt time.Time `json:"imported_at"`

	// ScheduleTier — tier подписки на момент импорта.
	ScheduleTier string `json:"schedule_tier"`

	// ImportCt — сколько items importer попытался импортировать.
	// nil — импорт фактически не выполнялся.
	ImportCt *int `json:"import_ct,omitempty"`

	PersistCt int `json:"persist_ct"`
	SkipCt    int `json:"skip_ct"`
	ArchiveCt int `json:"archive_ct"`

	// ErrorType — маркер ошибки импорта (nil — без ошибок).
	ErrorType *string `json:"error_type,omitempty"`
}

// IsMiss возвращает true, если попытка на данном tier прошла без ошибок,
// но не сохранила ни одного item.
func (m *SubscriptionMetrics) IsMiss(tier ScheduleTier) bool {
	if m.ImportCt == nil || m.ErrorType != nil {
		return false
	}
	recorded, ok := ParseScheduleTier(m.ScheduleTier)
	if !ok || recorded != tier {
		return false
	}
	return m.PersistCt == 0
}

// TierUpdate — изменение tier подписки для пакетной записи.
type TierUpdate struct {
	Tier           string `json:"tier"`
	SubscriptionID int64  `json:"subscription_id"`
}
