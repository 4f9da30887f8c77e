package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ReadStatus — статус прочтения item.
//
// Меняется правилами (MARK_AS_READ, MARK_AS_READ_LATER) до сохранения.
type ReadStatus string

const (
	// ReadStatusUnread — item ещё не прочитан (значение по умолчанию).
	ReadStatusUnread ReadStatus = "UNREAD"

	// ReadStatusRead — item прочитан.
	ReadStatusRead ReadStatus = "READ"

	// ReadStatusReadLater — item отложен "на потом".
	ReadStatusReadLater ReadStatus = "READ_LATER"
)

// PostStatus — статус публикации item.
type PostStatus string

const (
	// PostStatusPublished — item виден в очереди.
	PostStatusPublished PostStatus = "PUBLISHED"

	// PostStatusArchived — item сразу ушёл в архив (см. ArchivePolicy).
	PostStatusArchived PostStatus = "ARCHIVED"
)

// ContentObject — фрагмент контента (заголовок, описание, блок текста).
type ContentObject struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

// Item — элемент, полученный importer'ом из внешнего источника.
//
// Идентичность item — ContentHash: стабильный отпечаток исходного контента,
// по нему выполняется дедупликация. До сохранения item принадлежит
// оркестратору, после — хранилищу.
type Item struct {
	// ContentHash — отпечаток контента (уникален в хранилище).
	ContentHash string `json:"content_hash"`

	// SubscriptionID — подписка, из которой получен item.
	SubscriptionID int64 `json:"subscription_id"`

	// QueueID — очередь назначения.
	QueueID int64 `json:"queue_id"`

	// Username — владелец подписки.
	Username string `json:"username"`

	// ImporterID / ImporterDesc — кто и откуда импортировал item.
	ImporterID   string `json:"importer_id"`
	ImporterDesc string `json:"importer_desc,omitempty"`

	Title       *ContentObject  `json:"title,omitempty"`
	Description *ContentObject  `json:"description,omitempty"`
	Contents    []ContentObject `json:"contents,omitempty"`

	Link string `json:"link,omitempty"`

	// PublishedAt — время публикации в источнике (может отсутствовать).
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// LastUpdatedAt — время последнего обновления в источнике (может отсутствовать).
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`

	ReadStatus ReadStatus `json:"read_status"`
	PostStatus PostStatus `json:"post_status"`

	// ImportedAt — время импорта.
	ImportedAt time.Time `json:"imported_at"`
}

// TitleValue возвращает текст заголовка или пустую строку.
func (i *Item) TitleValue() string {
	if i.Title == nil {
		return ""
	}
	return i.Title.Value
}

// DescriptionValue возвращает текст описания или пустую строку.
func (i *Item) DescriptionValue() string {
	if i.Description == nil {
		return ""
	}
	return i.Description.Value
}

// FirstContentValue возвращает текст первого блока контента или пустую строку.
func (i *Item) FirstContentValue() string {
	if len(i.Contents) == 0 {
		return ""
	}
	return i.Contents[0].Value
}

// MarkArchived переводит item в архив.
func (i *Item) MarkArchived() {
	i.PostStatus = PostStatusArchived
}

// IsArchived возвращает true, если item в архиве.
func (i *Item) IsArchived() bool {
	return i.PostStatus == PostStatusArchived
}

// ContentHash вычисляет отпечаток item по стабильным полям источника.
//
// Поля разделяются нулевым байтом, чтобы "ab"+"c" и "a"+"bc" не совпадали.
func ContentHash(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}
