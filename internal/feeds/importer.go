package feeds

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/shaiso/Buffy/internal/domain"
	"github.com/shaiso/Buffy/internal/orchestrator"
	"github.com/shaiso/Buffy/internal/telemetry"
)

// ImporterID — идентификатор importer'а.
const ImporterID = "rss"

// Значения по умолчанию.
const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Buffy/1.0"

	maxFeedBytes = 5 << 20
)

// HTTPClient — интерфейс выполнения HTTP-запросов.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Importer скачивает RSS/Atom ленты подписок.
type Importer struct {
	client    HTTPClient
	userAgent string
	now       func() time.Time
	logger    *slog.Logger
}

// Config — конфигурация Importer.
type Config struct {
	// Client — HTTP-клиент (default: http.Client с Timeout).
	Client HTTPClient

	// Timeout — таймаут запроса ленты (default: 30s).
	Timeout time.Duration

	// UserAgent (default: Buffy/1.0).
	UserAgent string

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт Importer.
func New(cfg Config) *Importer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Importer{
		client:    client,
		userAgent: userAgent,
		now:       now,
		logger:    telemetry.WithImporterID(logger, ImporterID),
	}
}

// ID возвращает идентификатор importer'а.
func (i *Importer) ID() string {
	return ImporterID
}

// Run импортирует ленты всех подписок bundle.
//
// Ошибка ленты сообщается в errs и отражается в метрике подписки
// (ErrorType), остальные подписки обрабатываются дальше.
func (i *Importer) Run(
	ctx context.Context,
	bundle []domain.Subscription,
	cache *orchestrator.DiscoveryCache,
	errs orchestrator.ErrorReporter,
) (*orchestrator.ImportResult, error) {
	result := &orchestrator.ImportResult{
		Metrics: make([]domain.SubscriptionMetrics, 0, len(bundle)),
	}

	for idx := range bundle {
		sub := &bundle[idx]
		if err := ctx.Err(); err != nil {
			return result, err
		}

		metric := domain.SubscriptionMetrics{
			SubscriptionID: sub.ID,
			Username:       sub.Username,
			ScheduleTier:   sub.ScheduleTier,
			ImportedAt:     i.now(),
		}

		feed, err := i.Fetch(ctx, sub.URL)
		if err != nil {
			errs.Report(orchestrator.ImportError{
				ImporterID:     ImporterID,
				SubscriptionID: sub.ID,
				URL:            sub.URL,
				Err:            err,
			})
			errType := errorType(err)
			metric.ErrorType = &errType
			// Метрика без items не сохраняется оркестратором: ошибка
			// учитывается только через ImportError и счётчик soft errors.
			result.Metrics = append(result.Metrics, metric)
			continue
		}

		if cache != nil {
			cache.Put(orchestrator.DiscoveryInfo{
				URL:          sub.URL,
				Title:        feed.Title,
				Description:  feed.Description,
				FeedType:     feed.FeedType,
				DiscoveredAt: metric.ImportedAt,
			})
		}

		items := MapItems(sub, feed)
		importCt := len(items)
		metric.ImportCt = &importCt

		result.Items = append(result.Items, items...)
		result.Metrics = append(result.Metrics, metric)

		i.logger.Debug("imported feed",
			"subscription_id", sub.ID,
			"url", sub.URL,
			"items", importCt,
		)
	}

	return result, nil
}

// Fetch скачивает и разбирает ленту.
func (i *Importer) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", i.userAgent)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return feed, nil
}

// MapItems превращает записи ленты в items подписки.
func MapItems(sub *domain.Subscription, feed *gofeed.Feed) []domain.Item {
	desc := feed.Title
	if desc == "" {
		desc = sub.URL
	}

	items := make([]domain.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}

		item := domain.Item{
			ContentHash:    ItemHash(sub, entry),
			SubscriptionID: sub.ID,
			QueueID:        sub.QueueID,
			Username:       sub.Username,
			ImporterID:     ImporterID,
			ImporterDesc:   desc,
			Title:          textObject(entry.Title),
			Description:    textObject(entry.Description),
			Link:           entry.Link,
			PublishedAt:    entry.PublishedParsed,
			LastUpdatedAt:  entry.UpdatedParsed,
		}
		if content := strings.TrimSpace(entry.Content); content != "" {
			item.Contents = []domain.ContentObject{{Type: "html", Value: content}}
		}

		items = append(items, item)
	}
	return items
}

// ItemHash вычисляет content hash записи в пределах очереди подписки.
//
// GUID предпочтительнее; без него используются ссылка и заголовок.
func ItemHash(sub *domain.Subscription, entry *gofeed.Item) string {
	key := entry.GUID
	if key == "" {
		key = entry.Link + "|" + entry.Title
	}
	return domain.ContentHash(sub.Username, strconv.FormatInt(sub.QueueID, 10), key)
}

func textObject(s string) *domain.ContentObject {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &domain.ContentObject{Type: "text", Value: s}
}
