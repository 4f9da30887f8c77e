package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/Buffy/internal/domain"
)

// Importer — источник items для набора подписок.
//
// Run вызывается один раз на bundle. bundle общий для всех importer'ов
// и не должен изменяться. Ожидаемые ошибки отдельных источников
// сообщаются через errs, а не возвращаются: возвращённая ошибка (или panic)
// означает сбой всей задачи и только логируется.
type Importer interface {
	ID() string
	Run(ctx context.Context, bundle []domain.Subscription, cache *DiscoveryCache, errs ErrorReporter) (*ImportResult, error)
}

// ImportResult — результат одного importer'а для одного bundle.
type ImportResult struct {
	// Items — полученные items (Item.SubscriptionID обязателен).
	Items []domain.Item

	// Metrics — по одной метрике на подписку, которую importer обработал.
	Metrics []domain.SubscriptionMetrics
}

// ImportError — мягкая ошибка импорта отдельного источника.
type ImportError struct {
	ImporterID     string
	SubscriptionID int64
	URL            string
	Err            error
}

func (e ImportError) Error() string {
	return fmt.Sprintf("importer %s: subscription %d (%s): %v", e.ImporterID, e.SubscriptionID, e.URL, e.Err)
}

func (e ImportError) Unwrap() error {
	return e.Err
}

// ErrorReporter принимает мягкие ошибки importer'ов. Report не блокируется.
type ErrorReporter interface {
	Report(err ImportError)
}

// errorQueue — канал мягких ошибок одного цикла.
//
// При переполнении ошибка отбрасывается и учитывается в dropped.
type errorQueue struct {
	ch      chan ImportError
	dropped atomic.Int64
}

func newErrorQueue(capacity int) *errorQueue {
	return &errorQueue{ch: make(chan ImportError, capacity)}
}

func (q *errorQueue) Report(err ImportError) {
	select {
	case q.ch <- err:
	default:
		q.dropped.Add(1)
	}
}

// drain забирает накопленные ошибки и число отброшенных.
func (q *errorQueue) drain() ([]ImportError, int64) {
	var out []ImportError
	for {
		select {
		case err := <-q.ch:
			out = append(out, err)
		default:
			return out, q.dropped.Swap(0)
		}
	}
}

// DiscoveryInfo — сведения об источнике, найденные importer'ом.
type DiscoveryInfo struct {
	URL          string
	Title        string
	Description  string
	FeedType     string
	DiscoveredAt time.Time
}

// DiscoveryCache — потокобезопасный кэш DiscoveryInfo по URL.
//
// Живёт всё время работы процесса и общий для всех importer'ов.
type DiscoveryCache struct {
	mu    sync.RWMutex
	infos map[string]DiscoveryInfo
}

// NewDiscoveryCache создаёт пустой кэш.
func NewDiscoveryCache() *DiscoveryCache {
	return &DiscoveryCache{infos: make(map[string]DiscoveryInfo)}
}

// Get возвращает сведения об источнике.
func (c *DiscoveryCache) Get(url string) (DiscoveryInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.infos[url]
	return info, ok
}

// Put сохраняет сведения об источнике.
func (c *DiscoveryCache) Put(info DiscoveryInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos[info.URL] = info
}

// Len возвращает число источников в кэше.
func (c *DiscoveryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.infos)
}
