package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tomakado/containers/set"

	"github.com/shaiso/Buffy/internal/domain"
	"github.com/shaiso/Buffy/internal/mq"
	"github.com/shaiso/Buffy/internal/telemetry"
)

// Default configuration values.
const (
	defaultBundleSize    = 100
	defaultErrorCapacity = 1024
	defaultPrefetch      = 1

	// Команда, пролежавшая дольше, уже перекрыта плановым циклом.
	triggerMaxAge = time.Minute
)

// ItemStore — хранилище items.
type ItemStore interface {
	Exists(ctx context.Context, contentHash string) (bool, error)

	// Add возвращает ошибку, оборачивающую repo.ErrAlreadyExists, при конфликте content hash.
	Add(ctx context.Context, item *domain.Item) error
}

// SubscriptionStore — источник активных подписок.
type SubscriptionStore interface {
	FindAllActive(ctx context.Context) ([]domain.Subscription, error)
}

// MetricsStore — хранилище метрик импорта.
type MetricsStore interface {
	Add(ctx context.Context, m *domain.SubscriptionMetrics) error
}

// RuleSetStore — наборы правил подписки.
type RuleSetStore interface {
	FindBySubscription(ctx context.Context, subscriptionID int64) ([]domain.RuleSet, error)
}

// RuleExecutor применяет набор правил к item (rules.Executor).
type RuleExecutor interface {
	Execute(ruleSet *domain.RuleSet, item *domain.Item) int
}

// EventPublisher публикует события импорта (mq.Publisher).
type EventPublisher interface {
	PublishItemImported(ctx context.Context, payload mq.ItemImportedPayload) error
	PublishMetricsRecorded(ctx context.Context, payload mq.MetricsRecordedPayload) error
}

// Orchestrator выполняет циклы импорта.
//
// Цикл: активные подписки, чей tier совпадает с текущим часом, делятся
// на bundles; каждый bundle отдаётся всем importer'ам параллельно через
// пул; после барьера результаты сливаются по подписке, и каждый item
// проходит Resolve. В конце по каждой подписке записывается метрика.
//
// Циклы не пересекаются: параллельный вызов RunImportCycle сразу
// возвращает ErrCycleInProgress.
type Orchestrator struct {
	// Stores
	items         ItemStore
	subscriptions SubscriptionStore
	metrics       MetricsStore
	ruleSets      RuleSetStore

	rules     RuleExecutor
	importers []Importer
	archive   ArchivePolicy

	// MQ (опционально)
	publisher EventPublisher
	conn      *mq.Connection
	consumer  *mq.TriggerConsumer

	pool  *Pool
	cache *DiscoveryCache

	// Configuration
	bundleSize int
	location   *time.Location
	now        func() time.Time

	cycleMu   sync.Mutex
	lastMu    sync.RWMutex
	lastCycle *CycleReport

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Stores
	Items         ItemStore
	Subscriptions SubscriptionStore
	Metrics       MetricsStore
	RuleSets      RuleSetStore

	// Rules — исполнитель правил (опционально; nil — правила не применяются).
	Rules RuleExecutor

	// Importers — зарегистрированные importer'ы.
	Importers []Importer

	// MQ (опционально): события и команды import.trigger.
	Publisher EventPublisher
	Conn      *mq.Connection

	// BundleSize — размер bundle (default: 100).
	BundleSize int

	// PoolSize — размер пула (default: PoolSize(len(Importers), runtime.NumCPU())).
	PoolSize int

	// ArchiveThreshold — порог ArchivePolicy (default: 90 дней).
	ArchiveThreshold time.Duration

	// Location — часовой пояс для окон tier'ов (default: time.Local).
	Location *time.Location

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator и запускает пул importer'ов.
func New(cfg Config) *Orchestrator {
	bundleSize := cfg.BundleSize
	if bundleSize <= 0 {
		bundleSize = defaultBundleSize
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = PoolSize(len(cfg.Importers), runtime.NumCPU())
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("starting importer pool",
		"pool_size", poolSize,
		"importers", len(cfg.Importers),
	)

	return &Orchestrator{
		items:         cfg.Items,
		subscriptions: cfg.Subscriptions,
		metrics:       cfg.Metrics,
		ruleSets:      cfg.RuleSets,
		rules:         cfg.Rules,
		importers:     cfg.Importers,
		archive:       ArchivePolicy{Threshold: cfg.ArchiveThreshold, Now: now},
		publisher:     cfg.Publisher,
		conn:          cfg.Conn,
		pool:          NewPool(poolSize),
		cache:         NewDiscoveryCache(),
		bundleSize:    bundleSize,
		location:      location,
		now:           now,
		logger:        logger,
	}
}

// Start запускает consumer команд import.trigger (если есть соединение с брокером).
//
// Плановые циклы запускает scheduler.Triggers, не Orchestrator.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	if o.conn == nil {
		o.logger.Info("orchestrator started without broker, import.trigger disabled")
		return nil
	}

	o.consumer = mq.NewTriggerConsumer(o.conn, o.logger, o.handleImportTrigger, mq.TriggerConsumerConfig{
		Prefetch: defaultPrefetch,
		MaxAge:   triggerMaxAge,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("import trigger consumer error", "error", err)
		}
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает consumer и пул importer'ов.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}

	o.wg.Wait()
	o.pool.Stop()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// Healthy возвращает true, пока пул importer'ов работает.
func (o *Orchestrator) Healthy() bool {
	return o.pool.Running() && !o.IsStopped()
}

// PoolSize возвращает размер пула importer'ов.
func (o *Orchestrator) PoolSize() int {
	return o.pool.Size()
}

// DiscoveryCache возвращает общий кэш сведений об источниках.
func (o *Orchestrator) DiscoveryCache() *DiscoveryCache {
	return o.cache
}

// LastCycle возвращает отчёт последнего завершённого цикла (nil — циклов не было).
func (o *Orchestrator) LastCycle() *CycleReport {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	return o.lastCycle
}

// handleImportTrigger запускает цикл по команде из очереди.
//
// Занятый или остановленный оркестратор отказывается от команды.
// Упавший цикл не повторяется: следующий запустит расписание.
func (o *Orchestrator) handleImportTrigger(ctx context.Context, cmd mq.ImportTrigger) error {
	o.logger.Info("import cycle requested", "requested_by", cmd.RequestedBy, "message_id", cmd.MessageID)

	_, err := o.RunImportCycle(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCycleInProgress), errors.Is(err, ErrOrchestratorStopped):
		return fmt.Errorf("%w: %w", mq.ErrTriggerDropped, err)
	default:
		o.logger.Warn("requested import cycle failed", "error", err)
		return nil
	}
}

// CycleReport — итог цикла импорта.
type CycleReport struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Active        int           `json:"active"`
	Due           int           `json:"due"`
	Bundles       int           `json:"bundles"`
	TaskFailures  int           `json:"task_failures"`
	SoftErrors    int           `json:"soft_errors"`
	Persisted     int           `json:"persisted"`
	Archived      int           `json:"archived"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	MetricsStored int           `json:"metrics_stored"`
	Aborted       bool          `json:"aborted"`
}

// RunImportCycle выполняет один цикл импорта.
//
// Пустой список подписок или importer'ов — no-op. Все ошибки логируются
// здесь же; возвращаются для вызывающего (CLI, триггеры), но процесс
// не завершают.
func (o *Orchestrator) RunImportCycle(ctx context.Context) (report *CycleReport, err error) {
	if !o.cycleMu.TryLock() {
		o.logger.Warn("import cycle skipped", "error", ErrCycleInProgress)
		telemetry.ImportCyclesTotal.WithLabelValues("busy").Inc()
		return nil, ErrCycleInProgress
	}
	defer o.cycleMu.Unlock()

	if o.IsStopped() {
		return nil, ErrOrchestratorStopped
	}

	report = &CycleReport{StartedAt: o.now()}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCyclePanic, r)
		}
		report.Duration = o.now().Sub(report.StartedAt)
		o.finishCycle(report, err)
	}()

	if len(o.importers) == 0 {
		o.logger.Info("no importers registered, skipping import cycle")
		return report, nil
	}

	active, err := o.subscriptions.FindAllActive(ctx)
	if err != nil {
		return report, fmt.Errorf("find active subscriptions: %w", err)
	}
	report.Active = len(active)

	now := report.StartedAt.In(o.location)
	due := lo.Filter(active, func(s domain.Subscription, _ int) bool {
		return o.tierOf(&s).Matches(now)
	})
	report.Due = len(due)

	if len(due) == 0 {
		o.logger.Info("no subscriptions due, skipping import cycle",
			"active", len(active),
			"hour", now.Hour(),
		)
		return report, nil
	}

	o.logger.Info("starting import cycle",
		"active", len(active),
		"due", len(due),
		"importers", len(o.importers),
		"bundle_size", o.bundleSize,
	)

	errs := newErrorQueue(defaultErrorCapacity)
	pass := newRuleSetCache(o.ruleSets)

	for i, bundle := range lo.Chunk(due, o.bundleSize) {
		results, failures, err := o.runBundle(ctx, bundle, errs)
		report.TaskFailures += failures
		if err != nil {
			report.Aborted = true
			return report, fmt.Errorf("bundle %d: %w", i, err)
		}
		report.Bundles++

		report.SoftErrors += o.drainErrors(errs)
		o.processResults(ctx, pass, results, report)
	}

	return report, nil
}

// finishCycle логирует итог цикла и обновляет метрики.
func (o *Orchestrator) finishCycle(report *CycleReport, err error) {
	o.lastMu.Lock()
	o.lastCycle = report
	o.lastMu.Unlock()

	telemetry.ImportCycleDuration.Observe(report.Duration.Seconds())

	attrs := []any{
		"duration", report.Duration,
		"due", report.Due,
		"bundles", report.Bundles,
		"persisted", report.Persisted,
		"archived", report.Archived,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"metrics", report.MetricsStored,
		"task_failures", report.TaskFailures,
		"soft_errors", report.SoftErrors,
	}

	switch {
	case report.Aborted:
		telemetry.ImportCyclesTotal.WithLabelValues("aborted").Inc()
		o.logger.Warn("import cycle aborted", append(attrs, "error", err)...)
	case err != nil:
		telemetry.ImportCyclesTotal.WithLabelValues("failed").Inc()
		o.logger.Error("import cycle failed", append(attrs, "error", err)...)
	case report.Due == 0:
		telemetry.ImportCyclesTotal.WithLabelValues("empty").Inc()
	default:
		telemetry.ImportCyclesTotal.WithLabelValues("ok").Inc()
		o.logger.Info("import cycle completed", attrs...)
	}
}

// tierOf возвращает tier подписки; неизвестная метка считается tier A.
func (o *Orchestrator) tierOf(sub *domain.Subscription) domain.ScheduleTier {
	tier, ok := sub.Tier()
	if !ok {
		o.logger.Warn("unknown schedule tier, polling hourly",
			"subscription_id", sub.ID,
			"schedule_tier", sub.ScheduleTier,
		)
		return domain.TierA
	}
	return tier
}

// runBundle отдаёт bundle каждому importer'у и ждёт всех (барьер).
//
// Отмена ctx прерывает bundle, но не уже запущенные задачи: runBundle
// дожидается их, чтобы следующий цикл не пересёкся с ними.
// Возвращает результаты успешных задач и число упавших.
func (o *Orchestrator) runBundle(ctx context.Context, bundle []domain.Subscription, errs *errorQueue) ([]*ImportResult, int, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		results  []*ImportResult
		failures int
	)

	taskCtx := context.WithoutCancel(ctx)

	for _, imp := range o.importers {
		wg.Add(1)
		err := o.pool.Submit(ctx, func() {
			defer wg.Done()

			result, ok := o.runImporter(taskCtx, imp, bundle, errs)

			mu.Lock()
			defer mu.Unlock()
			if !ok {
				failures++
				return
			}
			if result != nil {
				results = append(results, result)
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, failures, fmt.Errorf("%w: submit importer %s: %v", ErrCycleAborted, imp.ID(), err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var abortErr error
	select {
	case <-done:
	case <-ctx.Done():
		abortErr = fmt.Errorf("%w: %v", ErrCycleAborted, ctx.Err())
		o.logger.Warn("import cycle cancelled, waiting for in-flight importers", "subscriptions", len(bundle))
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	if abortErr != nil {
		return nil, failures, abortErr
	}
	return results, failures, nil
}

// runImporter выполняет одну задачу importer'а. Ошибка и panic изолированы.
func (o *Orchestrator) runImporter(ctx context.Context, imp Importer, bundle []domain.Subscription, errs ErrorReporter) (result *ImportResult, ok bool) {
	logger := telemetry.WithImporterID(o.logger, imp.ID())
	logger.Info("starting importer", "subscriptions", len(bundle))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("importer panicked", "panic", r)
			telemetry.ImporterTaskFailuresTotal.WithLabelValues(imp.ID()).Inc()
			result, ok = nil, false
		}
	}()

	result, err := imp.Run(ctx, bundle, o.cache, errs)
	if err != nil {
		logger.Error("importer failed", "error", err)
		telemetry.ImporterTaskFailuresTotal.WithLabelValues(imp.ID()).Inc()
		return nil, false
	}

	if result != nil {
		logger.Info("completed importer", "items", len(result.Items), "metrics", len(result.Metrics))
	}
	return result, true
}

// drainErrors логирует накопленные мягкие ошибки. Без повторов.
func (o *Orchestrator) drainErrors(errs *errorQueue) int {
	reported, dropped := errs.drain()

	if len(reported) > 0 || dropped > 0 {
		o.logger.Info("processing import errors", "count", len(reported), "dropped", dropped)
	}
	for _, e := range reported {
		o.logger.Error("import error",
			"importer_id", e.ImporterID,
			"subscription_id", e.SubscriptionID,
			"url", e.URL,
			"error", e.Err,
		)
	}

	total := len(reported) + int(dropped)
	telemetry.ImportSoftErrorsTotal.Add(float64(total))
	return total
}

// processResults сливает результаты importer'ов и обрабатывает items каждой подписки.
func (o *Orchestrator) processResults(ctx context.Context, pass *ruleSetCache, results []*ImportResult, report *CycleReport) {
	itemsBySub := mergeItems(results)

	for _, result := range results {
		for i := range result.Metrics {
			m := result.Metrics[i]
			logger := telemetry.WithSubscriptionID(o.logger, m.SubscriptionID)

			items := itemsBySub[m.SubscriptionID]
			if len(items) == 0 {
				logger.Debug("no items reported for subscription, skipping metrics")
				continue
			}

			ruleSets, err := pass.get(ctx, m.SubscriptionID)
			if err != nil {
				logger.Error("failed to load rule sets, skipping subscription", "error", err)
				report.Failed += len(items)
				telemetry.ItemsResolvedTotal.WithLabelValues("FAILED").Add(float64(len(items)))
				continue
			}

			o.processSubscription(ctx, logger, &m, items, ruleSets, report)
		}
	}
}

// processSubscription обрабатывает items подписки и записывает её метрику.
func (o *Orchestrator) processSubscription(
	ctx context.Context,
	logger *slog.Logger,
	m *domain.SubscriptionMetrics,
	items []*domain.Item,
	ruleSets []domain.RuleSet,
	report *CycleReport,
) {
	var persisted, archived, skipped int

	for _, item := range items {
		resolution, err := o.resolveSafe(ctx, item, ruleSets)
		if err != nil {
			logger.Error("failed to process item",
				"content_hash", item.ContentHash,
				"importer_desc", item.ImporterDesc,
				"error", err,
			)
			report.Failed++
			telemetry.ItemsResolvedTotal.WithLabelValues("FAILED").Inc()
			continue
		}

		telemetry.ItemsResolvedTotal.WithLabelValues(string(resolution)).Inc()

		switch resolution {
		case ResolutionPersisted:
			persisted++
		case ResolutionArchived:
			archived++
		case ResolutionAlreadyExists:
			skipped++
			logger.Debug("item already exists", "content_hash", item.ContentHash)
			continue
		}

		o.publishItem(ctx, item, resolution)
	}

	report.Persisted += persisted
	report.Archived += archived
	report.Skipped += skipped

	m.PersistCt = persisted
	m.ArchiveCt = archived
	m.SkipCt = skipped
	if m.ImportedAt.IsZero() {
		m.ImportedAt = o.now()
	}

	if err := o.metrics.Add(ctx, m); err != nil {
		logger.Error("failed to store metrics", "error", err)
		return
	}
	report.MetricsStored++

	logger.Debug("stored metrics",
		"import_ct", m.ImportCt,
		"persist_ct", m.PersistCt,
		"archive_ct", m.ArchiveCt,
		"skip_ct", m.SkipCt,
	)

	o.publishMetrics(ctx, m)
}

// resolveSafe вызывает Resolve в собственной границе ошибок.
func (o *Orchestrator) resolveSafe(ctx context.Context, item *domain.Item, ruleSets []domain.RuleSet) (resolution Resolution, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrItemPanic, r)
		}
	}()
	return o.Resolve(ctx, item, ruleSets)
}

func (o *Orchestrator) publishItem(ctx context.Context, item *domain.Item, resolution Resolution) {
	if o.publisher == nil {
		return
	}
	err := o.publisher.PublishItemImported(ctx, mq.ItemImportedPayload{
		ContentHash:    item.ContentHash,
		SubscriptionID: item.SubscriptionID,
		QueueID:        item.QueueID,
		Username:       item.Username,
		Resolution:     string(resolution),
		ReadStatus:     string(item.ReadStatus),
	})
	if err != nil {
		o.logger.Warn("failed to publish item event", "content_hash", item.ContentHash, "error", err)
	}
}

func (o *Orchestrator) publishMetrics(ctx context.Context, m *domain.SubscriptionMetrics) {
	if o.publisher == nil {
		return
	}
	err := o.publisher.PublishMetricsRecorded(ctx, mq.MetricsRecordedPayload{
		SubscriptionID: m.SubscriptionID,
		ScheduleTier:   m.ScheduleTier,
		ImportCt:       m.ImportCt,
		PersistCt:      m.PersistCt,
		SkipCt:         m.SkipCt,
		ArchiveCt:      m.ArchiveCt,
		ErrorType:      m.ErrorType,
	})
	if err != nil {
		o.logger.Warn("failed to publish metrics event", "subscription_id", m.SubscriptionID, "error", err)
	}
}

// mergeItems объединяет items всех результатов по подписке.
// Повторы одного content hash внутри подписки отбрасываются.
func mergeItems(results []*ImportResult) map[int64][]*domain.Item {
	items := make(map[int64][]*domain.Item)
	seen := set.New[string]()

	for _, result := range results {
		for i := range result.Items {
			item := &result.Items[i]

			key := strconv.FormatInt(item.SubscriptionID, 10) + "/" + item.ContentHash
			if seen.Contains(key) {
				continue
			}
			seen.Add(key)

			items[item.SubscriptionID] = append(items[item.SubscriptionID], item)
		}
	}

	return items
}

// ruleSetCache — наборы правил подписок в пределах одного цикла.
type ruleSetCache struct {
	store RuleSetStore
	bySub map[int64][]domain.RuleSet
}

func newRuleSetCache(store RuleSetStore) *ruleSetCache {
	return &ruleSetCache{store: store, bySub: make(map[int64][]domain.RuleSet)}
}

func (c *ruleSetCache) get(ctx context.Context, subscriptionID int64) ([]domain.RuleSet, error) {
	if ruleSets, ok := c.bySub[subscriptionID]; ok {
		return ruleSets, nil
	}
	if c.store == nil {
		return nil, nil
	}

	ruleSets, err := c.store.FindBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	c.bySub[subscriptionID] = ruleSets
	return ruleSets, nil
}
