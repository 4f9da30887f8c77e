package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Buffy/internal/telemetry"
)

const idlePollInterval = 20 * time.Millisecond

// Dispatcher доставляет webhook-запросы в фоне.
//
// Очередь — неограниченный FIFO: Enqueue никогда не блокируется на сети.
// Один consumer разбирает очередь строго по порядку постановки.
// Ошибка доставки логируется и не мешает следующим запросам.
type Dispatcher struct {
	sender Sender
	logger *slog.Logger

	mu     sync.Mutex
	queue  []Request
	busy   bool
	signal chan struct{}

	delivered atomic.Int64
	failed    atomic.Int64
	running   atomic.Bool

	// Lifecycle
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// DispatcherConfig — конфигурация Dispatcher.
type DispatcherConfig struct {
	// Sender — доставка запросов (если nil — NewClient(ClientConfig{})).
	Sender Sender

	// Logger
	Logger *slog.Logger
}

// Stats — счётчики Dispatcher.
type Stats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Pending   int   `json:"pending"`
}

// NewDispatcher создаёт новый Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	sender := cfg.Sender
	if sender == nil {
		sender = NewClient(ClientConfig{})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		sender: sender,
		logger: telemetry.WithComponent(logger, "webhook"),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue ставит запрос в очередь. Не блокируется.
//
// После Stop запросы отбрасываются с предупреждением.
func (d *Dispatcher) Enqueue(req Request) {
	if d.IsStopped() {
		d.logger.Warn("dropping webhook request", "url", req.URL, "error", ErrDispatcherStopped)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}

	d.mu.Lock()
	d.queue = append(d.queue, req)
	depth := len(d.queue)
	d.mu.Unlock()

	telemetry.WebhookQueueDepth.Set(float64(depth))

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Start запускает consumer.
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancelFunc = cancel

	d.running.Store(true)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.running.Store(false)
		d.consume(ctx)
	}()

	d.logger.Info("webhook dispatcher started")
	return nil
}

// Stop останавливает consumer. Недоставленные запросы отбрасываются.
func (d *Dispatcher) Stop() {
	d.stoppedMu.Lock()
	d.stopped = true
	d.stoppedMu.Unlock()

	d.logger.Info("stopping webhook dispatcher...")

	if d.cancelFunc != nil {
		d.cancelFunc()
	}

	d.wg.Wait()

	d.mu.Lock()
	dropped := len(d.queue)
	d.queue = nil
	d.mu.Unlock()

	telemetry.WebhookQueueDepth.Set(0)

	d.logger.Info("webhook dispatcher stopped", "dropped", dropped)
}

// IsStopped проверяет, остановлен ли Dispatcher.
func (d *Dispatcher) IsStopped() bool {
	d.stoppedMu.RLock()
	defer d.stoppedMu.RUnlock()
	return d.stopped
}

// Healthy возвращает true, пока consumer работает.
func (d *Dispatcher) Healthy() bool {
	return d.running.Load() && !d.IsStopped()
}

// Stats возвращает текущие счётчики.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	pending := len(d.queue)
	d.mu.Unlock()

	return Stats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Pending:   pending,
	}
}

// WaitIdle ждёт, пока очередь опустеет и текущая доставка завершится.
func (d *Dispatcher) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		d.mu.Lock()
		idle := len(d.queue) == 0 && !d.busy
		d.mu.Unlock()

		if idle {
			return nil
		}
		if !d.running.Load() {
			return ErrDispatcherStopped
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// consume — цикл единственного consumer'а.
func (d *Dispatcher) consume(ctx context.Context) {
	for {
		req, ok := d.take(ctx)
		if !ok {
			return
		}
		d.deliver(ctx, req)

		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}
}

// take извлекает следующий запрос, ожидая его появления. false — ctx отменён.
func (d *Dispatcher) take(ctx context.Context) (Request, bool) {
	for {
		if ctx.Err() != nil {
			return Request{}, false
		}

		d.mu.Lock()
		if len(d.queue) > 0 {
			req := d.queue[0]
			d.queue[0] = Request{}
			d.queue = d.queue[1:]
			d.busy = true
			depth := len(d.queue)
			d.mu.Unlock()

			telemetry.WebhookQueueDepth.Set(float64(depth))
			return req, true
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return Request{}, false
		case <-d.signal:
		}
	}
}

// deliver отправляет один запрос. Ошибки только логируются.
func (d *Dispatcher) deliver(ctx context.Context, req Request) {
	logger := d.logger.With("request_id", req.ID, "url", req.URL)

	err := d.sendSafe(ctx, req)
	if err == nil {
		d.delivered.Add(1)
		telemetry.WebhookDeliveriesTotal.WithLabelValues("OK").Inc()
		logger.Debug("webhook delivered", "latency", time.Since(req.EnqueuedAt))
		return
	}

	d.failed.Add(1)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		reqErr = transportError(req.URL, err)
	}
	telemetry.WebhookDeliveriesTotal.WithLabelValues(string(reqErr.Type)).Inc()

	if reqErr.StatusCode != 0 {
		logger.Warn("webhook rejected",
			"error_type", reqErr.Type,
			"status_code", reqErr.StatusCode,
			"status_message", reqErr.StatusMessage,
		)
		return
	}

	logger.Warn("webhook delivery failed",
		"error_type", reqErr.Type,
		"error", reqErr.Err,
	)
}

// sendSafe вызывает Sender, превращая panic в ошибку.
func (d *Dispatcher) sendSafe(ctx context.Context, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RequestError{Type: ErrorOther, URL: req.URL, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return d.sender.Post(ctx, req)
}
