package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Расписания по умолчанию.
const (
	DefaultImportSpec   = "0 * * * *"
	DefaultScheduleSpec = "30 * * * *"
	DefaultPurgeSpec    = "15 3 * * *"
)

// cronParser — парсер cron-выражений (5 полей, без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSpec проверяет валидность cron-выражения.
func ValidateSpec(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// NextRun вычисляет следующее срабатывание spec после from в часовом поясе from.
func NextRun(spec string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return schedule.Next(from), nil
}

// JobFunc — периодическая задача. Ошибка только логируется.
type JobFunc func(ctx context.Context) error

// Triggers запускает периодические задачи по cron-расписанию:
// цикл импорта, пересчёт tier'ов, очистку.
//
// Задача не пересекается сама с собой: если предыдущий запуск
// ещё идёт, очередной пропускается (SkipIfStillRunning).
type Triggers struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu   sync.Mutex
	ctx  context.Context
	jobs []string

	// Lifecycle
	cancelFunc context.CancelFunc
	stopped    bool
	stoppedMu  sync.RWMutex
}

// TriggersConfig — конфигурация Triggers.
type TriggersConfig struct {
	// Location — часовой пояс расписаний (default: time.Local).
	Location *time.Location

	// Logger
	Logger *slog.Logger
}

// NewTriggers создаёт Triggers без задач.
func NewTriggers(cfg TriggersConfig) *Triggers {
	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := CronLogger{Logger: logger}

	return &Triggers{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add регистрирует задачу name по расписанию spec.
func (t *Triggers) Add(name, spec string, fn JobFunc) error {
	_, err := t.cron.AddFunc(spec, func() {
		t.run(name, fn)
	})
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	t.mu.Lock()
	t.jobs = append(t.jobs, name)
	t.mu.Unlock()

	t.logger.Info("registered periodic job", "job", name, "spec", spec)
	return nil
}

// Jobs возвращает имена зарегистрированных задач.
func (t *Triggers) Jobs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.jobs...)
}

// Start запускает планировщик. Задачи получают ctx, отменяемый в Stop.
func (t *Triggers) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	t.cancelFunc = cancel

	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()

	t.cron.Start()
	t.logger.Info("triggers started", "jobs", len(t.Jobs()))
	return nil
}

// Stop останавливает планировщик и ждёт завершения выполняющихся задач.
func (t *Triggers) Stop() {
	t.stoppedMu.Lock()
	t.stopped = true
	t.stoppedMu.Unlock()

	t.logger.Info("stopping triggers...")

	done := t.cron.Stop()
	if t.cancelFunc != nil {
		t.cancelFunc()
	}
	<-done.Done()

	t.logger.Info("triggers stopped")
}

// IsStopped проверяет, остановлены ли Triggers.
func (t *Triggers) IsStopped() bool {
	t.stoppedMu.RLock()
	defer t.stoppedMu.RUnlock()
	return t.stopped
}

func (t *Triggers) run(name string, fn JobFunc) {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()

	started := time.Now()
	t.logger.Debug("periodic job started", "job", name)

	if err := fn(ctx); err != nil {
		t.logger.Warn("periodic job failed", "job", name, "duration", time.Since(started), "error", err)
		return
	}
	t.logger.Debug("periodic job completed", "job", name, "duration", time.Since(started))
}

// CronLogger — адаптер cron.Logger поверх slog.
type CronLogger struct {
	Logger *slog.Logger
}

// Info пишет служебные сообщения cron на уровне DEBUG.
func (l CronLogger) Info(msg string, keysAndValues ...any) {
	l.Logger.Debug("cron: "+msg, keysAndValues...)
}

// Error пишет ошибки cron.
func (l CronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.Logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
