package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Buffy/internal/config"
	"github.com/shaiso/Buffy/internal/feeds"
	"github.com/shaiso/Buffy/internal/mq"
	"github.com/shaiso/Buffy/internal/orchestrator"
	"github.com/shaiso/Buffy/internal/purger"
	"github.com/shaiso/Buffy/internal/repo"
	"github.com/shaiso/Buffy/internal/rules"
	"github.com/shaiso/Buffy/internal/scheduler"
	"github.com/shaiso/Buffy/internal/webhook"
	"github.com/shaiso/Buffy/migrations"
)

// Имена периодических задач.
const (
	JobImport   = "import"
	JobSchedule = "schedule-update"
	JobPurge    = "purge"
)

// Options — что поднимать при сборке.
type Options struct {
	// Name — имя процесса (имя AMQP-соединения).
	Name string

	// Broker — подключаться к RabbitMQ, если задан AMQPURL.
	Broker bool

	// Migrate — применить миграции при старте.
	Migrate bool
}

// App — собранные компоненты процесса.
type App struct {
	Config   config.Config
	Location *time.Location
	Logger   *slog.Logger

	DB            *pgxpool.Pool
	Items         *repo.ItemRepo
	Subscriptions *repo.SubscriptionRepo
	Metrics       *repo.MetricsRepo
	RuleSets      *repo.RuleSetRepo

	// MQ и Publisher — nil в local-only режиме.
	MQ        *mq.Connection
	Publisher *mq.Publisher

	Webhooks     *webhook.Dispatcher
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler
	Purger       *purger.Purger
}

// New подключается к хранилищу (и брокеру) и собирает компоненты.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connected")

	if opts.Migrate {
		if err := migrations.Up(ctx, migrations.Open(db)); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("migrations applied")
	}

	a := &App{
		Config:        cfg,
		Location:      location,
		Logger:        logger,
		DB:            db,
		Items:         repo.NewItemRepo(db),
		Subscriptions: repo.NewSubscriptionRepo(db),
		Metrics:       repo.NewMetricsRepo(db),
		RuleSets:      repo.NewRuleSetRepo(db),
	}

	if opts.Broker {
		a.connectBroker(ctx, opts.Name)
	}

	a.Webhooks = webhook.NewDispatcher(webhook.DispatcherConfig{
		Sender: webhook.NewClient(webhook.ClientConfig{
			Timeout:   cfg.WebhookTimeout,
			UserAgent: cfg.WebhookUserAgent,
		}),
		Logger: logger,
	})

	orchCfg := orchestrator.Config{
		Items:         a.Items,
		Subscriptions: a.Subscriptions,
		Metrics:       a.Metrics,
		RuleSets:      a.RuleSets,
		Rules:         rules.NewExecutor(rules.Config{Queue: a.Webhooks, Logger: logger}),
		Importers: []orchestrator.Importer{
			feeds.New(feeds.Config{
				Timeout:   cfg.FeedTimeout,
				UserAgent: cfg.UserAgent,
				Logger:    logger,
			}),
		},
		BundleSize:       cfg.BundleSize,
		PoolSize:         cfg.PoolSize,
		ArchiveThreshold: cfg.ArchiveThreshold(),
		Location:         location,
		Logger:           logger,
	}
	if a.Publisher != nil {
		orchCfg.Publisher = a.Publisher
		orchCfg.Conn = a.MQ
	}
	a.Orchestrator = orchestrator.New(orchCfg)

	a.Scheduler = scheduler.New(scheduler.Config{
		Subscriptions: a.Subscriptions,
		Metrics:       a.Metrics,
		Logger:        logger,
	})

	a.Purger = purger.New(purger.Config{
		Items:        a.Items,
		Metrics:      a.Metrics,
		MaxPostAge:   cfg.MaxPostAge(),
		MaxUnreadAge: cfg.MaxUnreadAge(),
		MaxReadAge:   cfg.MaxReadAge(),
		Logger:       logger,
	})

	return a, nil
}

// connectBroker подключается к RabbitMQ. Недоступный брокер — не ошибка.
func (a *App) connectBroker(ctx context.Context, name string) {
	if a.Config.AMQPURL == "" {
		a.Logger.Info("broker not configured, running in local-only mode")
		return
	}

	conn, err := mq.NewConnection(a.Config.AMQPURL, name, a.Logger)
	if err != nil {
		a.Logger.Warn("RabbitMQ not available, running in local-only mode", "error", err)
		return
	}
	a.Logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		a.Logger.Warn("failed to setup topology", "error", err)
	} else {
		a.Logger.Debug("topology ready", "topology", mq.TopologyInfo())
	}

	a.MQ = conn
	a.Publisher = mq.NewPublisher(conn, a.Logger)
}

// Start запускает фоновые компоненты: доставку webhook и consumer import.trigger.
func (a *App) Start(ctx context.Context) error {
	if err := a.Webhooks.Start(ctx); err != nil {
		return fmt.Errorf("start webhook dispatcher: %w", err)
	}
	if err := a.Orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	return nil
}

// RegisterJobs регистрирует периодические задачи в triggers.
func (a *App) RegisterJobs(t *scheduler.Triggers) error {
	jobs := []struct {
		name string
		spec string
		fn   scheduler.JobFunc
	}{
		{JobImport, a.Config.ImportSpec, func(ctx context.Context) error {
			_, err := a.Orchestrator.RunImportCycle(ctx)
			return err
		}},
		{JobSchedule, a.Config.ScheduleSpec, func(ctx context.Context) error {
			_, err := a.Scheduler.Update(ctx)
			return err
		}},
		{JobPurge, a.Config.PurgeSpec, func(ctx context.Context) error {
			_, err := a.Purger.Run(ctx)
			return err
		}},
	}

	for _, job := range jobs {
		if err := t.Add(job.name, job.spec, job.fn); err != nil {
			return err
		}
	}
	return nil
}

// Health — состояние процесса для /healthz.
type Health struct {
	Status    string                    `json:"status"`
	PoolSize  int                       `json:"pool_size"`
	Importer  bool                      `json:"importer"`
	Webhooks  bool                      `json:"webhooks"`
	Delivery  webhook.Stats             `json:"delivery"`
	Broker    bool                      `json:"broker"`
	LastCycle *orchestrator.CycleReport `json:"last_cycle,omitempty"`
}

// Health возвращает состояние компонентов.
func (a *App) Health() Health {
	h := Health{
		PoolSize:  a.Orchestrator.PoolSize(),
		Importer:  a.Orchestrator.Healthy(),
		Webhooks:  a.Webhooks.Healthy(),
		Delivery:  a.Webhooks.Stats(),
		Broker:    a.MQ != nil && a.MQ.IsConnected(),
		LastCycle: a.Orchestrator.LastCycle(),
	}

	h.Status = "ok"
	if !h.Importer || !h.Webhooks {
		h.Status = "degraded"
	}
	return h
}

// Stop останавливает компоненты и закрывает соединения.
func (a *App) Stop() {
	a.Orchestrator.Stop()
	a.Webhooks.Stop()

	if a.MQ != nil {
		if err := a.MQ.Close(); err != nil {
			a.Logger.Warn("failed to close broker connection", "error", err)
		}
	}
	a.DB.Close()
}
