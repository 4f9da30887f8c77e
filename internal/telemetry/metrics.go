package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "buffy"

var (
	// ImportCyclesTotal — циклы импорта по результату (ok, empty, busy, aborted, failed).
	ImportCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_cycles_total",
		Help:      "Import cycles by result.",
	}, []string{"result"})

	// ImportCycleDuration — длительность цикла импорта.
	ImportCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "import_cycle_duration_seconds",
		Help:      "Duration of a full import cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// ItemsResolvedTotal — items по итогу resolve (PERSISTED, ARCHIVED, SKIP_ALREADY_EXISTS, FAILED).
	ItemsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_resolved_total",
		Help:      "Imported items by resolution.",
	}, []string{"resolution"})

	// ImporterTaskFailuresTotal — упавшие задачи importer'ов.
	ImporterTaskFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "importer_task_failures_total",
		Help:      "Importer tasks that returned an error or panicked.",
	}, []string{"importer"})

	// ImportSoftErrorsTotal — мягкие ошибки, переданные importer'ами через канал ошибок.
	ImportSoftErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_soft_errors_total",
		Help:      "Soft errors reported by importers.",
	})

	// RuleMatchesTotal — сработавшие правила.
	RuleMatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rule_matches_total",
		Help:      "Rules whose conditions matched an item.",
	})

	// WebhookDeliveriesTotal — доставки webhook по исходу (OK или тип ошибки).
	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Webhook deliveries by outcome.",
	}, []string{"outcome"})

	// WebhookQueueDepth — текущая длина очереди webhook.
	WebhookQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "webhook_queue_depth",
		Help:      "Webhook requests waiting for delivery.",
	})

	// TierDowngradesTotal — понижения tier расписания.
	TierDowngradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tier_downgrades_total",
		Help:      "Schedule tier downgrades.",
	}, []string{"from", "to"})

	// PurgedTotal — записи, удалённые или архивированные purger'ом.
	PurgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purged_total",
		Help:      "Records affected by retention sweeps.",
	}, []string{"kind"})

	// HTTPRequestDuration — обработка запросов служебного API.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Admin API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
