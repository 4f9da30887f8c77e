package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	// ExchangeEvents — события импорта (topic): внешние потребители
	// подписываются на нужные ключи своими очередями.
	ExchangeEvents Exchange = "buffy.events"

	// ExchangeControl — команды процессу импорта (direct).
	ExchangeControl Exchange = "buffy.control"
)

// Queues.
const (
	// QueueImportTrigger — команды "запустить цикл импорта сейчас".
	QueueImportTrigger Queue = "import.trigger"
)

// Routing keys.
const (
	RoutingKeyItemImported    RoutingKey = "item.imported"
	RoutingKeyMetricsRecorded RoutingKey = "metrics.recorded"
	RoutingKeyImportTrigger   RoutingKey = "import.trigger"
)

// SetupTopology объявляет exchanges, queues и bindings. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		exchanges := []struct {
			name Exchange
			kind string
		}{
			{ExchangeEvents, amqp.ExchangeTopic},
			{ExchangeControl, amqp.ExchangeDirect},
		}
		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		// Команды старше минуты отбрасываются брокером.
		triggerArgs := amqp.Table{"x-message-ttl": int32(60_000)}
		if _, err := ch.QueueDeclare(string(QueueImportTrigger), true, false, false, false, triggerArgs); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueImportTrigger, err)
		}

		if err := ch.QueueBind(string(QueueImportTrigger), string(RoutingKeyImportTrigger), string(ExchangeControl), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueImportTrigger, ExchangeControl, err)
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Buffy RabbitMQ Topology:

    buffy.events (topic)
    ├── item.imported       [publisher: importer]
    └── metrics.recorded    [publisher: importer]

    buffy.control (direct)
    └── import.trigger [routing: import.trigger]
            Consumer: importer (Orchestrator)
  `
}
