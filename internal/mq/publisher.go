package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeItemImported    MessageType = "item.imported"
	MessageTypeMetricsRecorded MessageType = "metrics.recorded"
	MessageTypeImportTrigger   MessageType = "import.trigger"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// ItemImportedPayload — item сохранён (PERSISTED или ARCHIVED).
type ItemImportedPayload struct {
	ContentHash    string `json:"content_hash"`
	SubscriptionID int64  `json:"subscription_id"`
	QueueID        int64  `json:"queue_id"`
	Username       string `json:"username"`
	Resolution     string `json:"resolution"`
	ReadStatus     string `json:"read_status"`
}

// MetricsRecordedPayload — записана метрика импорта подписки.
type MetricsRecordedPayload struct {
	SubscriptionID int64   `json:"subscription_id"`
	ScheduleTier   string  `json:"schedule_tier"`
	ImportCt       *int    `json:"import_ct,omitempty"`
	PersistCt      int     `json:"persist_ct"`
	SkipCt         int     `json:"skip_ct"`
	ArchiveCt      int     `json:"archive_ct"`
	ErrorType      *string `json:"error_type,omitempty"`
}

// ImportTriggerPayload — команда запустить цикл импорта вне расписания.
type ImportTriggerPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

func (p *Publisher) publishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	return p.Publish(ctx, exchange, routingKey, &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// PublishItemImported публикует событие о сохранённом item.
func (p *Publisher) PublishItemImported(ctx context.Context, payload ItemImportedPayload) error {
	return p.publishJSON(ctx, ExchangeEvents, RoutingKeyItemImported, MessageTypeItemImported, payload)
}

// PublishMetricsRecorded публикует событие о записанной метрике.
func (p *Publisher) PublishMetricsRecorded(ctx context.Context, payload MetricsRecordedPayload) error {
	return p.publishJSON(ctx, ExchangeEvents, RoutingKeyMetricsRecorded, MessageTypeMetricsRecorded, payload)
}

// PublishImportTrigger публикует команду запуска цикла импорта.
// Потребитель: Orchestrator.
func (p *Publisher) PublishImportTrigger(ctx context.Context, requestedBy string) error {
	return p.publishJSON(ctx, ExchangeControl, RoutingKeyImportTrigger, MessageTypeImportTrigger,
		ImportTriggerPayload{RequestedBy: requestedBy})
}
