package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ImportTrigger — принятая команда import.trigger.
type ImportTrigger struct {
	MessageID   string
	RequestedBy string
	SentAt      time.Time
	Redelivered bool
}

// TriggerHandler запускает цикл импорта по команде.
//
// Ошибка, оборачивающая ErrTriggerDropped, означает отказ от команды:
// команда подтверждается и не повторяется.
type TriggerHandler func(ctx context.Context, cmd ImportTrigger) error

// TriggerConsumerConfig — конфигурация TriggerConsumer.
type TriggerConsumerConfig struct {
	// Queue — имя очереди (по умолчанию import.trigger).
	Queue Queue

	// Prefetch — сколько команд брокер отдаёт без ack.
	Prefetch int

	// Requeue — вернуть команду в очередь при ошибке handler.
	// Повторная доставка не возвращается второй раз.
	Requeue bool

	// MaxAge — команды старше отбрасываются без запуска цикла (0 — без ограничения).
	MaxAge time.Duration
}

// TriggerConsumer потребляет команды import.trigger.
type TriggerConsumer struct {
	conn   *Connection
	logger *slog.Logger
	handle TriggerHandler
	cfg    TriggerConsumerConfig
	now    func() time.Time

	cancelFunc context.CancelFunc
}

// verdict — чем закончить доставку.
type verdict int

const (
	verdictAck verdict = iota
	verdictReject
	verdictRequeue
)

// NewTriggerConsumer создаёт consumer команд import.trigger.
func NewTriggerConsumer(conn *Connection, logger *slog.Logger, handle TriggerHandler, cfg TriggerConsumerConfig) *TriggerConsumer {
	if cfg.Queue == "" {
		cfg.Queue = QueueImportTrigger
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TriggerConsumer{
		conn:   conn,
		logger: logger.With("queue", string(cfg.Queue)),
		handle: handle,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start потребляет команды до отмены ctx, переподключаясь вслед за Connection.
func (c *TriggerConsumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe to import triggers", "error", err)
		} else {
			c.logger.Info("import trigger consumer started")
			c.drain(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, resubscribing to import triggers")
		}
	}
}

// Stop останавливает consumer.
func (c *TriggerConsumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

func (c *TriggerConsumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// Ручной ack: команда подтверждается после решения handler.
	deliveries, err := ch.Consume(string(c.cfg.Queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// drain обрабатывает доставки, пока канал открыт и ctx жив.
func (c *TriggerConsumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed, waiting for reconnect")
				return
			}
			c.settle(raw, c.dispatch(ctx, raw.Body, raw.Redelivered))
		}
	}
}

func (c *TriggerConsumer) settle(raw amqp.Delivery, v verdict) {
	var err error
	switch v {
	case verdictAck:
		err = raw.Ack(false)
	case verdictRequeue:
		err = raw.Nack(false, true)
	default:
		err = raw.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("failed to settle import trigger", "delivery_tag", raw.DeliveryTag, "error", err)
	}
}

// dispatch разбирает команду, вызывает handler и решает судьбу доставки.
func (c *TriggerConsumer) dispatch(ctx context.Context, body []byte, redelivered bool) verdict {
	cmd, err := DecodeImportTrigger(body)
	if err != nil {
		c.logger.Error("rejecting malformed import trigger", "error", err, "body", string(body))
		return verdictReject
	}
	cmd.Redelivered = redelivered

	logger := c.logger.With("message_id", cmd.MessageID, "requested_by", cmd.RequestedBy)

	if c.cfg.MaxAge > 0 && !cmd.SentAt.IsZero() {
		if age := c.now().Sub(cmd.SentAt); age > c.cfg.MaxAge {
			logger.Info("stale import trigger dropped", "age", age)
			return verdictAck
		}
	}

	err = c.handle(ctx, cmd)
	switch {
	case err == nil:
		return verdictAck
	case errors.Is(err, ErrTriggerDropped):
		logger.Info("import trigger dropped", "reason", err)
		return verdictAck
	case c.cfg.Requeue && !redelivered:
		logger.Warn("import trigger failed, requeueing", "error", err)
		return verdictRequeue
	default:
		logger.Error("import trigger failed", "error", err)
		return verdictReject
	}
}

// DecodeImportTrigger разбирает тело сообщения import.trigger.
func DecodeImportTrigger(body []byte) (ImportTrigger, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return ImportTrigger{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type != MessageTypeImportTrigger {
		return ImportTrigger{}, fmt.Errorf("%w: %q", ErrUnexpectedMessageType, msg.Type)
	}

	payload, err := ParsePayload[ImportTriggerPayload](&msg)
	if err != nil {
		return ImportTrigger{}, err
	}

	return ImportTrigger{
		MessageID:   msg.ID,
		RequestedBy: payload.RequestedBy,
		SentAt:      msg.Timestamp,
	}, nil
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	if msg.Payload == nil {
		return result, nil
	}

	// После json.Unmarshal конверта payload — map[string]any.
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
