package rules

import "errors"

var (
	// ErrNoWebhookQueue — действие WEBHOOK без настроенной очереди.
	ErrNoWebhookQueue = errors.New("webhook queue is not configured")

	// ErrPayload — item не удалось сериализовать для webhook.
	ErrPayload = errors.New("failed to build webhook payload")
)
