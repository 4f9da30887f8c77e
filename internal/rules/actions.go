package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shaiso/Buffy/internal/domain"
	"github.com/shaiso/Buffy/internal/webhook"
)

// WebhookQueue — очередь webhook-запросов. Enqueue не должен блокироваться.
//
// Реализация — webhook.Dispatcher.
type WebhookQueue interface {
	Enqueue(req webhook.Request)
}

// ActionHandler применяет действия правила к item.
type ActionHandler struct {
	queue  WebhookQueue
	logger *slog.Logger
}

// NewActionHandler создаёт ActionHandler. queue может быть nil —
// тогда действия WEBHOOK пропускаются с ошибкой в логе.
func NewActionHandler(queue WebhookQueue, logger *slog.Logger) *ActionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionHandler{queue: queue, logger: logger}
}

// Invoke выполняет действия правила по возрастанию Sequence.
//
// MARK_AS_READ и MARK_AS_READ_LATER меняют item сразу и видны следующим
// действиям. WEBHOOK сериализует текущее состояние item и ставит запрос
// в очередь. Ошибка одного действия не отменяет остальные.
func (h *ActionHandler) Invoke(rule *domain.Rule, item *domain.Item) error {
	actions := slices.Clone(rule.Actions)
	slices.SortStableFunc(actions, func(a, b domain.Action) int {
		return a.Sequence() - b.Sequence()
	})

	var errs []error
	for _, action := range actions {
		if err := h.apply(action, item); err != nil {
			h.logger.Error("rule action failed",
				"rule_id", rule.ID,
				"action_type", action.Type(),
				"sequence", action.Sequence(),
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *ActionHandler) apply(action domain.Action, item *domain.Item) error {
	switch a := action.(type) {
	case domain.MarkReadAction:
		item.ReadStatus = domain.ReadStatusRead
		return nil
	case domain.MarkReadLaterAction:
		item.ReadStatus = domain.ReadStatusReadLater
		return nil
	case domain.WebhookAction:
		return h.enqueueWebhook(a, item)
	default:
		return fmt.Errorf("unsupported action type %q", action.Type())
	}
}

func (h *ActionHandler) enqueueWebhook(action domain.WebhookAction, item *domain.Item) error {
	if h.queue == nil {
		return ErrNoWebhookQueue
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayload, err)
	}

	req := webhook.Request{
		URL:         action.URL,
		Payload:     payload,
		ContentType: "application/json",
	}
	if action.HasBasicAuth() {
		req.Username = action.Username
		req.Password = action.Password
	}

	h.queue.Enqueue(req)
	return nil
}
