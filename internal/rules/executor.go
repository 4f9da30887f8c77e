package rules

import (
	"log/slog"

	"github.com/shaiso/Buffy/internal/domain"
	"github.com/shaiso/Buffy/internal/telemetry"
)

// Executor применяет набор правил к item.
type Executor struct {
	matcher *ConditionMatcher
	actions *ActionHandler
	logger  *slog.Logger
}

// Config — конфигурация Executor.
type Config struct {
	// Queue — очередь webhook (опционально).
	Queue WebhookQueue

	// Logger
	Logger *slog.Logger
}

// NewExecutor создаёт Executor с собственными Comparator, ConditionMatcher и ActionHandler.
func NewExecutor(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		matcher: NewConditionMatcher(NewComparator(logger)),
		actions: NewActionHandler(cfg.Queue, logger),
		logger:  logger,
	}
}

// Execute вычисляет каждое правило набора и выполняет действия совпавших.
//
// Правила независимы: порядок между ними не влияет на результат,
// ошибка действий одного правила не мешает остальным.
// Возвращает число совпавших правил.
func (e *Executor) Execute(ruleSet *domain.RuleSet, item *domain.Item) int {
	logger := telemetry.WithRuleSetID(e.logger, ruleSet.ID)

	if len(ruleSet.Rules) == 0 {
		logger.Warn("rule set has no rules", "rule_set_name", ruleSet.Name)
		return 0
	}

	matched := 0
	for i := range ruleSet.Rules {
		rule := &ruleSet.Rules[i]
		if !e.matcher.Evaluate(rule, item) {
			continue
		}

		matched++
		telemetry.RuleMatchesTotal.Inc()
		logger.Debug("rule matched", "rule_id", rule.ID, "content_hash", item.ContentHash)

		// Ошибки действий уже залогированы ActionHandler'ом.
		_ = e.actions.Invoke(rule, item)
	}

	return matched
}
