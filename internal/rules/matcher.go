package rules

import (
	"strings"

	"github.com/shaiso/Buffy/internal/domain"
)

// ConditionMatcher вычисляет условия правила для item.
type ConditionMatcher struct {
	comparator *Comparator
}

// NewConditionMatcher создаёт ConditionMatcher.
func NewConditionMatcher(comparator *Comparator) *ConditionMatcher {
	return &ConditionMatcher{comparator: comparator}
}

// Evaluate возвращает true, если условия правила выполняются.
//
// ANY — хотя бы одно условие; ALL (и всё остальное) — каждое условие.
// Правило без условий совпадает только в режиме ALL.
func (m *ConditionMatcher) Evaluate(rule *domain.Rule, item *domain.Item) bool {
	if rule.MatchType == domain.MatchAny {
		for _, cond := range rule.Conditions {
			if m.matches(cond, item) {
				return true
			}
		}
		return false
	}

	for _, cond := range rule.Conditions {
		if !m.matches(cond, item) {
			return false
		}
	}
	return true
}

func (m *ConditionMatcher) matches(cond domain.Condition, item *domain.Item) bool {
	source := strings.TrimSpace(cond.Value)
	target := strings.TrimSpace(fieldValue(cond.Field, item))
	return m.comparator.Compare(cond.Comparison, source, target)
}

// fieldValue возвращает значение поля item; отсутствующее поле — пустая строка.
func fieldValue(field domain.FieldName, item *domain.Item) string {
	switch field {
	case domain.FieldTitle:
		return item.TitleValue()
	case domain.FieldDescription:
		return item.DescriptionValue()
	case domain.FieldContents:
		return item.FirstContentValue()
	default:
		return ""
	}
}
