package domain

import (
	"encoding/json"
	"fmt"
)

// MatchType — способ объединения условий правила.
type MatchType string

const (
	// MatchAll — все условия должны совпасть (по умолчанию).
	MatchAll MatchType = "ALL"

	// MatchAny — достаточно одного совпавшего условия.
	MatchAny MatchType = "ANY"
)

// FieldName — поле item, с которым сравнивается условие.
type FieldName string

const (
	FieldTitle       FieldName = "TITLE"
	FieldDescription FieldName = "DESCRIPTION"
	FieldContents    FieldName = "CONTENTS"
)

// ComparisonType — тип сравнения строк.
type ComparisonType string

const (
	EqLiteral  ComparisonType = "EQ_LITERAL"
	EqRegexp   ComparisonType = "EQ_REGEXP"
	Contains   ComparisonType = "CONTAINS"
	StartsWith ComparisonType = "STARTS_WITH"
	EndsWith   ComparisonType = "ENDS_WITH"
)

// RuleSet — именованный набор правил, привязанный к подписке.
//
// Для ядра read-only: владелец — конфигурация/хранилище.
type RuleSet struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Rules []Rule `json:"rules"`
}

// Rule — условия (match) и упорядоченные действия (effects).
type Rule struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	MatchType  MatchType   `json:"match_type"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"-"`
}

// Condition — "<поле> <сравнение> <значение>".
type Condition struct {
	Field      FieldName      `json:"field_name"`
	Comparison ComparisonType `json:"comparison_type"`
	Value      string         `json:"field_value"`
}

// ActionType — тип действия правила.
type ActionType string

const (
	ActionWebhook       ActionType = "WEBHOOK"
	ActionMarkRead      ActionType = "MARK_AS_READ"
	ActionMarkReadLater ActionType = "MARK_AS_READ_LATER"
)

// Action — действие правила.
//
// Закрытый sum-type: реализации только в этом пакете
// (WebhookAction, MarkReadAction, MarkReadLaterAction).
type Action interface {
	// Type возвращает тип действия.
	Type() ActionType

	// Sequence — порядковый номер; действия выполняются по возрастанию.
	Sequence() int

	sealed()
}

// WebhookAction — отправить item на внешний URL.
type WebhookAction struct {
	Seq      int
	URL      string
	Username string
	Password string
}

func (a WebhookAction) Type() ActionType { return ActionWebhook }
func (a WebhookAction) Sequence() int    { return a.Seq }
func (WebhookAction) sealed()            {}

// HasBasicAuth возвращает true, если задан username. Пустой пароль допустим.
func (a WebhookAction) HasBasicAuth() bool {
	return a.Username != ""
}

// MarkReadAction — пометить item прочитанным.
type MarkReadAction struct {
	Seq int
}

func (a MarkReadAction) Type() ActionType { return ActionMarkRead }
func (a MarkReadAction) Sequence() int    { return a.Seq }
func (MarkReadAction) sealed()            {}

// MarkReadLaterAction — отложить item "на потом".
type MarkReadLaterAction struct {
	Seq int
}

func (a MarkReadLaterAction) Type() ActionType { return ActionMarkReadLater }
func (a MarkReadLaterAction) Sequence() int    { return a.Seq }
func (MarkReadLaterAction) sealed()            {}

// ActionRecord — хранимое представление действия (тип + параметры + sequence).
type ActionRecord struct {
	Type       ActionType `json:"action_type"`
	Sequence   int        `json:"sequence"`
	Parameters []string   `json:"parameters,omitempty"`
}

// NewAction строит действие из хранимого представления.
//
// Параметры WEBHOOK: [url, username?, password?].
func NewAction(rec ActionRecord) (Action, error) {
	switch rec.Type {
	case ActionWebhook:
		if len(rec.Parameters) == 0 || rec.Parameters[0] == "" {
			return nil, fmt.Errorf("webhook action %d: url is required", rec.Sequence)
		}
		a := WebhookAction{Seq: rec.Sequence, URL: rec.Parameters[0]}
		if len(rec.Parameters) > 1 {
			a.Username = rec.Parameters[1]
		}
		if len(rec.Parameters) > 2 {
			a.Password = rec.Parameters[2]
		}
		return a, nil
	case ActionMarkRead:
		return MarkReadAction{Seq: rec.Sequence}, nil
	case ActionMarkReadLater:
		return MarkReadLaterAction{Seq: rec.Sequence}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", rec.Type)
	}
}

// ActionToRecord возвращает хранимое представление действия.
func ActionToRecord(a Action) ActionRecord {
	rec := ActionRecord{Type: a.Type(), Sequence: a.Sequence()}
	if wh, ok := a.(WebhookAction); ok {
		rec.Parameters = []string{wh.URL}
		if wh.Username != "" || wh.Password != "" {
			rec.Parameters = append(rec.Parameters, wh.Username, wh.Password)
		}
	}
	return rec
}

// MarshalJSON сериализует правило вместе с действиями в хранимом виде.
func (r Rule) MarshalJSON() ([]byte, error) {
	type plain Rule
	records := make([]ActionRecord, len(r.Actions))
	for i, a := range r.Actions {
		records[i] = ActionToRecord(a)
	}
	return json.Marshal(struct {
		plain
		Actions []ActionRecord `json:"actions"`
	}{plain(r), records})
}

// UnmarshalJSON разбирает правило, восстанавливая типизированные действия.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	var raw struct {
		plain
		Actions []ActionRecord `json:"actions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Rule(raw.plain)
	r.Actions = make([]Action, 0, len(raw.Actions))
	for _, rec := range raw.Actions {
		a, err := NewAction(rec)
		if err != nil {
			return fmt.Errorf("rule %d: %w", r.ID, err)
		}
		r.Actions = append(r.Actions, a)
	}
	return nil
}
