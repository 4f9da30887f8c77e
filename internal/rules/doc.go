// Package rules — движок правил для импортированных items.
//
// Состав:
//   - Comparator — сравнение строк (EQ_LITERAL, EQ_REGEXP, CONTAINS, STARTS_WITH, ENDS_WITH)
//   - ConditionMatcher — условия правила в режиме ALL или ANY
//   - ActionHandler — действия правила по возрастанию sequence
//   - Executor — весь набор правил для одного item
//
// Поля item (TITLE, DESCRIPTION, первый блок CONTENTS) и значение условия
// обрезаются по краям перед сравнением. Отсутствующее поле — пустая строка.
//
// Действие WEBHOOK не ходит в сеть: запрос ставится в WebhookQueue
// (webhook.Dispatcher) и доставляется в фоне.
package rules
