// Package domain содержит сущности ядра импорта.
//
// Основные типы:
//   - Item — импортированный элемент (идентичность — ContentHash)
//   - Subscription, SubscriptionMetrics — подписка и метрики попыток импорта
//   - RuleSet, Rule, Condition, Action — правила обработки items
//   - ScheduleTier — tier адаптивного расписания (A..D)
//
// Пакет не зависит от хранилища и транспорта.
package domain
