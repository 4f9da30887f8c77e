// Package cli реализует инструмент командной строки Buffy.
//
// # Обзор
//
// В отличие от buffy-importer, CLI не держит долгоживущих компонентов:
// каждая команда собирает app.App по требованию (Env.App), выполняет
// одну операцию и закрывает соединения.
//
// # Ключевые компоненты
//
// ## Env
//
// Общее окружение команд: файлы конфигурации (--config), режим вывода
// (--json), логгер в stderr и лениво созданный App.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: buffy subscriptions list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - subscriptions: list, add
//   - rulesets: import
//   - metrics: show
//   - import: run, trigger
//   - schedule: update, tiers
//   - migrate: up, status
//
// Каждая группа создаётся фабричной функцией (NewSubscriptionsCmd и т.д.),
// принимающей *Env.
package cli
