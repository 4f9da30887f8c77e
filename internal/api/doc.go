// Package api содержит служебный HTTP API процесса buffy-importer.
//
// Структура:
//   - handler.go              — Handler с DI (интерфейсы хранилищ, orchestrator, scheduler)
//   - routes.go               — регистрация маршрутов
//   - middleware.go           — middleware (logging, recovery)
//   - response.go             — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                  — ответы и разбор параметров
//   - subscription_handler.go — обработчики для /subscriptions
//   - import_handler.go       — ручной запуск импорта, пересчёт tier'ов, /healthz
//
// Помимо /api/v1 отдаёт /healthz и /metrics (Prometheus).
package api
