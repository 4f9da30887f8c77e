// Package app собирает компоненты Buffy из конфигурации.
//
// Используется importer-демоном и CLI: пул PostgreSQL, репозитории,
// опциональный RabbitMQ, webhook Dispatcher, правила, importer лент,
// Orchestrator, Scheduler и Purger.
//
// Без брокера App работает в local-only режиме: события не публикуются,
// команды import.trigger не принимаются.
package app
