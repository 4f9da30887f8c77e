// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий и команд
//   - consumer.go   — потребление команд import.trigger
//
// Типы сообщений:
//   - item.imported     — item сохранён
//   - metrics.recorded  — записана метрика импорта подписки
//   - import.trigger    — запустить цикл импорта сейчас
//
// Exchanges:
//   - buffy.events   — события импорта (topic)
//   - buffy.control  — команды процессу импорта (direct)
//
// Брокер опционален: без него процесс импорта работает только по расписанию.
package mq
