// Package webhook доставляет webhook-запросы, поставленные правилами.
//
// # Обзор
//
// Действие WEBHOOK не выполняет сетевой вызов само: оно ставит Request
// в очередь Dispatcher'а и сразу возвращает управление. Dispatcher —
// единственный фоновый consumer, который разбирает очередь строго FIFO
// и отправляет каждый запрос через Client.
//
//	d := webhook.NewDispatcher(webhook.DispatcherConfig{
//	    Sender: webhook.NewClient(webhook.ClientConfig{UserAgent: "Buffy-WebHook/1.0"}),
//	    Logger: logger,
//	})
//	d.Start(ctx)
//	defer d.Stop()
//
// # Доставка
//
// Client отправляет HTTP POST с фиксированным User-Agent,
// Content-Type: application/json и Basic-аутентификацией, если заданы
// оба параметра. Гарантия — at-most-once: повторов и dead-letter нет.
//
// # Ошибки
//
// Неудачная доставка возвращается как *RequestError с ErrorType:
//   - HTTP_CLIENT_ERROR / HTTP_SERVER_ERROR — ответ 4xx / 5xx
//   - UNKNOWN_HOST, SSL_HANDSHAKE, SOCKET_TIMEOUT, CONNECT_REFUSED,
//     SOCKET, ILLEGAL_ARGUMENT, IO, OTHER — транспортные ошибки
//
// Классификация нужна только для логов и метрик.
package webhook
