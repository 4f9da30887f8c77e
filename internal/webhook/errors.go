package webhook

import "errors"

var (
	// ErrInvalidRequest — запрос невозможно отправить (пустой или неверный URL).
	ErrInvalidRequest = errors.New("invalid webhook request")

	// ErrDispatcherStopped — Dispatcher остановлен, запрос отброшен.
	ErrDispatcherStopped = errors.New("webhook dispatcher stopped")
)
