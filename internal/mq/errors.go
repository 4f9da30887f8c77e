package mq

import "errors"

var (
	// ErrNoChannel — соединение ещё не установлено или переподключается.
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrClosed — соединение закрыто.
	ErrClosed = errors.New("amqp connection closed")

	// ErrUnexpectedMessageType — в очередь пришло сообщение другого типа.
	ErrUnexpectedMessageType = errors.New("unexpected message type")

	// ErrTriggerDropped — handler отказался от команды, повтор не нужен.
	ErrTriggerDropped = errors.New("import trigger dropped")
)
