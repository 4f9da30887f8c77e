package feeds

import "errors"

var (
	// ErrUnexpectedStatus — сервер ответил не 200.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrParse — тело ответа не является RSS/Atom.
	ErrParse = errors.New("parse feed")
)

// Маркеры ошибок в метриках подписки.
const (
	ErrorTypeHTTP  = "HTTP_ERROR"
	ErrorTypeParse = "PARSE_ERROR"
	ErrorTypeIO    = "IO_ERROR"
)

// errorType возвращает маркер ошибки для метрики.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrUnexpectedStatus):
		return ErrorTypeHTTP
	case errors.Is(err, ErrParse):
		return ErrorTypeParse
	default:
		return ErrorTypeIO
	}
}
