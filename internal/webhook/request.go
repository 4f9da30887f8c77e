package webhook

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"time"
)

// Request — запрос на доставку webhook.
//
// Создаётся обработчиком действий правил, потребляется Dispatcher'ом
// ровно один раз и затем отбрасывается (успех или ошибка, без retry).
type Request struct {
	// ID — идентификатор запроса (для логов). Заполняется при Enqueue, если пуст.
	ID string

	// URL — адрес доставки.
	URL string

	// Payload — сериализованное тело запроса.
	Payload []byte

	// ContentType — тип тела. По умолчанию application/json.
	ContentType string

	// Username / Password — Basic-аутентификация (используется, если задан Username).
	Username string
	Password string

	// EnqueuedAt — время постановки в очередь.
	EnqueuedAt time.Time
}

// HasBasicAuth возвращает true, если задан username. Пустой пароль допустим.
func (r *Request) HasBasicAuth() bool {
	return r.Username != ""
}

// ErrorType — класс ошибки доставки. Используется только для диагностики.
type ErrorType string

const (
	ErrorHTTPClient      ErrorType = "HTTP_CLIENT_ERROR"
	ErrorHTTPServer      ErrorType = "HTTP_SERVER_ERROR"
	ErrorUnknownHost     ErrorType = "UNKNOWN_HOST"
	ErrorSSLHandshake    ErrorType = "SSL_HANDSHAKE"
	ErrorSocketTimeout   ErrorType = "SOCKET_TIMEOUT"
	ErrorConnectRefused  ErrorType = "CONNECT_REFUSED"
	ErrorSocket          ErrorType = "SOCKET"
	ErrorIllegalArgument ErrorType = "ILLEGAL_ARGUMENT"
	ErrorIO              ErrorType = "IO"
	ErrorOther           ErrorType = "OTHER"
)

// RequestError — неудачная доставка webhook.
type RequestError struct {
	Type ErrorType
	URL  string

	// StatusCode / StatusMessage — заполнены для HTTP_CLIENT_ERROR и HTTP_SERVER_ERROR.
	StatusCode    int
	StatusMessage string

	// Err — исходная транспортная ошибка (nil для HTTP-статусов).
	Err error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook %s: %s: HTTP %d %s", e.URL, e.Type, e.StatusCode, e.StatusMessage)
	}
	return fmt.Sprintf("webhook %s: %s: %v", e.URL, e.Type, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// statusError классифицирует HTTP-ответ. Возвращает nil для кодов вне 400..599.
func statusError(rawURL string, code int, message string) *RequestError {
	var t ErrorType
	switch {
	case code >= 400 && code <= 499:
		t = ErrorHTTPClient
	case code >= 500 && code <= 599:
		t = ErrorHTTPServer
	default:
		return nil
	}
	return &RequestError{Type: t, URL: rawURL, StatusCode: code, StatusMessage: message}
}

// transportError оборачивает транспортную ошибку с классификацией.
func transportError(rawURL string, err error) *RequestError {
	return &RequestError{Type: classify(err), URL: rawURL, Err: err}
}

// classify определяет класс транспортной ошибки.
//
// Порядок проверок важен: DNS-ошибка тоже реализует net.Error,
// а url.Error оборачивает всё остальное.
func classify(err error) ErrorType {
	var (
		dnsErr      *net.DNSError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidCert x509.CertificateInvalidError
		netErr      net.Error
		opErr       *net.OpError
		urlErr      *url.Error
	)

	switch {
	case errors.As(err, &dnsErr):
		return ErrorUnknownHost
	case errors.As(err, &recordErr), errors.As(err, &alertErr), errors.As(err, &verifyErr),
		errors.As(err, &unknownAuth), errors.As(err, &hostErr), errors.As(err, &invalidCert):
		return ErrorSSLHandshake
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return ErrorSocketTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorConnectRefused
	case errors.As(err, &opErr), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return ErrorSocket
	case errors.Is(err, ErrInvalidRequest):
		return ErrorIllegalArgument
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorIO
	case errors.Is(err, context.Canceled):
		return ErrorOther
	case errors.As(err, &urlErr):
		if urlErr.Op == "parse" {
			return ErrorIllegalArgument
		}
		return ErrorIO
	default:
		return ErrorOther
	}
}
