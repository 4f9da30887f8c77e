package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Значения по умолчанию.
const (
	defaultTimeout     = 30 * time.Second
	defaultUserAgent   = "Buffy-WebHook/1.0"
	defaultContentType = "application/json"

	// maxDrainBytes — сколько байт тела ответа дочитываем для переиспользования соединения.
	maxDrainBytes = 64 << 10
)

// Sender — доставка одного webhook-запроса.
//
// Реализация по умолчанию — Client.
type Sender interface {
	Post(ctx context.Context, req Request) error
}

// Client выполняет HTTP POST webhook-запросов.
type Client struct {
	http      *http.Client
	userAgent string
}

// ClientConfig — конфигурация Client.
type ClientConfig struct {
	// Timeout — таймаут запроса (default: 30s).
	Timeout time.Duration

	// UserAgent — фиксированный User-Agent (default: Buffy-WebHook/1.0).
	UserAgent string

	// HTTPClient — опционально; если nil, создаётся клиент с Timeout.
	HTTPClient *http.Client
}

// NewClient создаёт Client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{http: httpClient, userAgent: userAgent}
}

// Post отправляет запрос.
//
// Возвращает *RequestError для ответов 4xx/5xx и транспортных ошибок.
// Повторных попыток нет.
func (c *Client) Post(ctx context.Context, req Request) error {
	if req.URL == "" {
		return transportError(req.URL, fmt.Errorf("%w: url is required", ErrInvalidRequest))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return &RequestError{Type: ErrorIllegalArgument, URL: req.URL, Err: fmt.Errorf("%w: %v", ErrInvalidRequest, err)}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", c.userAgent)

	if req.HasBasicAuth() {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return transportError(req.URL, err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if reqErr := statusError(req.URL, resp.StatusCode, statusMessage(resp)); reqErr != nil {
		return reqErr
	}

	return nil
}

// statusMessage возвращает текст статуса без числового кода ("Not Found").
func statusMessage(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
