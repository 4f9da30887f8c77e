package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/shaiso/Buffy/internal/app"
	"github.com/shaiso/Buffy/internal/config"
	"github.com/shaiso/Buffy/internal/telemetry"
)

// Env — окружение команд: конфигурация, вывод и лениво собранный App.
type Env struct {
	// ConfigFiles — файлы конфигурации (--config); пусто — config.DefaultFiles.
	ConfigFiles []string

	// JSON — вывод в JSON (--json).
	JSON bool

	logger *slog.Logger
	app    *app.App
	output *Output
}

// Logger возвращает логгер CLI: текст в stderr, уровень из LOG_LEVEL.
func (e *Env) Logger() *slog.Logger {
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: telemetry.LogLevel()}))
	}
	return e.logger
}

// Output возвращает форматтер вывода.
func (e *Env) Output() *Output {
	if e.output == nil {
		e.output = NewOutput(e.JSON)
	}
	return e.output
}

// Config загружает конфигурацию.
func (e *Env) Config() (config.Config, error) {
	return config.Load(e.ConfigFiles...)
}

// App собирает App при первом вызове.
func (e *Env) App(ctx context.Context, opts app.Options) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}

	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}

	if opts.Name == "" {
		opts.Name = "buffy-cli"
	}

	a, err := app.New(ctx, cfg, e.Logger(), opts)
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

// Close освобождает ресурсы App.
func (e *Env) Close() {
	if e.app != nil {
		e.app.Stop()
		e.app = nil
	}
}
