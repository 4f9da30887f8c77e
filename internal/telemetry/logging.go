package telemetry

import (
	"log/slog"
	"os"
)

// LogLevel определяет уровень логирования из переменной окружения.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel() slog.Level {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
func SetupLogger() *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     LogLevel(),
		AddSource: LogLevel() == slog.LevelDebug,
	}

	format := os.Getenv("LOG_FORMAT")
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// WithSubscriptionID возвращает логгер с добавленным subscription_id.
func WithSubscriptionID(logger *slog.Logger, subscriptionID int64) *slog.Logger {
	return logger.With("subscription_id", subscriptionID)
}

// WithImporterID возвращает логгер с добавленным importer_id.
func WithImporterID(logger *slog.Logger, importerID string) *slog.Logger {
	return logger.With("importer_id", importerID)
}

// WithRuleSetID возвращает логгер с добавленным rule_set_id.
func WithRuleSetID(logger *slog.Logger, ruleSetID int64) *slog.Logger {
	return logger.With("rule_set_id", ruleSetID)
}

// WithComponent возвращает логгер отдельного компонента (например, "webhook").
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}
