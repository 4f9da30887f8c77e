// Buffy Importer — демон импорта подписок.
//
// Importer:
//   - Раз в час запускает цикл импорта для подписок, чей tier совпадает с часом
//   - Применяет правила к новым items и доставляет webhooks
//   - Раз в час пересчитывает tier'ы подписок (Adaptive Scheduler)
//   - Раз в сутки очищает архив и осиротевшие метрики
//   - Принимает команды import.trigger из RabbitMQ (если брокер доступен)
//   - Отдаёт /healthz, /metrics и служебный API /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shaiso/Buffy/internal/api"
	"github.com/shaiso/Buffy/internal/app"
	"github.com/shaiso/Buffy/internal/config"
	"github.com/shaiso/Buffy/internal/scheduler"
	"github.com/shaiso/Buffy/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting buffy-importer")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Options{
		Name:    "buffy-importer",
		Broker:  true,
		Migrate: true,
	})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		logger.Error("failed to start", "error", err)
		a.Stop()
		os.Exit(1)
	}

	triggers := scheduler.NewTriggers(scheduler.TriggersConfig{
		Location: a.Location,
		Logger:   logger,
	})
	if err := a.RegisterJobs(triggers); err != nil {
		logger.Error("failed to register periodic jobs", "error", err)
		a.Stop()
		os.Exit(1)
	}
	if err := triggers.Start(ctx); err != nil {
		logger.Error("failed to start triggers", "error", err)
		a.Stop()
		os.Exit(1)
	}

	// HTTP mux: /healthz, /metrics, /api/v1
	mux := http.NewServeMux()
	api.FromApp(a).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}

	triggers.Stop()
	a.Stop()
	logger.Info("buffy-importer stopped")
}
