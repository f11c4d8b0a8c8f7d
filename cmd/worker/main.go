package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/draftwell/docassist/internal/bootstrap"
	"github.com/draftwell/docassist/internal/config"
	"github.com/draftwell/docassist/internal/core/domain"
	"github.com/draftwell/docassist/internal/observability/logging"
	"github.com/draftwell/docassist/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeSourceUploaded(ctx, func(handlerCtx context.Context, event domain.IngestEvent) error {
		if !event.UploadedAt.IsZero() {
			workerMetrics.ObserveQueueLag("worker", time.Since(event.UploadedAt))
		}
		workerMetrics.StartSource()
		start := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		scope := domain.Scope{TenantID: event.TenantID, UserID: event.UserID}
		summary, processErr := app.ProcessUC.ProcessByID(processCtx, scope, event.SourceID)
		workerMetrics.FinishSource("worker", time.Since(start), processErr)
		if processErr == nil && summary.Warning != "" {
			workerMetrics.RecordDegraded("worker", summary.Warning)
		}
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
