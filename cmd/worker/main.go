package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"boardnotice/internal/config"
	"boardnotice/internal/domain/telemetry"
	"boardnotice/internal/infra/queue"
	"boardnotice/internal/infra/store"
	"boardnotice/internal/logger"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	slog.SetDefault(logger.New(os.Stdout, cfg.Log.Level))

	slog.Info("worker configuration loaded")

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	// Supabase Telemetry Sink
	supabaseClient, err := store.NewSupabaseClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
	if err != nil {
		slog.Error("failed to initialize supabase client", "error", err)
		os.Exit(1)
	}
	sink := store.NewSupabaseTelemetrySink(supabaseClient)
	slog.Info("supabase telemetry sink initialized")

	// Telemetry Worker
	telemetryWorker := telemetry.NewWorker(sink)

	// ==========================================
	// Asynq Server (task processing)
	// ==========================================

	asynqServer := queue.NewServer(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Queue.Concurrency,
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(telemetry.TaskTypeTrackEvent, func(ctx context.Context, task *asynq.Task) error {
		ev, err := telemetry.ParseTrackEventPayload(task.Payload())
		if err != nil {
			// A malformed payload will never succeed.
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return telemetryWorker.ProcessTask(ctx, ev)
	})

	// Start the asynq worker in a goroutine
	go func() {
		slog.Info("worker starting",
			"concurrency", cfg.Queue.Concurrency,
			"redis", cfg.Redis.Address,
		)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	asynqServer.Shutdown()
	slog.Info("worker exited gracefully")
}
