package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boardnotice/internal/config"
	"boardnotice/internal/domain/notice"
	"boardnotice/internal/domain/telemetry"
	"boardnotice/internal/infra/cache"
	"boardnotice/internal/infra/locale"
	"boardnotice/internal/infra/queue"
	"boardnotice/internal/infra/ratelimit"
	"boardnotice/internal/infra/store"
	"boardnotice/internal/infra/template"
	"boardnotice/internal/infra/userconfig"
	"boardnotice/internal/logger"
	"boardnotice/internal/router"

	supa "github.com/supabase-community/supabase-go"
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

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"user_config_backend", cfg.UserConfig.Backend,
	)

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startupCancel()

	// Redis (profile cache, board state, change feed, dismiss limiter)
	redisClient, err := cache.NewRedisClient(startupCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("redis connected", "redis", cfg.Redis.Address)

	// Supabase (telemetry listing, optional user config backend)
	supabaseClient, err := store.NewSupabaseClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
	if err != nil {
		slog.Error("failed to initialize supabase client", "error", err)
		os.Exit(1)
	}
	slog.Info("supabase client initialized")

	users := newUserConfigClient(cfg, supabaseClient)

	// Asynq Client (for enqueuing telemetry)
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()
	slog.Info("asynq client initialized", "redis", cfg.Redis.Address)

	profiles := cache.NewProfileCache(redisClient, users, cfg.Notice.ProfileCacheTTL())
	boards := cache.NewBoardState(redisClient)
	feed := cache.NewFeed(redisClient)
	limiter := ratelimit.NewRedisDismissLimiter(redisClient, cfg.Notice.DismissMaxPerHour)
	tracker := queue.NewTracker(asynqClient, cfg.Queue.MaxRetry)

	catalog, err := locale.NewCatalog(cfg.Locale.Default)
	if err != nil {
		slog.Error("failed to load locale catalog", "error", err)
		os.Exit(1)
	}

	engine, err := template.NewEngine()
	if err != nil {
		slog.Error("failed to initialize template engine", "error", err)
		os.Exit(1)
	}

	// Services
	noticeService := notice.NewService(notice.Deps{
		Profiles: profiles,
		Boards:   boards,
		Writer:   boards,
		Users:    users,
		Tracker:  tracker,
		Limiter:  limiter,
		Peers:    feed,
	}, notice.ServiceConfig{
		RecheckInterval: cfg.Notice.RecheckInterval(),
		DismissTimeout:  cfg.Notice.DismissTimeout(),
		PricingURL:      cfg.Notice.PricingURL,
	})
	telemetryService := telemetry.NewService(store.NewSupabaseTelemetrySink(supabaseClient))

	// Handlers
	noticeHandler := notice.NewHandler(noticeService, catalog, engine, feed)
	telemetryHandler := telemetry.NewHandler(telemetryService)

	// Router
	r := router.New(cfg, catalog, noticeHandler, telemetryHandler)

	// ==========================================
	// HTTP Server with Graceful Shutdown
	// ==========================================

	// No WriteTimeout: notice streams stay open for the lifetime of a board view.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// newUserConfigClient picks the user config backend named in the configuration.
func newUserConfigClient(cfg *config.Config, supabaseClient *supa.Client) notice.UserConfigClient {
	if cfg.UserConfig.Backend == "supabase" {
		slog.Info("user config backend: supabase")
		return store.NewSupabaseUserStore(supabaseClient)
	}

	slog.Info("user config backend: http", "base_url", cfg.UserConfig.BaseURL)
	return userconfig.NewHTTPClient(cfg.UserConfig.BaseURL, cfg.UserConfig.Token, cfg.UserConfig.Timeout())
}
