package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dreamlog/backend/internal/app"
	"dreamlog/backend/internal/auth"
	"dreamlog/backend/internal/config"
	"dreamlog/backend/internal/db"
	"dreamlog/backend/internal/handlers"
	"dreamlog/backend/internal/llm"
	"dreamlog/backend/internal/logging"
	"dreamlog/backend/internal/middleware"
	"dreamlog/backend/internal/realtime"
	"dreamlog/backend/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := db.New(startCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(startCtx); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	authService, err := auth.NewService(cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		logger.Fatal("failed to init auth", zap.Error(err))
	}

	engine, orch, err := app.BuildEngine(startCtx, cfg.Dream, logger)
	if err != nil {
		logger.Fatal("failed to build dream engine", zap.Error(err))
	}

	hub := realtime.NewHub()
	attempts := llm.NewStore(store)
	api := handlers.NewAPI(store, authService, hub, engine, logger)
	api.Attempts = attempts
	api.Chain = orch.Chain()
	api.Health = &llm.HealthMonitor{
		Backends: orch.Backends(),
		Store:    attempts,
		Logger:   logger,
		Timeout:  cfg.Dream.BackendTimeout,
	}
	go api.Health.Run(ctx)

	if cfg.RedisURL != "" {
		queue, err := llm.NewQueue(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		defer func() { _ = queue.Close() }()
		api.Queue = queue
		worker := &llm.Worker{Queue: queue, Handle: api.Reanalyze, Logger: logger}
		go worker.Start(ctx)
	} else {
		logger.Info("REDIS_URL not set, degraded analyses will not be retried")
	}

	limiter := middleware.NewRateLimiter(60, time.Minute)
	go sweep(ctx, limiter)
	rt := router.New(api, authService, limiter, cfg.FrontendOrigin, hub, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rt,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func sweep(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
