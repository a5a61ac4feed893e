package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"affiliate-service/internal/config"
	"affiliate-service/internal/database"
	"affiliate-service/internal/jobs"
	"affiliate-service/internal/logging"
	"affiliate-service/internal/metrics"
	"affiliate-service/internal/repository"
	"affiliate-service/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log, cfg.App.Name+"-worker")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Redis.Addr == "" {
		logger.Fatal("REDIS_ADDR is required for the worker")
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	appMetrics := metrics.New(cfg.App.Name + "-worker")
	repo := repository.NewRepository(db)
	userService := services.NewUserService(repo, cfg.Affiliate.CodePrefix, logger)
	ledger := services.NewReferralLedger(repo, userService, cfg.Affiliate.CommissionRate, appMetrics, logger)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				jobs.QueueConversions: 1,
			},
			Logger: logger.Named("asynq").Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	jobs.NewChargeHandler(ledger, appMetrics, logger).Register(mux)

	metricsAddr := ":" + cfg.Worker.MetricsPort
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: appMetrics.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	if err := srv.Start(mux); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}
	logger.Info("worker started", zap.Int("concurrency", cfg.Worker.Concurrency))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)
}
