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

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"affiliate-service/internal/auth"
	"affiliate-service/internal/config"
	"affiliate-service/internal/database"
	"affiliate-service/internal/handlers"
	"affiliate-service/internal/jobs"
	"affiliate-service/internal/logging"
	"affiliate-service/internal/metrics"
	"affiliate-service/internal/repository"
	"affiliate-service/internal/services"
	"affiliate-service/internal/throttle"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log, cfg.App.Name)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Connect to database
	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	appMetrics := metrics.New(cfg.App.Name)
	repo := repository.NewRepository(db)
	tokens := auth.NewTokenManager(cfg.App.JWTSecret, cfg.App.TokenTTL, cfg.App.Name)

	// Initialize services
	userService := services.NewUserService(repo, cfg.Affiliate.CodePrefix, logger)
	ledger := services.NewReferralLedger(repo, userService, cfg.Affiliate.CommissionRate, appMetrics, logger)
	statsService := services.NewStatsService(repo, cfg.Affiliate.PayoutThreshold)
	payoutService := services.NewPayoutService(repo, cfg.Affiliate.PayoutThreshold, appMetrics, logger)
	authService := services.NewAuthService(repo, userService, ledger, logger)

	// Redis backs the conversion queue and the click throttle; both are optional.
	var (
		queue         jobs.Enqueuer
		clickThrottle *throttle.ClickThrottle
	)
	if cfg.Redis.Addr != "" {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
		queue = asynqClient

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		clickThrottle = throttle.NewClickThrottle(rdb, cfg.Affiliate.ClickDedupWindow)
	} else {
		logger.Warn("REDIS_ADDR not set, charges are processed inline and clicks are not de-duplicated")
	}

	chargeHandler := jobs.NewChargeHandler(ledger, appMetrics, logger)
	dispatcher := jobs.NewChargeDispatcher(queue, chargeHandler)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:      handlers.NewAuthHandler(authService, userService, tokens, logger),
		Affiliate: handlers.NewAffiliateHandler(userService, ledger, statsService, payoutService, clickThrottle, cfg.Server.FrontendURL, logger),
		Admin:     handlers.NewAdminHandler(payoutService, logger),
		Billing:   handlers.NewBillingHandler(dispatcher, logger),

		Tokens:      tokens,
		InternalKey: cfg.Server.InternalKey,
		AllowedOrigins: []string{
			cfg.Server.FrontendURL,
			"http://localhost:3000",
			"http://localhost:5173",
		},
		Metrics: appMetrics,
		Log:     logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
