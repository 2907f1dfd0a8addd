package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johniman211/payssd-sub003/config"
	"github.com/johniman211/payssd-sub003/internal/adapter/gateway"
	httpHandler "github.com/johniman211/payssd-sub003/internal/adapter/http/handler"
	pgStorage "github.com/johniman211/payssd-sub003/internal/adapter/storage/postgres"
	redisStorage "github.com/johniman211/payssd-sub003/internal/adapter/storage/redis"
	"github.com/johniman211/payssd-sub003/internal/core/ports"
	"github.com/johniman211/payssd-sub003/internal/pubsub"
	"github.com/johniman211/payssd-sub003/internal/service"
	"github.com/johniman211/payssd-sub003/pkg/logger"
)

// settingsCacheTTL bounds how stale the cached platform settings can get.
const settingsCacheTTL = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting PaySSD")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	merchantRepo := pgStorage.NewMerchantRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	linkRepo := pgStorage.NewPaymentLinkRepo(pool)
	payoutRepo := pgStorage.NewPayoutRepo(pool)
	webhookRepo := pgStorage.NewWebhookRepository(pool)
	settingsRepo := pgStorage.NewSettingsRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	viewTracker := redisStorage.NewViewTracker(rdb)
	callbackDedupe := redisStorage.NewCallbackDedupe(rdb)

	// Initialize core services
	feeSvc := service.NewFeeService()
	sigSvc := service.NewHMACSignatureService()
	verifySvc := service.NewVerificationService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	settingsSvc := service.NewSettingsService(settingsRepo, settingsCacheTTL, log)
	notifier := service.NewLogNotifier(log)
	broker := pubsub.NewBroker(log)

	// Provider gateways
	gateways := gateway.NewSelector(gateway.Config{
		UseMock:        cfg.Gateway.UseMock,
		MTNBaseURL:     cfg.Gateway.MTNBaseURL,
		MTNAPIKey:      cfg.Gateway.MTNAPIKey,
		MGurushBaseURL: cfg.Gateway.MGurushBaseURL,
		MGurushAPIKey:  cfg.Gateway.MGurushAPIKey,
	}, log)

	// Initialize business services
	webhookSvc := service.NewWebhookService(
		merchantRepo,
		txRepo,
		webhookRepo,
		sigSvc,
		&http.Client{Timeout: 10 * time.Second},
		log,
	)
	linkSvc := service.NewPaymentLinkRegistry(linkRepo, viewTracker, log)
	txSvc := service.NewTransactionEngine(
		txRepo,
		linkRepo,
		merchantRepo,
		gateways,
		feeSvc,
		sigSvc,
		webhookSvc,
		settingsSvc,
		notifier,
		callbackDedupe,
		broker,
		transactor,
		log,
	)
	payoutSvc := service.NewPayoutEngine(
		payoutRepo,
		merchantRepo,
		feeSvc,
		verifySvc,
		webhookSvc,
		notifier,
		broker,
		transactor,
		log,
	)

	// Background maintenance: provider polling, expiry and link demotion
	sweeper := service.NewSweeper(txSvc, linkSvc, cfg.Sweep.Interval, log)
	go sweeper.Run(ctx)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LinkSvc:        linkSvc,
		TxSvc:          txSvc,
		PayoutSvc:      payoutSvc,
		VerifySvc:      verifySvc,
		TokenSvc:       tokenSvc,
		Broker:         broker,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
