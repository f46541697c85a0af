// Package main provides the rollup daemon entry point: the refresh
// pipeline plus the operational HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/account-rollup/internal/api"
	"github.com/account-rollup/internal/broker"
	"github.com/account-rollup/internal/config"
	"github.com/account-rollup/internal/logging"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/service"
	"github.com/account-rollup/internal/storage"
	"github.com/account-rollup/internal/types"
)

func main() {
	fmt.Println("Account Rollup Daemon")
	log.Println("Daemon starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Postgres")
		os.Exit(1)
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to ClickHouse")
		os.Exit(1)
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	snapshotRepo := storage.NewBalanceSnapshotRepository(postgres.Pool())
	tradeSnapshotRepo := storage.NewTradeSnapshotRepository(postgres.Pool())
	accountRepo := storage.NewAccountRepository(postgres.Pool())
	tradeRepo := storage.NewTradeRepository(postgres.Pool())
	orderRepo := storage.NewOrderRepository(postgres.Pool())
	quoteRepo := storage.NewQuoteRepository(postgres.Pool())
	backfillJobRepo := storage.NewBackfillJobRepository(postgres.Pool())
	historyRepo := storage.NewHistoryRepository(clickhouse)
	quoteCache := storage.NewQuoteCache(redis, cfg.Scheduler.QuoteCacheTTL)

	// Resolve the processing clock and balance source. Simulation mode
	// replays against a fixed date with balances derived from transfer
	// history instead of a broker feed.
	var clock types.Clock = types.RealClock{}
	var balanceProvider service.BalanceProvider

	if cfg.Simulation.Enabled {
		if cfg.Simulation.AsOfDate != "" {
			asOf, err := time.Parse("2006-01-02", cfg.Simulation.AsOfDate)
			if err != nil {
				logger.WithError(err).Error("Invalid SIMULATION_AS_OF_DATE")
				os.Exit(1)
			}
			// Anchor mid-day in the market timezone so the instant
			// resolves to the intended trading date.
			clock = types.FixedClock{Instant: time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 12, 0, 0, 0, period.MarketTimezone)}
		}
		balanceProvider = broker.NewSimulatedProvider(snapshotRepo, clock)
		logger.WithField("asOf", cfg.Simulation.AsOfDate).Info("Simulation mode enabled")
	} else {
		balanceProvider = broker.NewGatewayClient(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Broker.Timeout)
	}

	// Initialize services
	logger.Info("Initializing services...")

	rollupService := service.NewRollupService(snapshotRepo, accountRepo, orderRepo, balanceProvider).
		WithHistoryMirror(historyRepo).
		WithClock(clock).
		WithSimulation(cfg.Simulation.Enabled)

	tradeRollupService := service.NewTradeRollupService(tradeRepo, tradeSnapshotRepo).
		WithClock(clock)

	backfillService := service.NewBackfillService(snapshotRepo, accountRepo, orderRepo).
		WithJobStore(backfillJobRepo).
		WithClock(clock).
		WithSimulation(cfg.Simulation.Enabled)

	quoteService := service.NewQuoteService(quoteRepo, quoteCache)

	refreshService := service.NewRefreshService(
		accountRepo,
		tradeRepo,
		rollupService,
		tradeRollupService,
		backfillService,
		cfg.Scheduler.RefreshInterval,
		cfg.Scheduler.BrokerRatePerSecond,
		cfg.Scheduler.BrokerBurst,
	)

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	server := api.NewServer(serverConfig, accountRepo, refreshService, backfillJobRepo, historyRepo, quoteService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refreshService.Start(ctx)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("Ops server stopped")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Daemon started successfully")

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Ops server forced to shutdown")
	}

	cancel()
	refreshService.Stop()

	logger.Info("Daemon exited")
}
