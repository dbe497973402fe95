package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nftbay/nftbay-backend/internal/api"
	"github.com/nftbay/nftbay-backend/internal/config"
	"github.com/nftbay/nftbay-backend/internal/jobs"
	"github.com/nftbay/nftbay-backend/internal/log"
	"github.com/nftbay/nftbay-backend/internal/market"
	"github.com/nftbay/nftbay-backend/internal/metrics"
	"github.com/nftbay/nftbay-backend/internal/repository"
	"github.com/nftbay/nftbay-backend/internal/store"
	"github.com/nftbay/nftbay-backend/internal/token"
	"github.com/nftbay/nftbay-backend/internal/ws"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting NFT marketplace API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"version", "v1.0.0",
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("nftbay-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Setup Redis cache (falls back to in-memory when Redis is unreachable)
	cache, err := store.NewCache(cfg.Cache.RedisAddr, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		logger.Fatalw("Cache ping failed", "error", err)
	}
	logger.Infow("Cache connection established", "inMemory", cache.IsInMemoryMode())

	// Optional Postgres persistence for the event/sale audit trail
	var repo *repository.Repository
	if !cfg.Database.Disabled {
		repo, err = repository.New(cfg.Database.PostgresDSN, logger)
		if err != nil {
			logger.Fatalw("Failed to connect to database", "error", err)
		}
		defer repo.Close()
		logger.Infow("Database connection established")
	} else {
		logger.Infow("Event persistence disabled")
	}

	// Token substrate clients. The in-memory registry and ledger stand in for
	// the custody and payment contracts.
	registry := token.NewAssetRegistry()
	ledger := token.NewPaymentLedger()
	if cfg.Market.SeedDevAccounts && cfg.IsDev() {
		seedDevAccounts(registry, ledger, logger)
	}

	// Core marketplace state
	listings := market.NewListingStore()
	fees, err := market.NewFeeLedger(cfg.Market.FeeBasisPoints)
	if err != nil {
		logger.Fatalw("Invalid fee rate", "basisPoints", cfg.Market.FeeBasisPoints, "error", err)
	}

	sinks := market.MultiSink{store.NewEventPublisher(cache, logger)}
	if repo != nil {
		sinks = append(sinks, repo.Sink())
	}

	engine := market.NewEngine(
		token.Address(cfg.Market.OwnerAddress),
		token.Address(cfg.Market.EscrowAddress),
		listings, fees, registry, ledger, sinks, logger, metricsObj)
	view := market.NewStatisticsView(listings)

	// Setup WebSocket hub
	wsHub := ws.NewHub(cache, cfg.Security.CORSAllowedOrigins, logger, metricsObj)

	// Create context for background services
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()

	go wsHub.Run(hubCtx)

	// Periodic stats snapshots for cache and websocket consumers
	interval, err := time.ParseDuration(cfg.Stats.PublishInterval)
	if err != nil {
		logger.Warnw("Invalid stats publish interval, using 5s", "value", cfg.Stats.PublishInterval)
		interval = 5 * time.Second
	}
	statsPublisher := jobs.NewStatsPublisher(view, cache, interval, logger)
	go func() {
		if err := statsPublisher.Start(hubCtx); err != nil && err != context.Canceled {
			logger.Errorw("Stats publisher error", "error", err)
		}
	}()

	// Setup API handler and middleware
	handler := api.NewHandler(engine, view, repo, cache, wsHub, cfg, logger)
	middleware := api.NewMiddleware(logger, metricsObj)

	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Add metrics endpoint
	router.Handle("/metrics", metricsHandler)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}

// seedDevAccounts mints a handful of demo assets and balances so the API is
// usable out of the box in dev mode.
func seedDevAccounts(registry *token.AssetRegistry, ledger *token.PaymentLedger, logger *zap.SugaredLogger) {
	const demoContract = token.Address("0xdemo-collection")
	sellers := []token.Address{"0xalice", "0xbob", "0xcarol"}

	assetID := uint64(1)
	for _, seller := range sellers {
		for i := 0; i < 3; i++ {
			if err := registry.Mint(demoContract, assetID, seller); err == nil {
				assetID++
			}
		}
		ledger.Credit(seller, 1_000_000_000)
	}

	logger.Infow("Seeded dev accounts",
		"contract", demoContract, "sellers", sellers, "assets", assetID-1)
}
