package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/nft-market-sync/internal/application/catalog"
	"github.com/bimakw/nft-market-sync/internal/application/services"
	"github.com/bimakw/nft-market-sync/internal/config"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/backend"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/cache"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/database"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/ethereum"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/notify"
	"github.com/bimakw/nft-market-sync/internal/presentation/handlers"
	"github.com/bimakw/nft-market-sync/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	if !common.IsHexAddress(cfg.Contracts.FactoryAddress) {
		logger.Fatal("Invalid factory address", zap.String("address", cfg.Contracts.FactoryAddress))
	}
	factory := common.HexToAddress(cfg.Contracts.FactoryAddress)

	logger.Info("Starting nft-market-sync",
		zap.String("factory", factory.Hex()),
		zap.Strings("collections", cfg.Contracts.CollectionAddresses),
		zap.String("rpc_url", cfg.Ethereum.RPCURL),
		zap.Int64("chain_id", cfg.Ethereum.ChainID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database (checkpoints only)
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	checkpoints := database.NewCheckpointRepo(db.DB())

	// Connect to Redis (optional)
	var metadataCache backend.MetadataCache
	var statsCache services.ResponseCache
	var cacheChecker handlers.HealthChecker

	metaRedis, err := cache.NewRedisCache(cfg.Redis, "metadata:", cfg.Backend.MetadataTTL, logger)
	if err != nil {
		logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
	} else {
		defer metaRedis.Close()
		metadataCache = metaRedis
		cacheChecker = metaRedis

		statsRedis, err := cache.NewRedisCache(cfg.Redis, "", 0, logger)
		if err != nil {
			logger.Warn("Failed to connect stats cache", zap.Error(err))
		} else {
			defer statsRedis.Close()
			statsCache = statsRedis
		}
	}

	// Backend API
	backendClient := backend.NewClient(cfg.Backend, logger)
	metadata := backend.NewMetadataFetcher(cfg.Backend, metadataCache, logger)

	// Catch-up reads go through a plain RPC client, independent of the wallet session
	var fetcher *ethereum.Fetcher
	if cfg.Sync.CatchUp {
		ethClient, err := ethereum.NewClient(ctx, cfg.Ethereum.RPCURL, nil, cfg.Ethereum, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Ethereum node", zap.Error(err))
		}
		defer ethClient.Close()
		fetcher = ethereum.NewFetcher(ethClient, cfg.Sync, cfg.Ethereum, logger)
	}

	// Wallet session
	wallet, err := ethereum.NewKeyedWallet(cfg.Wallet.PrivateKey, cfg.Ethereum.ChainID)
	if err != nil {
		logger.Fatal("Failed to load wallet", zap.Error(err))
	}
	if _, ok := wallet.Current(); !ok {
		logger.Warn("No wallet key configured, actions are disabled until one is connected")
	}
	session := ethereum.NewSessionManager(cfg.Ethereum, nil, logger)

	// Notifications
	hub := notify.NewHub(logger, cfg.API.CORSOrigins)
	sink := notify.Fanout{notify.NewLogSink(logger), hub}

	store := catalog.NewStore()
	store.OnChange(func(version uint64) {
		hub.Publish(notify.MessageCatalogUpdate, map[string]uint64{"version": version})
	})

	// Services
	registry := prometheus.DefaultRegisterer
	syncService := services.NewSyncService(
		session,
		backendClient,
		checkpoints,
		fetcher,
		store,
		metadata,
		sink,
		cfg.Sync,
		cfg.Ethereum.ChainID,
		services.NewSyncMetrics(registry),
		logger,
	)
	tradeService := services.NewTradeService(
		session,
		store,
		sink,
		factory,
		cfg.Tx,
		services.NewTradeMetrics(registry),
		logger,
	)
	catalogService := services.NewCatalogService(store, logger)
	statsService := services.NewStatsService(store, statsCache, logger)
	holdersService := services.NewHoldersService(store, logger)
	portfolioService := services.NewPortfolioService(store, logger)

	// Handlers
	catalogHandler := handlers.NewCatalogHandler(catalogService, logger)
	statsHandler := handlers.NewStatsHandler(statsService, logger)
	holdersHandler := handlers.NewHoldersHandler(holdersService, logger)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService, logger)
	actionHandler := handlers.NewActionHandler(tradeService, logger)
	healthHandler := handlers.NewHealthHandler(db, cacheChecker, session)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(middleware.NewHTTPMetrics(registry)))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.API.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", hub.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))
			catalogHandler.RegisterRoutes(r)
			statsHandler.RegisterRoutes(r)
			holdersHandler.RegisterRoutes(r)
			portfolioHandler.RegisterRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.ActionRateLimiter(cfg.API.ActionRateRPM))
			actionHandler.RegisterRoutes(r)
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		session.Watch(gctx, wallet)
		return nil
	})

	g.Go(func() error {
		targets := []ethereum.Target{{Name: "factory", Address: factory, ABI: &ethereum.FactoryABI}}
		for _, a := range cfg.Contracts.CollectionAddresses {
			if !common.IsHexAddress(a) {
				logger.Warn("Skipping invalid collection address", zap.String("address", a))
				continue
			}
			targets = append(targets, ethereum.Target{
				Name:    "collection",
				Address: common.HexToAddress(a),
				ABI:     &ethereum.CollectionABI,
			})
		}
		if err := syncService.Start(gctx, targets); err != nil {
			return fmt.Errorf("failed to start sync service: %w", err)
		}
		<-gctx.Done()
		syncService.Stop()
		return nil
	})

	g.Go(func() error {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Stopped with error", zap.Error(err))
		return
	}

	logger.Info("Stopped")
}

func setupLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoding := "json"
	encoderConfig := zap.NewProductionEncoderConfig()
	if format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := config.Build()
	return logger
}
