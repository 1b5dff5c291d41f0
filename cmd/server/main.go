package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/api"
	"github.com/eakyurek/context-search/internal/cache"
	"github.com/eakyurek/context-search/internal/catalog"
	"github.com/eakyurek/context-search/internal/config"
	"github.com/eakyurek/context-search/internal/convctx"
	"github.com/eakyurek/context-search/internal/engine"
	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/observability"
	"github.com/eakyurek/context-search/internal/search"
	"github.com/eakyurek/context-search/internal/textnorm"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize logger
	logger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting context search service",
		zap.String("service", cfg.Observability.ServiceName),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tracing
	tracerShutdown, err := observability.InitTracer(ctx, cfg.Observability.ServiceName, cfg.Observability.TracingEndpoint)
	if err != nil {
		logger.Warn("tracing initialization failed, continuing without tracing", zap.Error(err))
	}

	// Text pipeline shared by every component
	normalizer := textnorm.NewNormalizer()
	extractor := feature.NewExtractor(normalizer)

	// Load catalog
	cat, err := catalog.Load(cfg.Catalog.ProductsFile, extractor, logger)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	// Cache backend: in-process by default, Redis when configured
	var store cache.Store
	healthHandler := api.NewHealthHandler(logger)
	if cfg.Redis.Enabled {
		redisStore, err := cache.NewRedisStore(cfg.Redis, cfg.Search.Retry, logger)
		if err != nil {
			return fmt.Errorf("initializing redis: %w", err)
		}
		defer redisStore.Close()
		healthHandler.Register("redis", redisStore)
		store = redisStore
	} else {
		store = cache.NewMemoryStore()
	}

	contextCache := cache.NewContextAwareCache(cfg.Cache, store, logger)
	contextCache.StartJanitor(ctx)

	// Conversation state
	contextStore := convctx.NewStore(cfg.Context, extractor, logger)
	contextStore.StartJanitor(ctx)

	// Search pipeline
	methods := []search.Method{
		search.NewAttributeMethod(extractor, normalizer, cfg.Search.AttributeThreshold),
		search.NewFuzzyMethod(normalizer, cfg.Search.FuzzyThreshold),
		search.NewKeywordMethod(normalizer, cfg.Search.KeywordThreshold),
		search.NewFeatureWeightedMethod(extractor, cfg.Search.FeatureThreshold),
	}

	slowQueryDetector := observability.NewSlowQueryDetector(
		cfg.Search.SlowQuery.WarningThreshold,
		cfg.Search.SlowQuery.CriticalThreshold,
		logger,
	)

	eng := engine.New(engine.Deps{
		Catalog:    cat,
		Store:      contextStore,
		Detector:   convctx.NewTopicDetector(extractor, normalizer, logger),
		Resolver:   convctx.NewQueryResolver(extractor, logger),
		Dispatcher: search.NewDispatcher(methods, cfg.Search, logger),
		Fusion:     search.NewFusionEngine(cfg.Fusion, extractor, normalizer, logger),
		Presenter:  search.NewPresenter(),
		Cache:      contextCache,
		SlowQuery:  slowQueryDetector,
	}, cfg.Search, logger)

	// Initialize HTTP server
	handler := api.NewHandler(eng, logger)
	router := api.NewRouter(handler, healthHandler, cfg.Server.RateLimit, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Dedicated metrics listener so scrapes bypass the API rate limiter
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf(":%d", cfg.Observability.MetricsPort)
		logger.Info("metrics server starting", zap.String("addr", metricsAddr))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	// Graceful shutdown
	logger.Info("starting graceful shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new requests
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	// Stop janitors and other background work
	cancel()

	// Shutdown tracing
	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}
