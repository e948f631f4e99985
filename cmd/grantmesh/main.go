package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/grantmesh/grantmesh/internal/config"
	"github.com/grantmesh/grantmesh/internal/db"
	dbRedis "github.com/grantmesh/grantmesh/internal/db/redis"
	"github.com/grantmesh/grantmesh/internal/domain"
	domnode "github.com/grantmesh/grantmesh/internal/domain/node"
	logpkg "github.com/grantmesh/grantmesh/internal/logger"
	"github.com/grantmesh/grantmesh/internal/metrics"
	analyticsrepo "github.com/grantmesh/grantmesh/internal/repository/analytics"
	"github.com/grantmesh/grantmesh/internal/repository/embcache"
	"github.com/grantmesh/grantmesh/internal/repository/querycache"
	"github.com/grantmesh/grantmesh/internal/repository/vecindex"
	chiTransport "github.com/grantmesh/grantmesh/internal/transport/chi"
	openaiTransport "github.com/grantmesh/grantmesh/internal/transport/openai"
	healthuc "github.com/grantmesh/grantmesh/internal/usecase/health"
	ingestuc "github.com/grantmesh/grantmesh/internal/usecase/ingest"
	nodeuc "github.com/grantmesh/grantmesh/internal/usecase/node"
	pooluc "github.com/grantmesh/grantmesh/internal/usecase/pool"
	routeruc "github.com/grantmesh/grantmesh/internal/usecase/router"
	"github.com/grantmesh/grantmesh/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting grantmesh API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("nodes", len(cfg.Nodes)),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Optional database: without it the analytics sink and embedding cache
	// stay in-process.
	ctx := context.Background()
	var store db.Store
	if cfg.Database.Enabled() {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRoutingMetrics()

	// Shared embedder pool: all nodes and the router resolve the same model
	// handle through it.
	pool := pooluc.New(buildEmbedderFactory(cfg, store, logger), logger)

	// Search nodes from static config
	nodes := make([]routeruc.Node, 0, len(cfg.Nodes))
	indexers := make([]ingestuc.Indexer, 0, len(cfg.Nodes))
	for _, nc := range cfg.Nodes {
		reg, err := domnode.NewRegistration(nc.ID, nc.Name, nc.Domain, nc.Silo, nc.Capabilities)
		if err != nil {
			logger.Fatal("Invalid node config", zap.String("node", nc.ID), zap.Error(err))
		}
		svc := nodeuc.New(reg, vecindex.New(), pool, cfg.Embedding.Model, logger).
			WithBatchSize(cfg.Ingest.BatchSize)
		nodes = append(nodes, svc)
		indexers = append(indexers, svc)
	}

	registry, err := routeruc.NewRegistry(nodes)
	if err != nil {
		logger.Fatal("Failed to build node registry", zap.Error(err))
	}

	// Query cache
	cache := querycache.New(cfg.Routing.CacheMaxEntries).WithMetrics(metrics.QueryCacheTotal)

	// Optional advisory provider
	var advisor routeruc.Advisor
	if cfg.Advisory.Enabled {
		advisor = openaiTransport.NewAdvisor(&openaiTransport.AdvisorConfig{
			APIKey:    cfg.Advisory.APIKey,
			BaseURL:   cfg.Advisory.BaseURL,
			Model:     cfg.Advisory.Model,
			MaxTokens: cfg.Advisory.MaxTokens,
			Logger:    logger,
		})
		logger.Info("Advisory provider enabled", zap.String("model", cfg.Advisory.Model))
	}

	// Analytics sink: Redis stream when a database is configured
	var sink routeruc.AnalyticsSink
	if store != nil {
		sink = analyticsrepo.NewStreamSink(store).WithStream(cfg.Database.AnalyticsStream)
	} else {
		sink = analyticsrepo.NewMemorySink()
	}

	clusters := make([]routeruc.Cluster, len(cfg.Routing.Clusters))
	for i, cc := range cfg.Routing.Clusters {
		clusters[i] = routeruc.Cluster{Name: cc.Name, Keywords: cc.Keywords}
	}

	routerSvc := routeruc.New(
		registry, cache, advisor, sink, pool, cfg.Embedding.Model, clusters,
		routeruc.Options{
			MaxAttempts:    cfg.Routing.MaxAttempts,
			AttemptTimeout: time.Duration(cfg.Routing.AttemptTimeoutSec) * time.Second,
			Backoff:        time.Duration(cfg.Routing.BackoffMs) * time.Millisecond,
			CacheTTL:       time.Duration(cfg.Routing.CacheTTLSec) * time.Second,
		},
		logger,
	)

	ingestSvc, err := ingestuc.New(indexers, cfg.Ingest.PoolSize, logger)
	if err != nil {
		logger.Fatal("Failed to create ingest service", zap.Error(err))
	}
	defer ingestSvc.Release()

	// Health service: db and embedding checks only when configured
	var dbPinger healthuc.DBPinger
	if store != nil {
		dbPinger = store
	}
	healthSvc := healthuc.New(dbPinger, newEmbeddingHealthChecker(ctx, pool, cfg.Embedding.Model), registry)

	server := chiTransport.NewServer(routerSvc, ingestSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedderFactory assembles the pool's loader: OpenAI -> Cached.
func buildEmbedderFactory(cfg config.Config, store db.Store, logger *zap.Logger) pooluc.Factory {
	return func(_ context.Context, modelID string) (domain.Embedder, error) {
		base := openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      modelID,
			Dimensions: cfg.Embedding.Dimensions,
			Provider:   cfg.Embedding.Provider,
			Logger:     logger,
		})

		if store != nil {
			return embcache.New(base, store, metrics.EmbeddingCacheTotal, logger), nil
		}
		return base, nil
	}
}

// embeddingHealthChecker resolves the pooled embedder and delegates to its
// own health check when it has one.
type embeddingHealthChecker struct {
	pool    *pooluc.Pool
	modelID string
}

func newEmbeddingHealthChecker(_ context.Context, pool *pooluc.Pool, modelID string) *embeddingHealthChecker {
	return &embeddingHealthChecker{pool: pool, modelID: modelID}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	emb, err := h.pool.GetOrLoad(ctx, h.modelID)
	if err != nil {
		return fmt.Errorf("load embedder: %w", err)
	}
	if hc, ok := emb.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
