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
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/chunker"
	"github.com/konghaojie-k2/ai-project-space/internal/config"
	dbRedis "github.com/konghaojie-k2/ai-project-space/internal/db/redis"
	"github.com/konghaojie-k2/ai-project-space/internal/domain"
	"github.com/konghaojie-k2/ai-project-space/internal/index"
	logpkg "github.com/konghaojie-k2/ai-project-space/internal/logger"
	"github.com/konghaojie-k2/ai-project-space/internal/metrics"
	"github.com/konghaojie-k2/ai-project-space/internal/repository/embcache"
	chiTransport "github.com/konghaojie-k2/ai-project-space/internal/transport/chi"
	openaiTransport "github.com/konghaojie-k2/ai-project-space/internal/transport/openai"
	chatuc "github.com/konghaojie-k2/ai-project-space/internal/usecase/chat"
	embeddinguc "github.com/konghaojie-k2/ai-project-space/internal/usecase/embedding"
	healthuc "github.com/konghaojie-k2/ai-project-space/internal/usecase/health"
	indexinguc "github.com/konghaojie-k2/ai-project-space/internal/usecase/indexing"
	retrievaluc "github.com/konghaojie-k2/ai-project-space/internal/usecase/retrieval"
	"github.com/konghaojie-k2/ai-project-space/internal/version"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting projectspace engine",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("llm_model", cfg.AI.LLM.Model),
		zap.String("embedding_model", cfg.AI.Embedding.Model),
		zap.Int("embedding_dimensions", cfg.AI.Embedding.Dimensions),
	)

	metrics.RegisterAIMetrics()

	aiTimeout := time.Duration(cfg.AI.TimeoutSec) * time.Second

	// Embedder chain:
	// OpenAI-compatible base -> Redis cache (optional) -> zero-vector degradation.
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.AI.APIKey,
		BaseURL:    cfg.AI.BaseURL,
		Model:      cfg.AI.Embedding.Model,
		Dimensions: cfg.AI.Embedding.Dimensions,
		BatchSize:  cfg.AI.Embedding.BatchSize,
		Timeout:    aiTimeout,
		Logger:     logger,
	})

	var chained domain.Embedder = base
	if len(cfg.Cache.Addrs) > 0 {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create embedding cache store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(context.Background(), 30*time.Second); err != nil {
			logger.Fatal("Embedding cache not ready", zap.Error(err))
		}
		logger.Info("Embedding cache enabled", zap.Strings("addrs", cfg.Cache.Addrs))

		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		chained = embcache.New(base, store, ttl, metrics.EmbeddingCacheTotal, logger)
	}
	embedder := embeddinguc.New(chained, cfg.AI.Embedding.Dimensions, cfg.AI.Embedding.Model, logger)

	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.LLM.Model,
		MaxTokens:   cfg.AI.LLM.MaxTokens,
		Temperature: cfg.AI.LLM.Temperature,
		Timeout:     aiTimeout,
		Logger:      logger,
	})

	// Non-fatal provider probe: the engine still serves fallback answers
	// when the upstream is down.
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 10*time.Second)
	if err := base.HealthCheck(probeCtx); err != nil {
		logger.Warn("Embedding provider unreachable at startup", zap.Error(err))
	} else {
		logger.Info("Embedding provider reachable")
	}
	cancelProbe()

	ix, err := index.Open(cfg.Index.DataDir, cfg.AI.Embedding.Dimensions, logger)
	if err != nil {
		logger.Fatal("Failed to open vector index", zap.Error(err))
	}
	logger.Info("Vector index opened",
		zap.String("data_dir", cfg.Index.DataDir),
		zap.Int("chunks", ix.Len()),
	)

	split := chunker.New(cfg.Index.MaxChunkSize, cfg.Index.ChunkOverlap)

	indexingSvc := indexinguc.New(split, embedder, ix, logger)
	retrievalSvc := retrievaluc.New(embedder, ix, cfg.Index.ExcerptLength, logger)
	chatSvc := chatuc.New(retrievalSvc, completer, logger)
	healthSvc := healthuc.New(base, ix)

	server := chiTransport.NewServer(indexingSvc, retrievalSvc, chatSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

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

	// Indexing saves after every mutation, so this is belt and braces for
	// anything in flight when the signal arrived.
	if err := ix.Save(); err != nil {
		logger.Error("Failed to save index on shutdown", zap.Error(err))
	}
	_ = ix.Close()

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain
// text stacktrace.
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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

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
