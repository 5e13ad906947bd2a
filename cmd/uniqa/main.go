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

	"github.com/uniqa-cloud/uniqa/internal/config"
	dbRedis "github.com/uniqa-cloud/uniqa/internal/db/redis"
	"github.com/uniqa-cloud/uniqa/internal/llm"
	logpkg "github.com/uniqa-cloud/uniqa/internal/logger"
	"github.com/uniqa-cloud/uniqa/internal/metrics"
	cacherepo "github.com/uniqa-cloud/uniqa/internal/repository/cache"
	chunksrepo "github.com/uniqa-cloud/uniqa/internal/repository/chunks"
	indexrepo "github.com/uniqa-cloud/uniqa/internal/repository/index"
	"github.com/uniqa-cloud/uniqa/internal/tools"
	chiTransport "github.com/uniqa-cloud/uniqa/internal/transport/chi"
	agentuc "github.com/uniqa-cloud/uniqa/internal/usecase/agent"
	healthuc "github.com/uniqa-cloud/uniqa/internal/usecase/health"
	ingestuc "github.com/uniqa-cloud/uniqa/internal/usecase/ingest"
	memoryuc "github.com/uniqa-cloud/uniqa/internal/usecase/memory"
	raguc "github.com/uniqa-cloud/uniqa/internal/usecase/rag"
	resolveuc "github.com/uniqa-cloud/uniqa/internal/usecase/resolve"
	retrieveuc "github.com/uniqa-cloud/uniqa/internal/usecase/retrieve"
	"github.com/uniqa-cloud/uniqa/internal/version"
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

	logger.Info("Starting uniqa resolution server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Bool("agent_enabled", cfg.Agent.Enabled),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register resolution metrics explicitly (no init())
	metrics.RegisterResolutionMetrics()

	gateway, err := llm.NewGateway(cfg.LLM, metrics.GatewayRecorder{})
	if err != nil {
		logger.Fatal("Failed to create LLM gateway", zap.Error(err))
	}
	logger.Info("LLM gateway created",
		zap.String("generate_provider", cfg.LLM.GenerateProvider),
		zap.String("embed_provider", cfg.LLM.EmbedProvider),
	)

	// Repositories
	chunksRepo := chunksrepo.New(store)
	indexRepo := indexrepo.New(store, gateway, logger)
	cacheRepo := cacherepo.New(store,
		time.Duration(cfg.Cache.TTLSec)*time.Second, metrics.CacheEntries, logger)

	startCtx := logpkg.ContextWithLogger(ctx, logger)
	if err := cacheRepo.Load(startCtx); err != nil {
		logger.Warn("Cache warm-up failed, starting cold", zap.Error(err))
	}

	// Use case services
	retrieveSvc := retrieveuc.New(indexRepo, gateway, cfg.Retriever)
	memorySvc := memoryuc.New(store, gateway, cfg.Memory, logger)
	ragSvc := raguc.New(retrieveSvc, gateway)

	registry := tools.NewRegistry()
	mustRegister(logger, registry, tools.NewKnowledgeSearch(retrieveSvc))
	if cfg.Tools.StudentAPIBaseURL != "" {
		client := tools.NewClient(cfg.Tools)
		mustRegister(logger, registry, tools.NewStudentSchedule(client))
		mustRegister(logger, registry, tools.NewExamSchedule(client))
		mustRegister(logger, registry, tools.NewStudentGrades(client))
		mustRegister(logger, registry, tools.NewTuitionFees(client))
		mustRegister(logger, registry, tools.NewCampusNews(client))
	}
	logger.Info("Tools registered", zap.Int("count", len(registry.All())))

	agentSvc := agentuc.New(gateway, registry, cfg.Agent)
	resolveSvc := resolveuc.New(
		cacheRepo, memorySvc, gateway, ragSvc, agentSvc,
		cfg.Cache, cfg.Agent, cfg.Resolver,
	)
	ingestSvc := ingestuc.New(chunksRepo, indexRepo, cacheRepo)
	healthSvc := healthuc.New(store, indexRepo)

	// Index build at startup. A failure here is survivable: the server
	// starts degraded and the next ingestion retries the build.
	if err := ingestSvc.Reload(startCtx); err != nil {
		logger.Warn("Initial index build failed", zap.Error(err))
	} else {
		logger.Info("Index built", zap.Int("chunks", indexRepo.Size()))
	}

	server := chiTransport.NewServer(resolveSvc, ingestSvc, memorySvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Mount("/", server.Router(cfg.Auth.APIKeys))

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

func mustRegister(logger *zap.Logger, r *tools.Registry, t tools.Tool) {
	if err := r.Register(t); err != nil {
		logger.Fatal("Failed to register tool", zap.String("tool", t.Name()), zap.Error(err))
	}
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

			// Set X-Request-ID in response header
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
