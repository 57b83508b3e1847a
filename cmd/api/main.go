package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/platefeed/recsys/internal/api/handlers"
	"github.com/platefeed/recsys/internal/api/middleware"
	"github.com/platefeed/recsys/internal/config"
	"github.com/platefeed/recsys/internal/engine"
	"github.com/platefeed/recsys/internal/exporter"
	"github.com/platefeed/recsys/internal/jobs"
	"github.com/platefeed/recsys/internal/observability"
	"github.com/platefeed/recsys/internal/repository"
	"github.com/platefeed/recsys/internal/scenario"
	"github.com/platefeed/recsys/internal/service"
	"github.com/platefeed/recsys/internal/tagging"
	"github.com/platefeed/recsys/pkg/database"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// engineVersion defers ModelVersion lookups until the engine exists; the
// pgvector retriever is constructed before the engine that owns it.
type engineVersion struct {
	eng *engine.Engine
}

func (v *engineVersion) ModelVersion() string {
	return v.eng.ModelVersion()
}

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Metrics: OTel meter with a Prometheus exporter behind /metrics.
	var (
		metrics        observability.Metrics
		metricsHandler http.Handler
	)
	if cfg.OTelMetricsExporter == "prometheus" {
		provider, handler, m, err := observability.NewMeterProvider(ctx, observability.MeterProviderConfig{})
		if err != nil {
			slog.Error("Failed to initialize metrics", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				slog.Error("Failed to shut down meter provider", "error", err)
			}
		}()
		metrics = m
		metricsHandler = handler
	} else {
		slog.Info("Metrics disabled", "exporter", cfg.OTelMetricsExporter)
	}

	// Database connection, only needed for the pgvector retriever.
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		poolOpts := []database.PoolOption{
			database.WithAfterConnect(func(ctx context.Context, conn *pgx.Conn) error {
				return pgxvector.RegisterTypes(ctx, conn)
			}),
		}
		if cfg.PoolMaxConns > 0 {
			poolOpts = append(poolOpts, database.WithMaxConns(int32(cfg.PoolMaxConns)))
		}

		db, err = database.NewPostgresPool(ctx, cfg.DatabaseURL, poolOpts...)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	loader := &engine.FileLoader{
		DataDir:     cfg.DataDir,
		SidecarPath: cfg.ModelInfoPath,
		WeightsPath: cfg.ModelPath,
		Logger:      logger,
	}

	hooks := engine.Hooks{
		CacheRebuilt: func(dishCount int) {
			if metrics != nil {
				metrics.RecordCacheRebuild(context.Background(), dishCount)
			}
		},
		ColdStartFallback: func() {
			if metrics != nil {
				metrics.RecordColdStartFallback(context.Background())
			}
		},
	}

	engineOpts := []engine.Option{engine.WithHooks(hooks)}

	var (
		dishVectors *repository.DishVectorRepository
		vectorStore service.VectorStore
	)
	versioner := &engineVersion{}
	if cfg.Retriever == config.RetrieverPgVector {
		dishVectors = repository.NewDishVectorRepository(db)
		vectorStore = dishVectors
		engineOpts = append(engineOpts, engine.WithRetriever(repository.NewPgVectorRetriever(dishVectors, versioner)))
		slog.Info("Using pgvector retriever")
	}

	eng := engine.New(loader, logger, engineOpts...)
	versioner.eng = eng

	// The first snapshot must load; serving without one would 503 every
	// recommendation until an operator intervenes anyway.
	if err := eng.Load(ctx); err != nil {
		slog.Error("Failed to load initial snapshot", "error", err)
		os.Exit(1)
	}
	if err := persistVectors(ctx, eng, dishVectors); err != nil {
		slog.Error("Failed to persist dish vectors", "error", err)
		os.Exit(1)
	}

	recommender, err := service.NewRecommender(eng, logger, metrics, vectorStore, cfg.ProfileCacheSize)
	if err != nil {
		slog.Error("Failed to initialize recommender", "error", err)
		os.Exit(1)
	}

	// Gemini tag suggestion is optional.
	var suggester handlers.TagSuggester
	if cfg.GeminiAPIKey != "" {
		allowed, err := eng.TagNamespaces()
		if err != nil {
			slog.Error("Failed to read catalog tags", "error", err)
			os.Exit(1)
		}
		taggingClient, err := tagging.NewClient(ctx, cfg.GeminiAPIKey, allowed, cfg.TagSuggestRateLimit)
		if err != nil {
			slog.Error("Failed to initialize tag suggestion", "error", err)
			os.Exit(1)
		}
		suggester = taggingClient
		slog.Info("Tag suggestion enabled", "rate_limit", cfg.TagSuggestRateLimit)
	} else {
		slog.Info("Tag suggestion disabled (GEMINI_API_KEY not set)")
	}

	// Evaluation scenarios: built-in set unless a definitions file is given.
	defs := scenario.DefaultDefinitions()
	if cfg.ScenariosPath != "" {
		defs, err = scenario.LoadDefinitions(cfg.ScenariosPath)
		if err != nil {
			slog.Error("Failed to load scenario definitions", "error", err, "path", cfg.ScenariosPath)
			os.Exit(1)
		}
	}
	evaluator := scenario.NewEvaluator(recommender, defs)
	slog.Info("Scenario evaluator ready", "scenarios", evaluator.Names())

	jobManager := jobs.NewManager(logger, metrics)

	reloadJob := func(ctx context.Context) error {
		if err := eng.Load(ctx); err != nil {
			return err
		}
		return persistVectors(ctx, eng, dishVectors)
	}

	var exportJob, trainJob func(ctx context.Context) error
	if cfg.ExportBaseURL != "" {
		exportClient := exporter.NewClient(cfg.ExportBaseURL, cfg.ExportAPIKey)
		exportJob = func(ctx context.Context) error {
			result, err := exportClient.Export(ctx, cfg.DataDir)
			if err != nil {
				return err
			}
			slog.Info("Export finished", "export_id", result.ExportID, "rows", result.RowCounts)
			return nil
		}
		trainJob = exportClient.TriggerTraining
	} else {
		slog.Info("Export pipeline disabled (EXPORT_BASE_URL not set)")
	}

	recommendationsHandler := handlers.NewRecommendationsHandler(recommender)
	similarHandler := handlers.NewSimilarHandler(recommender)
	tagsHandler := handlers.NewTagsHandler(recommender, suggester)
	catalogHandler := handlers.NewCatalogHandler(recommender)
	adminHandler := handlers.NewAdminHandler(jobManager, reloadJob, exportJob, trainJob)
	scenarioHandler := handlers.NewScenarioHandler(evaluator)
	healthHandler := handlers.NewHealthHandler(recommender)

	// Set up public endpoints (no authentication required)
	publicMux := http.NewServeMux()
	publicMux.HandleFunc("GET /healthz", healthHandler.Check)
	if metricsHandler != nil {
		publicMux.Handle("GET /metrics", metricsHandler)
	}

	// Set up protected endpoints (authentication required)
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /v1/recommendations/user", recommendationsHandler.ForUser)
	protectedMux.HandleFunc("POST /v1/recommendations/profile", recommendationsHandler.ForProfile)

	protectedMux.HandleFunc("POST /v1/dishes/similar", similarHandler.Dishes)
	protectedMux.HandleFunc("POST /v1/dishes/similar-profile", similarHandler.Profile)

	protectedMux.HandleFunc("POST /v1/tags/order", tagsHandler.ForOrder)
	protectedMux.HandleFunc("GET /v1/users/{id}/tags", tagsHandler.ForUser)
	protectedMux.HandleFunc("POST /v1/tags/suggest", tagsHandler.Suggest)

	protectedMux.HandleFunc("PUT /v1/users/{id}", catalogHandler.UpdateUser)
	protectedMux.HandleFunc("PUT /v1/dishes/{id}", catalogHandler.UpdateDish)

	protectedMux.HandleFunc("POST /v1/scenarios/{name}", scenarioHandler.Run)

	protectedMux.HandleFunc("POST /v1/admin/reload", adminHandler.Reload)
	protectedMux.HandleFunc("POST /v1/admin/export", adminHandler.Export)
	protectedMux.HandleFunc("POST /v1/admin/train", adminHandler.Train)
	protectedMux.HandleFunc("GET /v1/admin/jobs/{id}", adminHandler.JobStatus)

	var protectedHandler http.Handler = protectedMux
	protectedHandler = middleware.MaxBody(maxRequestBodyBytes)(protectedHandler)
	protectedHandler = middleware.Auth(cfg.APIKey)(protectedHandler)

	mainMux := http.NewServeMux()
	mainMux.Handle("/v1/", protectedHandler)
	mainMux.Handle("/", publicMux)

	// RequestID runs first so the metrics and handler spans share one id.
	handler := middleware.RequestID(middleware.Metrics(metrics)(mainMux))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port, "model_version", eng.ModelVersion())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// persistVectors mirrors the in-memory embedding cache into Postgres so the
// pgvector retriever serves the same snapshot. No-op without a repository.
func persistVectors(ctx context.Context, eng *engine.Engine, repo *repository.DishVectorRepository) error {
	if repo == nil {
		return nil
	}

	version, vectors, storeIDs, err := eng.ExportVectors()
	if err != nil {
		return err
	}
	if err := repo.UpsertBatch(ctx, version, vectors, storeIDs); err != nil {
		return err
	}

	stored, err := repo.Count(ctx, version)
	if err != nil {
		return err
	}

	slog.Info("Persisted dish vectors", "model_version", version, "dishes", len(vectors), "stored", stored)
	return nil
}
