package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/adapters/source"
	"github.com/tracelight-ai/codegraph-engine/pkg/analysis"
	"github.com/tracelight-ai/codegraph-engine/pkg/artifacts"
	"github.com/tracelight-ai/codegraph-engine/pkg/config"
	"github.com/tracelight-ai/codegraph-engine/pkg/database"
	"github.com/tracelight-ai/codegraph-engine/pkg/graph"
	"github.com/tracelight-ai/codegraph-engine/pkg/handlers"
	"github.com/tracelight-ai/codegraph-engine/pkg/logging"
	"github.com/tracelight-ai/codegraph-engine/pkg/middleware"
	"github.com/tracelight-ai/codegraph-engine/pkg/repositories"
	"github.com/tracelight-ai/codegraph-engine/pkg/services"
	"github.com/tracelight-ai/codegraph-engine/pkg/services/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("graph_configured", cfg.Graph.Configured()),
		zap.String("artifacts_backend", cfg.Artifacts.Backend),
		zap.Int("analysis_tenants", len(cfg.AnalysisTenants)))

	ctx := context.Background()

	// Postgres: source registry persistence.
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Migrations run over database/sql; the pgx pool stays untouched.
	migrateDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrateDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrateDB.Close()

	// Redis is optional; absent configuration means the job tracker stays
	// in memory only.
	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}

	// Graph store is optional: without it, publishing fails per source and
	// retrieval reports unavailability, but the host keeps serving.
	var graphStore *graph.Store
	if cfg.Graph.Configured() {
		graphStore, err = graph.NewStore(&cfg.Graph, logger)
		if err != nil {
			logger.Fatal("Failed to create graph store", zap.Error(err))
		}
		defer func() { _ = graphStore.Close(ctx) }()

		schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if graphStore.Available(schemaCtx) {
			if err := graphStore.InitSchema(schemaCtx); err != nil {
				logger.Warn("Failed to initialize graph schema", zap.Error(err))
			}
		} else {
			logger.Warn("Graph store configured but unreachable at startup")
		}
		cancel()
	}

	var artifactStore artifacts.Store
	switch cfg.Artifacts.Backend {
	case "s3":
		artifactStore, err = artifacts.NewS3Store(&cfg.Artifacts)
	default:
		artifactStore, err = artifacts.NewLocalStore(cfg.Artifacts.LocalPath)
	}
	if err != nil {
		logger.Fatal("Failed to create artifact store", zap.Error(err))
	}

	// Probe the analysis tool once so a missing install is visible in the
	// logs. Triggered analyses will still report ToolMissing per source.
	toolchain := analysis.NewCodeQLToolchain(cfg.Analysis.ToolPath, logger)
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if version, err := toolchain.Version(probeCtx); err != nil {
		logger.Warn("Analysis tool unavailable", zap.String("path", cfg.Analysis.ToolPath), zap.Error(err))
	} else {
		logger.Info("Analysis tool available", zap.String("version", version))
	}
	cancel()

	sourceRepo := repositories.NewSourceRepository(db)
	adapterFactory := source.NewAdapterFactory(&cfg.Analysis, logger)
	builder := analysis.NewBuilder(toolchain, artifactStore, adapterFactory,
		cfg.Analysis.WorkDir,
		time.Duration(cfg.Analysis.BuildTimeoutMinutes)*time.Minute, logger)
	executor := analysis.NewExecutor(toolchain, analysis.DefaultCatalog(),
		cfg.Analysis.QueriesDir,
		time.Duration(cfg.Analysis.QueryTimeoutSeconds)*time.Second, logger)
	publisher := graph.NewPublisher(graphStore, logger)
	retriever := graph.NewRetriever(graphStore, logger)

	queue := workqueue.New(logger,
		workqueue.WithStrategy(workqueue.NewThrottledBuildStrategy(cfg.Analysis.MaxConcurrentBuilds)))

	jobTracker := services.NewJobTracker(redisClient, logger)
	registry := services.NewRegistryService(cfg, sourceRepo, artifactStore, logger)
	orchestrator := services.NewOrchestrator(cfg, sourceRepo, adapterFactory,
		builder, executor, publisher, artifactStore, jobTracker, queue, logger)

	if err := registry.SeedFromConfig(ctx); err != nil {
		logger.Fatal("Failed to seed sources from configuration", zap.Error(err))
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewSourcesHandler(registry, logger).RegisterRoutes(mux)
	handlers.NewAnalysisHandler(orchestrator, jobTracker, logger).RegisterRoutes(mux)
	handlers.NewGraphHandler(retriever, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting codegraph-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
