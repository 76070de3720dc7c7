package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/migrations"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// @title Timetable API
// @version 1.0.0
// @description Genetic-algorithm timetable generation with asynchronous runs and exports.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	validate := validator.New()
	checks := map[string]handler.Pinger{}

	var cacheRepo service.CacheRepository
	if cfg.Runs.Store == config.RunStoreRedis {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("redis unavailable", "error", err)
		}
		repo := repository.NewCacheRepository(client, logr)
		defer repo.Close() //nolint:errcheck
		cacheRepo = repo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Runs.ResultTTL, logr, cacheRepo != nil)
	if cacheSvc.Enabled() {
		checks["redis"] = cacheSvc
	}

	var store service.RunStore
	switch cfg.Runs.Store {
	case config.RunStoreRedis:
		store = service.NewCachedRunStore(cacheSvc, cfg.Runs.ResultTTL)
	default:
		store = service.NewMemoryRunStore(cfg.Runs.ResultTTL)
	}

	timetables, err := service.NewTimetableService(cfg.Scheduler, store, metrics, validate, logr)
	if err != nil {
		logr.Sugar().Fatalw("invalid scheduler configuration", "error", err)
	}

	loader, db, err := catalogLoader(ctx, cfg, metrics, logr)
	if err != nil {
		logr.Sugar().Fatalw("catalog source unavailable", "source", cfg.Catalog.Source, "error", err)
	}
	if db != nil {
		defer db.Close() //nolint:errcheck
		checks["postgres"] = pingerFunc(db.PingContext)
	}

	worker := service.NewRunWorker(timetables, store, metrics, logr)
	queue := jobs.NewQueue("timetable-runs", worker.Handle, jobs.QueueConfig{
		Workers:     cfg.Runs.Workers,
		BufferSize:  cfg.Runs.BufferSize,
		MaxRetries:  cfg.Runs.MaxRetries,
		RetryDelay:  cfg.Runs.RetryDelay,
		Logger:      logr,
		OnExhausted: worker.Exhausted,
	})
	worker.WatchDepth(queue.Depth)
	queue.Start(ctx)
	defer queue.Stop()

	runs := service.NewRunService(timetables, store, queue, loader, validate, metrics, logr)

	fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("export storage unavailable", "dir", cfg.Exports.StorageDir, "error", err)
	}
	exports := service.NewExportService(timetables, fileStore,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Runs.ResultTTL, CleanupInterval: cfg.Exports.CleanupInterval},
		logr, export.NewCSVExporter(','), export.NewPDFExporter())
	exports.StartCleanup(ctx)

	var verifier internalmiddleware.TokenVerifier
	if cfg.JWT.Enabled {
		auth, err := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}, logr)
		if err != nil {
			logr.Sugar().Fatalw("invalid auth configuration", "error", err)
		}
		verifier = auth
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	tt := handler.NewTimetableHandler(timetables, runs, exports, cfg.APIPrefix)
	api := r.Group(cfg.APIPrefix)
	api.GET("/exports/:token", tt.Download)

	timetableRoutes := api.Group("/timetables")
	timetableRoutes.GET("/runs", tt.ListRuns)
	timetableRoutes.GET("/runs/:id", tt.GetRun)
	timetableRoutes.GET("/runs/:id/report", tt.Report)
	timetableRoutes.GET("/runs/:id/workload", tt.Workload)

	guarded := timetableRoutes.Group("", internalmiddleware.JWT(verifier))
	guarded.POST("/generate", internalmiddleware.Audit(logr, "timetable.generate"), tt.Generate)
	guarded.POST("/runs", internalmiddleware.Audit(logr, "run.create"), tt.CreateRun)
	guarded.POST("/runs/catalog", internalmiddleware.Audit(logr, "run.create_catalog"), tt.CreateCatalogRun)
	guarded.POST("/runs/:id/exports", internalmiddleware.Audit(logr, "run.export"), tt.Export)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "run_store", cfg.Runs.Store, "catalog", cfg.Catalog.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// catalogLoader opens the configured catalog source. The returned pool is
// nil unless the source is Postgres.
func catalogLoader(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) (service.CatalogLoader, *sqlx.DB, error) {
	switch cfg.Catalog.Source {
	case config.CatalogCSV:
		return repository.NewCSVCatalogLoader(cfg.Catalog.CSVDir, cfg.Catalog.CSVDelimiter), nil, nil
	case config.CatalogPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Database.AutoMigrate {
			applied, err := migrations.Up(ctx, db.DB)
			if err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			logr.Info("catalog schema migrated", zap.Strings("applied", applied))
		}
		return repository.NewCatalogRepository(db, metrics), db, nil
	case config.CatalogNone, "":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
