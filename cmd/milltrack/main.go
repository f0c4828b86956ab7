package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/milltrack-erp/milltrack/internal/app"
	"github.com/milltrack-erp/milltrack/internal/auth"
	"github.com/milltrack-erp/milltrack/internal/catalog"
	"github.com/milltrack-erp/milltrack/internal/dispatch"
	"github.com/milltrack-erp/milltrack/internal/importer"
	"github.com/milltrack-erp/milltrack/internal/observability"
	"github.com/milltrack-erp/milltrack/internal/platform/blob"
	"github.com/milltrack-erp/milltrack/internal/platform/cache"
	"github.com/milltrack-erp/milltrack/internal/platform/db"
	"github.com/milltrack-erp/milltrack/internal/receipts"
	"github.com/milltrack-erp/milltrack/internal/shared"
	"github.com/milltrack-erp/milltrack/internal/workflow"
	"github.com/milltrack-erp/milltrack/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "milltrack_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)
	identity := auth.IdentityMiddleware(authService, logger)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, auditLogger, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	dispatcher := dispatch.New(dispatch.NewPGCaller(dbpool), logger)

	workflowRepo := workflow.NewRepository(dbpool)
	historyRecorder := workflow.NewHistoryRecorder(dbpool, logger)
	workflowService := workflow.NewService(workflowRepo, dispatcher, historyRecorder, auditLogger, logger).
		WithMetrics(metrics)
	workflowHandler := workflow.NewHandler(logger, workflowService, historyRecorder)

	var blobStore blob.Store
	if cfg.BlobBucket != "" {
		store, err := blob.NewGCSStore(ctx, cfg.BlobBucket)
		if err != nil {
			logger.Error("init blob store", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("blob store close", slog.Any("error", err))
			}
		}()
		blobStore = store
	} else {
		logger.Warn("GCS_BUCKET not set, receipt image uploads disabled")
	}

	receiptsRepo := receipts.NewRepository(dbpool)
	receiptsService := receipts.NewService(catalogRepo, workflowService, receiptsRepo, logger)
	receiptsHandler := receipts.NewHandler(logger, receiptsService, blobStore)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	importerService := importer.NewService(catalogRepo, receiptsService, logger)
	importerHandler := importer.NewHandler(logger, importerService, jobsClient)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		Identity:        identity,
		AuthHandler:     authHandler,
		CatalogHandler:  catalogHandler,
		WorkflowHandler: workflowHandler,
		ReceiptsHandler: receiptsHandler,
		ImporterHandler: importerHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
