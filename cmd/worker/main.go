package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/milltrack-erp/milltrack/internal/app"
	"github.com/milltrack-erp/milltrack/internal/catalog"
	"github.com/milltrack-erp/milltrack/internal/dispatch"
	"github.com/milltrack-erp/milltrack/internal/importer"
	"github.com/milltrack-erp/milltrack/internal/platform/db"
	"github.com/milltrack-erp/milltrack/internal/receipts"
	"github.com/milltrack-erp/milltrack/internal/shared"
	"github.com/milltrack-erp/milltrack/internal/workflow"
	"github.com/milltrack-erp/milltrack/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	dispatcher := dispatch.New(dispatch.NewPGCaller(pool), logger)

	workflowRepo := workflow.NewRepository(pool)
	historyRecorder := workflow.NewHistoryRecorder(pool, logger)
	workflowService := workflow.NewService(workflowRepo, dispatcher, historyRecorder, auditLogger, logger)

	catalogRepo := catalog.NewRepository(pool)
	receiptsRepo := receipts.NewRepository(pool)
	receiptsService := receipts.NewService(catalogRepo, workflowService, receiptsRepo, logger)
	importerService := importer.NewService(catalogRepo, receiptsService, logger)

	refreshTask := asynq.NewTask(jobs.TaskViewsRefresh, nil, asynq.Queue(jobs.QueueDefault))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskImportRun, Handler: jobs.NewImportRunHandler(importerService, logger)},
			{Type: jobs.TaskViewsRefresh, Handler: jobs.NewViewsRefreshHandler(pool, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
