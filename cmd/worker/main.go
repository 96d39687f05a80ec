package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/soufra-erp/soufra-erp/internal/app"
	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/platform/db"
	"github.com/soufra-erp/soufra-erp/internal/shared"
	"github.com/soufra-erp/soufra-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	centralPool, err := db.New(ctx, cfg.CentralDSN)
	if err != nil {
		logger.Error("connect central database", slog.Any("error", err))
		os.Exit(1)
	}
	defer centralPool.Close()

	ledgers, err := ledger.NewFactory(ctx, cfg.OutletDSNs())
	if err != nil {
		logger.Error("connect outlet databases", slog.Any("error", err))
		os.Exit(1)
	}
	defer ledgers.Close()

	ledgerService := ledger.NewService(ledgers, shared.NewAuditLogger(centralPool))

	lowStockTask, err := jobs.NewLowStockScanTask(ledger.KindRawMaterial)
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeLowStockScan, Handler: jobs.NewLowStockScanHandler(ledgerService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockCron, Task: lowStockTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
