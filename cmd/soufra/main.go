package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/soufra-erp/soufra-erp/internal/app"
	"github.com/soufra-erp/soufra-erp/internal/bom"
	"github.com/soufra-erp/soufra-erp/internal/importer"
	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/observability"
	"github.com/soufra-erp/soufra-erp/internal/platform/cache"
	"github.com/soufra-erp/soufra-erp/internal/platform/db"
	"github.com/soufra-erp/soufra-erp/internal/sales"
	"github.com/soufra-erp/soufra-erp/internal/shared"
	"github.com/soufra-erp/soufra-erp/internal/transfer"
	"github.com/soufra-erp/soufra-erp/internal/zoho"
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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(centralPool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queueClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("connect queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	notifier := jobs.NewNotifier(queueClient)

	var (
		zohoAdapter *zoho.Adapter
		zohoHandler *zoho.Handler
	)
	if cfg.ZohoEnabled {
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
		tokens := zoho.NewTokenSource(cfg.ZohoConfig(), redisClient, nil)
		client := zoho.NewClient(cfg.ZohoConfig(), tokens, nil)
		zohoAdapter = zoho.NewAdapter(client, zoho.NewMapper(centralPool), logger)
		zohoHandler = zoho.NewHandler(logger, zohoAdapter)
	}

	ledgerService := ledger.NewService(ledgers, auditLogger)
	bomRepo := bom.NewRepository(centralPool)
	resolver := bom.NewResolver(bomRepo)

	var transferSync transfer.SyncPort
	var invoiceSync sales.SyncPort
	if zohoAdapter != nil {
		transferSync = zohoAdapter
		invoiceSync = zohoAdapter
	}
	transferService := transfer.NewService(transfer.NewRepository(centralPool), ledgers,
		transferSync, notifier, auditLogger, logger)
	salesService := sales.NewService(sales.NewRepository(centralPool),
		sales.FactoryProvider{Factory: ledgers}, resolver, invoiceSync, auditLogger, logger)
	importerService := importer.NewService(ledgerService, ledgerService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterConfig{
		Logger:   logger,
		Config:   cfg,
		Metrics:  metrics,
		Ledger:   ledger.NewHandler(logger, ledgerService, metrics),
		BOM:      bom.NewHandler(logger, bomRepo, resolver, ledgers),
		Transfer: transfer.NewHandler(logger, transferService, metrics),
		Sales:    sales.NewHandler(logger, salesService, metrics),
		Importer: importer.NewHandler(logger, importerService),
		Zoho:     zohoHandler,
		Jobs:     jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
