package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/otrixindiacloud/tradeflow/internal/app"
	"github.com/otrixindiacloud/tradeflow/internal/ar"
	"github.com/otrixindiacloud/tradeflow/internal/delivery"
	jobmetrics "github.com/otrixindiacloud/tradeflow/internal/jobs"
	"github.com/otrixindiacloud/tradeflow/internal/platform/db"
	"github.com/otrixindiacloud/tradeflow/internal/sales/orders"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
	"github.com/otrixindiacloud/tradeflow/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The worker writes audit rows directly; a queued auditor here would
	// feed the queue it drains.
	auditSink := shared.NewAuditLogger(pool)

	invoiceRepo := ar.NewRepository(pool)
	deliveryAdapter := delivery.NewInvoicingAdapter(pool)
	orderRepo := orders.NewRepository(pool, cfg.AmendmentLockTimeout)
	invoiceService := ar.NewService(invoiceRepo, deliveryAdapter, orderRepo, auditSink)

	metrics := jobmetrics.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRecord, Handler: jobs.AuditRecordHandler(auditSink, logger, metrics)},
			{Type: jobs.TaskInvoiceOverdueSweep, Handler: jobs.OverdueSweepHandler(invoiceService, logger, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueSweepCron, Task: jobs.NewOverdueSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
