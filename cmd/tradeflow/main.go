package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/otrixindiacloud/tradeflow/internal/app"
	"github.com/otrixindiacloud/tradeflow/internal/ar"
	"github.com/otrixindiacloud/tradeflow/internal/audit"
	"github.com/otrixindiacloud/tradeflow/internal/delivery"
	"github.com/otrixindiacloud/tradeflow/internal/masterdata"
	"github.com/otrixindiacloud/tradeflow/internal/observability"
	"github.com/otrixindiacloud/tradeflow/internal/platform/cache"
	"github.com/otrixindiacloud/tradeflow/internal/platform/db"
	"github.com/otrixindiacloud/tradeflow/internal/procurement"
	"github.com/otrixindiacloud/tradeflow/internal/sales/orders"
	"github.com/otrixindiacloud/tradeflow/internal/sales/quotations"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, queue enqueues will fail until it returns", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

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
	auditor := jobs.NewQueueAuditor(jobsClient, logger)

	validate := validator.New()
	refData := masterdata.NewRepository(pool)

	quotationRepo := quotations.NewRepository(pool)
	quotationService := quotations.NewService(quotationRepo, refData.Customers(), auditor)
	quotationHandler := quotations.NewHandler(logger, quotationService, validate)

	orderRepo := orders.NewRepository(pool, cfg.AmendmentLockTimeout)
	orderService := orders.NewService(orderRepo, quotationRepo, refData.Products(), auditor)
	orderHandler := orders.NewHandler(logger, orderService, validate)

	lpoRepo := procurement.NewRepository(pool, cfg.AmendmentLockTimeout)
	lpoService := procurement.NewService(lpoRepo, orderRepo, refData.Suppliers(), auditor, cfg.LpoApprovalThreshold)
	lpoHandler := procurement.NewHandler(logger, lpoService, validate)

	invoiceRepo := ar.NewRepository(pool)
	deliveryAdapter := delivery.NewInvoicingAdapter(pool)
	invoiceService := ar.NewService(invoiceRepo, deliveryAdapter, orderRepo, auditor)
	invoiceHandler := ar.NewHandler(logger, invoiceService, validate)

	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		QuotationHandler:   quotationHandler,
		OrderHandler:       orderHandler,
		ProcurementHandler: lpoHandler,
		ARHandler:          invoiceHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
