package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/finpilot/finpilot/internal/app"
	"github.com/finpilot/finpilot/internal/audit"
	"github.com/finpilot/finpilot/internal/auth"
	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/invoices"
	"github.com/finpilot/finpilot/internal/invoices/export"
	"github.com/finpilot/finpilot/internal/observability"
	"github.com/finpilot/finpilot/internal/platform/cache"
	"github.com/finpilot/finpilot/internal/platform/db"
	"github.com/finpilot/finpilot/internal/plstatements"
	"github.com/finpilot/finpilot/internal/shared"
	"github.com/finpilot/finpilot/jobs"
	"github.com/finpilot/finpilot/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	flag.Parse()

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

	applied, err := db.Migrate(ctx, dbpool)
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", slog.Any("files", applied))
	}
	if *migrateOnly {
		return
	}

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

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	reportClient := report.NewClient(cfg.GotenbergURL)
	pdfExporter, err := export.NewPDFExporter(reportClient)
	if err != nil {
		logger.Error("init pdf exporter", slog.Any("error", err))
		os.Exit(1)
	}

	invoiceService := invoices.NewService(invoices.NewRepository(dbpool), invoices.Options{
		Locker:      cache.NewRedisLocker(redisClient, cfg.InvoiceLockTTL),
		LockTTL:     cfg.InvoiceLockTTL,
		Retries:     cfg.InvoiceNumberRetries,
		Cache:       cache.NewJSONCache(redisClient, "invoices", cfg.SummaryCacheTTL),
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Metrics:     metrics,
		Jobs:        jobClient,
		Logger:      logger,
	})
	plService := plstatements.NewService(plstatements.NewRepository(dbpool), shared.SystemClock{}, auditLogger, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Issuer:             issuer,
		Metrics:            metrics,
		InvoiceHandler:     invoices.NewHandler(logger, invoiceService, pdfExporter),
		GSTHandler:         gst.NewHandler(),
		PLStatementHandler: plstatements.NewHandler(logger, plService),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		ReportHandler:      report.NewHandler(reportClient, logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
