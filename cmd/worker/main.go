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
	"golang.org/x/sync/errgroup"

	"github.com/finpilot/finpilot/internal/app"
	"github.com/finpilot/finpilot/internal/invoices"
	"github.com/finpilot/finpilot/internal/invoices/export"
	jobmetrics "github.com/finpilot/finpilot/internal/jobs"
	"github.com/finpilot/finpilot/internal/observability"
	"github.com/finpilot/finpilot/internal/platform/cache"
	"github.com/finpilot/finpilot/internal/platform/db"
	"github.com/finpilot/finpilot/internal/shared"
	"github.com/finpilot/finpilot/internal/storage"
	"github.com/finpilot/finpilot/jobs"
	"github.com/finpilot/finpilot/report"
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

	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	objectStore, err := storage.NewS3Store(storage.Config{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKeyID,
		AccessKeySecret: cfg.S3SecretAccessKey,
	})
	if err != nil {
		logger.Error("init object storage", slog.Any("error", err))
		os.Exit(1)
	}

	pdfExporter, err := export.NewPDFExporter(report.NewClient(cfg.GotenbergURL))
	if err != nil {
		logger.Error("init pdf exporter", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	invoiceService := invoices.NewService(invoices.NewRepository(pool), invoices.Options{
		Locker:  cache.NewRedisLocker(redisClient, cfg.InvoiceLockTTL),
		LockTTL: cfg.InvoiceLockTTL,
		Retries: cfg.InvoiceNumberRetries,
		Cache:   cache.NewJSONCache(redisClient, "invoices", cfg.SummaryCacheTTL),
		Audit:   shared.NewAuditLogger(pool),
		Metrics: metrics,
		Logger:  logger,
	})

	mailer, err := newMailer(cfg)
	if err != nil {
		logger.Error("init mailer", slog.Any("error", err))
		os.Exit(1)
	}

	invoiceJobs := &jobs.InvoiceJobs{
		Service:     invoiceService,
		Renderer:    pdfExporter,
		Store:       objectStore,
		Mailer:      mailer,
		Idempotency: shared.NewIdempotencyStore(pool),
		Logger:      logger,
		Metrics:     jobmetrics.NewMetrics(metrics.Registerer()),
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers:    invoiceJobs.Handlers(),
		Cron:        invoiceJobs.Cron(),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func newMailer(cfg *app.Config) (jobs.Mailer, error) {
	if cfg.MailDriver == "ses" {
		return jobs.NewSESMailer(cfg.SESRegion, cfg.SMTPFrom)
	}
	return jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
}
