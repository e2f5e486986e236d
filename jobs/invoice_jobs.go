package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/finpilot/finpilot/internal/invoices"
	jobmetrics "github.com/finpilot/finpilot/internal/jobs"
	"github.com/finpilot/finpilot/internal/storage"
)

// InvoiceService is the part of invoices.Service used by the invoice jobs.
type InvoiceService interface {
	Get(ctx context.Context, userID string, id uuid.UUID) (*invoices.Invoice, error)
	AttachPDF(ctx context.Context, userID string, id uuid.UUID, key string) error
	MarkSent(ctx context.Context, userID string, id uuid.UUID) error
	SweepOverdue(ctx context.Context) (int, error)
}

// PDFRenderer turns an invoice into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, inv *invoices.Invoice) ([]byte, error)
}

// ObjectStore persists rendered documents.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// KeyCleaner purges idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// InvoiceJobs bundles the handlers of the invoice tasks.
type InvoiceJobs struct {
	Service     InvoiceService
	Renderer    PDFRenderer
	Store       ObjectStore
	Mailer      Mailer
	Idempotency KeyCleaner
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// Handlers lists the task handlers for WorkerConfig.
func (j *InvoiceJobs) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskInvoiceRenderPDF, Handler: j.HandleRenderPDF},
		{Type: TaskInvoiceSendEmail, Handler: j.HandleSendEmail},
		{Type: TaskInvoiceOverdueSweep, Handler: j.HandleOverdueSweep},
		{Type: TaskIdempotencyCleanup, Handler: j.HandleIdempotencyCleanup},
	}
}

// Cron lists the periodic invoice tasks.
func (j *InvoiceJobs) Cron() []CronRegistration {
	return []CronRegistration{
		{Spec: OverdueSweepSchedule, Task: NewOverdueSweepTask()},
		{Spec: IdempotencyCleanupSchedule, Task: NewIdempotencyCleanupTask()},
	}
}

// HandleRenderPDF renders the invoice, uploads it and records the object key.
func (j *InvoiceJobs) HandleRenderPDF(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Metrics.Track(TaskInvoiceRenderPDF)
	defer func() { err = tracker.End(err) }()

	var payload InvoicePayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	logger := j.logger().With(
		slog.String("invoice_id", payload.InvoiceID.String()),
		slog.String("user_id", payload.UserID),
	)
	inv, err := j.load(ctx, payload)
	if err != nil {
		return err
	}
	if _, err := j.storePDF(ctx, inv); err != nil {
		logger.Error("render invoice pdf", slog.Any("error", err))
		return err
	}
	logger.Info("invoice pdf stored", slog.String("number", inv.Number))
	return nil
}

// HandleSendEmail mails the invoice PDF and marks drafts as sent.
func (j *InvoiceJobs) HandleSendEmail(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Metrics.Track(TaskInvoiceSendEmail)
	defer func() { err = tracker.End(err) }()

	var payload SendEmailPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	if payload.To == "" {
		return fmt.Errorf("send invoice: empty recipient: %w", asynq.SkipRetry)
	}
	if j.Mailer == nil {
		return errors.New("send invoice: mailer not configured")
	}
	logger := j.logger().With(
		slog.String("invoice_id", payload.InvoiceID.String()),
		slog.String("user_id", payload.UserID),
	)
	inv, err := j.load(ctx, payload.InvoicePayload)
	if err != nil {
		return err
	}
	pdf, err := j.pdfFor(ctx, inv)
	if err != nil {
		logger.Error("prepare invoice pdf", slog.Any("error", err))
		return err
	}
	msg := Message{
		To:      payload.To,
		Subject: fmt.Sprintf("Invoice %s from %s", inv.Number, inv.Supplier.Name),
		Body: fmt.Sprintf("Dear %s,\n\nPlease find attached invoice %s for %s.\n\nRegards,\n%s\n",
			inv.Buyer.Name, inv.Number, inv.AmountInWords, inv.Supplier.Name),
		Attachments: []Attachment{{
			Name:        invoices.FileName(inv),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	}
	if err := j.Mailer.Send(ctx, msg); err != nil {
		logger.Error("send invoice email", slog.Any("error", err))
		return err
	}
	if err := j.Service.MarkSent(ctx, inv.UserID, inv.ID); err != nil {
		logger.Warn("mark invoice sent", slog.Any("error", err))
		return err
	}
	logger.Info("invoice emailed", slog.String("number", inv.Number))
	return nil
}

// HandleOverdueSweep transitions sent invoices past their due date to overdue.
func (j *InvoiceJobs) HandleOverdueSweep(ctx context.Context, _ *asynq.Task) (err error) {
	tracker := j.Metrics.Track(TaskInvoiceOverdueSweep)
	defer func() { err = tracker.End(err) }()

	marked, err := j.Service.SweepOverdue(ctx)
	if err != nil {
		j.logger().Error("overdue sweep", slog.Any("error", err))
		return err
	}
	j.Metrics.AddOverdue(marked)
	j.logger().Info("overdue sweep finished", slog.Int("marked", marked))
	return nil
}

// HandleIdempotencyCleanup drops idempotency keys past IdempotencyRetention.
func (j *InvoiceJobs) HandleIdempotencyCleanup(ctx context.Context, _ *asynq.Task) (err error) {
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	if j.Idempotency == nil {
		return nil
	}
	if err := j.Idempotency.Cleanup(ctx, IdempotencyRetention); err != nil {
		j.logger().Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	return nil
}

func (j *InvoiceJobs) load(ctx context.Context, payload InvoicePayload) (*invoices.Invoice, error) {
	inv, err := j.Service.Get(ctx, payload.UserID, payload.InvoiceID)
	if errors.Is(err, invoices.ErrNotFound) {
		return nil, fmt.Errorf("invoice %s: %v: %w", payload.InvoiceID, err, asynq.SkipRetry)
	}
	return inv, err
}

// pdfFor reuses a stored PDF when present and renders one otherwise.
func (j *InvoiceJobs) pdfFor(ctx context.Context, inv *invoices.Invoice) ([]byte, error) {
	if inv.PDFKey != "" && j.Store != nil {
		data, err := j.Store.Get(ctx, inv.PDFKey)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, storage.ErrObjectNotFound) {
			return nil, err
		}
	}
	return j.storePDF(ctx, inv)
}

func (j *InvoiceJobs) storePDF(ctx context.Context, inv *invoices.Invoice) ([]byte, error) {
	if j.Renderer == nil {
		return nil, errors.New("pdf renderer not configured")
	}
	pdf, err := j.Renderer.Render(ctx, inv)
	if err != nil {
		return nil, err
	}
	if j.Store == nil {
		return pdf, nil
	}
	key := storage.InvoicePDFKey(inv.UserID, inv.ID.String())
	if err := j.Store.Put(ctx, key, "application/pdf", pdf); err != nil {
		return nil, err
	}
	if err := j.Service.AttachPDF(ctx, inv.UserID, inv.ID, key); err != nil {
		return nil, err
	}
	inv.PDFKey = key
	return pdf, nil
}

func (j *InvoiceJobs) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
