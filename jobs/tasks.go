package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceRenderPDF renders an invoice PDF and uploads it to object storage.
	TaskInvoiceRenderPDF = "invoice:render_pdf"
	// TaskInvoiceSendEmail delivers an invoice PDF by e-mail.
	TaskInvoiceSendEmail = "invoice:send_email"
	// TaskInvoiceOverdueSweep marks sent invoices past their due date as overdue.
	TaskInvoiceOverdueSweep = "invoice:overdue_sweep"

	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"

	// OverdueSweepSchedule runs the sweep daily at 01:00 UTC.
	OverdueSweepSchedule = "0 1 * * *"
	// IdempotencyCleanupSchedule runs the purge daily at 01:30 UTC.
	IdempotencyCleanupSchedule = "30 1 * * *"
	// IdempotencyRetention is how long idempotency keys are honoured.
	IdempotencyRetention = 7 * 24 * time.Hour
)

// InvoicePayload identifies an invoice owned by a user.
type InvoicePayload struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	UserID    string    `json:"user_id"`
}

// SendEmailPayload describes an invoice delivery.
type SendEmailPayload struct {
	InvoicePayload
	To string `json:"to"`
}

// NewRenderPDFTask constructs a TaskInvoiceRenderPDF task.
func NewRenderPDFTask(payload InvoicePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceRenderPDF, data, asynq.MaxRetry(5)), nil
}

// NewSendEmailTask constructs a TaskInvoiceSendEmail task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceSendEmail, data, asynq.MaxRetry(5)), nil
}

// NewOverdueSweepTask constructs the payload-less sweep task.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskInvoiceOverdueSweep, nil, asynq.MaxRetry(3))
}

// NewIdempotencyCleanupTask constructs the payload-less purge task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.MaxRetry(1))
}

func decodePayload(t *asynq.Task, out any) error {
	if err := json.Unmarshal(t.Payload(), out); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
