package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/invoices"
	jobmetrics "github.com/finpilot/finpilot/internal/jobs"
	"github.com/finpilot/finpilot/internal/storage"
)

type fakeInvoiceService struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*invoices.Invoice
	attached map[uuid.UUID]string
	sent     []uuid.UUID
	swept    int
}

func newFakeInvoiceService(invs ...*invoices.Invoice) *fakeInvoiceService {
	svc := &fakeInvoiceService{invoices: map[uuid.UUID]*invoices.Invoice{}, attached: map[uuid.UUID]string{}}
	for _, inv := range invs {
		svc.invoices[inv.ID] = inv
	}
	return svc
}

func (f *fakeInvoiceService) Get(_ context.Context, userID string, id uuid.UUID) (*invoices.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok || inv.UserID != userID {
		return nil, invoices.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceService) AttachPDF(_ context.Context, _ string, id uuid.UUID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[id] = key
	f.invoices[id].PDFKey = key
	return nil
}

func (f *fakeInvoiceService) MarkSent(_ context.Context, _ string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeInvoiceService) SweepOverdue(context.Context) (int, error) {
	return f.swept, nil
}

type countingRenderer struct {
	calls int
}

func (r *countingRenderer) Render(context.Context, *invoices.Invoice) ([]byte, error) {
	r.calls++
	return []byte("%PDF-1.7 invoice"), nil
}

type memoryObjects struct {
	objects map[string][]byte
}

func (m *memoryObjects) Put(_ context.Context, key, _ string, data []byte) error {
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

type captureMailer struct {
	messages []Message
}

func (c *captureMailer) Send(_ context.Context, msg Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func sampleInvoice() *invoices.Invoice {
	inv := &invoices.Invoice{
		ID:            uuid.New(),
		UserID:        "user-a",
		Number:        "INV/2025-26/001",
		Supplier:      invoices.Party{Name: "Acme", StateCode: "27"},
		Buyer:         invoices.Party{Name: "Globex", StateCode: "07", Email: "ap@globex.test"},
		SupplierState: "27",
		PlaceOfSupply: "07",
		Status:        invoices.StatusDraft,
	}
	inv.Totals = gst.ComputeTotals([]gst.LineItemDraft{
		{Description: "Widget", HSNSAC: "8471", Quantity: 2, Unit: gst.UnitNos, Rate: 500, GSTRate: gst.Rate18},
	}, inv.SupplierState, inv.PlaceOfSupply)
	return inv
}

func task(t *testing.T, typ string, payload any) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(typ, data)
}

func TestHandleRenderPDFStoresAndAttaches(t *testing.T) {
	inv := sampleInvoice()
	svc := newFakeInvoiceService(inv)
	store := &memoryObjects{objects: map[string][]byte{}}
	renderer := &countingRenderer{}
	jobs := &InvoiceJobs{Service: svc, Renderer: renderer, Store: store, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	err := jobs.HandleRenderPDF(context.Background(), task(t, TaskInvoiceRenderPDF, InvoicePayload{InvoiceID: inv.ID, UserID: "user-a"}))
	require.NoError(t, err)

	key := storage.InvoicePDFKey("user-a", inv.ID.String())
	assert.Equal(t, key, svc.attached[inv.ID])
	assert.Equal(t, []byte("%PDF-1.7 invoice"), store.objects[key])
	assert.Equal(t, 1, renderer.calls)
}

func TestHandleRenderPDFSkipsRetryForMissingInvoice(t *testing.T) {
	jobs := &InvoiceJobs{Service: newFakeInvoiceService(), Renderer: &countingRenderer{}}

	err := jobs.HandleRenderPDF(context.Background(), task(t, TaskInvoiceRenderPDF, InvoicePayload{InvoiceID: uuid.New(), UserID: "user-a"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = jobs.HandleRenderPDF(context.Background(), asynq.NewTask(TaskInvoiceRenderPDF, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleSendEmailReusesStoredPDF(t *testing.T) {
	inv := sampleInvoice()
	inv.PDFKey = "invoices/user-a/existing.pdf"
	svc := newFakeInvoiceService(inv)
	store := &memoryObjects{objects: map[string][]byte{inv.PDFKey: []byte("stored")}}
	renderer := &countingRenderer{}
	mailer := &captureMailer{}
	jobs := &InvoiceJobs{Service: svc, Renderer: renderer, Store: store, Mailer: mailer}

	payload := SendEmailPayload{InvoicePayload: InvoicePayload{InvoiceID: inv.ID, UserID: "user-a"}, To: "ap@globex.test"}
	require.NoError(t, jobs.HandleSendEmail(context.Background(), task(t, TaskInvoiceSendEmail, payload)))

	require.Len(t, mailer.messages, 1)
	msg := mailer.messages[0]
	assert.Equal(t, "ap@globex.test", msg.To)
	assert.Contains(t, msg.Subject, "INV/2025-26/001")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "INV-2025-26-001.pdf", msg.Attachments[0].Name)
	assert.Equal(t, []byte("stored"), msg.Attachments[0].Data)
	assert.Zero(t, renderer.calls)
	assert.Equal(t, []uuid.UUID{inv.ID}, svc.sent)
}

func TestHandleSendEmailRendersWhenStoredPDFMissing(t *testing.T) {
	inv := sampleInvoice()
	inv.PDFKey = "invoices/user-a/gone.pdf"
	svc := newFakeInvoiceService(inv)
	renderer := &countingRenderer{}
	mailer := &captureMailer{}
	jobs := &InvoiceJobs{Service: svc, Renderer: renderer, Store: &memoryObjects{objects: map[string][]byte{}}, Mailer: mailer}

	payload := SendEmailPayload{InvoicePayload: InvoicePayload{InvoiceID: inv.ID, UserID: "user-a"}, To: "ap@globex.test"}
	require.NoError(t, jobs.HandleSendEmail(context.Background(), task(t, TaskInvoiceSendEmail, payload)))
	assert.Equal(t, 1, renderer.calls)
	assert.Equal(t, storage.InvoicePDFKey("user-a", inv.ID.String()), svc.attached[inv.ID])
}

func TestHandleSendEmailRejectsEmptyRecipient(t *testing.T) {
	jobs := &InvoiceJobs{Service: newFakeInvoiceService(), Mailer: &captureMailer{}}
	payload := SendEmailPayload{InvoicePayload: InvoicePayload{InvoiceID: uuid.New(), UserID: "user-a"}}
	err := jobs.HandleSendEmail(context.Background(), task(t, TaskInvoiceSendEmail, payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleOverdueSweep(t *testing.T) {
	svc := newFakeInvoiceService()
	svc.swept = 4
	jobs := &InvoiceJobs{Service: svc, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	assert.NoError(t, jobs.HandleOverdueSweep(context.Background(), NewOverdueSweepTask()))
}

func TestHandlersCoverInvoiceTasks(t *testing.T) {
	jobs := &InvoiceJobs{}
	var types []string
	for _, h := range jobs.Handlers() {
		types = append(types, h.Type)
	}
	assert.ElementsMatch(t, []string{TaskInvoiceRenderPDF, TaskInvoiceSendEmail, TaskInvoiceOverdueSweep, TaskIdempotencyCleanup}, types)

	specs := map[string]string{}
	for _, c := range jobs.Cron() {
		specs[c.Task.Type()] = c.Spec
	}
	assert.Equal(t, "0 1 * * *", specs[TaskInvoiceOverdueSweep])
	assert.Equal(t, "30 1 * * *", specs[TaskIdempotencyCleanup])
}

type recordingCleaner struct {
	olderThan time.Duration
}

func (r *recordingCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	r.olderThan = olderThan
	return nil
}

func TestHandleIdempotencyCleanup(t *testing.T) {
	cleaner := &recordingCleaner{}
	jobs := &InvoiceJobs{Idempotency: cleaner}
	require.NoError(t, jobs.HandleIdempotencyCleanup(context.Background(), NewIdempotencyCleanupTask()))
	assert.Equal(t, 7*24*time.Hour, cleaner.olderThan)

	assert.NoError(t, (&InvoiceJobs{}).HandleIdempotencyCleanup(context.Background(), NewIdempotencyCleanupTask()))
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Queue: QueueDefault, Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestClientImplementsInvoiceJobs(t *testing.T) {
	enq := &recordingEnqueuer{}
	var client invoices.Jobs = NewClientWithEnqueuer(enq)
	id := uuid.New()

	require.NoError(t, client.EnqueueRenderPDF(context.Background(), "user-a", id))
	require.NoError(t, client.EnqueueSendEmail(context.Background(), "user-a", id, "ap@globex.test"))
	require.Len(t, enq.tasks, 2)

	assert.Equal(t, TaskInvoiceRenderPDF, enq.tasks[0].Type())
	var render InvoicePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &render))
	assert.Equal(t, id, render.InvoiceID)

	assert.Equal(t, TaskInvoiceSendEmail, enq.tasks[1].Type())
	var send SendEmailPayload
	require.NoError(t, json.Unmarshal(enq.tasks[1].Payload(), &send))
	assert.Equal(t, "ap@globex.test", send.To)
	assert.Equal(t, "user-a", send.UserID)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, status: http.StatusOK, pending: 3},
		{name: "redis down", inspector: stubInspector{err: errors.New("dial tcp")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, slogDiscard()).MountRoutes(r)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, QueueDefault, body.Queue)
			assert.Equal(t, tc.pending, body.Pending)
		})
	}
}

type captureDialer struct {
	messages []*mail.Msg
}

func (d *captureDialer) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	d.messages = append(d.messages, messages...)
	return nil
}

type fakeSES struct {
	sesiface.SESAPI
	input *ses.SendRawEmailInput
	err   error
}

func (f *fakeSES) SendRawEmailWithContext(_ aws.Context, in *ses.SendRawEmailInput, _ ...request.Option) (*ses.SendRawEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendRawEmailOutput{MessageId: aws.String("0001")}, nil
}

func invoiceMessage() Message {
	return Message{
		To:          "ap@globex.test",
		Subject:     "Invoice INV/2025-26/001",
		Body:        "Please find attached.",
		Attachments: []Attachment{{Name: "INV-2025-26-001.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}},
	}
}

func fixedNow() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) }

func TestSMTPMailerComposesMultipartMessage(t *testing.T) {
	dialer := &captureDialer{}
	mailer := &SMTPMailer{from: "billing@acme.test", now: fixedNow, dialer: dialer}

	require.NoError(t, mailer.Send(context.Background(), invoiceMessage()))
	require.Len(t, dialer.messages, 1)

	var raw strings.Builder
	_, err := dialer.messages[0].WriteTo(&raw)
	require.NoError(t, err)
	text := raw.String()
	assert.Contains(t, text, "billing@acme.test")
	assert.Contains(t, text, "ap@globex.test")
	assert.Contains(t, text, "multipart/mixed")
	assert.Contains(t, text, "Please find attached.")
	assert.Contains(t, text, "INV-2025-26-001.pdf")
	assert.Contains(t, text, "JVBERg==")
	assert.Contains(t, text, "Date: Tue, 10 Jun 2025 09:00:00 +0000")
}

func TestSMTPMailerRejectsBadRecipient(t *testing.T) {
	dialer := &captureDialer{}
	mailer := &SMTPMailer{from: "billing@acme.test", now: fixedNow, dialer: dialer}
	msg := invoiceMessage()
	msg.To = "not an address"

	assert.Error(t, mailer.Send(context.Background(), msg))
	assert.Empty(t, dialer.messages)
}

func TestSMTPMailerRequiresHost(t *testing.T) {
	_, err := NewSMTPMailer("", 25, "x@y.z")
	assert.Error(t, err)
}

func TestSESMailerSendsRawMessage(t *testing.T) {
	client := &fakeSES{}
	mailer := NewSESMailerWithClient(client, "billing@acme.test")
	mailer.now = fixedNow

	require.NoError(t, mailer.Send(context.Background(), invoiceMessage()))
	require.NotNil(t, client.input)
	assert.Equal(t, "billing@acme.test", aws.StringValue(client.input.Source))
	assert.Equal(t, []string{"ap@globex.test"}, aws.StringValueSlice(client.input.Destinations))
	raw := string(client.input.RawMessage.Data)
	assert.Contains(t, raw, "Subject: Invoice INV/2025-26/001")
	assert.Contains(t, raw, "JVBERg==")
}

func TestSESMailerWrapsSendError(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	mailer := NewSESMailerWithClient(client, "billing@acme.test")

	err := mailer.Send(context.Background(), invoiceMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ap@globex.test")
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
