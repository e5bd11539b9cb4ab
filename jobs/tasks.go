// Package jobs carries the background side of the document engine: the
// async audit trail sink and the invoice overdue sweep.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/otrixindiacloud/tradeflow/internal/ar"
	jobmetrics "github.com/otrixindiacloud/tradeflow/internal/jobs"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRecord persists one audit trail entry.
	TaskAuditRecord = "audit:record"
	// TaskInvoiceOverdueSweep flips SENT invoices past due date to OVERDUE.
	TaskInvoiceOverdueSweep = "ar:overdue_sweep"
)

// NewAuditRecordTask constructs the audit persistence task.
func NewAuditRecordTask(ev shared.AuditEvent) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data), nil
}

// NewOverdueSweepTask constructs the periodic overdue sweep task.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskInvoiceOverdueSweep, nil)
}

// AuditRecordHandler writes queued audit events through the synchronous
// sink. A nil metrics instance disables instrumentation.
func AuditRecordHandler(sink *shared.AuditLogger, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("audit_record")
		var ev shared.AuditEvent
		if err := json.Unmarshal(t.Payload(), &ev); err != nil {
			logger.Warn("audit task payload unreadable", slog.Any("error", err))
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		if ev.At.IsZero() {
			ev.At = time.Now()
		}
		return tracker.End(sink.Record(ctx, ev))
	}
}

// OverdueSweepHandler runs the AR overdue sweep.
func OverdueSweepHandler(svc *ar.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("overdue_sweep")
		flipped, err := svc.MarkOverdue(ctx, time.Now())
		if err != nil {
			return tracker.End(err)
		}
		if flipped > 0 {
			logger.Info("overdue sweep", slog.Int("flipped", flipped))
		}
		return tracker.End(nil)
	}
}

// QueueAuditor satisfies the services' audit port by enqueueing the
// event. Services call it fire-and-forget; enqueue failures are logged
// and swallowed so document operations never block on the trail.
type QueueAuditor struct {
	client *Client
	logger *slog.Logger
}

// NewQueueAuditor builds the async audit port.
func NewQueueAuditor(client *Client, logger *slog.Logger) *QueueAuditor {
	return &QueueAuditor{client: client, logger: logger}
}

// Record enqueues the event for the worker to persist.
func (q *QueueAuditor) Record(ctx context.Context, ev shared.AuditEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	task, err := NewAuditRecordTask(ev)
	if err != nil {
		q.logger.Warn("audit enqueue marshal", slog.Any("error", err))
		return err
	}
	if _, err := q.client.Enqueue(ctx, task); err != nil {
		q.logger.Warn("audit enqueue", slog.Any("error", err), slog.String("action", ev.Action))
		return err
	}
	return nil
}
