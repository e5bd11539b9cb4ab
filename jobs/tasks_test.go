package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

func newTestQueue(t *testing.T) (*Client, *asynq.Inspector) {
	t.Helper()
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}
	client, err := NewClient(opts)
	require.NoError(t, err)
	inspector := asynq.NewInspector(opts)
	t.Cleanup(func() {
		_ = client.Close()
		_ = inspector.Close()
	})
	return client, inspector
}

func TestQueueAuditorEnqueuesEvent(t *testing.T) {
	client, inspector := newTestQueue(t)
	auditor := NewQueueAuditor(client, slog.Default())

	ev := shared.AuditEvent{
		Entity:   "sales_order",
		EntityID: "42",
		Action:   "SO_AMEND",
		ActorID:  9,
		NewValue: map[string]any{"sequence": 3},
	}
	require.NoError(t, auditor.Record(context.Background(), ev))

	tasks, err := inspector.ListPendingTasks(QueueDefault)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, TaskAuditRecord, tasks[0].Type)

	var got shared.AuditEvent
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &got))
	require.Equal(t, "sales_order", got.Entity)
	require.Equal(t, "SO_AMEND", got.Action)
	require.Equal(t, int64(9), got.ActorID)
	require.False(t, got.At.IsZero())
}

func TestAuditRecordHandlerSkipsBadPayload(t *testing.T) {
	handler := AuditRecordHandler(nil, slog.Default(), nil)
	task := asynq.NewTask(TaskAuditRecord, []byte("not json"))

	err := handler(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestOverdueSweepTaskType(t *testing.T) {
	task := NewOverdueSweepTask()
	require.Equal(t, TaskInvoiceOverdueSweep, task.Type())
	require.Empty(t, task.Payload())
}
