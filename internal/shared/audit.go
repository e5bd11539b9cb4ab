package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent captures a single document mutation for the audit trail.
type AuditEvent struct {
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Action   string         `json:"action"`
	ActorID  int64          `json:"actor_id"`
	OldValue map[string]any `json:"old_value,omitempty"`
	NewValue map[string]any `json:"new_value,omitempty"`
	At       time.Time      `json:"at"`
}

// AuditLogger writes events into audit_logs. It is the synchronous sink;
// services normally record through the job queue and never block on it.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the event.
func (l *AuditLogger) Record(ctx context.Context, ev AuditEvent) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if ev.Entity == "" || ev.EntityID == "" || ev.Action == "" {
		return errors.New("audit event requires entity/entity_id/action")
	}
	oldJSON, err := json.Marshal(ev.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(ev.NewValue)
	if err != nil {
		return err
	}
	var occurredAt *time.Time
	if !ev.At.IsZero() {
		occurredAt = &ev.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (entity, entity_id, action, actor_id, old_value, new_value, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		ev.Entity, ev.EntityID, ev.Action, ev.ActorID, oldJSON, newJSON, occurredAt)
	return err
}
