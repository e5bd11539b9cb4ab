package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the audit_logs read repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const timelineQuery = `SELECT occurred_at, actor_id, action, entity, entity_id, old_value, new_value
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::bigint IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR entity_id = $5)
  AND ($6::text IS NULL OR action = $6)
ORDER BY occurred_at DESC, id DESC
LIMIT $7 OFFSET $8`

func (r *repository) List(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineQuery,
		optionalTime(filters.From),
		optionalTime(filters.To),
		optionalInt(filters.ActorID),
		optionalText(filters.Entity),
		optionalText(filters.EntityID),
		optionalText(filters.Action),
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimelineRow
	for rows.Next() {
		var (
			row              TimelineRow
			oldJSON, newJSON []byte
		)
		if err := rows.Scan(&row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &oldJSON, &newJSON); err != nil {
			return nil, err
		}
		if len(oldJSON) > 0 {
			_ = json.Unmarshal(oldJSON, &row.OldValue)
		}
		if len(newJSON) > 0 {
			_ = json.Unmarshal(newJSON, &row.NewValue)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalInt(v int64) pgtype.Int8 {
	if v <= 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: v, Valid: true}
}

func optionalText(v string) pgtype.Text {
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}
