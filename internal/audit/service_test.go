package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	rows     []TimelineRow
	lastCall struct {
		limit  int
		offset int
	}
}

func (m *memoryRepo) List(_ context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	m.lastCall.limit = limit
	m.lastCall.offset = offset
	var out []TimelineRow
	for _, row := range m.rows {
		if filters.Entity != "" && row.Entity != filters.Entity {
			continue
		}
		if filters.EntityID != "" && row.EntityID != filters.EntityID {
			continue
		}
		if filters.Action != "" && row.Action != filters.Action {
			continue
		}
		out = append(out, row)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func seedRows(n int) []TimelineRow {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]TimelineRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, TimelineRow{
			At:       base.Add(-time.Duration(i) * time.Minute),
			ActorID:  7,
			Action:   "INVOICE_SEND",
			Entity:   "invoice",
			EntityID: "42",
		})
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &memoryRepo{rows: seedRows(45)}
	svc := NewService(repo)

	page1, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, page1.Rows, 20)
	require.True(t, page1.Paging.HasNext)
	require.Equal(t, 2, page1.Paging.NextPage)
	require.Zero(t, page1.Paging.PrevPage)
	require.Equal(t, 21, repo.lastCall.limit)

	page3, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3})
	require.NoError(t, err)
	require.Len(t, page3.Rows, 5)
	require.False(t, page3.Paging.HasNext)
	require.Equal(t, 2, page3.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &memoryRepo{rows: seedRows(80)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Rows, 50)
	require.Equal(t, 50, result.Paging.PageSize)
}

func TestTimelineEntityFilter(t *testing.T) {
	repo := &memoryRepo{rows: append(seedRows(3), TimelineRow{
		At:       time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		ActorID:  9,
		Action:   "LPO_APPROVE",
		Entity:   "supplier_lpo",
		EntityID: "11",
	})}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Entity: "supplier_lpo"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "LPO_APPROVE", result.Rows[0].Action)
}

func TestExportCSV(t *testing.T) {
	repo := &memoryRepo{rows: seedRows(2)}
	svc := NewService(repo)

	data, err := svc.ExportCSV(context.Background(), TimelineFilters{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "at,actor_id,action,entity,entity_id", lines[0])
	require.Contains(t, lines[1], "invoice")
	require.Contains(t, lines[1], "INVOICE_SEND")
}
