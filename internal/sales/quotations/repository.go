package quotations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otrixindiacloud/tradeflow/internal/platform/db"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed quotation repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const quotationColumns = `id, quote_number, revision, parent_quotation_id, is_superseded, customer_id,
	status, approval_status, currency, subtotal, discount_amount, tax_amount, total_amount,
	valid_until, notes, created_by, approved_by, approved_at, rejection_reason, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM quotations WHERE id = $1`, quotationColumns), id)
	q, err := scanQuotation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT id, quotation_id, product_id, description, quantity, unit_price,
		discount_percent, tax_percent, line_total, line_order
		FROM quotation_items WHERE quotation_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it QuotationItem
		if err := rows.Scan(&it.ID, &it.QuotationID, &it.ProductID, &it.Description, &it.Quantity,
			&it.UnitPrice, &it.DiscountPercent, &it.TaxPercent, &it.LineTotal, &it.LineOrder); err != nil {
			return nil, err
		}
		q.Items = append(q.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repository) Create(ctx context.Context, q Quotation) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO quotations (
		quote_number, revision, parent_quotation_id, is_superseded, customer_id,
		status, approval_status, currency, subtotal, discount_amount, tax_amount, total_amount,
		valid_until, notes, created_by, created_at, updated_at
	) VALUES ($1, $2, $3, false, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	RETURNING id`,
		q.QuoteNumber, q.Revision, q.ParentQuotationID, q.CustomerID,
		q.Status, q.ApprovalStatus, q.Currency, q.Subtotal, q.DiscountAmount, q.TaxAmount, q.TotalAmount,
		q.ValidUntil, q.Notes, q.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *repository) InsertItem(ctx context.Context, item QuotationItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO quotation_items (
		quotation_id, product_id, description, quantity, unit_price,
		discount_percent, tax_percent, line_total, line_order
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id`,
		item.QuotationID, item.ProductID, item.Description, item.Quantity, item.UnitPrice,
		item.DiscountPercent, item.TaxPercent, item.LineTotal, item.LineOrder,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status QuotationStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotations SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) UpdateApproval(ctx context.Context, id int64, approval ApprovalStatus, status QuotationStatus, actorID int64, reason *string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotations SET
		approval_status = $1, status = $2,
		approved_by = CASE WHEN $1 = 'APPROVED' THEN $3 ELSE approved_by END,
		approved_at = CASE WHEN $1 = 'APPROVED' THEN $4 ELSE approved_at END,
		rejection_reason = $5, updated_at = NOW()
		WHERE id = $6`, approval, status, actorID, at, reason, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) MarkSuperseded(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE quotations SET is_superseded = true, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var q Quotation
	err := row.Scan(
		&q.ID, &q.QuoteNumber, &q.Revision, &q.ParentQuotationID, &q.IsSuperseded, &q.CustomerID,
		&q.Status, &q.ApprovalStatus, &q.Currency, &q.Subtotal, &q.DiscountAmount, &q.TaxAmount, &q.TotalAmount,
		&q.ValidUntil, &q.Notes, &q.CreatedBy, &q.ApprovedBy, &q.ApprovedAt, &q.RejectionReason,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}
