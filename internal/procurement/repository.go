package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otrixindiacloud/tradeflow/internal/docflow"
	"github.com/otrixindiacloud/tradeflow/internal/platform/db"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db          dbtx
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs a PostgreSQL-backed supplier LPO repository.
// lockTimeout bounds the wait for the amendment sibling lock.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) RepositoryPort {
	return &repository{db: pool, pool: pool, lockTimeout: lockTimeout}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool, lockTimeout: r.lockTimeout})
	})
}

func (r *repository) WithAmendmentLock(ctx context.Context, baseID int64, fn func(context.Context, RepositoryPort, *SupplierLpo, []docflow.Sibling) error) error {
	err := db.WithLockingTx(ctx, r.pool, r.lockTimeout, func(tx pgx.Tx) error {
		txRepo := &repository{db: tx, pool: r.pool, lockTimeout: r.lockTimeout}

		// Amendments always point directly at the root, so a single
		// parent hop resolves any lineage member.
		var parentID *int64
		if err := tx.QueryRow(ctx, `SELECT parent_lpo_id FROM supplier_lpos WHERE id = $1`, baseID).Scan(&parentID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: supplier LPO %d", shared.ErrNotFound, baseID)
			}
			return err
		}
		rootID := baseID
		if parentID != nil {
			rootID = *parentID
		}

		rows, err := tx.Query(ctx, `SELECT id, parent_lpo_id, amendment_sequence, lpo_number
			FROM supplier_lpos
			WHERE id = $1 OR parent_lpo_id = $1
			ORDER BY id
			FOR UPDATE`, rootID)
		if err != nil {
			return err
		}
		var siblings []docflow.Sibling
		rootSeen := false
		for rows.Next() {
			var (
				id     int64
				parent *int64
				seq    int
				number string
			)
			if err := rows.Scan(&id, &parent, &seq, &number); err != nil {
				rows.Close()
				return err
			}
			if parent == nil {
				rootSeen = true
				continue
			}
			siblings = append(siblings, docflow.Sibling{ID: id, Sequence: seq, Number: number})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if !rootSeen {
			return fmt.Errorf("%w: lineage root %d", shared.ErrNotFound, rootID)
		}

		root, err := txRepo.Get(ctx, rootID)
		if err != nil {
			return err
		}
		return fn(ctx, txRepo, root, siblings)
	})
	if errors.Is(err, db.ErrLockTimeout) {
		return fmt.Errorf("%w: LPO amendment lock timed out, retry", shared.ErrConflict)
	}
	return err
}

const lpoColumns = `id, lpo_number, version, parent_lpo_id, amendment_sequence, amendment_reason,
	amendment_type, supplier_id, source_type, source_sales_order_ids, grouping_criteria, status,
	requires_approval, approval_status, approved_by, approved_at, rejection_reason, currency,
	subtotal, tax_amount, total_amount, sent_to_supplier_at, confirmed_by_supplier_at,
	confirmation_reference, created_by, created_at, updated_at`

func scanLpo(row pgx.Row) (*SupplierLpo, error) {
	var l SupplierLpo
	err := row.Scan(
		&l.ID, &l.LpoNumber, &l.Version, &l.ParentLpoID, &l.AmendmentSequence, &l.AmendmentReason,
		&l.AmendmentType, &l.SupplierID, &l.SourceType, &l.SourceSalesOrderIDs, &l.GroupingCriteria, &l.Status,
		&l.RequiresApproval, &l.ApprovalStatus, &l.ApprovedBy, &l.ApprovedAt, &l.RejectionReason, &l.Currency,
		&l.Subtotal, &l.TaxAmount, &l.TotalAmount, &l.SentToSupplierAt, &l.ConfirmedBySupplierAt,
		&l.ConfirmationReference, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: supplier LPO", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan supplier LPO: %w", err)
	}
	return &l, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*SupplierLpo, error) {
	lpo, err := scanLpo(r.db.QueryRow(ctx, `SELECT `+lpoColumns+` FROM supplier_lpos WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	lpo.Items = items
	return lpo, nil
}

func (r *repository) listItems(ctx context.Context, lpoID int64) ([]SupplierLpoItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, supplier_lpo_id, product_id, sales_order_item_id, description, quantity,
			received_quantity, pending_quantity, unit_price, line_total, line_order
		FROM supplier_lpo_items WHERE supplier_lpo_id = $1 ORDER BY line_order`, lpoID)
	if err != nil {
		return nil, fmt.Errorf("list LPO items: %w", err)
	}
	defer rows.Close()
	var items []SupplierLpoItem
	for rows.Next() {
		var it SupplierLpoItem
		if err := rows.Scan(&it.ID, &it.SupplierLpoID, &it.ProductID, &it.SalesOrderItemID, &it.Description,
			&it.Quantity, &it.ReceivedQuantity, &it.PendingQuantity, &it.UnitPrice, &it.LineTotal, &it.LineOrder); err != nil {
			return nil, fmt.Errorf("scan LPO item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) Create(ctx context.Context, lpo SupplierLpo) (int64, error) {
	id, err := r.insert(ctx, lpo)
	if err != nil && lpo.CreatedBy != nil && db.IsForeignKeyViolation(err, "supplier_lpos_created_by_fkey") {
		// The acting user row may be gone; keep the document, drop attribution.
		lpo.CreatedBy = nil
		return r.insert(ctx, lpo)
	}
	return id, err
}

func (r *repository) insert(ctx context.Context, lpo SupplierLpo) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO supplier_lpos (
			lpo_number, version, parent_lpo_id, amendment_sequence, amendment_reason, amendment_type,
			supplier_id, source_type, source_sales_order_ids, grouping_criteria, status,
			requires_approval, approval_status, currency, subtotal, tax_amount, total_amount, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`,
		lpo.LpoNumber, lpo.Version, lpo.ParentLpoID, lpo.AmendmentSequence, lpo.AmendmentReason, lpo.AmendmentType,
		lpo.SupplierID, lpo.SourceType, lpo.SourceSalesOrderIDs, lpo.GroupingCriteria, lpo.Status,
		lpo.RequiresApproval, lpo.ApprovalStatus, lpo.Currency, lpo.Subtotal, lpo.TaxAmount, lpo.TotalAmount, lpo.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert supplier LPO: %w", err)
	}
	return id, nil
}

func (r *repository) InsertItem(ctx context.Context, item SupplierLpoItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO supplier_lpo_items (
			supplier_lpo_id, product_id, sales_order_item_id, description, quantity,
			received_quantity, pending_quantity, unit_price, line_total, line_order
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`,
		item.SupplierLpoID, item.ProductID, item.SalesOrderItemID, item.Description, item.Quantity,
		item.ReceivedQuantity, item.PendingQuantity, item.UnitPrice, item.LineTotal, item.LineOrder,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert supplier LPO item: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status LpoStatus, stamp *time.Time, confirmationRef *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE supplier_lpos SET
			status = $2,
			sent_to_supplier_at = CASE WHEN $2 = 'SENT' THEN $3 ELSE sent_to_supplier_at END,
			confirmed_by_supplier_at = CASE WHEN $2 = 'CONFIRMED' THEN $3 ELSE confirmed_by_supplier_at END,
			confirmation_reference = COALESCE($4, confirmation_reference),
			updated_at = now()
		WHERE id = $1`, id, status, stamp, confirmationRef)
	if err != nil {
		return fmt.Errorf("update LPO status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: supplier LPO %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) UpdateApproval(ctx context.Context, id int64, approval LpoApprovalStatus, actorID int64, reason *string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE supplier_lpos SET
			approval_status = $2,
			approved_by = CASE WHEN $2 = 'APPROVED' THEN $3 ELSE approved_by END,
			approved_at = CASE WHEN $2 = 'APPROVED' THEN $4 ELSE approved_at END,
			rejection_reason = CASE WHEN $2 = 'REJECTED' THEN $5 ELSE rejection_reason END,
			updated_at = now()
		WHERE id = $1`, id, approval, actorID, at, reason)
	if err != nil {
		return fmt.Errorf("update LPO approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: supplier LPO %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) UpdateItemReceipt(ctx context.Context, itemID int64, receivedQuantity, pendingQuantity float64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE supplier_lpo_items SET received_quantity = $2, pending_quantity = $3
		WHERE id = $1`, itemID, receivedQuantity, pendingQuantity)
	if err != nil {
		return fmt.Errorf("update LPO item receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: supplier LPO item %d", shared.ErrNotFound, itemID)
	}
	return nil
}

func (r *repository) ListLineage(ctx context.Context, rootID int64) ([]SupplierLpo, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+lpoColumns+` FROM supplier_lpos
		WHERE id = $1 OR parent_lpo_id = $1`, rootID)
	if err != nil {
		return nil, fmt.Errorf("list LPO lineage: %w", err)
	}
	defer rows.Close()
	var out []SupplierLpo
	for rows.Next() {
		lpo, err := scanLpo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lpo)
	}
	return out, rows.Err()
}
