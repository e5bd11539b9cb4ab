package orders

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

// NewRepository constructs a PostgreSQL-backed sales order repository.
// lockTimeout bounds the wait for the amendment sibling lock.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) Repository {
	return &repository{db: pool, pool: pool, lockTimeout: lockTimeout}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool, lockTimeout: r.lockTimeout})
	})
}

func (r *repository) WithAmendmentLock(ctx context.Context, baseID int64, fn func(context.Context, Repository, *SalesOrder, []docflow.Sibling) error) error {
	err := db.WithLockingTx(ctx, r.pool, r.lockTimeout, func(tx pgx.Tx) error {
		txRepo := &repository{db: tx, pool: r.pool, lockTimeout: r.lockTimeout}

		// Amendments always point directly at the root, so a single
		// parent hop resolves any lineage member.
		var parentID *int64
		if err := tx.QueryRow(ctx, `SELECT parent_order_id FROM sales_orders WHERE id = $1`, baseID).Scan(&parentID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: sales order %d", shared.ErrNotFound, baseID)
			}
			return err
		}
		rootID := baseID
		if parentID != nil {
			rootID = *parentID
		}

		rows, err := tx.Query(ctx, `SELECT id, parent_order_id, amendment_sequence, order_number
			FROM sales_orders
			WHERE id = $1 OR parent_order_id = $1
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
		return fmt.Errorf("%w: amendment lock timed out, retry", shared.ErrConflict)
	}
	return err
}

const orderColumns = `id, order_number, version, parent_order_id, amendment_sequence, amendment_reason,
	quotation_id, customer_id, status, customer_lpo_validation_status,
	customer_lpo_validated_by, customer_lpo_validated_at, customer_lpo_validation_note,
	currency, subtotal, discount_amount, tax_amount, total_amount, supplier_id,
	created_by, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM sales_orders WHERE id = $1`, orderColumns), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: sales order %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *repository) GetByQuotationID(ctx context.Context, quotationID int64) (*SalesOrder, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM sales_orders WHERE quotation_id = $1 AND parent_order_id IS NULL`, orderColumns), quotationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no order for quotation %d", shared.ErrNotFound, quotationID)
		}
		return nil, err
	}
	return o, nil
}

func (r *repository) Create(ctx context.Context, o SalesOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO sales_orders (
		order_number, version, parent_order_id, amendment_sequence, amendment_reason,
		quotation_id, customer_id, status, customer_lpo_validation_status,
		currency, subtotal, discount_amount, tax_amount, total_amount, supplier_id,
		created_by, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
	RETURNING id`,
		o.OrderNumber, o.Version, o.ParentOrderID, o.AmendmentSequence, o.AmendmentReason,
		o.QuotationID, o.CustomerID, o.Status, o.LpoValidation,
		o.Currency, o.Subtotal, o.DiscountAmount, o.TaxAmount, o.TotalAmount, o.SupplierID,
		o.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *repository) InsertItem(ctx context.Context, item SalesOrderItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO sales_order_items (
		sales_order_id, product_id, description, quantity, unit_price,
		discount_percent, tax_percent, total_price, line_order
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id`,
		item.SalesOrderID, item.ProductID, item.Description, item.Quantity, item.UnitPrice,
		item.DiscountPercent, item.TaxPercent, item.TotalPrice, item.LineOrder,
	).Scan(&id)
	return id, err
}

func (r *repository) ListLineage(ctx context.Context, rootID int64) ([]SalesOrder, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM sales_orders
		WHERE id = $1 OR parent_order_id = $1
		ORDER BY amendment_sequence, id`, orderColumns), rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lineage []SalesOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		lineage = append(lineage, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(lineage) == 0 {
		return nil, fmt.Errorf("%w: sales order %d", shared.ErrNotFound, rootID)
	}
	return lineage, nil
}

func (r *repository) UpdateLpoValidation(ctx context.Context, id int64, status LpoValidationStatus, validatedBy int64, notes *string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE sales_orders SET
		customer_lpo_validation_status = $1,
		customer_lpo_validated_by = $2,
		customer_lpo_validated_at = $3,
		customer_lpo_validation_note = $4,
		updated_at = NOW()
		WHERE id = $5`, status, validatedBy, at, notes, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sales order %d", shared.ErrNotFound, id)
	}
	return nil
}

// GenerateNumber produces SO-<year>-<seq> where seq continues from the
// highest sequence already issued for the year. Not race-safe on its own;
// uniqueness is enforced by the order_number constraint.
func (r *repository) GenerateNumber(ctx context.Context, year int) (string, error) {
	var maxSeq int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX((substring(order_number FROM '^SO-\d{4}-(\d+)'))::int), 0)
		FROM sales_orders WHERE order_number LIKE $1`, fmt.Sprintf("SO-%d-%%", year)).Scan(&maxSeq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SO-%d-%04d", year, maxSeq+1), nil
}

func (r *repository) listItems(ctx context.Context, orderID int64) ([]SalesOrderItem, error) {
	rows, err := r.db.Query(ctx, `SELECT id, sales_order_id, product_id, description, quantity, unit_price,
		discount_percent, tax_percent, total_price, line_order
		FROM sales_order_items WHERE sales_order_id = $1 ORDER BY line_order, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SalesOrderItem
	for rows.Next() {
		var it SalesOrderItem
		if err := rows.Scan(&it.ID, &it.SalesOrderID, &it.ProductID, &it.Description, &it.Quantity,
			&it.UnitPrice, &it.DiscountPercent, &it.TaxPercent, &it.TotalPrice, &it.LineOrder); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (*SalesOrder, error) {
	var o SalesOrder
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.Version, &o.ParentOrderID, &o.AmendmentSequence, &o.AmendmentReason,
		&o.QuotationID, &o.CustomerID, &o.Status, &o.LpoValidation,
		&o.LpoValidatedBy, &o.LpoValidatedAt, &o.LpoValidationNote,
		&o.Currency, &o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.TotalAmount, &o.SupplierID,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
