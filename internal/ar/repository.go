package ar

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

// NewRepository constructs a PostgreSQL-backed AR repository.
func NewRepository(pool *pgxpool.Pool) RepositoryPort {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const invoiceColumns = `id, invoice_number, invoice_type, status, customer_id, delivery_id,
	sales_order_id, currency, exchange_rate, base_currency, subtotal, discount_amount,
	tax_amount, total_amount, subtotal_base, discount_amount_base, tax_amount_base,
	total_amount_base, paid_amount, credit_applied, outstanding_amount, due_date,
	created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.InvoiceType, &inv.Status, &inv.CustomerID, &inv.DeliveryID,
		&inv.SalesOrderID, &inv.Currency, &inv.ExchangeRate, &inv.BaseCurrency, &inv.Subtotal, &inv.DiscountAmount,
		&inv.TaxAmount, &inv.TotalAmount, &inv.SubtotalBase, &inv.DiscountAmountBase, &inv.TaxAmountBase,
		&inv.TotalAmountBase, &inv.PaidAmount, &inv.CreditApplied, &inv.OutstandingAmount, &inv.DueDate,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	return &inv, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return inv, nil
}

func (r *repository) GetByDeliveryID(ctx context.Context, deliveryID int64) (*Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE delivery_id = $1 AND invoice_type = 'FINAL' AND status <> 'CANCELLED'
		LIMIT 1`, deliveryID))
}

func (r *repository) listItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, product_id, description, quantity, unit_price,
			discount_percent, tax_percent, line_total, unit_price_base, line_total_base, line_order
		FROM invoice_items WHERE invoice_id = $1 ORDER BY line_order`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	defer rows.Close()
	var items []InvoiceItem
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.ProductID, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.DiscountPercent, &it.TaxPercent, &it.LineTotal, &it.UnitPriceBase, &it.LineTotalBase, &it.LineOrder); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) Create(ctx context.Context, inv Invoice) (int64, error) {
	id, err := r.insert(ctx, inv)
	if err != nil && inv.CreatedBy != nil && db.IsForeignKeyViolation(err, "invoices_created_by_fkey") {
		// The acting user row may be gone; keep the document, drop attribution.
		inv.CreatedBy = nil
		return r.insert(ctx, inv)
	}
	return id, err
}

func (r *repository) insert(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoices (
			invoice_number, invoice_type, status, customer_id, delivery_id, sales_order_id,
			currency, exchange_rate, base_currency, subtotal, discount_amount, tax_amount,
			total_amount, subtotal_base, discount_amount_base, tax_amount_base, total_amount_base,
			paid_amount, credit_applied, outstanding_amount, due_date, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING id`,
		inv.InvoiceNumber, inv.InvoiceType, inv.Status, inv.CustomerID, inv.DeliveryID, inv.SalesOrderID,
		inv.Currency, inv.ExchangeRate, inv.BaseCurrency, inv.Subtotal, inv.DiscountAmount, inv.TaxAmount,
		inv.TotalAmount, inv.SubtotalBase, inv.DiscountAmountBase, inv.TaxAmountBase, inv.TotalAmountBase,
		inv.PaidAmount, inv.CreditApplied, inv.OutstandingAmount, inv.DueDate, inv.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	return id, nil
}

func (r *repository) InsertItem(ctx context.Context, item InvoiceItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoice_items (
			invoice_id, product_id, description, quantity, unit_price, discount_percent,
			tax_percent, line_total, unit_price_base, line_total_base, line_order
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`,
		item.InvoiceID, item.ProductID, item.Description, item.Quantity, item.UnitPrice, item.DiscountPercent,
		item.TaxPercent, item.LineTotal, item.UnitPriceBase, item.LineTotalBase, item.LineOrder,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert invoice item: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status InvoiceStatus, dueDate *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = $2, due_date = $3, updated_at = now()
		WHERE id = $1`, id, status, dueDate)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) UpdatePayment(ctx context.Context, id int64, paidAmount, creditApplied, outstanding float64, status InvoiceStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET paid_amount = $2, credit_applied = $3, outstanding_amount = $4,
			status = $5, updated_at = now()
		WHERE id = $1`, id, paidAmount, creditApplied, outstanding, status)
	if err != nil {
		return fmt.Errorf("update invoice payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	return nil
}

// UpdateCurrencyMirrors rewrites the currency fields and every base
// mirror, header and items, in one transaction.
func (r *repository) UpdateCurrencyMirrors(ctx context.Context, inv Invoice) error {
	return r.WithTx(ctx, func(ctx context.Context, port RepositoryPort) error {
		repo := port.(*repository)
		tag, err := repo.db.Exec(ctx, `
			UPDATE invoices SET currency = $2, exchange_rate = $3, subtotal_base = $4,
				discount_amount_base = $5, tax_amount_base = $6, total_amount_base = $7,
				updated_at = now()
			WHERE id = $1`,
			inv.ID, inv.Currency, inv.ExchangeRate, inv.SubtotalBase,
			inv.DiscountAmountBase, inv.TaxAmountBase, inv.TotalAmountBase)
		if err != nil {
			return fmt.Errorf("update invoice currency: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: invoice %d", shared.ErrNotFound, inv.ID)
		}
		for _, item := range inv.Items {
			if _, err := repo.db.Exec(ctx, `
				UPDATE invoice_items SET unit_price_base = $2, line_total_base = $3
				WHERE id = $1`, item.ID, item.UnitPriceBase, item.LineTotalBase); err != nil {
				return fmt.Errorf("update invoice item mirrors: %w", err)
			}
		}
		return nil
	})
}

func (r *repository) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE status = 'SENT' AND due_date IS NOT NULL AND due_date < $1`, asOf)
	if err != nil {
		return nil, fmt.Errorf("list overdue candidates: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *repository) GetCreditNote(ctx context.Context, id int64) (*CreditNote, error) {
	var cn CreditNote
	err := r.db.QueryRow(ctx, `
		SELECT id, credit_note_number, invoice_id, status, amount, applied_amount,
			reason, created_by, created_at, applied_at
		FROM credit_notes WHERE id = $1`, id).Scan(
		&cn.ID, &cn.CreditNoteNumber, &cn.InvoiceID, &cn.Status, &cn.Amount, &cn.AppliedAmount,
		&cn.Reason, &cn.CreatedBy, &cn.CreatedAt, &cn.AppliedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: credit note %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan credit note: %w", err)
	}
	return &cn, nil
}

func (r *repository) CreateCreditNote(ctx context.Context, cn CreditNote) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO credit_notes (credit_note_number, invoice_id, status, amount, applied_amount, reason, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		cn.CreditNoteNumber, cn.InvoiceID, cn.Status, cn.Amount, cn.AppliedAmount, cn.Reason, cn.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert credit note: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateCreditNoteApplied(ctx context.Context, id int64, applied float64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE credit_notes SET status = 'APPLIED', applied_amount = $2, applied_at = $3
		WHERE id = $1 AND status = 'DRAFT'`, id, applied, at)
	if err != nil {
		return fmt.Errorf("update credit note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: credit note %d not applicable", shared.ErrConflict, id)
	}
	return nil
}
