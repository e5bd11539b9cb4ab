// Package delivery exposes the delivered-goods projection that AR
// invoicing consumes. Delivery capture itself happens upstream; this
// package only reads.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otrixindiacloud/tradeflow/internal/ar"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

// StatusDelivered is the only delivery state invoicing accepts.
const StatusDelivered = "DELIVERED"

// InvoicingAdapter loads delivery data for AR invoicing.
type InvoicingAdapter struct {
	pool *pgxpool.Pool
}

func NewInvoicingAdapter(pool *pgxpool.Pool) *InvoicingAdapter {
	return &InvoicingAdapter{pool: pool}
}

func (a *InvoicingAdapter) GetDeliveryOrderForInvoicing(ctx context.Context, id int64) (*ar.DeliveryOrderInfo, error) {
	const headerSQL = `
		SELECT d.id, d.doc_number, d.customer_id, c.name, d.sales_order_id,
		       d.status, so.currency
		FROM delivery_orders d
		INNER JOIN customers c ON c.id = d.customer_id
		INNER JOIN sales_orders so ON so.id = d.sales_order_id
		WHERE d.id = $1
	`

	var status string
	info := ar.DeliveryOrderInfo{}
	if err := a.pool.QueryRow(ctx, headerSQL, id).Scan(
		&info.ID,
		&info.DocNumber,
		&info.CustomerID,
		&info.CustomerName,
		&info.SalesOrderID,
		&status,
		&info.Currency,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: delivery order %d", shared.ErrNotFound, id)
		}
		return nil, err
	}

	if status != StatusDelivered {
		return nil, fmt.Errorf("%w: delivery order must be DELIVERED, got %s", shared.ErrConflict, status)
	}

	const lineSQL = `
		SELECT dol.id, dol.product_id, p.name, dol.quantity_delivered, sol.unit_price,
		       sol.discount_percent, sol.tax_percent
		FROM delivery_order_lines dol
		INNER JOIN products p ON p.id = dol.product_id
		INNER JOIN sales_order_items sol ON sol.id = dol.sales_order_item_id
		WHERE dol.delivery_order_id = $1
		ORDER BY dol.line_order, dol.id
	`

	rows, err := a.pool.Query(ctx, lineSQL, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line                        ar.DeliveryLineInfo
			qty, unitPrice              pgtype.Numeric
			discountPercent, taxPercent pgtype.Numeric
		)
		if err := rows.Scan(
			&line.ID,
			&line.ProductID,
			&line.ProductName,
			&qty,
			&unitPrice,
			&discountPercent,
			&taxPercent,
		); err != nil {
			return nil, err
		}
		line.Quantity = numericToFloat(qty)
		line.UnitPrice = numericToFloat(unitPrice)
		line.DiscountPct = numericToFloat(discountPercent)
		line.TaxPct = numericToFloat(taxPercent)
		info.Lines = append(info.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(info.Lines) == 0 {
		return nil, fmt.Errorf("%w: delivery order %d has no lines", shared.ErrValidation, id)
	}

	return &info, nil
}

func numericToFloat(n pgtype.Numeric) float64 {
	if !n.Valid {
		return 0
	}
	f, err := n.Float64Value()
	if err != nil {
		return 0
	}
	return f.Float64
}
