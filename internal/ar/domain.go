// Package ar covers accounts receivable: invoice generation from
// deliveries, proforma invoices, payments and credit notes.
package ar

import "time"

type InvoiceType string

const (
	InvoiceTypeFinal    InvoiceType = "FINAL"
	InvoiceTypeProforma InvoiceType = "PROFORMA"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
)

type CreditNoteStatus string

const (
	CreditNoteStatusDraft     CreditNoteStatus = "DRAFT"
	CreditNoteStatusApplied   CreditNoteStatus = "APPLIED"
	CreditNoteStatusCancelled CreditNoteStatus = "CANCELLED"
)

// Invoice keeps transaction-currency amounts alongside base-currency
// mirrors so reporting never re-derives historical conversions.
type Invoice struct {
	ID                 int64         `json:"id" db:"id"`
	InvoiceNumber      string        `json:"invoice_number" db:"invoice_number"`
	InvoiceType        InvoiceType   `json:"invoice_type" db:"invoice_type"`
	Status             InvoiceStatus `json:"status" db:"status"`
	CustomerID         int64         `json:"customer_id" db:"customer_id"`
	DeliveryID         *int64        `json:"delivery_id,omitempty" db:"delivery_id"`
	SalesOrderID       *int64        `json:"sales_order_id,omitempty" db:"sales_order_id"`
	Currency           string        `json:"currency" db:"currency"`
	ExchangeRate       float64       `json:"exchange_rate" db:"exchange_rate"`
	BaseCurrency       string        `json:"base_currency" db:"base_currency"`
	Subtotal           float64       `json:"subtotal" db:"subtotal"`
	DiscountAmount     float64       `json:"discount_amount" db:"discount_amount"`
	TaxAmount          float64       `json:"tax_amount" db:"tax_amount"`
	TotalAmount        float64       `json:"total_amount" db:"total_amount"`
	SubtotalBase       float64       `json:"subtotal_base" db:"subtotal_base"`
	DiscountAmountBase float64       `json:"discount_amount_base" db:"discount_amount_base"`
	TaxAmountBase      float64       `json:"tax_amount_base" db:"tax_amount_base"`
	TotalAmountBase    float64       `json:"total_amount_base" db:"total_amount_base"`
	PaidAmount         float64       `json:"paid_amount" db:"paid_amount"`
	CreditApplied      float64       `json:"credit_applied" db:"credit_applied"`
	OutstandingAmount  float64       `json:"outstanding_amount" db:"outstanding_amount"`
	DueDate            *time.Time    `json:"due_date,omitempty" db:"due_date"`
	CreatedBy          *int64        `json:"created_by,omitempty" db:"created_by"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
	Items              []InvoiceItem `json:"items,omitempty" db:"-"`
}

type InvoiceItem struct {
	ID              int64   `json:"id" db:"id"`
	InvoiceID       int64   `json:"invoice_id" db:"invoice_id"`
	ProductID       int64   `json:"product_id" db:"product_id"`
	Description     string  `json:"description" db:"description"`
	Quantity        float64 `json:"quantity" db:"quantity"`
	UnitPrice       float64 `json:"unit_price" db:"unit_price"`
	DiscountPercent float64 `json:"discount_percent" db:"discount_percent"`
	TaxPercent      float64 `json:"tax_percent" db:"tax_percent"`
	LineTotal       float64 `json:"line_total" db:"line_total"`
	UnitPriceBase   float64 `json:"unit_price_base" db:"unit_price_base"`
	LineTotalBase   float64 `json:"line_total_base" db:"line_total_base"`
	LineOrder       int     `json:"line_order" db:"line_order"`
}

// CreditNote reduces an invoice's receivable when applied.
type CreditNote struct {
	ID               int64            `json:"id" db:"id"`
	CreditNoteNumber string           `json:"credit_note_number" db:"credit_note_number"`
	InvoiceID        int64            `json:"invoice_id" db:"invoice_id"`
	Status           CreditNoteStatus `json:"status" db:"status"`
	Amount           float64          `json:"amount" db:"amount"`
	AppliedAmount    float64          `json:"applied_amount" db:"applied_amount"`
	Reason           string           `json:"reason" db:"reason"`
	CreatedBy        *int64           `json:"created_by,omitempty" db:"created_by"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	AppliedAt        *time.Time       `json:"applied_at,omitempty" db:"applied_at"`
}

// DeliveryOrderInfo is the delivery projection consumed by invoicing.
// The delivery package loads it; this package only reads it.
type DeliveryOrderInfo struct {
	ID           int64
	DocNumber    string
	CustomerID   int64
	CustomerName string
	SalesOrderID int64
	Currency     string
	ExchangeRate float64
	BaseCurrency string
	Lines        []DeliveryLineInfo
}

type DeliveryLineInfo struct {
	ID          int64
	ProductID   int64
	ProductName string
	Quantity    float64
	UnitPrice   float64
	DiscountPct float64
	TaxPct      float64
}
