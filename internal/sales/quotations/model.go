package quotations

import "time"

type QuotationStatus string

const (
	QuotationStatusDraft    QuotationStatus = "DRAFT"
	QuotationStatusSent     QuotationStatus = "SENT"
	QuotationStatusAccepted QuotationStatus = "ACCEPTED"
	QuotationStatusRejected QuotationStatus = "REJECTED"
	QuotationStatusExpired  QuotationStatus = "EXPIRED"
)

// Terminal reports whether no further status change is allowed. Superseding
// via revision creates a new row and is always permitted.
func (s QuotationStatus) Terminal() bool {
	switch s {
	case QuotationStatusAccepted, QuotationStatusRejected, QuotationStatusExpired:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

type Quotation struct {
	ID                int64           `json:"id" db:"id"`
	QuoteNumber       string          `json:"quote_number" db:"quote_number"`
	Revision          int             `json:"revision" db:"revision"`
	ParentQuotationID *int64          `json:"parent_quotation_id,omitempty" db:"parent_quotation_id"`
	IsSuperseded      bool            `json:"is_superseded" db:"is_superseded"`
	CustomerID        int64           `json:"customer_id" db:"customer_id"`
	Status            QuotationStatus `json:"status" db:"status"`
	ApprovalStatus    ApprovalStatus  `json:"approval_status" db:"approval_status"`
	Currency          string          `json:"currency" db:"currency"`
	Subtotal          float64         `json:"subtotal" db:"subtotal"`
	DiscountAmount    float64         `json:"discount_amount" db:"discount_amount"`
	TaxAmount         float64         `json:"tax_amount" db:"tax_amount"`
	TotalAmount       float64         `json:"total_amount" db:"total_amount"`
	ValidUntil        *time.Time      `json:"valid_until,omitempty" db:"valid_until"`
	Notes             *string         `json:"notes,omitempty" db:"notes"`
	CreatedBy         int64           `json:"created_by" db:"created_by"`
	ApprovedBy        *int64          `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	RejectionReason   *string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
	Items             []QuotationItem `json:"items,omitempty" db:"-"`
}

type QuotationItem struct {
	ID              int64   `json:"id" db:"id"`
	QuotationID     int64   `json:"quotation_id" db:"quotation_id"`
	ProductID       *int64  `json:"product_id,omitempty" db:"product_id"`
	Description     string  `json:"description" db:"description"`
	Quantity        float64 `json:"quantity" db:"quantity"`
	UnitPrice       float64 `json:"unit_price" db:"unit_price"`
	DiscountPercent float64 `json:"discount_percent" db:"discount_percent"`
	TaxPercent      float64 `json:"tax_percent" db:"tax_percent"`
	LineTotal       float64 `json:"line_total" db:"line_total"`
	LineOrder       int     `json:"line_order" db:"line_order"`
}
