package orders

import "time"

type SalesOrderStatus string

const (
	SalesOrderStatusDraft     SalesOrderStatus = "DRAFT"
	SalesOrderStatusConfirmed SalesOrderStatus = "CONFIRMED"
	SalesOrderStatusCompleted SalesOrderStatus = "COMPLETED"
	SalesOrderStatusCancelled SalesOrderStatus = "CANCELLED"
)

// LpoValidationStatus tracks validation of the customer's purchase order,
// independent of the order status.
type LpoValidationStatus string

const (
	LpoValidationPending  LpoValidationStatus = "PENDING"
	LpoValidationApproved LpoValidationStatus = "APPROVED"
	LpoValidationRejected LpoValidationStatus = "REJECTED"
)

type SalesOrder struct {
	ID                int64               `json:"id" db:"id"`
	OrderNumber       string              `json:"order_number" db:"order_number"`
	Version           int                 `json:"version" db:"version"`
	ParentOrderID     *int64              `json:"parent_order_id,omitempty" db:"parent_order_id"`
	AmendmentSequence int                 `json:"amendment_sequence" db:"amendment_sequence"`
	AmendmentReason   *string             `json:"amendment_reason,omitempty" db:"amendment_reason"`
	QuotationID       *int64              `json:"quotation_id,omitempty" db:"quotation_id"`
	CustomerID        int64               `json:"customer_id" db:"customer_id"`
	Status            SalesOrderStatus    `json:"status" db:"status"`
	LpoValidation     LpoValidationStatus `json:"customer_lpo_validation_status" db:"customer_lpo_validation_status"`
	LpoValidatedBy    *int64              `json:"customer_lpo_validated_by,omitempty" db:"customer_lpo_validated_by"`
	LpoValidatedAt    *time.Time          `json:"customer_lpo_validated_at,omitempty" db:"customer_lpo_validated_at"`
	LpoValidationNote *string             `json:"customer_lpo_validation_note,omitempty" db:"customer_lpo_validation_note"`
	Currency          string              `json:"currency" db:"currency"`
	Subtotal          float64             `json:"subtotal" db:"subtotal"`
	DiscountAmount    float64             `json:"discount_amount" db:"discount_amount"`
	TaxAmount         float64             `json:"tax_amount" db:"tax_amount"`
	TotalAmount       float64             `json:"total_amount" db:"total_amount"`
	SupplierID        *int64              `json:"supplier_id,omitempty" db:"supplier_id"`
	CreatedBy         int64               `json:"created_by" db:"created_by"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" db:"updated_at"`
	Items             []SalesOrderItem    `json:"items,omitempty" db:"-"`
}

type SalesOrderItem struct {
	ID              int64   `json:"id" db:"id"`
	SalesOrderID    int64   `json:"sales_order_id" db:"sales_order_id"`
	ProductID       int64   `json:"product_id" db:"product_id"`
	Description     string  `json:"description" db:"description"`
	Quantity        float64 `json:"quantity" db:"quantity"`
	UnitPrice       float64 `json:"unit_price" db:"unit_price"`
	DiscountPercent float64 `json:"discount_percent" db:"discount_percent"`
	TaxPercent      float64 `json:"tax_percent" db:"tax_percent"`
	TotalPrice      float64 `json:"total_price" db:"total_price"`
	LineOrder       int     `json:"line_order" db:"line_order"`
}

// Root reports whether the order is a lineage root.
func (o *SalesOrder) Root() bool {
	return o.ParentOrderID == nil
}
