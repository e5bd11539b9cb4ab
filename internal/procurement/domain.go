// Package procurement implements the supplier LPO side of the document
// chain: generation from sales orders, amendments, the approval workflow
// and goods receipt tracking.
package procurement

import "time"

// Supplier LPO lifecycle statuses.
type LpoStatus string

const (
	LpoStatusDraft     LpoStatus = "DRAFT"
	LpoStatusSent      LpoStatus = "SENT"
	LpoStatusConfirmed LpoStatus = "CONFIRMED"
	LpoStatusCancelled LpoStatus = "CANCELLED"
	LpoStatusReceived  LpoStatus = "RECEIVED"
)

// Approval sub-state gating whether SENT is reachable.
type LpoApprovalStatus string

const (
	LpoApprovalNotRequired LpoApprovalStatus = "NOT_REQUIRED"
	LpoApprovalPending     LpoApprovalStatus = "PENDING"
	LpoApprovalApproved    LpoApprovalStatus = "APPROVED"
	LpoApprovalRejected    LpoApprovalStatus = "REJECTED"
)

// How the LPO came to exist.
type LpoSourceType string

const (
	LpoSourceManual LpoSourceType = "MANUAL"
	LpoSourceAuto   LpoSourceType = "AUTO"
)

// SupplierLpo is the purchase order issued to a supplier.
type SupplierLpo struct {
	ID                    int64             `json:"id" db:"id"`
	LpoNumber             string            `json:"lpo_number" db:"lpo_number"`
	Version               int               `json:"version" db:"version"`
	ParentLpoID           *int64            `json:"parent_lpo_id,omitempty" db:"parent_lpo_id"`
	AmendmentSequence     int               `json:"amendment_sequence" db:"amendment_sequence"`
	AmendmentReason       *string           `json:"amendment_reason,omitempty" db:"amendment_reason"`
	AmendmentType         *string           `json:"amendment_type,omitempty" db:"amendment_type"`
	SupplierID            int64             `json:"supplier_id" db:"supplier_id"`
	SourceType            LpoSourceType     `json:"source_type" db:"source_type"`
	SourceSalesOrderIDs   []int64           `json:"source_sales_order_ids" db:"source_sales_order_ids"`
	GroupingCriteria      *string           `json:"grouping_criteria,omitempty" db:"grouping_criteria"`
	Status                LpoStatus         `json:"status" db:"status"`
	RequiresApproval      bool              `json:"requires_approval" db:"requires_approval"`
	ApprovalStatus        LpoApprovalStatus `json:"approval_status" db:"approval_status"`
	ApprovedBy            *int64            `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt            *time.Time        `json:"approved_at,omitempty" db:"approved_at"`
	RejectionReason       *string           `json:"rejection_reason,omitempty" db:"rejection_reason"`
	Currency              string            `json:"currency" db:"currency"`
	Subtotal              float64           `json:"subtotal" db:"subtotal"`
	TaxAmount             float64           `json:"tax_amount" db:"tax_amount"`
	TotalAmount           float64           `json:"total_amount" db:"total_amount"`
	SentToSupplierAt      *time.Time        `json:"sent_to_supplier_at,omitempty" db:"sent_to_supplier_at"`
	ConfirmedBySupplierAt *time.Time        `json:"confirmed_by_supplier_at,omitempty" db:"confirmed_by_supplier_at"`
	ConfirmationReference *string           `json:"confirmation_reference,omitempty" db:"confirmation_reference"`
	CreatedBy             *int64            `json:"created_by,omitempty" db:"created_by"`
	CreatedAt             time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at" db:"updated_at"`
	Items                 []SupplierLpoItem `json:"items,omitempty" db:"-"`
}

// SupplierLpoItem carries ordered vs received quantity tracking.
type SupplierLpoItem struct {
	ID               int64   `json:"id" db:"id"`
	SupplierLpoID    int64   `json:"supplier_lpo_id" db:"supplier_lpo_id"`
	ProductID        int64   `json:"product_id" db:"product_id"`
	SalesOrderItemID *int64  `json:"sales_order_item_id,omitempty" db:"sales_order_item_id"`
	Description      string  `json:"description" db:"description"`
	Quantity         float64 `json:"quantity" db:"quantity"`
	ReceivedQuantity float64 `json:"received_quantity" db:"received_quantity"`
	PendingQuantity  float64 `json:"pending_quantity" db:"pending_quantity"`
	UnitPrice        float64 `json:"unit_price" db:"unit_price"`
	LineTotal        float64 `json:"line_total" db:"line_total"`
	LineOrder        int     `json:"line_order" db:"line_order"`
}
