package quotations

import "time"

type CreateQuotationRequest struct {
	CustomerID int64                      `json:"customer_id" validate:"required,gt=0"`
	Currency   string                     `json:"currency" validate:"required,len=3"`
	ValidUntil *time.Time                 `json:"valid_until,omitempty"`
	Notes      *string                    `json:"notes,omitempty"`
	Items      []CreateQuotationItemReq   `json:"items" validate:"required,min=1,dive"`
}

type CreateQuotationItemReq struct {
	ProductID       *int64  `json:"product_id,omitempty"`
	Description     string  `json:"description" validate:"required"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice       float64 `json:"unit_price" validate:"required,gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxPercent      float64 `json:"tax_percent" validate:"gte=0,lte=100"`
	LineOrder       int     `json:"line_order" validate:"gte=0"`
}

type ReviseQuotationRequest struct {
	Items      []CreateQuotationItemReq `json:"items" validate:"required,min=1,dive"`
	ValidUntil *time.Time               `json:"valid_until,omitempty"`
	Notes      *string                  `json:"notes,omitempty"`
}

type DecideApprovalRequest struct {
	Decision        ApprovalStatus `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Comments        *string        `json:"comments,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}
