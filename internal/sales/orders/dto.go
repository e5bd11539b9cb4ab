package orders

type CreateFromQuotationRequest struct {
	QuotationID int64 `json:"quotation_id" validate:"required,gt=0"`
}

type CreateAmendmentRequest struct {
	Reason string `json:"reason" validate:"required,min=5"`
}

type ValidateCustomerLpoRequest struct {
	Status      LpoValidationStatus `json:"status" validate:"required,oneof=PENDING APPROVED REJECTED"`
	Notes       *string             `json:"notes,omitempty"`
	ValidatedBy int64               `json:"validated_by" validate:"required,gt=0"`
	Override    bool                `json:"override,omitempty"`
}
