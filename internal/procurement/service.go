package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/otrixindiacloud/tradeflow/internal/currency"
	"github.com/otrixindiacloud/tradeflow/internal/docflow"
	"github.com/otrixindiacloud/tradeflow/internal/sales/orders"
	salesshared "github.com/otrixindiacloud/tradeflow/internal/sales/shared"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

// RepositoryPort describes supplier LPO persistence used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error
	WithAmendmentLock(ctx context.Context, baseID int64, fn func(ctx context.Context, repo RepositoryPort, root *SupplierLpo, siblings []docflow.Sibling) error) error
	Get(ctx context.Context, id int64) (*SupplierLpo, error)
	Create(ctx context.Context, lpo SupplierLpo) (int64, error)
	InsertItem(ctx context.Context, item SupplierLpoItem) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status LpoStatus, stamp *time.Time, confirmationRef *string) error
	UpdateApproval(ctx context.Context, id int64, approval LpoApprovalStatus, actorID int64, reason *string, at time.Time) error
	UpdateItemReceipt(ctx context.Context, itemID int64, receivedQuantity, pendingQuantity float64) error
	ListLineage(ctx context.Context, rootID int64) ([]SupplierLpo, error)
}

// SalesOrderPort reads source sales orders for LPO generation.
type SalesOrderPort interface {
	Get(ctx context.Context, id int64) (*orders.SalesOrder, error)
}

// SupplierPort verifies supplier references.
type SupplierPort interface {
	Exists(ctx context.Context, id int64) error
}

// AuditPort records audit rows; failures never abort the operation.
type AuditPort interface {
	Record(ctx context.Context, ev shared.AuditEvent) error
}

// Service orchestrates supplier LPO flows.
type Service struct {
	repo              RepositoryPort
	salesOrders       SalesOrderPort
	suppliers         SupplierPort
	audit             AuditPort
	approvalThreshold float64
}

// NewService constructs procurement service. LPOs whose total reaches
// approvalThreshold require approval before they can be sent; a zero
// threshold means every LPO requires approval.
func NewService(repo RepositoryPort, salesOrders SalesOrderPort, suppliers SupplierPort, audit AuditPort, approvalThreshold float64) *Service {
	return &Service{repo: repo, salesOrders: salesOrders, suppliers: suppliers, audit: audit, approvalThreshold: approvalThreshold}
}

// CreateFromSalesOrdersInput describes LPO generation.
type CreateFromSalesOrdersInput struct {
	SalesOrderIDs []int64 `json:"sales_order_ids" validate:"required,min=1,dive,gt=0"`
	GroupBy       string  `json:"group_by" validate:"omitempty,oneof=SUPPLIER"`
}

// AmendmentInput describes LPO amendment creation.
type AmendmentInput struct {
	Reason        string `json:"reason" validate:"required,min=5"`
	AmendmentType string `json:"amendment_type" validate:"required"`
}

// ReceiptLine records received quantity against one LPO item.
type ReceiptLine struct {
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

// CreateFromSalesOrders projects each sales order into one supplier LPO.
// Orders are grouped by supplier; with the current strategy every order
// yields its own LPO and the criteria is recorded on the row.
func (s *Service) CreateFromSalesOrders(ctx context.Context, input CreateFromSalesOrdersInput, createdBy int64) ([]SupplierLpo, error) {
	if len(input.SalesOrderIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one sales order id is required", shared.ErrValidation)
	}
	groupBy := input.GroupBy
	if groupBy == "" {
		groupBy = "SUPPLIER"
	}

	created := make([]SupplierLpo, 0, len(input.SalesOrderIDs))
	for _, soID := range input.SalesOrderIDs {
		so, err := s.salesOrders.Get(ctx, soID)
		if err != nil {
			return created, fmt.Errorf("get sales order %d: %w", soID, err)
		}
		if so.SupplierID == nil {
			return created, fmt.Errorf("%w: sales order %s has no supplier assigned", shared.ErrValidation, so.OrderNumber)
		}
		if s.suppliers != nil {
			if err := s.suppliers.Exists(ctx, *so.SupplierID); err != nil {
				return created, fmt.Errorf("%w: sales order %s references unknown supplier %d", shared.ErrValidation, so.OrderNumber, *so.SupplierID)
			}
		}
		if len(so.Items) == 0 {
			return created, fmt.Errorf("%w: sales order %s has no items", shared.ErrValidation, so.OrderNumber)
		}

		// Line totals carry the sales order item's discount and tax, so the
		// LPO total always equals the sum of its item line totals.
		var totals salesshared.DocumentTotals
		items := make([]SupplierLpoItem, 0, len(so.Items))
		for i, soItem := range so.Items {
			lineTotal := totals.AddLine(soItem.Quantity, soItem.UnitPrice, soItem.DiscountPercent, soItem.TaxPercent)
			itemID := soItem.ID
			items = append(items, SupplierLpoItem{
				ProductID:        soItem.ProductID,
				SalesOrderItemID: &itemID,
				Description:      soItem.Description,
				Quantity:         soItem.Quantity,
				ReceivedQuantity: 0,
				PendingQuantity:  soItem.Quantity,
				UnitPrice:        soItem.UnitPrice,
				LineTotal:        lineTotal,
				LineOrder:        i + 1,
			})
		}

		grouping := groupBy
		requiresApproval := s.approvalThreshold <= 0 || totals.TotalAmount >= s.approvalThreshold
		approval := LpoApprovalNotRequired
		if requiresApproval {
			approval = LpoApprovalPending
		}
		lpo := SupplierLpo{
			LpoNumber:           shared.GenerateNumber("LPO"),
			Version:             1,
			SupplierID:          *so.SupplierID,
			SourceType:          LpoSourceAuto,
			SourceSalesOrderIDs: []int64{so.ID},
			GroupingCriteria:    &grouping,
			Status:              LpoStatusDraft,
			RequiresApproval:    requiresApproval,
			ApprovalStatus:      approval,
			Currency:            so.Currency,
			Subtotal:            totals.Subtotal,
			TaxAmount:           totals.TaxAmount,
			TotalAmount:         totals.TotalAmount,
		}
		if createdBy > 0 {
			lpo.CreatedBy = &createdBy
		}

		var lpoID int64
		err = s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
			id, err := repo.Create(ctx, lpo)
			if err != nil {
				return fmt.Errorf("create supplier LPO: %w", err)
			}
			lpoID = id
			for _, item := range items {
				item.SupplierLpoID = id
				if _, err := repo.InsertItem(ctx, item); err != nil {
					return fmt.Errorf("insert LPO item: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return created, err
		}

		full, err := s.repo.Get(ctx, lpoID)
		if err != nil {
			return created, err
		}
		s.recordAudit(ctx, lpoID, "LPO_CREATE", createdBy, nil,
			map[string]any{"number": full.LpoNumber, "source_sales_order": so.ID, "total": full.TotalAmount})
		created = append(created, *full)
	}
	return created, nil
}

// CreateAmendment creates an amendment row for the LPO lineage, with the
// same locking allocation as sales order amendments.
func (s *Service) CreateAmendment(ctx context.Context, parentLpoID int64, input AmendmentInput, createdBy int64) (*SupplierLpo, error) {
	if len(strings.TrimSpace(input.Reason)) < 5 {
		return nil, fmt.Errorf("%w: amendment reason must be at least 5 characters", shared.ErrValidation)
	}
	if strings.TrimSpace(input.AmendmentType) == "" {
		return nil, fmt.Errorf("%w: amendment type is required", shared.ErrValidation)
	}

	var amendmentID int64
	err := s.repo.WithAmendmentLock(ctx, parentLpoID, func(ctx context.Context, repo RepositoryPort, root *SupplierLpo, siblings []docflow.Sibling) error {
		seq := docflow.NextSequence(siblings)
		amendment := *root
		amendment.ID = 0
		amendment.LpoNumber = docflow.AmendedNumber(root.LpoNumber, seq)
		amendment.Version = seq + 1
		amendment.ParentLpoID = &root.ID
		amendment.AmendmentSequence = seq
		amendment.AmendmentReason = &input.Reason
		amendment.AmendmentType = &input.AmendmentType
		amendment.Status = LpoStatusDraft
		amendment.SentToSupplierAt = nil
		amendment.ConfirmedBySupplierAt = nil
		amendment.ConfirmationReference = nil
		if amendment.RequiresApproval {
			amendment.ApprovalStatus = LpoApprovalPending
			amendment.ApprovedBy = nil
			amendment.ApprovedAt = nil
		}
		if createdBy > 0 {
			amendment.CreatedBy = &createdBy
		}
		amendment.Items = nil

		id, err := repo.Create(ctx, amendment)
		if err != nil {
			return fmt.Errorf("create LPO amendment: %w", err)
		}
		amendmentID = id
		for _, item := range root.Items {
			item.ID = 0
			item.SupplierLpoID = id
			item.ReceivedQuantity = 0
			item.PendingQuantity = item.Quantity
			if _, err := repo.InsertItem(ctx, item); err != nil {
				return fmt.Errorf("insert LPO amendment item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, amendmentID, "LPO_AMEND", createdBy,
		map[string]any{"parent_lpo_id": parentLpoID},
		map[string]any{"reason": input.Reason, "amendment_type": input.AmendmentType})
	return s.repo.Get(ctx, amendmentID)
}

// SubmitForApproval flags a DRAFT LPO as awaiting approval.
func (s *Service) SubmitForApproval(ctx context.Context, lpoID int64, actorID int64) (*SupplierLpo, error) {
	lpo, err := s.repo.Get(ctx, lpoID)
	if err != nil {
		return nil, err
	}
	if lpo.Status != LpoStatusDraft {
		return nil, fmt.Errorf("%w: can only submit DRAFT LPOs, got %s", shared.ErrConflict, lpo.Status)
	}
	if !lpo.RequiresApproval {
		return nil, fmt.Errorf("%w: LPO %s does not require approval", shared.ErrConflict, lpo.LpoNumber)
	}
	if err := s.repo.UpdateApproval(ctx, lpoID, LpoApprovalPending, actorID, nil, time.Now()); err != nil {
		return nil, fmt.Errorf("submit LPO for approval: %w", err)
	}
	s.recordAudit(ctx, lpoID, "LPO_SUBMIT", actorID, nil, map[string]any{"ref": uuid.NewString()})
	return s.repo.Get(ctx, lpoID)
}

// Approve marks the LPO approved for sending.
func (s *Service) Approve(ctx context.Context, lpoID int64, actorID int64) (*SupplierLpo, error) {
	lpo, err := s.repo.Get(ctx, lpoID)
	if err != nil {
		return nil, err
	}
	if lpo.ApprovalStatus != LpoApprovalPending {
		return nil, fmt.Errorf("%w: LPO approval is %s, expected PENDING", shared.ErrConflict, lpo.ApprovalStatus)
	}
	if err := s.repo.UpdateApproval(ctx, lpoID, LpoApprovalApproved, actorID, nil, time.Now()); err != nil {
		return nil, fmt.Errorf("approve LPO: %w", err)
	}
	s.recordAudit(ctx, lpoID, "LPO_APPROVE", actorID,
		map[string]any{"approval_status": lpo.ApprovalStatus},
		map[string]any{"approval_status": LpoApprovalApproved, "ref": uuid.NewString()})
	return s.repo.Get(ctx, lpoID)
}

// Reject declines the LPO with a mandatory reason.
func (s *Service) Reject(ctx context.Context, lpoID int64, actorID int64, reason string) (*SupplierLpo, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", shared.ErrValidation)
	}
	lpo, err := s.repo.Get(ctx, lpoID)
	if err != nil {
		return nil, err
	}
	if lpo.ApprovalStatus != LpoApprovalPending {
		return nil, fmt.Errorf("%w: LPO approval is %s, expected PENDING", shared.ErrConflict, lpo.ApprovalStatus)
	}
	if err := s.repo.UpdateApproval(ctx, lpoID, LpoApprovalRejected, actorID, &reason, time.Now()); err != nil {
		return nil, fmt.Errorf("reject LPO: %w", err)
	}
	s.recordAudit(ctx, lpoID, "LPO_REJECT", actorID, nil,
		map[string]any{"reason": reason, "ref": uuid.NewString()})
	return s.repo.Get(ctx, lpoID)
}

// SendToSupplier transitions DRAFT to SENT, gated on approval.
func (s *Service) SendToSupplier(ctx context.Context, lpoID int64, actorID int64) (*SupplierLpo, error) {
	lpo, err := s.repo.Get(ctx, lpoID)
	if err != nil {
		return nil, err
	}
	if lpo.Status != LpoStatusDraft {
		return nil, fmt.Errorf("%w: can only send DRAFT LPOs, got %s", shared.ErrConflict, lpo.Status)
	}
	if lpo.RequiresApproval && lpo.ApprovalStatus != LpoApprovalApproved {
		return nil, fmt.Errorf("%w: LPO %s requires approval before sending (approval is %s)", shared.ErrConflict, lpo.LpoNumber, lpo.ApprovalStatus)
	}
	now := time.Now()
	if err := s.repo.UpdateStatus(ctx, lpoID, LpoStatusSent, &now, nil); err != nil {
		return nil, fmt.Errorf("send LPO: %w", err)
	}
	s.recordAudit(ctx, lpoID, "LPO_SEND", actorID, map[string]any{"status": lpo.Status}, map[string]any{"status": LpoStatusSent})
	return s.repo.Get(ctx, lpoID)
}

// ConfirmBySupplier transitions SENT to CONFIRMED with an optional
// external confirmation reference.
func (s *Service) ConfirmBySupplier(ctx context.Context, lpoID int64, actorID int64, confirmationRef *string) (*SupplierLpo, error) {
	lpo, err := s.repo.Get(ctx, lpoID)
	if err != nil {
		return nil, err
	}
	if lpo.Status != LpoStatusSent {
		return nil, fmt.Errorf("%w: can only confirm SENT LPOs, got %s", shared.ErrConflict, lpo.Status)
	}
	now := time.Now()
	if err := s.repo.UpdateStatus(ctx, lpoID, LpoStatusConfirmed, &now, confirmationRef); err != nil {
		return nil, fmt.Errorf("confirm LPO: %w", err)
	}
	meta := map[string]any{"status": LpoStatusConfirmed}
	if confirmationRef != nil {
		meta["confirmation_reference"] = *confirmationRef
	}
	s.recordAudit(ctx, lpoID, "LPO_CONFIRM", actorID, map[string]any{"status": lpo.Status}, meta)
	return s.repo.Get(ctx, lpoID)
}

// Cancel aborts a DRAFT or SENT LPO.
func (s *Service) Cancel(ctx context.Context, lpoID int64, actorID int64) (*SupplierLpo, error) {
	lpo, err := s.repo.Get(ctx, lpoID)
	if err != nil {
		return nil, err
	}
	if lpo.Status != LpoStatusDraft && lpo.Status != LpoStatusSent {
		return nil, fmt.Errorf("%w: cannot cancel LPO in status %s", shared.ErrConflict, lpo.Status)
	}
	if err := s.repo.UpdateStatus(ctx, lpoID, LpoStatusCancelled, nil, nil); err != nil {
		return nil, fmt.Errorf("cancel LPO: %w", err)
	}
	s.recordAudit(ctx, lpoID, "LPO_CANCEL", actorID, map[string]any{"status": lpo.Status}, map[string]any{"status": LpoStatusCancelled})
	return s.repo.Get(ctx, lpoID)
}

// RecordReceipt books received quantities against CONFIRMED LPO items,
// flipping the LPO to RECEIVED once nothing is pending.
func (s *Service) RecordReceipt(ctx context.Context, lpoID int64, lines []ReceiptLine, actorID int64) (*SupplierLpo, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one receipt line is required", shared.ErrValidation)
	}
	lpo, err := s.repo.Get(ctx, lpoID)
	if err != nil {
		return nil, err
	}
	if lpo.Status != LpoStatusConfirmed {
		return nil, fmt.Errorf("%w: can only receive against CONFIRMED LPOs, got %s", shared.ErrConflict, lpo.Status)
	}

	itemsByID := make(map[int64]SupplierLpoItem, len(lpo.Items))
	for _, it := range lpo.Items {
		itemsByID[it.ID] = it
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		for _, line := range lines {
			item, ok := itemsByID[line.ItemID]
			if !ok {
				return fmt.Errorf("%w: item %d does not belong to LPO %d", shared.ErrValidation, line.ItemID, lpoID)
			}
			if line.Quantity <= 0 {
				return fmt.Errorf("%w: receipt quantity must be positive", shared.ErrValidation)
			}
			if line.Quantity > item.PendingQuantity {
				return fmt.Errorf("%w: receipt of %.2f exceeds pending %.2f on item %d", shared.ErrValidation, line.Quantity, item.PendingQuantity, item.ID)
			}
			item.ReceivedQuantity = currency.Round2(item.ReceivedQuantity + line.Quantity)
			item.PendingQuantity = currency.Round2(item.Quantity - item.ReceivedQuantity)
			itemsByID[line.ItemID] = item
			if err := repo.UpdateItemReceipt(ctx, item.ID, item.ReceivedQuantity, item.PendingQuantity); err != nil {
				return fmt.Errorf("update item receipt: %w", err)
			}
		}

		allReceived := true
		for _, item := range itemsByID {
			if item.PendingQuantity > 0 {
				allReceived = false
				break
			}
		}
		if allReceived {
			if err := repo.UpdateStatus(ctx, lpoID, LpoStatusReceived, nil, nil); err != nil {
				return fmt.Errorf("mark LPO received: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, lpoID, "LPO_RECEIPT", actorID, nil, map[string]any{"lines": len(lines)})
	return s.repo.Get(ctx, lpoID)
}

// GetLineage returns the root LPO followed by its amendments ordered by
// ascending amendment sequence.
func (s *Service) GetLineage(ctx context.Context, lpoID int64) ([]SupplierLpo, error) {
	lpo, err := s.repo.Get(ctx, lpoID)
	if err != nil {
		return nil, err
	}
	rootID := lpo.ID
	if lpo.ParentLpoID != nil {
		rootID = *lpo.ParentLpoID
	}
	rows, err := s.repo.ListLineage(ctx, rootID)
	if err != nil {
		return nil, err
	}
	docflow.SortLineage(rows, func(l SupplierLpo) int { return l.AmendmentSequence })
	return rows, nil
}

// Get returns the LPO with items.
func (s *Service) Get(ctx context.Context, id int64) (*SupplierLpo, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, id int64, action string, actorID int64, oldVal, newVal map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditEvent{
		Entity:   "supplier_lpo",
		EntityID: fmt.Sprintf("%d", id),
		Action:   action,
		ActorID:  actorID,
		OldValue: oldVal,
		NewValue: newVal,
	})
}
