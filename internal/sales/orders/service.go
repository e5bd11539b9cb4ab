package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otrixindiacloud/tradeflow/internal/docflow"
	"github.com/otrixindiacloud/tradeflow/internal/sales/quotations"
	salesshared "github.com/otrixindiacloud/tradeflow/internal/sales/shared"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

// Repository describes sales order persistence used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	// WithAmendmentLock resolves the lineage root of baseID, locks the root
	// and every sibling amendment row for update, and runs fn while the
	// lock is held. Inserting the new amendment inside fn guarantees no
	// two concurrent callers observe the same sibling set.
	WithAmendmentLock(ctx context.Context, baseID int64, fn func(ctx context.Context, repo Repository, root *SalesOrder, siblings []docflow.Sibling) error) error
	Get(ctx context.Context, id int64) (*SalesOrder, error)
	GetByQuotationID(ctx context.Context, quotationID int64) (*SalesOrder, error)
	Create(ctx context.Context, o SalesOrder) (int64, error)
	InsertItem(ctx context.Context, item SalesOrderItem) (int64, error)
	ListLineage(ctx context.Context, rootID int64) ([]SalesOrder, error)
	UpdateLpoValidation(ctx context.Context, id int64, status LpoValidationStatus, validatedBy int64, notes *string, at time.Time) error
	GenerateNumber(ctx context.Context, year int) (string, error)
}

// ProductPort verifies product references for projected items.
type ProductPort interface {
	Exists(ctx context.Context, id int64) error
}

// QuotationPort reads source quotations for derivation.
type QuotationPort interface {
	Get(ctx context.Context, id int64) (*quotations.Quotation, error)
}

// AuditPort records audit rows; failures never abort the operation.
type AuditPort interface {
	Record(ctx context.Context, ev shared.AuditEvent) error
}

// Service orchestrates the sales order lifecycle and its amendments.
type Service struct {
	repo     Repository
	quotes   QuotationPort
	products ProductPort
	audit    AuditPort
}

// NewService constructs sales order service.
func NewService(repo Repository, quotes QuotationPort, products ProductPort, audit AuditPort) *Service {
	return &Service{repo: repo, quotes: quotes, products: products, audit: audit}
}

// CreateFromQuotation derives a new DRAFT sales order from an accepted
// quotation, projecting its items and recomputing totals. A quotation can
// spawn at most one order.
func (s *Service) CreateFromQuotation(ctx context.Context, quotationID int64, createdBy int64) (*SalesOrder, error) {
	q, err := s.quotes.Get(ctx, quotationID)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if q.Status != quotations.QuotationStatusAccepted {
		return nil, fmt.Errorf("%w: quotation must be ACCEPTED, got %s", shared.ErrConflict, q.Status)
	}
	if existing, err := s.repo.GetByQuotationID(ctx, quotationID); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: quotation %s already converted to order %s", shared.ErrConflict, q.QuoteNumber, existing.OrderNumber)
	}
	if len(q.Items) == 0 {
		return nil, fmt.Errorf("%w: quotation has no items", shared.ErrValidation)
	}

	var totals salesshared.DocumentTotals
	items := make([]SalesOrderItem, 0, len(q.Items))
	for i, qi := range q.Items {
		// Order items require a concrete product reference; a quotation
		// line without one is a data-entry error, not something to patch
		// over with a placeholder row.
		if qi.ProductID == nil {
			return nil, fmt.Errorf("%w: quotation item %d has no product reference", shared.ErrValidation, qi.ID)
		}
		if s.products != nil {
			if err := s.products.Exists(ctx, *qi.ProductID); err != nil {
				return nil, fmt.Errorf("%w: quotation item %d references unknown product %d", shared.ErrValidation, qi.ID, *qi.ProductID)
			}
		}
		total := totals.AddLine(qi.Quantity, qi.UnitPrice, qi.DiscountPercent, qi.TaxPercent)
		items = append(items, SalesOrderItem{
			ProductID:       *qi.ProductID,
			Description:     qi.Description,
			Quantity:        qi.Quantity,
			UnitPrice:       qi.UnitPrice,
			DiscountPercent: qi.DiscountPercent,
			TaxPercent:      qi.TaxPercent,
			TotalPrice:      total,
			LineOrder:       i + 1,
		})
	}

	number, err := s.repo.GenerateNumber(ctx, time.Now().Year())
	if err != nil {
		return nil, fmt.Errorf("generate order number: %w", err)
	}

	order := SalesOrder{
		OrderNumber:    number,
		Version:        1,
		QuotationID:    &quotationID,
		CustomerID:     q.CustomerID,
		Status:         SalesOrderStatusDraft,
		LpoValidation:  LpoValidationPending,
		Currency:       q.Currency,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.TaxAmount,
		TotalAmount:    totals.TotalAmount,
		CreatedBy:      createdBy,
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		orderID = id
		for _, item := range items {
			item.SalesOrderID = id
			if _, err := repo.InsertItem(ctx, item); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, orderID, "SALES_ORDER_CREATE", createdBy, nil,
		map[string]any{"number": order.OrderNumber, "quotation_id": quotationID, "total": order.TotalAmount})
	return s.repo.Get(ctx, orderID)
}

// CreateAmendment creates a new amendment row for the lineage of
// parentOrderID. Sequence allocation and the insert share one locking
// transaction, so concurrent amendments of the same root never collide.
func (s *Service) CreateAmendment(ctx context.Context, parentOrderID int64, reason string, createdBy int64) (*SalesOrder, error) {
	if len(strings.TrimSpace(reason)) < 5 {
		return nil, fmt.Errorf("%w: amendment reason must be at least 5 characters", shared.ErrValidation)
	}

	var amendmentID int64
	err := s.repo.WithAmendmentLock(ctx, parentOrderID, func(ctx context.Context, repo Repository, root *SalesOrder, siblings []docflow.Sibling) error {
		seq := docflow.NextSequence(siblings)
		amendment := *root
		amendment.ID = 0
		amendment.OrderNumber = docflow.AmendedNumber(root.OrderNumber, seq)
		amendment.Version = seq + 1
		amendment.ParentOrderID = &root.ID
		amendment.AmendmentSequence = seq
		amendment.AmendmentReason = &reason
		amendment.Status = SalesOrderStatusDraft
		amendment.CreatedBy = createdBy
		amendment.Items = nil

		id, err := repo.Create(ctx, amendment)
		if err != nil {
			return fmt.Errorf("create amendment: %w", err)
		}
		amendmentID = id
		for _, item := range root.Items {
			item.ID = 0
			item.SalesOrderID = id
			if _, err := repo.InsertItem(ctx, item); err != nil {
				return fmt.Errorf("insert amendment item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, amendmentID, "SALES_ORDER_AMEND", createdBy,
		map[string]any{"parent_order_id": parentOrderID}, map[string]any{"reason": reason})
	return s.repo.Get(ctx, amendmentID)
}

// ValidateCustomerLpo records the customer purchase order validation
// outcome. Downgrading an APPROVED validation requires the override flag.
func (s *Service) ValidateCustomerLpo(ctx context.Context, orderID int64, req ValidateCustomerLpoRequest) (*SalesOrder, error) {
	existing, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if existing.LpoValidation == LpoValidationApproved && req.Status != LpoValidationApproved && !req.Override {
		return nil, fmt.Errorf("%w: customer LPO validation is already APPROVED; pass override to change it", shared.ErrConflict)
	}

	if err := s.repo.UpdateLpoValidation(ctx, orderID, req.Status, req.ValidatedBy, req.Notes, time.Now()); err != nil {
		return nil, fmt.Errorf("update LPO validation: %w", err)
	}

	s.recordAudit(ctx, orderID, "CUSTOMER_LPO_VALIDATE", req.ValidatedBy,
		map[string]any{"status": existing.LpoValidation},
		map[string]any{"status": req.Status, "override": req.Override})
	return s.repo.Get(ctx, orderID)
}

// GetLineage returns the root order followed by its amendments ordered by
// ascending amendment sequence.
func (s *Service) GetLineage(ctx context.Context, orderID int64) ([]SalesOrder, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	rootID := o.ID
	if o.ParentOrderID != nil {
		rootID = *o.ParentOrderID
	}
	rows, err := s.repo.ListLineage(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("list lineage: %w", err)
	}
	docflow.SortLineage(rows, func(o SalesOrder) int { return o.AmendmentSequence })
	return rows, nil
}

// Get returns the order with items.
func (s *Service) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, id int64, action string, actorID int64, oldVal, newVal map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditEvent{
		Entity:   "sales_order",
		EntityID: fmt.Sprintf("%d", id),
		Action:   action,
		ActorID:  actorID,
		OldValue: oldVal,
		NewValue: newVal,
	})
}
