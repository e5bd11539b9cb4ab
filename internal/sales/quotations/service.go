package quotations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otrixindiacloud/tradeflow/internal/currency"
	"github.com/otrixindiacloud/tradeflow/internal/docflow"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
	salesshared "github.com/otrixindiacloud/tradeflow/internal/sales/shared"
)

// Repository describes quotation persistence used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Quotation, error)
	Create(ctx context.Context, q Quotation) (int64, error)
	InsertItem(ctx context.Context, item QuotationItem) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status QuotationStatus) error
	UpdateApproval(ctx context.Context, id int64, approval ApprovalStatus, status QuotationStatus, actorID int64, reason *string, at time.Time) error
	MarkSuperseded(ctx context.Context, id int64) error
}

// CustomerPort verifies customer references.
type CustomerPort interface {
	Exists(ctx context.Context, id int64) error
}

// AuditPort records immutable audit rows; failures are logged, never
// propagated.
type AuditPort interface {
	Record(ctx context.Context, ev shared.AuditEvent) error
}

// Service orchestrates the quotation lifecycle.
type Service struct {
	repo      Repository
	customers CustomerPort
	audit     AuditPort
}

// NewService constructs quotation service.
func NewService(repo Repository, customers CustomerPort, audit AuditPort) *Service {
	return &Service{repo: repo, customers: customers, audit: audit}
}

// Create persists a new DRAFT quotation with recomputed totals.
func (s *Service) Create(ctx context.Context, req CreateQuotationRequest, createdBy int64) (*Quotation, error) {
	if err := currency.ValidateCode(req.Currency); err != nil {
		return nil, err
	}
	if s.customers != nil {
		if err := s.customers.Exists(ctx, req.CustomerID); err != nil {
			return nil, fmt.Errorf("verify customer: %w", err)
		}
	}

	q := Quotation{
		QuoteNumber:    shared.GenerateNumber("QT"),
		Revision:       1,
		CustomerID:     req.CustomerID,
		Status:         QuotationStatusDraft,
		ApprovalStatus: ApprovalPending,
		Currency:       req.Currency,
		ValidUntil:     req.ValidUntil,
		Notes:          req.Notes,
		CreatedBy:      createdBy,
	}

	created, err := s.insertWithItems(ctx, q, req.Items)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, created.ID, "QUOTATION_CREATE", createdBy, nil, map[string]any{"number": created.QuoteNumber})
	return created, nil
}

// Revise supersedes a quotation with a new revision row. The old row keeps
// its status; the revision starts over as DRAFT attached to the root.
func (s *Service) Revise(ctx context.Context, id int64, req ReviseQuotationRequest, revisedBy int64) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if existing.IsSuperseded {
		return nil, fmt.Errorf("%w: quotation %s is already superseded", shared.ErrConflict, existing.QuoteNumber)
	}

	rootID := existing.ID
	if existing.ParentQuotationID != nil {
		rootID = *existing.ParentQuotationID
	}

	revision := Quotation{
		QuoteNumber:       fmt.Sprintf("%s-R%d", baseQuoteNumber(existing.QuoteNumber), existing.Revision+1),
		Revision:          existing.Revision + 1,
		ParentQuotationID: &rootID,
		CustomerID:        existing.CustomerID,
		Status:            QuotationStatusDraft,
		ApprovalStatus:    ApprovalPending,
		Currency:          existing.Currency,
		ValidUntil:        req.ValidUntil,
		Notes:             req.Notes,
		CreatedBy:         revisedBy,
	}

	var created *Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.MarkSuperseded(ctx, existing.ID); err != nil {
			return fmt.Errorf("supersede quotation: %w", err)
		}
		c, err := insertWithItems(ctx, repo, revision, req.Items)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	created, err = s.repo.Get(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, created.ID, "QUOTATION_REVISE", revisedBy,
		map[string]any{"superseded": existing.ID}, map[string]any{"number": created.QuoteNumber, "revision": created.Revision})
	return created, nil
}

// Send transitions a DRAFT quotation to SENT.
func (s *Service) Send(ctx context.Context, id int64, userID int64) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if existing.Status != QuotationStatusDraft {
		return nil, fmt.Errorf("%w: can only send DRAFT quotations, got %s", shared.ErrConflict, existing.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, QuotationStatusSent); err != nil {
		return nil, fmt.Errorf("send quotation: %w", err)
	}
	s.recordAudit(ctx, id, "QUOTATION_SEND", userID, map[string]any{"status": existing.Status}, map[string]any{"status": QuotationStatusSent})
	return s.repo.Get(ctx, id)
}

// DecideApproval applies the customer-acceptance decision. APPROVED forces
// status ACCEPTED and stamps the approver; REJECTED forces status REJECTED
// and requires a rejection reason.
func (s *Service) DecideApproval(ctx context.Context, id int64, req DecideApprovalRequest, actorID int64) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if existing.Status.Terminal() {
		return nil, fmt.Errorf("%w: quotation is %s", shared.ErrConflict, existing.Status)
	}

	var status QuotationStatus
	var reason *string
	switch req.Decision {
	case ApprovalApproved:
		status = QuotationStatusAccepted
	case ApprovalRejected:
		if strings.TrimSpace(req.RejectionReason) == "" {
			return nil, fmt.Errorf("%w: rejection reason is required", shared.ErrValidation)
		}
		status = QuotationStatusRejected
		reason = &req.RejectionReason
	default:
		return nil, fmt.Errorf("%w: decision must be APPROVED or REJECTED", shared.ErrValidation)
	}

	if err := s.repo.UpdateApproval(ctx, id, req.Decision, status, actorID, reason, time.Now()); err != nil {
		return nil, fmt.Errorf("decide approval: %w", err)
	}

	meta := map[string]any{"decision": req.Decision}
	if req.Comments != nil {
		meta["comments"] = *req.Comments
	}
	if reason != nil {
		meta["rejection_reason"] = *reason
	}
	s.recordAudit(ctx, id, "QUOTATION_APPROVAL", actorID,
		map[string]any{"status": existing.Status, "approval_status": existing.ApprovalStatus}, meta)
	return s.repo.Get(ctx, id)
}

// Expire transitions a SENT quotation past its validity to EXPIRED.
func (s *Service) Expire(ctx context.Context, id int64, userID int64) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if existing.Status != QuotationStatusSent {
		return nil, fmt.Errorf("%w: can only expire SENT quotations, got %s", shared.ErrConflict, existing.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, QuotationStatusExpired); err != nil {
		return nil, fmt.Errorf("expire quotation: %w", err)
	}
	s.recordAudit(ctx, id, "QUOTATION_EXPIRE", userID, map[string]any{"status": existing.Status}, map[string]any{"status": QuotationStatusExpired})
	return s.repo.Get(ctx, id)
}

// Get returns the quotation with items.
func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) insertWithItems(ctx context.Context, q Quotation, items []CreateQuotationItemReq) (*Quotation, error) {
	var created *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		c, err := insertWithItems(ctx, repo, q, items)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, created.ID)
}

func insertWithItems(ctx context.Context, repo Repository, q Quotation, items []CreateQuotationItemReq) (*Quotation, error) {
	var totals salesshared.DocumentTotals
	lines := make([]QuotationItem, 0, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item quantity must be positive", shared.ErrValidation)
		}
		lineTotal := totals.AddLine(item.Quantity, item.UnitPrice, item.DiscountPercent, item.TaxPercent)
		line := QuotationItem{
			ProductID:       item.ProductID,
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			TaxPercent:      item.TaxPercent,
			LineTotal:       lineTotal,
			LineOrder:       item.LineOrder,
		}
		if line.LineOrder == 0 {
			line.LineOrder = i + 1
		}
		lines = append(lines, line)
	}

	q.Subtotal = totals.Subtotal
	q.DiscountAmount = totals.DiscountAmount
	q.TaxAmount = totals.TaxAmount
	q.TotalAmount = totals.TotalAmount

	id, err := repo.Create(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("create quotation: %w", err)
	}
	for _, line := range lines {
		line.QuotationID = id
		if _, err := repo.InsertItem(ctx, line); err != nil {
			return nil, fmt.Errorf("insert quotation item: %w", err)
		}
	}
	q.ID = id
	q.Items = lines
	return &q, nil
}

func (s *Service) recordAudit(ctx context.Context, id int64, action string, actorID int64, oldVal, newVal map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditEvent{
		Entity:   "quotation",
		EntityID: fmt.Sprintf("%d", id),
		Action:   action,
		ActorID:  actorID,
		OldValue: oldVal,
		NewValue: newVal,
	})
}

func baseQuoteNumber(number string) string {
	base := docflow.BaseNumber(number)
	if i := strings.LastIndex(base, "-R"); i > 0 {
		if _, err := fmt.Sscanf(base[i:], "-R%d", new(int)); err == nil {
			return base[:i]
		}
	}
	return base
}
