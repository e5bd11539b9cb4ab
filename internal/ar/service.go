package ar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otrixindiacloud/tradeflow/internal/currency"
	"github.com/otrixindiacloud/tradeflow/internal/sales/orders"
	salescalc "github.com/otrixindiacloud/tradeflow/internal/sales/shared"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

// RepositoryPort defines AR persistence used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error
	Get(ctx context.Context, id int64) (*Invoice, error)
	GetByDeliveryID(ctx context.Context, deliveryID int64) (*Invoice, error)
	Create(ctx context.Context, inv Invoice) (int64, error)
	InsertItem(ctx context.Context, item InvoiceItem) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status InvoiceStatus, dueDate *time.Time) error
	UpdatePayment(ctx context.Context, id int64, paidAmount, creditApplied, outstanding float64, status InvoiceStatus) error
	UpdateCurrencyMirrors(ctx context.Context, inv Invoice) error
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Invoice, error)
	GetCreditNote(ctx context.Context, id int64) (*CreditNote, error)
	CreateCreditNote(ctx context.Context, cn CreditNote) (int64, error)
	UpdateCreditNoteApplied(ctx context.Context, id int64, applied float64, at time.Time) error
}

// DeliveryPort loads delivered lines for invoice generation.
type DeliveryPort interface {
	GetDeliveryOrderForInvoicing(ctx context.Context, id int64) (*DeliveryOrderInfo, error)
}

// SalesOrderPort reads sales orders for proforma generation.
type SalesOrderPort interface {
	Get(ctx context.Context, id int64) (*orders.SalesOrder, error)
}

// AuditPort records audit rows; failures never abort the operation.
type AuditPort interface {
	Record(ctx context.Context, ev shared.AuditEvent) error
}

// PaymentInput carries one payment against an invoice. Method and
// Reference are recorded on the audit trail only.
type PaymentInput struct {
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Method    *string `json:"payment_method"`
	Reference *string `json:"reference"`
}

// Service handles AR invoice and credit note flows.
type Service struct {
	repo       RepositoryPort
	deliveries DeliveryPort
	salesOrds  SalesOrderPort
	audit      AuditPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, deliveries DeliveryPort, salesOrds SalesOrderPort, audit AuditPort) *Service {
	return &Service{repo: repo, deliveries: deliveries, salesOrds: salesOrds, audit: audit}
}

// GenerateFromDelivery creates the final invoice for a delivered order.
// Unit prices come from the order lines the delivery resolves back to, and
// quantities are the delivered quantities. One delivery invoices at most
// once.
func (s *Service) GenerateFromDelivery(ctx context.Context, deliveryID int64, dueDate *time.Time, createdBy int64) (*Invoice, error) {
	if existing, err := s.repo.GetByDeliveryID(ctx, deliveryID); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: delivery %d already invoiced as %s", shared.ErrConflict, deliveryID, existing.InvoiceNumber)
	}

	info, err := s.deliveries.GetDeliveryOrderForInvoicing(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if len(info.Lines) == 0 {
		return nil, fmt.Errorf("%w: delivery %d has no delivered lines", shared.ErrValidation, deliveryID)
	}

	rate := info.ExchangeRate
	if rate == 0 {
		rate = 1.0
	}
	base := info.BaseCurrency
	if base == "" {
		base = currency.DefaultBase
	}

	var totals salescalc.DocumentTotals
	items := make([]InvoiceItem, 0, len(info.Lines))
	for i, line := range info.Lines {
		lineTotal := totals.AddLine(line.Quantity, line.UnitPrice, line.DiscountPct, line.TaxPct)
		items = append(items, InvoiceItem{
			ProductID:       line.ProductID,
			Description:     line.ProductName,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: line.DiscountPct,
			TaxPercent:      line.TaxPct,
			LineTotal:       lineTotal,
			UnitPriceBase:   currency.Convert(line.UnitPrice, info.Currency, base, rate),
			LineTotalBase:   currency.Convert(lineTotal, info.Currency, base, rate),
			LineOrder:       i + 1,
		})
	}

	mirror := currency.Amounts{
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.TaxAmount,
		TotalAmount:    totals.TotalAmount,
	}.Mirror(info.Currency, base, rate)

	deliveryRef := info.ID
	salesOrderRef := info.SalesOrderID
	inv := Invoice{
		InvoiceNumber:      shared.GenerateNumber("INV"),
		InvoiceType:        InvoiceTypeFinal,
		Status:             InvoiceStatusDraft,
		CustomerID:         info.CustomerID,
		DeliveryID:         &deliveryRef,
		SalesOrderID:       &salesOrderRef,
		Currency:           info.Currency,
		ExchangeRate:       rate,
		BaseCurrency:       base,
		Subtotal:           totals.Subtotal,
		DiscountAmount:     totals.DiscountAmount,
		TaxAmount:          totals.TaxAmount,
		TotalAmount:        totals.TotalAmount,
		SubtotalBase:       mirror.Subtotal,
		DiscountAmountBase: mirror.DiscountAmount,
		TaxAmountBase:      mirror.TaxAmount,
		TotalAmountBase:    mirror.TotalAmount,
		OutstandingAmount:  totals.TotalAmount,
		DueDate:            dueDate,
	}
	if createdBy > 0 {
		inv.CreatedBy = &createdBy
	}

	var invoiceID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		id, err := repo.Create(ctx, inv)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		invoiceID = id
		for _, item := range items {
			item.InvoiceID = id
			if _, err := repo.InsertItem(ctx, item); err != nil {
				return fmt.Errorf("insert invoice item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, invoiceID, "INVOICE_CREATE", createdBy, nil,
		map[string]any{"number": inv.InvoiceNumber, "delivery_id": deliveryID, "total": inv.TotalAmount})
	return s.repo.Get(ctx, invoiceID)
}

// GenerateProforma creates a zero-total proforma shell against a sales
// order. Amounts get filled in when the final invoice is generated from
// the delivery.
func (s *Service) GenerateProforma(ctx context.Context, salesOrderID int64, createdBy int64) (*Invoice, error) {
	so, err := s.salesOrds.Get(ctx, salesOrderID)
	if err != nil {
		return nil, err
	}

	soRef := so.ID
	inv := Invoice{
		InvoiceNumber: shared.GenerateNumber("PFI"),
		InvoiceType:   InvoiceTypeProforma,
		Status:        InvoiceStatusDraft,
		CustomerID:    so.CustomerID,
		SalesOrderID:  &soRef,
		Currency:      so.Currency,
		ExchangeRate:  1.0,
		BaseCurrency:  currency.DefaultBase,
	}
	if createdBy > 0 {
		inv.CreatedBy = &createdBy
	}

	id, err := s.repo.Create(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("create proforma: %w", err)
	}
	s.recordAudit(ctx, id, "PROFORMA_CREATE", createdBy, nil,
		map[string]any{"number": inv.InvoiceNumber, "sales_order_id": salesOrderID})
	return s.repo.Get(ctx, id)
}

// Send transitions DRAFT to SENT and fixes the due date.
func (s *Service) Send(ctx context.Context, invoiceID int64, dueDate *time.Time, actorID int64) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceStatusDraft {
		return nil, fmt.Errorf("%w: can only send DRAFT invoices, got %s", shared.ErrConflict, inv.Status)
	}
	if dueDate == nil {
		dueDate = inv.DueDate
	}
	if err := s.repo.UpdateStatus(ctx, invoiceID, InvoiceStatusSent, dueDate); err != nil {
		return nil, fmt.Errorf("send invoice: %w", err)
	}
	s.recordAudit(ctx, invoiceID, "INVOICE_SEND", actorID, map[string]any{"status": inv.Status}, map[string]any{"status": InvoiceStatusSent})
	return s.repo.Get(ctx, invoiceID)
}

// MarkPaid accumulates a payment. The invoice flips to PAID only when the
// outstanding amount reaches exactly zero.
func (s *Service) MarkPaid(ctx context.Context, invoiceID int64, in PaymentInput, actorID int64) (*Invoice, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	inv, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceStatusSent && inv.Status != InvoiceStatusOverdue {
		return nil, fmt.Errorf("%w: cannot pay invoice in status %s", shared.ErrConflict, inv.Status)
	}
	if in.Amount > inv.OutstandingAmount {
		return nil, fmt.Errorf("%w: payment %.2f exceeds outstanding %.2f", shared.ErrValidation, in.Amount, inv.OutstandingAmount)
	}

	paid := currency.Round2(inv.PaidAmount + in.Amount)
	outstanding := currency.Round2(inv.TotalAmount - paid - inv.CreditApplied)
	status := inv.Status
	if outstanding == 0 {
		status = InvoiceStatusPaid
	}
	if err := s.repo.UpdatePayment(ctx, invoiceID, paid, inv.CreditApplied, outstanding, status); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	newValue := map[string]any{"paid_amount": paid, "outstanding": outstanding, "status": status}
	if in.Method != nil {
		newValue["payment_method"] = *in.Method
	}
	if in.Reference != nil {
		newValue["payment_reference"] = *in.Reference
	}
	s.recordAudit(ctx, invoiceID, "INVOICE_PAYMENT", actorID,
		map[string]any{"paid_amount": inv.PaidAmount, "outstanding": inv.OutstandingAmount},
		newValue)
	return s.repo.Get(ctx, invoiceID)
}

// UpdateCurrency changes the invoice currency and exchange rate, and
// recomputes every base-currency mirror on the header and items in one
// transaction.
func (s *Service) UpdateCurrency(ctx context.Context, invoiceID int64, code string, rate float64, actorID int64) (*Invoice, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := currency.ValidateCode(code); err != nil {
		return nil, err
	}
	if rate < 0 {
		return nil, fmt.Errorf("%w: exchange rate cannot be negative", shared.ErrValidation)
	}
	inv, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoiceStatusPaid || inv.Status == InvoiceStatusCancelled {
		return nil, fmt.Errorf("%w: cannot change currency of a %s invoice", shared.ErrConflict, inv.Status)
	}
	if rate == 0 {
		rate = 1.0
	}

	updated := *inv
	updated.Currency = code
	updated.ExchangeRate = rate
	mirror := currency.Amounts{
		Subtotal:       updated.Subtotal,
		DiscountAmount: updated.DiscountAmount,
		TaxAmount:      updated.TaxAmount,
		TotalAmount:    updated.TotalAmount,
	}.Mirror(code, updated.BaseCurrency, rate)
	updated.SubtotalBase = mirror.Subtotal
	updated.DiscountAmountBase = mirror.DiscountAmount
	updated.TaxAmountBase = mirror.TaxAmount
	updated.TotalAmountBase = mirror.TotalAmount
	for i := range updated.Items {
		updated.Items[i].UnitPriceBase = currency.Convert(updated.Items[i].UnitPrice, code, updated.BaseCurrency, rate)
		updated.Items[i].LineTotalBase = currency.Convert(updated.Items[i].LineTotal, code, updated.BaseCurrency, rate)
	}

	if err := s.repo.UpdateCurrencyMirrors(ctx, updated); err != nil {
		return nil, fmt.Errorf("update invoice currency: %w", err)
	}
	s.recordAudit(ctx, invoiceID, "INVOICE_CURRENCY", actorID,
		map[string]any{"currency": inv.Currency, "exchange_rate": inv.ExchangeRate},
		map[string]any{"currency": code, "exchange_rate": rate})
	return s.repo.Get(ctx, invoiceID)
}

// Cancel aborts any invoice that has not been paid. Terminal.
func (s *Service) Cancel(ctx context.Context, invoiceID int64, actorID int64) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoiceStatusPaid || inv.Status == InvoiceStatusCancelled {
		return nil, fmt.Errorf("%w: cannot cancel invoice in status %s", shared.ErrConflict, inv.Status)
	}
	if err := s.repo.UpdateStatus(ctx, invoiceID, InvoiceStatusCancelled, inv.DueDate); err != nil {
		return nil, fmt.Errorf("cancel invoice: %w", err)
	}
	s.recordAudit(ctx, invoiceID, "INVOICE_CANCEL", actorID, map[string]any{"status": inv.Status}, map[string]any{"status": InvoiceStatusCancelled})
	return s.repo.Get(ctx, invoiceID)
}

// MarkOverdue flips SENT invoices past their due date to OVERDUE and
// returns how many were flipped. Driven by the periodic sweep task.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	candidates, err := s.repo.ListOverdueCandidates(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("list overdue candidates: %w", err)
	}
	flipped := 0
	for _, inv := range candidates {
		if inv.Status != InvoiceStatusSent || inv.DueDate == nil || !inv.DueDate.Before(asOf) {
			continue
		}
		if err := s.repo.UpdateStatus(ctx, inv.ID, InvoiceStatusOverdue, inv.DueDate); err != nil {
			return flipped, fmt.Errorf("mark invoice %d overdue: %w", inv.ID, err)
		}
		s.recordAudit(ctx, inv.ID, "INVOICE_OVERDUE", 0, map[string]any{"status": inv.Status}, map[string]any{"status": InvoiceStatusOverdue})
		flipped++
	}
	return flipped, nil
}

// CreateCreditNote raises a draft credit note against an invoice.
func (s *Service) CreateCreditNote(ctx context.Context, invoiceID int64, amount float64, reason string, createdBy int64) (*CreditNote, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit note amount must be positive", shared.ErrValidation)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: credit note reason is required", shared.ErrValidation)
	}
	inv, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoiceStatusCancelled {
		return nil, fmt.Errorf("%w: cannot credit a cancelled invoice", shared.ErrConflict)
	}
	if amount > inv.TotalAmount {
		return nil, fmt.Errorf("%w: credit %.2f exceeds invoice total %.2f", shared.ErrValidation, amount, inv.TotalAmount)
	}

	cn := CreditNote{
		CreditNoteNumber: shared.GenerateNumber("CN"),
		InvoiceID:        invoiceID,
		Status:           CreditNoteStatusDraft,
		Amount:           currency.Round2(amount),
		Reason:           reason,
	}
	if createdBy > 0 {
		cn.CreatedBy = &createdBy
	}
	id, err := s.repo.CreateCreditNote(ctx, cn)
	if err != nil {
		return nil, fmt.Errorf("create credit note: %w", err)
	}
	s.recordAudit(ctx, invoiceID, "CREDIT_NOTE_CREATE", createdBy, nil,
		map[string]any{"credit_note": cn.CreditNoteNumber, "amount": cn.Amount})
	return s.repo.GetCreditNote(ctx, id)
}

// ApplyCreditNote applies a draft credit note to its invoice. The applied
// amount is capped at the invoice's outstanding amount; both rows update
// in one transaction.
func (s *Service) ApplyCreditNote(ctx context.Context, creditNoteID int64, actorID int64) (*CreditNote, error) {
	cn, err := s.repo.GetCreditNote(ctx, creditNoteID)
	if err != nil {
		return nil, err
	}
	if cn.Status != CreditNoteStatusDraft {
		return nil, fmt.Errorf("%w: credit note is %s, expected DRAFT", shared.ErrConflict, cn.Status)
	}
	inv, err := s.repo.Get(ctx, cn.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoiceStatusPaid || inv.Status == InvoiceStatusCancelled {
		return nil, fmt.Errorf("%w: cannot apply credit to a %s invoice", shared.ErrConflict, inv.Status)
	}

	applied := cn.Amount
	if applied > inv.OutstandingAmount {
		applied = inv.OutstandingAmount
	}
	applied = currency.Round2(applied)
	creditTotal := currency.Round2(inv.CreditApplied + applied)
	outstanding := currency.Round2(inv.TotalAmount - inv.PaidAmount - creditTotal)
	status := inv.Status
	if outstanding == 0 {
		status = InvoiceStatusPaid
	}

	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		if err := repo.UpdateCreditNoteApplied(ctx, creditNoteID, applied, now); err != nil {
			return fmt.Errorf("apply credit note: %w", err)
		}
		if err := repo.UpdatePayment(ctx, inv.ID, inv.PaidAmount, creditTotal, outstanding, status); err != nil {
			return fmt.Errorf("update invoice receivable: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, inv.ID, "CREDIT_NOTE_APPLY", actorID,
		map[string]any{"outstanding": inv.OutstandingAmount},
		map[string]any{"outstanding": outstanding, "applied": applied, "credit_note": cn.CreditNoteNumber})
	return s.repo.GetCreditNote(ctx, creditNoteID)
}

// Get returns the invoice with items.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, id int64, action string, actorID int64, oldVal, newVal map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditEvent{
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", id),
		Action:   action,
		ActorID:  actorID,
		OldValue: oldVal,
		NewValue: newVal,
	})
}
