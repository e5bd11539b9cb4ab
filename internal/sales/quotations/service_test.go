package quotations

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]Quotation
	items  map[int64][]QuotationItem
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]Quotation), items: make(map[int64][]QuotationItem)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (*Quotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	q.Items = append([]QuotationItem(nil), r.items[id]...)
	return &q, nil
}

func (r *memoryRepo) Create(ctx context.Context, q Quotation) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	q.ID = r.nextID
	r.rows[q.ID] = q
	return q.ID, nil
}

func (r *memoryRepo) InsertItem(ctx context.Context, item QuotationItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	item.ID = r.nextID
	r.items[item.QuotationID] = append(r.items[item.QuotationID], item)
	return item.ID, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int64, status QuotationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.rows[id]
	q.Status = status
	r.rows[id] = q
	return nil
}

func (r *memoryRepo) UpdateApproval(ctx context.Context, id int64, approval ApprovalStatus, status QuotationStatus, actorID int64, reason *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.rows[id]
	q.ApprovalStatus = approval
	q.Status = status
	if approval == ApprovalApproved {
		q.ApprovedBy = &actorID
		q.ApprovedAt = &at
	}
	q.RejectionReason = reason
	r.rows[id] = q
	return nil
}

func (r *memoryRepo) MarkSuperseded(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.rows[id]
	q.IsSuperseded = true
	r.rows[id] = q
	return nil
}

type allowAllCustomers struct{}

func (allowAllCustomers) Exists(ctx context.Context, id int64) error { return nil }

type capturedAudit struct {
	mu     sync.Mutex
	events []shared.AuditEvent
}

func (a *capturedAudit) Record(ctx context.Context, ev shared.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return nil
}

func newTestService() (*Service, *memoryRepo, *capturedAudit) {
	repo := newMemoryRepo()
	audit := &capturedAudit{}
	return NewService(repo, allowAllCustomers{}, audit), repo, audit
}

func TestCreateRecomputesTotals(t *testing.T) {
	svc, _, _ := newTestService()

	q, err := svc.Create(context.Background(), CreateQuotationRequest{
		CustomerID: 7,
		Currency:   "BHD",
		Items: []CreateQuotationItemReq{
			{Description: "Cable drum", Quantity: 4, UnitPrice: 20, TaxPercent: 10},
			{Description: "Junction box", Quantity: 2, UnitPrice: 10},
		},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusDraft, q.Status)
	require.Equal(t, 100.0, q.Subtotal)
	require.Equal(t, 8.0, q.TaxAmount)
	require.Equal(t, 108.0, q.TotalAmount)
	require.Len(t, q.Items, 2)

	var sum float64
	for _, it := range q.Items {
		sum += it.LineTotal
	}
	require.InDelta(t, q.TotalAmount, sum, 0.01)
}

func TestCreateRejectsUnknownCurrency(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Create(context.Background(), CreateQuotationRequest{
		CustomerID: 7,
		Currency:   "ZZZ",
		Items:      []CreateQuotationItemReq{{Description: "x", Quantity: 1, UnitPrice: 1}},
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReviseSupersedesAndAttachesToRoot(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, CreateQuotationRequest{
		CustomerID: 7, Currency: "BHD",
		Items: []CreateQuotationItemReq{{Description: "x", Quantity: 1, UnitPrice: 100}},
	}, 1)
	require.NoError(t, err)

	rev2, err := svc.Revise(ctx, q.ID, ReviseQuotationRequest{
		Items: []CreateQuotationItemReq{{Description: "x", Quantity: 1, UnitPrice: 90}},
	}, 2)
	require.NoError(t, err)
	require.Equal(t, 2, rev2.Revision)
	require.Equal(t, q.ID, *rev2.ParentQuotationID)
	require.Equal(t, 90.0, rev2.TotalAmount)

	orig, err := repo.Get(ctx, q.ID)
	require.NoError(t, err)
	require.True(t, orig.IsSuperseded)

	// Revising the revision still attaches to the original root.
	rev3, err := svc.Revise(ctx, rev2.ID, ReviseQuotationRequest{
		Items: []CreateQuotationItemReq{{Description: "x", Quantity: 1, UnitPrice: 80}},
	}, 2)
	require.NoError(t, err)
	require.Equal(t, q.ID, *rev3.ParentQuotationID)
	require.Equal(t, 3, rev3.Revision)

	// A superseded row cannot be revised again.
	_, err = svc.Revise(ctx, q.ID, ReviseQuotationRequest{
		Items: []CreateQuotationItemReq{{Description: "x", Quantity: 1, UnitPrice: 1}},
	}, 2)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestApprovalForcesAcceptedAndStamps(t *testing.T) {
	svc, _, audit := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, CreateQuotationRequest{
		CustomerID: 7, Currency: "BHD",
		Items: []CreateQuotationItemReq{{Description: "x", Quantity: 1, UnitPrice: 100}},
	}, 1)
	require.NoError(t, err)

	_, err = svc.Send(ctx, q.ID, 1)
	require.NoError(t, err)

	accepted, err := svc.DecideApproval(ctx, q.ID, DecideApprovalRequest{Decision: ApprovalApproved}, 42)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusAccepted, accepted.Status)
	require.Equal(t, ApprovalApproved, accepted.ApprovalStatus)
	require.NotNil(t, accepted.ApprovedBy)
	require.Equal(t, int64(42), *accepted.ApprovedBy)
	require.NotNil(t, accepted.ApprovedAt)

	// The decision is terminal.
	_, err = svc.DecideApproval(ctx, q.ID, DecideApprovalRequest{Decision: ApprovalRejected, RejectionReason: "late"}, 42)
	require.ErrorIs(t, err, shared.ErrConflict)

	var found bool
	for _, ev := range audit.events {
		if ev.Action == "QUOTATION_APPROVAL" {
			found = true
		}
	}
	require.True(t, found)
}

func TestRejectionRequiresReason(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, CreateQuotationRequest{
		CustomerID: 7, Currency: "BHD",
		Items: []CreateQuotationItemReq{{Description: "x", Quantity: 1, UnitPrice: 100}},
	}, 1)
	require.NoError(t, err)

	_, err = svc.DecideApproval(ctx, q.ID, DecideApprovalRequest{Decision: ApprovalRejected}, 5)
	require.ErrorIs(t, err, shared.ErrValidation)

	rejected, err := svc.DecideApproval(ctx, q.ID, DecideApprovalRequest{Decision: ApprovalRejected, RejectionReason: "price too high"}, 5)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
}

func TestExpireOnlyFromSent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, CreateQuotationRequest{
		CustomerID: 7, Currency: "BHD",
		Items: []CreateQuotationItemReq{{Description: "x", Quantity: 1, UnitPrice: 100}},
	}, 1)
	require.NoError(t, err)

	_, err = svc.Expire(ctx, q.ID, 1)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.Send(ctx, q.ID, 1)
	require.NoError(t, err)
	expired, err := svc.Expire(ctx, q.ID, 1)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusExpired, expired.Status)
}
