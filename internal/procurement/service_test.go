package procurement

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/otrixindiacloud/tradeflow/internal/docflow"
	"github.com/otrixindiacloud/tradeflow/internal/sales/orders"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	amendMu sync.Mutex
	rows    map[int64]SupplierLpo
	items   map[int64][]SupplierLpoItem
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]SupplierLpo), items: make(map[int64][]SupplierLpoItem)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) WithAmendmentLock(ctx context.Context, baseID int64, fn func(context.Context, RepositoryPort, *SupplierLpo, []docflow.Sibling) error) error {
	r.amendMu.Lock()
	defer r.amendMu.Unlock()

	base, err := r.Get(ctx, baseID)
	if err != nil {
		return err
	}
	rootID := base.ID
	if base.ParentLpoID != nil {
		rootID = *base.ParentLpoID
	}
	root, err := r.Get(ctx, rootID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	var siblings []docflow.Sibling
	for _, l := range r.rows {
		if l.ParentLpoID != nil && *l.ParentLpoID == rootID {
			siblings = append(siblings, docflow.Sibling{ID: l.ID, Sequence: l.AmendmentSequence, Number: l.LpoNumber})
		}
	}
	r.mu.Unlock()

	return fn(ctx, r, root, siblings)
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (*SupplierLpo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: supplier LPO %d", shared.ErrNotFound, id)
	}
	l.Items = append([]SupplierLpoItem(nil), r.items[id]...)
	return &l, nil
}

func (r *memoryRepo) Create(ctx context.Context, l SupplierLpo) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.LpoNumber == l.LpoNumber {
			return 0, fmt.Errorf("duplicate LPO number %s", l.LpoNumber)
		}
	}
	r.nextID++
	l.ID = r.nextID
	r.rows[l.ID] = l
	return l.ID, nil
}

func (r *memoryRepo) InsertItem(ctx context.Context, item SupplierLpoItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	item.ID = r.nextID
	r.items[item.SupplierLpoID] = append(r.items[item.SupplierLpoID], item)
	return item.ID, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int64, status LpoStatus, stamp *time.Time, confirmationRef *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("%w: supplier LPO %d", shared.ErrNotFound, id)
	}
	l.Status = status
	switch status {
	case LpoStatusSent:
		l.SentToSupplierAt = stamp
	case LpoStatusConfirmed:
		l.ConfirmedBySupplierAt = stamp
	}
	if confirmationRef != nil {
		l.ConfirmationReference = confirmationRef
	}
	r.rows[id] = l
	return nil
}

func (r *memoryRepo) UpdateApproval(ctx context.Context, id int64, approval LpoApprovalStatus, actorID int64, reason *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("%w: supplier LPO %d", shared.ErrNotFound, id)
	}
	l.ApprovalStatus = approval
	switch approval {
	case LpoApprovalApproved:
		l.ApprovedBy = &actorID
		l.ApprovedAt = &at
	case LpoApprovalRejected:
		l.RejectionReason = reason
	}
	r.rows[id] = l
	return nil
}

func (r *memoryRepo) UpdateItemReceipt(ctx context.Context, itemID int64, receivedQuantity, pendingQuantity float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for lpoID, items := range r.items {
		for i := range items {
			if items[i].ID == itemID {
				items[i].ReceivedQuantity = receivedQuantity
				items[i].PendingQuantity = pendingQuantity
				r.items[lpoID] = items
				return nil
			}
		}
	}
	return fmt.Errorf("%w: supplier LPO item %d", shared.ErrNotFound, itemID)
}

func (r *memoryRepo) ListLineage(ctx context.Context, rootID int64) ([]SupplierLpo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lineage []SupplierLpo
	for _, l := range r.rows {
		if l.ID == rootID || (l.ParentLpoID != nil && *l.ParentLpoID == rootID) {
			lineage = append(lineage, l)
		}
	}
	if len(lineage) == 0 {
		return nil, fmt.Errorf("%w: supplier LPO %d", shared.ErrNotFound, rootID)
	}
	return lineage, nil
}

type orderStore struct {
	orders map[int64]*orders.SalesOrder
}

func (s *orderStore) Get(ctx context.Context, id int64) (*orders.SalesOrder, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: sales order %d", shared.ErrNotFound, id)
	}
	return o, nil
}

type allowAllSuppliers struct{}

func (allowAllSuppliers) Exists(ctx context.Context, id int64) error { return nil }

func supplierID(id int64) *int64 { return &id }

func confirmedOrder(id int64) *orders.SalesOrder {
	return &orders.SalesOrder{
		ID:          id,
		OrderNumber: fmt.Sprintf("SO-2026-%04d", id),
		CustomerID:  7,
		Status:      orders.SalesOrderStatusConfirmed,
		Currency:    "BHD",
		SupplierID:  supplierID(31),
		Items: []orders.SalesOrderItem{
			{ID: 100 + id, SalesOrderID: id, ProductID: 11, Description: "Cable drum", Quantity: 4, UnitPrice: 20, TaxPercent: 10},
			{ID: 200 + id, SalesOrderID: id, ProductID: 12, Description: "Junction box", Quantity: 2, UnitPrice: 10},
		},
	}
}

func newTestService(soMap map[int64]*orders.SalesOrder, threshold float64) (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, &orderStore{orders: soMap}, allowAllSuppliers{}, nil, threshold)
	return svc, repo
}

func TestCreateFromSalesOrders(t *testing.T) {
	svc, _ := newTestService(map[int64]*orders.SalesOrder{1: confirmedOrder(1)}, 1000)
	ctx := context.Background()

	lpos, err := svc.CreateFromSalesOrders(ctx, CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1}}, 9)
	require.NoError(t, err)
	require.Len(t, lpos, 1)

	lpo := lpos[0]
	require.Equal(t, LpoStatusDraft, lpo.Status)
	require.Equal(t, LpoSourceAuto, lpo.SourceType)
	require.Equal(t, []int64{1}, lpo.SourceSalesOrderIDs)
	require.Equal(t, int64(31), lpo.SupplierID)
	require.Equal(t, "BHD", lpo.Currency)
	require.Len(t, lpo.Items, 2)

	// 4*20 = 80 plus 10% tax and 2*10 = 20 with no tax.
	require.InDelta(t, 100.0, lpo.Subtotal, 0.001)
	require.InDelta(t, 8.0, lpo.TaxAmount, 0.001)
	require.InDelta(t, 108.0, lpo.TotalAmount, 0.001)

	// Line totals are tax inclusive and sum to the document total.
	require.InDelta(t, 88.0, lpo.Items[0].LineTotal, 0.001)
	require.InDelta(t, 20.0, lpo.Items[1].LineTotal, 0.001)
	require.InDelta(t, lpo.TotalAmount, lpo.Items[0].LineTotal+lpo.Items[1].LineTotal, 0.001)

	for _, it := range lpo.Items {
		require.Zero(t, it.ReceivedQuantity)
		require.Equal(t, it.Quantity, it.PendingQuantity)
		require.NotNil(t, it.SalesOrderItemID)
	}

	// Below the approval threshold, no approval gate.
	require.False(t, lpo.RequiresApproval)
	require.Equal(t, LpoApprovalNotRequired, lpo.ApprovalStatus)
}

func TestCreateFromSalesOrdersHonorsDiscount(t *testing.T) {
	o := confirmedOrder(1)
	o.Items = []orders.SalesOrderItem{
		{ID: 101, SalesOrderID: 1, ProductID: 11, Description: "Cable drum", Quantity: 4, UnitPrice: 25, DiscountPercent: 10, TaxPercent: 5},
	}
	svc, _ := newTestService(map[int64]*orders.SalesOrder{1: o}, 1000)

	lpos, err := svc.CreateFromSalesOrders(context.Background(), CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1}}, 9)
	require.NoError(t, err)
	require.Len(t, lpos, 1)

	lpo := lpos[0]
	require.Len(t, lpo.Items, 1)

	// 4*25 = 100 gross, minus 10% discount = 90 net, plus 5% tax = 94.50.
	require.InDelta(t, 90.0, lpo.Subtotal, 0.001)
	require.InDelta(t, 4.5, lpo.TaxAmount, 0.001)
	require.InDelta(t, 94.5, lpo.TotalAmount, 0.001)
	require.InDelta(t, 94.5, lpo.Items[0].LineTotal, 0.001)
	require.InDelta(t, lpo.TotalAmount, lpo.Items[0].LineTotal, 0.001)
}

func TestCreateFromSalesOrdersRequiresSupplier(t *testing.T) {
	o := confirmedOrder(1)
	o.SupplierID = nil
	svc, _ := newTestService(map[int64]*orders.SalesOrder{1: o}, 1000)

	_, err := svc.CreateFromSalesOrders(context.Background(), CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1}}, 9)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateFromSalesOrdersOneLpoPerOrder(t *testing.T) {
	svc, _ := newTestService(map[int64]*orders.SalesOrder{
		1: confirmedOrder(1),
		2: confirmedOrder(2),
	}, 1000)

	lpos, err := svc.CreateFromSalesOrders(context.Background(), CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1, 2}}, 9)
	require.NoError(t, err)
	require.Len(t, lpos, 2)
	require.NotEqual(t, lpos[0].LpoNumber, lpos[1].LpoNumber)
	require.Equal(t, []int64{1}, lpos[0].SourceSalesOrderIDs)
	require.Equal(t, []int64{2}, lpos[1].SourceSalesOrderIDs)
}

func TestApprovalGateBlocksSending(t *testing.T) {
	// Threshold at 100 puts the 108 total over the line.
	svc, _ := newTestService(map[int64]*orders.SalesOrder{1: confirmedOrder(1)}, 100)
	ctx := context.Background()

	lpos, err := svc.CreateFromSalesOrders(ctx, CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1}}, 9)
	require.NoError(t, err)
	lpo := lpos[0]
	require.True(t, lpo.RequiresApproval)
	require.Equal(t, LpoApprovalPending, lpo.ApprovalStatus)

	_, err = svc.SendToSupplier(ctx, lpo.ID, 9)
	require.ErrorIs(t, err, shared.ErrConflict)

	approved, err := svc.Approve(ctx, lpo.ID, 5)
	require.NoError(t, err)
	require.Equal(t, LpoApprovalApproved, approved.ApprovalStatus)
	require.NotNil(t, approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	sent, err := svc.SendToSupplier(ctx, lpo.ID, 9)
	require.NoError(t, err)
	require.Equal(t, LpoStatusSent, sent.Status)
	require.NotNil(t, sent.SentToSupplierAt)
}

func TestRejectRequiresReason(t *testing.T) {
	svc, _ := newTestService(map[int64]*orders.SalesOrder{1: confirmedOrder(1)}, 100)
	ctx := context.Background()

	lpos, err := svc.CreateFromSalesOrders(ctx, CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1}}, 9)
	require.NoError(t, err)
	lpo := lpos[0]

	_, err = svc.Reject(ctx, lpo.ID, 5, "  ")
	require.ErrorIs(t, err, shared.ErrValidation)

	rejected, err := svc.Reject(ctx, lpo.ID, 5, "pricing outdated")
	require.NoError(t, err)
	require.Equal(t, LpoApprovalRejected, rejected.ApprovalStatus)
	require.NotNil(t, rejected.RejectionReason)
	require.Nil(t, rejected.ApprovedBy)

	_, err = svc.SendToSupplier(ctx, lpo.ID, 9)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestConfirmAndReceiptFlow(t *testing.T) {
	svc, _ := newTestService(map[int64]*orders.SalesOrder{1: confirmedOrder(1)}, 1000)
	ctx := context.Background()

	lpos, err := svc.CreateFromSalesOrders(ctx, CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1}}, 9)
	require.NoError(t, err)
	lpo := lpos[0]

	// Receipt before confirmation is rejected.
	_, err = svc.RecordReceipt(ctx, lpo.ID, []ReceiptLine{{ItemID: lpo.Items[0].ID, Quantity: 1}}, 9)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.SendToSupplier(ctx, lpo.ID, 9)
	require.NoError(t, err)
	ref := "SUP-ACK-778"
	confirmed, err := svc.ConfirmBySupplier(ctx, lpo.ID, 9, &ref)
	require.NoError(t, err)
	require.Equal(t, LpoStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedBySupplierAt)
	require.Equal(t, ref, *confirmed.ConfirmationReference)

	// Partial receipt keeps the LPO confirmed.
	partial, err := svc.RecordReceipt(ctx, lpo.ID, []ReceiptLine{{ItemID: confirmed.Items[0].ID, Quantity: 3}}, 9)
	require.NoError(t, err)
	require.Equal(t, LpoStatusConfirmed, partial.Status)
	require.InDelta(t, 3.0, partial.Items[0].ReceivedQuantity, 0.001)
	require.InDelta(t, 1.0, partial.Items[0].PendingQuantity, 0.001)

	// Over-receipt of the remaining quantity is rejected.
	_, err = svc.RecordReceipt(ctx, lpo.ID, []ReceiptLine{{ItemID: confirmed.Items[0].ID, Quantity: 2}}, 9)
	require.ErrorIs(t, err, shared.ErrValidation)

	// Completing both lines flips the LPO to RECEIVED.
	full, err := svc.RecordReceipt(ctx, lpo.ID, []ReceiptLine{
		{ItemID: confirmed.Items[0].ID, Quantity: 1},
		{ItemID: confirmed.Items[1].ID, Quantity: 2},
	}, 9)
	require.NoError(t, err)
	require.Equal(t, LpoStatusReceived, full.Status)
	for _, it := range full.Items {
		require.Zero(t, it.PendingQuantity)
	}
}

func TestCreateAmendment(t *testing.T) {
	svc, _ := newTestService(map[int64]*orders.SalesOrder{1: confirmedOrder(1)}, 1000)
	ctx := context.Background()

	lpos, err := svc.CreateFromSalesOrders(ctx, CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1}}, 9)
	require.NoError(t, err)
	root := lpos[0]

	_, err = svc.CreateAmendment(ctx, root.ID, AmendmentInput{Reason: "abc", AmendmentType: "QUANTITY"}, 9)
	require.ErrorIs(t, err, shared.ErrValidation)

	a1, err := svc.CreateAmendment(ctx, root.ID, AmendmentInput{Reason: "supplier price change", AmendmentType: "PRICE"}, 9)
	require.NoError(t, err)
	require.Equal(t, 1, a1.AmendmentSequence)
	require.Equal(t, 2, a1.Version)
	require.Equal(t, root.ID, *a1.ParentLpoID)
	require.Equal(t, root.LpoNumber+"-A1", a1.LpoNumber)
	require.Equal(t, LpoStatusDraft, a1.Status)
	require.Nil(t, a1.SentToSupplierAt)
	require.Len(t, a1.Items, len(root.Items))
	for _, it := range a1.Items {
		require.Zero(t, it.ReceivedQuantity)
		require.Equal(t, it.Quantity, it.PendingQuantity)
	}

	// Amending an amendment still attaches to the root.
	a2, err := svc.CreateAmendment(ctx, a1.ID, AmendmentInput{Reason: "quantity increase", AmendmentType: "QUANTITY"}, 9)
	require.NoError(t, err)
	require.Equal(t, 2, a2.AmendmentSequence)
	require.Equal(t, root.ID, *a2.ParentLpoID)
	require.Equal(t, root.LpoNumber+"-A2", a2.LpoNumber)
}

func TestConcurrentLpoAmendmentsGetDistinctSequences(t *testing.T) {
	svc, _ := newTestService(map[int64]*orders.SalesOrder{1: confirmedOrder(1)}, 1000)
	ctx := context.Background()

	lpos, err := svc.CreateFromSalesOrders(ctx, CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1}}, 9)
	require.NoError(t, err)
	root := lpos[0]

	const n = 6
	results := make([]*SupplierLpo, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			a, err := svc.CreateAmendment(ctx, root.ID, AmendmentInput{Reason: "concurrent amendment run", AmendmentType: "QUANTITY"}, 9)
			if err != nil {
				return err
			}
			results[i] = a
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seqs := make(map[int]bool, n)
	for _, a := range results {
		require.NotNil(t, a)
		seqs[a.AmendmentSequence] = true
	}
	require.Len(t, seqs, n)

	lineage, err := svc.GetLineage(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, lineage, n+1)
	require.Equal(t, root.ID, lineage[0].ID)
}

func TestAmendmentResetsApproval(t *testing.T) {
	svc, _ := newTestService(map[int64]*orders.SalesOrder{1: confirmedOrder(1)}, 100)
	ctx := context.Background()

	lpos, err := svc.CreateFromSalesOrders(ctx, CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1}}, 9)
	require.NoError(t, err)
	root := lpos[0]

	_, err = svc.Approve(ctx, root.ID, 5)
	require.NoError(t, err)

	a1, err := svc.CreateAmendment(ctx, root.ID, AmendmentInput{Reason: "supplier price change", AmendmentType: "PRICE"}, 9)
	require.NoError(t, err)
	require.True(t, a1.RequiresApproval)
	require.Equal(t, LpoApprovalPending, a1.ApprovalStatus)
	require.Nil(t, a1.ApprovedBy)

	_, err = svc.SendToSupplier(ctx, a1.ID, 9)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCancelGuards(t *testing.T) {
	svc, _ := newTestService(map[int64]*orders.SalesOrder{1: confirmedOrder(1)}, 1000)
	ctx := context.Background()

	lpos, err := svc.CreateFromSalesOrders(ctx, CreateFromSalesOrdersInput{SalesOrderIDs: []int64{1}}, 9)
	require.NoError(t, err)
	lpo := lpos[0]

	_, err = svc.SendToSupplier(ctx, lpo.ID, 9)
	require.NoError(t, err)
	_, err = svc.ConfirmBySupplier(ctx, lpo.ID, 9, nil)
	require.NoError(t, err)

	// A confirmed LPO can no longer be cancelled.
	_, err = svc.Cancel(ctx, lpo.ID, 9)
	require.ErrorIs(t, err, shared.ErrConflict)
}
