package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/otrixindiacloud/tradeflow/internal/docflow"
	"github.com/otrixindiacloud/tradeflow/internal/sales/quotations"
	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	amendMu sync.Mutex
	rows    map[int64]SalesOrder
	items   map[int64][]SalesOrderItem
	nextID  int64
	numbers int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]SalesOrder), items: make(map[int64][]SalesOrderItem)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

// WithAmendmentLock serialises allocation per repository, mirroring the
// row-lock behaviour of the SQL implementation.
func (r *memoryRepo) WithAmendmentLock(ctx context.Context, baseID int64, fn func(context.Context, Repository, *SalesOrder, []docflow.Sibling) error) error {
	r.amendMu.Lock()
	defer r.amendMu.Unlock()

	base, err := r.Get(ctx, baseID)
	if err != nil {
		return err
	}
	rootID := base.ID
	if base.ParentOrderID != nil {
		rootID = *base.ParentOrderID
	}
	root, err := r.Get(ctx, rootID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	var siblings []docflow.Sibling
	for _, o := range r.rows {
		if o.ParentOrderID != nil && *o.ParentOrderID == rootID {
			siblings = append(siblings, docflow.Sibling{ID: o.ID, Sequence: o.AmendmentSequence, Number: o.OrderNumber})
		}
	}
	r.mu.Unlock()

	return fn(ctx, r, root, siblings)
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: sales order %d", shared.ErrNotFound, id)
	}
	o.Items = append([]SalesOrderItem(nil), r.items[id]...)
	return &o, nil
}

func (r *memoryRepo) GetByQuotationID(ctx context.Context, quotationID int64) (*SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.rows {
		if o.QuotationID != nil && *o.QuotationID == quotationID && o.ParentOrderID == nil {
			return &o, nil
		}
	}
	return nil, fmt.Errorf("%w: no order for quotation %d", shared.ErrNotFound, quotationID)
}

func (r *memoryRepo) Create(ctx context.Context, o SalesOrder) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.OrderNumber == o.OrderNumber {
			return 0, fmt.Errorf("duplicate order number %s", o.OrderNumber)
		}
	}
	r.nextID++
	o.ID = r.nextID
	r.rows[o.ID] = o
	return o.ID, nil
}

func (r *memoryRepo) InsertItem(ctx context.Context, item SalesOrderItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	item.ID = r.nextID
	r.items[item.SalesOrderID] = append(r.items[item.SalesOrderID], item)
	return item.ID, nil
}

func (r *memoryRepo) ListLineage(ctx context.Context, rootID int64) ([]SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lineage []SalesOrder
	for _, o := range r.rows {
		if o.ID == rootID || (o.ParentOrderID != nil && *o.ParentOrderID == rootID) {
			lineage = append(lineage, o)
		}
	}
	if len(lineage) == 0 {
		return nil, fmt.Errorf("%w: sales order %d", shared.ErrNotFound, rootID)
	}
	return lineage, nil
}

func (r *memoryRepo) UpdateLpoValidation(ctx context.Context, id int64, status LpoValidationStatus, validatedBy int64, notes *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.rows[id]
	o.LpoValidation = status
	o.LpoValidatedBy = &validatedBy
	o.LpoValidatedAt = &at
	o.LpoValidationNote = notes
	r.rows[id] = o
	return nil
}

func (r *memoryRepo) GenerateNumber(ctx context.Context, year int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numbers++
	return fmt.Sprintf("SO-%d-%04d", year, r.numbers), nil
}

type quoteStore struct {
	quotes map[int64]*quotations.Quotation
}

func (q *quoteStore) Get(ctx context.Context, id int64) (*quotations.Quotation, error) {
	qt, ok := q.quotes[id]
	if !ok {
		return nil, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	return qt, nil
}

type allowAllProducts struct{}

func (allowAllProducts) Exists(ctx context.Context, id int64) error { return nil }

func productID(id int64) *int64 { return &id }

func acceptedQuotation(id int64) *quotations.Quotation {
	return &quotations.Quotation{
		ID:          id,
		QuoteNumber: "QT-00000001-001",
		CustomerID:  7,
		Status:      quotations.QuotationStatusAccepted,
		Currency:    "BHD",
		Items: []quotations.QuotationItem{
			{ID: 1, ProductID: productID(11), Description: "Cable drum", Quantity: 4, UnitPrice: 20, TaxPercent: 10},
			{ID: 2, ProductID: productID(12), Description: "Junction box", Quantity: 2, UnitPrice: 10},
		},
	}
}

func newTestService(quotes map[int64]*quotations.Quotation) (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, &quoteStore{quotes: quotes}, allowAllProducts{}, nil)
	return svc, repo
}

func TestCreateFromQuotation(t *testing.T) {
	svc, _ := newTestService(map[int64]*quotations.Quotation{1: acceptedQuotation(1)})
	ctx := context.Background()

	o, err := svc.CreateFromQuotation(ctx, 1, 9)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusDraft, o.Status)
	require.Equal(t, LpoValidationPending, o.LpoValidation)
	require.Equal(t, 1, o.Version)
	require.Equal(t, int64(7), o.CustomerID)
	require.Equal(t, fmt.Sprintf("SO-%d-0001", time.Now().Year()), o.OrderNumber)
	require.Len(t, o.Items, 2)

	var sum float64
	for _, it := range o.Items {
		sum += it.TotalPrice
	}
	require.InDelta(t, o.TotalAmount, sum, 0.01)

	// A quotation converts at most once.
	_, err = svc.CreateFromQuotation(ctx, 1, 9)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateFromQuotationRequiresAcceptance(t *testing.T) {
	q := acceptedQuotation(1)
	q.Status = quotations.QuotationStatusSent
	svc, _ := newTestService(map[int64]*quotations.Quotation{1: q})

	_, err := svc.CreateFromQuotation(context.Background(), 1, 9)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateFromQuotationRejectsMissingProduct(t *testing.T) {
	q := acceptedQuotation(1)
	q.Items[0].ProductID = nil
	svc, _ := newTestService(map[int64]*quotations.Quotation{1: q})

	_, err := svc.CreateFromQuotation(context.Background(), 1, 9)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateAmendment(t *testing.T) {
	svc, _ := newTestService(map[int64]*quotations.Quotation{1: acceptedQuotation(1)})
	ctx := context.Background()

	root, err := svc.CreateFromQuotation(ctx, 1, 9)
	require.NoError(t, err)

	_, err = svc.CreateAmendment(ctx, root.ID, "abc", 9)
	require.ErrorIs(t, err, shared.ErrValidation)

	a1, err := svc.CreateAmendment(ctx, root.ID, "customer raised quantity", 9)
	require.NoError(t, err)
	require.Equal(t, 1, a1.AmendmentSequence)
	require.Equal(t, 2, a1.Version)
	require.Equal(t, root.ID, *a1.ParentOrderID)
	require.Equal(t, root.OrderNumber+"-A1", a1.OrderNumber)
	require.Len(t, a1.Items, len(root.Items))

	// Amending an amendment still attaches to the root.
	a2, err := svc.CreateAmendment(ctx, a1.ID, "unit price correction", 9)
	require.NoError(t, err)
	require.Equal(t, 2, a2.AmendmentSequence)
	require.Equal(t, root.ID, *a2.ParentOrderID)
	require.Equal(t, root.OrderNumber+"-A2", a2.OrderNumber)
}

func TestConcurrentAmendmentsGetDistinctSequences(t *testing.T) {
	svc, _ := newTestService(map[int64]*quotations.Quotation{1: acceptedQuotation(1)})
	ctx := context.Background()

	root, err := svc.CreateFromQuotation(ctx, 1, 9)
	require.NoError(t, err)

	const n = 8
	results := make([]*SalesOrder, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			a, err := svc.CreateAmendment(ctx, root.ID, "concurrent amendment run", 9)
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
	for want := 1; want <= n; want++ {
		require.True(t, seqs[want], "sequence %d missing", want)
	}

	lineage, err := svc.GetLineage(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, lineage, n+1)
	require.Equal(t, root.ID, lineage[0].ID)
	for i := 1; i < len(lineage); i++ {
		require.Equal(t, i, lineage[i].AmendmentSequence)
	}
}

func TestGetLineageFromAmendment(t *testing.T) {
	svc, _ := newTestService(map[int64]*quotations.Quotation{1: acceptedQuotation(1)})
	ctx := context.Background()

	root, err := svc.CreateFromQuotation(ctx, 1, 9)
	require.NoError(t, err)
	a1, err := svc.CreateAmendment(ctx, root.ID, "customer raised quantity", 9)
	require.NoError(t, err)

	lineage, err := svc.GetLineage(ctx, a1.ID)
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	require.Equal(t, root.ID, lineage[0].ID)
	require.Equal(t, a1.ID, lineage[1].ID)
}

func TestValidateCustomerLpoOverrideGuard(t *testing.T) {
	svc, _ := newTestService(map[int64]*quotations.Quotation{1: acceptedQuotation(1)})
	ctx := context.Background()

	root, err := svc.CreateFromQuotation(ctx, 1, 9)
	require.NoError(t, err)

	approved, err := svc.ValidateCustomerLpo(ctx, root.ID, ValidateCustomerLpoRequest{
		Status: LpoValidationApproved, ValidatedBy: 5,
	})
	require.NoError(t, err)
	require.Equal(t, LpoValidationApproved, approved.LpoValidation)
	require.NotNil(t, approved.LpoValidatedBy)

	// Silent downgrade of an approved validation is rejected.
	_, err = svc.ValidateCustomerLpo(ctx, root.ID, ValidateCustomerLpoRequest{
		Status: LpoValidationRejected, ValidatedBy: 5,
	})
	require.ErrorIs(t, err, shared.ErrConflict)

	downgraded, err := svc.ValidateCustomerLpo(ctx, root.ID, ValidateCustomerLpoRequest{
		Status: LpoValidationRejected, ValidatedBy: 5, Override: true,
	})
	require.NoError(t, err)
	require.Equal(t, LpoValidationRejected, downgraded.LpoValidation)
}
