package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
)

type memStore struct {
	id         outlet.ID
	items      map[string]ledger.StockItem
	failUpsert map[string]error
}

func newMemStore(id outlet.ID, items ...ledger.StockItem) *memStore {
	s := &memStore{id: id, items: map[string]ledger.StockItem{}, failUpsert: map[string]error{}}
	for _, item := range items {
		s.items[key(item.Kind, item.Code)] = item
	}
	return s
}

func key(kind ledger.Kind, code string) string { return string(kind) + "/" + code }

func (s *memStore) Outlet() outlet.ID { return s.id }

func (s *memStore) FindByCode(_ context.Context, kind ledger.Kind, code string) (ledger.StockItem, error) {
	item, ok := s.items[key(kind, code)]
	if !ok {
		return ledger.StockItem{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, code)
	}
	return item, nil
}

func (s *memStore) UpsertIncrement(_ context.Context, kind ledger.Kind, code string, delta float64, defaults ledger.Defaults) (ledger.StockItem, error) {
	if err, ok := s.failUpsert[code]; ok {
		return ledger.StockItem{}, err
	}
	item, ok := s.items[key(kind, code)]
	if !ok {
		item = ledger.StockItem{
			Kind:          kind,
			Code:          code,
			Name:          defaults.Name,
			Category:      defaults.Category,
			UnitOfMeasure: defaults.UnitOfMeasure,
			UnitPrice:     defaults.UnitPrice,
			MinimumStock:  defaults.MinimumStock,
			MaximumStock:  defaults.MaximumStock,
			ReorderPoint:  defaults.ReorderPoint,
			CreatedBy:     defaults.Actor,
			IsActive:      true,
		}
	}
	item.CurrentStock += delta
	s.items[key(kind, code)] = item
	return item, nil
}

func (s *memStore) Decrement(_ context.Context, kind ledger.Kind, code string, qty float64) (ledger.StockItem, error) {
	item, ok := s.items[key(kind, code)]
	if !ok {
		return ledger.StockItem{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, code)
	}
	if item.CurrentStock < qty {
		return ledger.StockItem{}, fmt.Errorf("%w: %s", ledger.ErrInsufficientStock, code)
	}
	item.CurrentStock -= qty
	s.items[key(kind, code)] = item
	return item, nil
}

func (s *memStore) SoftDelete(context.Context, ledger.Kind, string, string) error { return nil }
func (s *memStore) List(context.Context, ledger.ListFilter) ([]ledger.StockItem, int, error) {
	return nil, 0, nil
}
func (s *memStore) DistinctCategories(context.Context, ledger.Kind) ([]string, error) {
	return nil, nil
}
func (s *memStore) FindLowStock(context.Context, ledger.Kind) ([]ledger.StockItem, error) {
	return nil, nil
}

func (s *memStore) stock(kind ledger.Kind, code string) float64 {
	return s.items[key(kind, code)].CurrentStock
}

type memProvider map[outlet.ID]*memStore

func (p memProvider) Store(id outlet.ID) (ledger.Store, error) {
	store, ok := p[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", outlet.ErrUnknownOutlet, id)
	}
	return store, nil
}

type memOrders struct {
	orders     map[string]Order
	nextID     int64
	dupsBudget int
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[string]Order{}}
}

func (m *memOrders) Create(_ context.Context, order Order) (Order, error) {
	if m.dupsBudget > 0 {
		m.dupsBudget--
		return Order{}, ErrDuplicateNumber
	}
	if _, exists := m.orders[order.TransferNumber]; exists {
		return Order{}, ErrDuplicateNumber
	}
	m.nextID++
	order.ID = m.nextID
	m.orders[order.TransferNumber] = order
	return order, nil
}

func (m *memOrders) Get(_ context.Context, transferNumber string) (Order, error) {
	order, ok := m.orders[transferNumber]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, transferNumber)
	}
	return order, nil
}

func (m *memOrders) List(context.Context, ListFilter) ([]Order, int, error) { return nil, 0, nil }

func (m *memOrders) UpdateStatus(_ context.Context, transferNumber string, status Status, approver, notes string) error {
	order, ok := m.orders[transferNumber]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, transferNumber)
	}
	order.Status = status
	if approver != "" {
		order.ApprovedBy = approver
	}
	if notes != "" {
		order.Notes = notes
	}
	m.orders[transferNumber] = order
	return nil
}

func (m *memOrders) SaveResults(_ context.Context, transferNumber string, status Status, approver string, results []Result) error {
	order, ok := m.orders[transferNumber]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, transferNumber)
	}
	order.Status = status
	order.ApprovedBy = approver
	order.Results = results
	m.orders[transferNumber] = order
	return nil
}

func (m *memOrders) SaveZohoSync(_ context.Context, transferNumber, zohoID, status, syncErr string) error {
	order, ok := m.orders[transferNumber]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, transferNumber)
	}
	if zohoID != "" {
		order.ZohoTransferOrderID = zohoID
	}
	order.ZohoSyncStatus = status
	order.ZohoSyncError = syncErr
	m.orders[transferNumber] = order
	return nil
}

func (m *memOrders) ListZohoFailed(context.Context) ([]Order, error) {
	var failed []Order
	for _, order := range m.orders {
		if order.ZohoSyncStatus == ZohoSyncFailed {
			failed = append(failed, order)
		}
	}
	return failed, nil
}

func rawLine(code string, qty, price float64) Line {
	return Line{ItemType: ledger.KindRawMaterial, ItemCode: code, ItemName: code, Quantity: qty, UnitPrice: price}
}

func rawItem(code string, stock float64) ledger.StockItem {
	return ledger.StockItem{
		Kind: ledger.KindRawMaterial, Code: code, Name: "Name of " + code,
		Category: "Dry Goods", UnitOfMeasure: "kg", UnitPrice: 1.5,
		CurrentStock: stock, ReorderPoint: 5, IsActive: true,
	}
}

func TestCreateDerivesTotals(t *testing.T) {
	svc := NewService(newMemOrders(), memProvider{}, nil, nil, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		FromOutlet: outlet.CentralKitchen,
		ToOutlet:   outlet.KuwaitCity,
		Items: []Line{
			{ItemType: ledger.KindRawMaterial, ItemCode: "FLOUR", Quantity: 10, UnitPrice: 2, TotalValue: 999},
			{ItemType: ledger.KindRawMaterial, ItemCode: "SUGAR", Quantity: 4, UnitPrice: 3},
		},
		RequestedBy: "amal",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	require.InDelta(t, 20.0, order.Items[0].TotalValue, 1e-9)
	require.InDelta(t, 32.0, order.TotalAmount, 1e-9)
	require.True(t, strings.HasPrefix(order.TransferNumber, "TR-CK-"), order.TransferNumber)
}

func TestCreateRejectsSameOutlet(t *testing.T) {
	svc := NewService(newMemOrders(), memProvider{}, nil, nil, nil, nil)
	_, err := svc.Create(context.Background(), CreateInput{
		FromOutlet: outlet.Mall360,
		ToOutlet:   outlet.Mall360,
		Items:      []Line{rawLine("FLOUR", 1, 1)},
	})
	require.ErrorIs(t, err, ErrSameOutlet)
}

func TestCreateRetriesNumberCollisionOnce(t *testing.T) {
	orders := newMemOrders()
	orders.dupsBudget = 1
	svc := NewService(orders, memProvider{}, nil, nil, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		FromOutlet: outlet.CentralKitchen,
		ToOutlet:   outlet.VibeComplex,
		Items:      []Line{rawLine("FLOUR", 1, 1)},
	})
	require.NoError(t, err)
	require.NotEmpty(t, order.TransferNumber)
}

func TestApproveMovesStockAndConservesTotal(t *testing.T) {
	src := newMemStore(outlet.CentralKitchen, rawItem("FLOUR", 50), rawItem("SUGAR", 20))
	dst := newMemStore(outlet.KuwaitCity, rawItem("FLOUR", 3))
	provider := memProvider{outlet.CentralKitchen: src, outlet.KuwaitCity: dst}
	orders := newMemOrders()
	svc := NewService(orders, provider, nil, nil, nil, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		FromOutlet: outlet.CentralKitchen,
		ToOutlet:   outlet.KuwaitCity,
		Items:      []Line{rawLine("FLOUR", 10, 2), rawLine("SUGAR", 5, 3)},
	})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, order.TransferNumber, "manager")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, "manager", approved.ApprovedBy)
	require.Len(t, approved.Results, 2)
	require.True(t, approved.Results[0].Success)
	require.True(t, approved.Results[1].Success)

	// Total per code is conserved across the two ledgers.
	require.InDelta(t, 40.0, src.stock(ledger.KindRawMaterial, "FLOUR"), 1e-9)
	require.InDelta(t, 13.0, dst.stock(ledger.KindRawMaterial, "FLOUR"), 1e-9)
	require.InDelta(t, 15.0, src.stock(ledger.KindRawMaterial, "SUGAR"), 1e-9)
	require.InDelta(t, 5.0, dst.stock(ledger.KindRawMaterial, "SUGAR"), 1e-9)

	// SUGAR was new at the destination: descriptive fields come from the source.
	created := dst.items[key(ledger.KindRawMaterial, "SUGAR")]
	require.Equal(t, "Name of SUGAR", created.Name)
	require.Equal(t, "Dry Goods", created.Category)
	require.Equal(t, "kg", created.UnitOfMeasure)
	require.InDelta(t, 5.0, created.ReorderPoint, 1e-9)
}

func TestApproveFailsFast(t *testing.T) {
	src := newMemStore(outlet.CentralKitchen,
		rawItem("FLOUR", 50), rawItem("SUGAR", 2), rawItem("SALT", 50))
	dst := newMemStore(outlet.Mall360)
	provider := memProvider{outlet.CentralKitchen: src, outlet.Mall360: dst}
	svc := NewService(newMemOrders(), provider, nil, nil, nil, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		FromOutlet: outlet.CentralKitchen,
		ToOutlet:   outlet.Mall360,
		Items: []Line{
			rawLine("FLOUR", 10, 1),
			rawLine("SUGAR", 5, 1), // more than available
			rawLine("SALT", 10, 1),
		},
	})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, order.TransferNumber, "manager")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, approved.Status)
	require.Len(t, approved.Results, 3)

	// First item applied and recorded.
	require.True(t, approved.Results[0].Success)
	require.InDelta(t, 40.0, src.stock(ledger.KindRawMaterial, "FLOUR"), 1e-9)
	require.InDelta(t, 10.0, dst.stock(ledger.KindRawMaterial, "FLOUR"), 1e-9)

	// Second item failed; its stock is untouched.
	require.False(t, approved.Results[1].Success)
	require.NotEmpty(t, approved.Results[1].Error)
	require.InDelta(t, 2.0, src.stock(ledger.KindRawMaterial, "SUGAR"), 1e-9)

	// Third item never attempted.
	require.True(t, approved.Results[2].Skipped)
	require.InDelta(t, 50.0, src.stock(ledger.KindRawMaterial, "SALT"), 1e-9)
	require.Zero(t, dst.stock(ledger.KindRawMaterial, "SALT"))
}

func TestApproveCompensatesDestinationFailure(t *testing.T) {
	src := newMemStore(outlet.CentralKitchen, rawItem("FLOUR", 50))
	dst := newMemStore(outlet.TaibaHospital)
	dst.failUpsert["FLOUR"] = errors.New("connection reset")
	provider := memProvider{outlet.CentralKitchen: src, outlet.TaibaHospital: dst}
	svc := NewService(newMemOrders(), provider, nil, nil, nil, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		FromOutlet: outlet.CentralKitchen,
		ToOutlet:   outlet.TaibaHospital,
		Items:      []Line{rawLine("FLOUR", 10, 1)},
	})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, order.TransferNumber, "manager")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, approved.Status)

	// Source restored by the compensating increment.
	require.InDelta(t, 50.0, src.stock(ledger.KindRawMaterial, "FLOUR"), 1e-9)
	require.Zero(t, dst.stock(ledger.KindRawMaterial, "FLOUR"))
}

func TestTransferItemPartialWhenCompensationFails(t *testing.T) {
	src := newMemStore(outlet.CentralKitchen, rawItem("FLOUR", 50))
	dst := newMemStore(outlet.VibeComplex)
	dst.failUpsert["FLOUR"] = errors.New("connection reset")
	provider := memProvider{outlet.CentralKitchen: src, outlet.VibeComplex: dst}
	svc := NewService(newMemOrders(), provider, nil, nil, nil, nil)

	// Make the compensating source increment fail too.
	srcStore, err := provider.Store(outlet.CentralKitchen)
	require.NoError(t, err)
	srcStore.(*memStore).failUpsert["FLOUR"] = errors.New("source also down")

	err = svc.TransferItem(context.Background(), outlet.CentralKitchen, outlet.VibeComplex,
		ledger.KindRawMaterial, "FLOUR", 10)
	require.ErrorIs(t, err, ErrPartialTransfer)
}

func TestRejectLeavesLedgersUntouched(t *testing.T) {
	src := newMemStore(outlet.CentralKitchen, rawItem("FLOUR", 50))
	dst := newMemStore(outlet.KuwaitCity)
	provider := memProvider{outlet.CentralKitchen: src, outlet.KuwaitCity: dst}
	svc := NewService(newMemOrders(), provider, nil, nil, nil, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		FromOutlet: outlet.CentralKitchen,
		ToOutlet:   outlet.KuwaitCity,
		Items:      []Line{rawLine("FLOUR", 10, 1)},
	})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, order.TransferNumber, "manager", "not needed")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.InDelta(t, 50.0, src.stock(ledger.KindRawMaterial, "FLOUR"), 1e-9)

	// A rejected order cannot be approved afterwards.
	_, err = svc.Approve(ctx, order.TransferNumber, "manager")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

type stubSync struct {
	outcome PushOutcome
	err     error
	calls   int
}

func (s *stubSync) PushTransferOrder(context.Context, Order) (PushOutcome, error) {
	s.calls++
	return s.outcome, s.err
}

func TestApproveRecordsZohoFailureWithoutFailing(t *testing.T) {
	src := newMemStore(outlet.CentralKitchen, rawItem("FLOUR", 50))
	dst := newMemStore(outlet.KuwaitCity)
	provider := memProvider{outlet.CentralKitchen: src, outlet.KuwaitCity: dst}
	orders := newMemOrders()
	sync := &stubSync{err: errors.New("zoho: 502")}
	svc := NewService(orders, provider, sync, nil, nil, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		FromOutlet: outlet.CentralKitchen,
		ToOutlet:   outlet.KuwaitCity,
		Items:      []Line{rawLine("FLOUR", 10, 1)},
	})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, order.TransferNumber, "manager")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, ZohoSyncFailed, approved.ZohoSyncStatus)
	require.Contains(t, approved.ZohoSyncError, "502")

	// Reconciliation re-pushes the failed order.
	sync.err = nil
	sync.outcome = PushOutcome{ExternalID: "zoho-123"}
	results, err := svc.RetryZohoPush(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success)

	stored, err := orders.Get(ctx, order.TransferNumber)
	require.NoError(t, err)
	require.Equal(t, ZohoSyncPushed, stored.ZohoSyncStatus)
	require.Equal(t, "zoho-123", stored.ZohoTransferOrderID)
}

func TestLifecycleTransitions(t *testing.T) {
	src := newMemStore(outlet.CentralKitchen, rawItem("FLOUR", 50))
	dst := newMemStore(outlet.KuwaitCity)
	provider := memProvider{outlet.CentralKitchen: src, outlet.KuwaitCity: dst}
	svc := NewService(newMemOrders(), provider, nil, nil, nil, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		FromOutlet: outlet.CentralKitchen,
		ToOutlet:   outlet.KuwaitCity,
		Items:      []Line{rawLine("FLOUR", 5, 1)},
	})
	require.NoError(t, err)

	// Cannot complete a Pending order.
	_, err = svc.Complete(ctx, order.TransferNumber, "driver")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Approve(ctx, order.TransferNumber, "manager")
	require.NoError(t, err)

	inTransit, err := svc.MarkInTransit(ctx, order.TransferNumber, "driver")
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, inTransit.Status)

	done, err := svc.Complete(ctx, order.TransferNumber, "driver")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.True(t, done.Status.Terminal())
}
