package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soufra-erp/soufra-erp/internal/bom"
	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

type memLedger struct {
	items map[string]ledger.StockItem
}

func key(kind ledger.Kind, code string) string { return string(kind) + "/" + code }

func newMemLedger(items ...ledger.StockItem) *memLedger {
	l := &memLedger{items: map[string]ledger.StockItem{}}
	for _, item := range items {
		l.items[key(item.Kind, item.Code)] = item
	}
	return l
}

func (l *memLedger) FindByCode(_ context.Context, kind ledger.Kind, code string) (ledger.StockItem, error) {
	item, ok := l.items[key(kind, code)]
	if !ok {
		return ledger.StockItem{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, code)
	}
	return item, nil
}

// WithTx mimics transaction semantics with snapshot rollback.
func (l *memLedger) WithTx(ctx context.Context, fn func(context.Context, ledger.TxStore) error) error {
	snapshot := make(map[string]ledger.StockItem, len(l.items))
	for k, v := range l.items {
		snapshot[k] = v
	}
	if err := fn(ctx, (*memTx)(l)); err != nil {
		l.items = snapshot
		return err
	}
	return nil
}

func (l *memLedger) stock(kind ledger.Kind, code string) float64 {
	return l.items[key(kind, code)].CurrentStock
}

type memTx memLedger

func (t *memTx) FindByCode(ctx context.Context, kind ledger.Kind, code string) (ledger.StockItem, error) {
	return (*memLedger)(t).FindByCode(ctx, kind, code)
}

func (t *memTx) Decrement(_ context.Context, kind ledger.Kind, code string, qty float64) (ledger.StockItem, error) {
	item, ok := t.items[key(kind, code)]
	if !ok {
		return ledger.StockItem{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, code)
	}
	if item.CurrentStock < qty {
		return ledger.StockItem{}, fmt.Errorf("%w: %s", ledger.ErrInsufficientStock, code)
	}
	item.CurrentStock -= qty
	t.items[key(kind, code)] = item
	return item, nil
}

type memProvider map[outlet.ID]*memLedger

func (p memProvider) Ledger(id outlet.ID) (Ledger, error) {
	l, ok := p[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", outlet.ErrUnknownOutlet, id)
	}
	return l, nil
}

type memOrders struct {
	orders     map[string]Order
	nextID     int64
	dupsBudget int
}

func newMemOrders() *memOrders { return &memOrders{orders: map[string]Order{}} }

func (m *memOrders) Create(_ context.Context, order Order) (Order, error) {
	if m.dupsBudget > 0 {
		m.dupsBudget--
		return Order{}, ErrDuplicateNumber
	}
	if _, exists := m.orders[order.OrderNumber]; exists {
		return Order{}, ErrDuplicateNumber
	}
	m.nextID++
	order.ID = m.nextID
	m.orders[order.OrderNumber] = order
	return order, nil
}

func (m *memOrders) Get(_ context.Context, orderNumber string) (Order, error) {
	order, ok := m.orders[orderNumber]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderNumber)
	}
	return order, nil
}

func (m *memOrders) List(context.Context, ListFilter) ([]Order, int, error) { return nil, 0, nil }

func (m *memOrders) UpdateStatus(_ context.Context, orderNumber string, status Status) error {
	order, ok := m.orders[orderNumber]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, orderNumber)
	}
	order.Status = status
	m.orders[orderNumber] = order
	return nil
}

func (m *memOrders) SaveZohoSync(_ context.Context, orderNumber, invoiceID, status, syncErr string) error {
	order, ok := m.orders[orderNumber]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, orderNumber)
	}
	if invoiceID != "" {
		order.ZohoInvoiceID = invoiceID
	}
	order.ZohoSyncStatus = status
	order.ZohoSyncError = syncErr
	m.orders[orderNumber] = order
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

type memCatalog map[string]bom.BOM

func (c memCatalog) FindByCode(_ context.Context, code string) (bom.BOM, error) {
	if b, ok := c[code]; ok {
		return b, nil
	}
	return bom.BOM{}, bom.ErrNotFound
}

func stockItem(kind ledger.Kind, code string, stock float64) ledger.StockItem {
	return ledger.StockItem{Kind: kind, Code: code, Name: code, CurrentStock: stock, IsActive: true}
}

func testCatalog() memCatalog {
	return memCatalog{
		"MEAL-SET": {Code: "MEAL-SET", Items: []bom.Item{
			{ItemType: bom.ItemTypeBOM, MaterialCode: "SAUCE", Quantity: 1},
			{ItemType: bom.ItemTypeRawMaterial, MaterialCode: "RICE", Quantity: 0.3},
		}},
		"SAUCE": {Code: "SAUCE", Items: []bom.Item{
			{ItemType: bom.ItemTypeRawMaterial, MaterialCode: "TOMATO", Quantity: 0.2},
		}},
	}
}

func TestCreateFulfillsDirectAndRecipeLines(t *testing.T) {
	led := newMemLedger(
		stockItem(ledger.KindFinishedGood, "BURGER", 10),
		stockItem(ledger.KindRawMaterial, "RICE", 5),
		stockItem(ledger.KindRawMaterial, "TOMATO", 5),
	)
	orders := newMemOrders()
	svc := NewService(orders, memProvider{outlet.KuwaitCity: led}, bom.NewResolver(testCatalog()), nil, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		Outlet:       outlet.KuwaitCity,
		CustomerName: "walk-in",
		Items:        []Line{{ItemCode: "BURGER", Quantity: 2, UnitPrice: 1.5}},
		RecipeItems:  []RecipeLine{{BOMCode: "MEAL-SET", Quantity: 4, UnitPrice: 2.5}},
		Actor:        "cashier",
	})
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, order.Status)
	require.True(t, strings.HasPrefix(order.OrderNumber, "SO-KWC-"), order.OrderNumber)
	require.InDelta(t, 13.0, order.Summary.SubTotal, 1e-9)
	require.InDelta(t, 13.0, order.Summary.Total, 1e-9)

	require.InDelta(t, 8.0, led.stock(ledger.KindFinishedGood, "BURGER"), 1e-9)
	require.InDelta(t, 3.8, led.stock(ledger.KindRawMaterial, "RICE"), 1e-9)
	require.InDelta(t, 4.2, led.stock(ledger.KindRawMaterial, "TOMATO"), 1e-9)
}

func TestCreateAllOrNothing(t *testing.T) {
	led := newMemLedger(
		stockItem(ledger.KindFinishedGood, "BURGER", 10),
		stockItem(ledger.KindRawMaterial, "RICE", 0.5), // short for 4 meal sets
		stockItem(ledger.KindRawMaterial, "TOMATO", 5),
	)
	svc := NewService(newMemOrders(), memProvider{outlet.Mall360: led}, bom.NewResolver(testCatalog()), nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Outlet: outlet.Mall360,
		Items: []Line{
			{ItemCode: "BURGER", Quantity: 2, UnitPrice: 1},
			{ItemCode: "GHOST", Quantity: 1, UnitPrice: 1},
		},
		RecipeItems: []RecipeLine{{BOMCode: "MEAL-SET", Quantity: 4, UnitPrice: 1}},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 2)

	// Nothing was mutated, including the lines that were individually valid.
	require.InDelta(t, 10.0, led.stock(ledger.KindFinishedGood, "BURGER"), 1e-9)
	require.InDelta(t, 0.5, led.stock(ledger.KindRawMaterial, "RICE"), 1e-9)
	require.InDelta(t, 5.0, led.stock(ledger.KindRawMaterial, "TOMATO"), 1e-9)
}

func TestCreateMissingCodeIsValidation(t *testing.T) {
	led := newMemLedger()
	svc := NewService(newMemOrders(), memProvider{outlet.VibeComplex: led}, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Outlet: outlet.VibeComplex,
		Items:  []Line{{ItemCode: "GHOST", Quantity: 1, UnitPrice: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "GHOST", verr.Problems[0].Code)
}

func TestRecipeLeafConsumesFinishedGoodWhenLedgerHoldsOne(t *testing.T) {
	// BREAD-LOAF exists in the finished-goods ledger, so the recipe leaf
	// consumes finished stock rather than raw material.
	catalog := memCatalog{
		"PLATTER": {Code: "PLATTER", Items: []bom.Item{
			{ItemType: bom.ItemTypeRawMaterial, MaterialCode: "BREAD-LOAF", Quantity: 1},
			{ItemType: bom.ItemTypeRawMaterial, MaterialCode: "HUMMUS", Quantity: 0.5},
		}},
	}
	led := newMemLedger(
		stockItem(ledger.KindFinishedGood, "BREAD-LOAF", 6),
		stockItem(ledger.KindRawMaterial, "HUMMUS", 4),
	)
	svc := NewService(newMemOrders(), memProvider{outlet.TaibaHospital: led}, bom.NewResolver(catalog), nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Outlet:      outlet.TaibaHospital,
		RecipeItems: []RecipeLine{{BOMCode: "PLATTER", Quantity: 2, UnitPrice: 3}},
	})
	require.NoError(t, err)
	require.InDelta(t, 4.0, led.stock(ledger.KindFinishedGood, "BREAD-LOAF"), 1e-9)
	require.InDelta(t, 3.0, led.stock(ledger.KindRawMaterial, "HUMMUS"), 1e-9)
}

func TestCreateRetriesNumberCollisionOnce(t *testing.T) {
	led := newMemLedger(stockItem(ledger.KindFinishedGood, "BURGER", 10))
	orders := newMemOrders()
	orders.dupsBudget = 1
	svc := NewService(orders, memProvider{outlet.KuwaitCity: led}, nil, nil, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		Outlet: outlet.KuwaitCity,
		Items:  []Line{{ItemCode: "BURGER", Quantity: 1, UnitPrice: 1}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, order.OrderNumber)
}

func TestCreateDerivesLineTotalsAndDiscount(t *testing.T) {
	led := newMemLedger(stockItem(ledger.KindFinishedGood, "BURGER", 10))
	svc := NewService(newMemOrders(), memProvider{outlet.KuwaitCity: led}, nil, nil, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		Outlet:   outlet.KuwaitCity,
		Items:    []Line{{ItemCode: "BURGER", Quantity: 4, UnitPrice: 2.5, Total: 999}},
		Discount: 1.5,
	})
	require.NoError(t, err)
	require.InDelta(t, 10.0, order.Items[0].Total, 1e-9)
	require.InDelta(t, 10.0, order.Summary.SubTotal, 1e-9)
	require.InDelta(t, 8.5, order.Summary.Total, 1e-9)
}

type stubSync struct {
	push InvoicePush
	err  error
}

func (s *stubSync) PushInvoice(context.Context, Order) (InvoicePush, error) {
	return s.push, s.err
}

func TestInvoicePushFailureDoesNotFailSale(t *testing.T) {
	led := newMemLedger(stockItem(ledger.KindFinishedGood, "BURGER", 10))
	orders := newMemOrders()
	sync := &stubSync{err: errors.New("zoho: 500")}
	svc := NewService(orders, memProvider{outlet.KuwaitCity: led}, nil, sync, nil, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		Outlet: outlet.KuwaitCity,
		Items:  []Line{{ItemCode: "BURGER", Quantity: 1, UnitPrice: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, ZohoSyncFailed, order.ZohoSyncStatus)
	require.InDelta(t, 9.0, led.stock(ledger.KindFinishedGood, "BURGER"), 1e-9)

	// Reconciliation picks the order up once the remote recovers.
	sync.err = nil
	sync.push = InvoicePush{InvoiceID: "inv-9"}
	outcome, err := svc.RetryZohoPush(ctx)
	require.NoError(t, err)
	require.True(t, outcome[order.OrderNumber])

	stored, err := orders.Get(ctx, order.OrderNumber)
	require.NoError(t, err)
	require.Equal(t, ZohoSyncPushed, stored.ZohoSyncStatus)
	require.Equal(t, "inv-9", stored.ZohoInvoiceID)
}
