package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soufra-erp/soufra-erp/internal/bom"
	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// OrderStore abstracts sales order persistence for the service.
type OrderStore interface {
	Create(ctx context.Context, order Order) (Order, error)
	Get(ctx context.Context, orderNumber string) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	UpdateStatus(ctx context.Context, orderNumber string, status Status) error
	SaveZohoSync(ctx context.Context, orderNumber, invoiceID, status, syncErr string) error
	ListZohoFailed(ctx context.Context) ([]Order, error)
}

// Ledger is the per-outlet surface the orchestrator needs: point reads plus a
// transactional mutation scope. *ledger.Repository satisfies it.
type Ledger interface {
	FindByCode(ctx context.Context, kind ledger.Kind, code string) (ledger.StockItem, error)
	WithTx(ctx context.Context, fn func(context.Context, ledger.TxStore) error) error
}

// LedgerProvider resolves the transactional ledger for an outlet.
type LedgerProvider interface {
	Ledger(id outlet.ID) (Ledger, error)
}

// FactoryProvider adapts ledger.Factory to the LedgerProvider port.
type FactoryProvider struct {
	Factory *ledger.Factory
}

func (p FactoryProvider) Ledger(id outlet.ID) (Ledger, error) {
	return p.Factory.Get(id)
}

// RecipeResolver expands a BOM code into flat demand. *bom.Resolver satisfies it.
type RecipeResolver interface {
	Resolve(ctx context.Context, bomCode string, multiplier float64, probe bom.FinishedGoodProbe) (bom.Demand, error)
}

// InvoicePush reports a successful external invoice push.
type InvoicePush struct {
	InvoiceID     string
	InvoiceNumber string
}

// SyncPort pushes sales invoices to the external inventory system.
type SyncPort interface {
	PushInvoice(ctx context.Context, order Order) (InvoicePush, error)
}

// Service is the sales fulfillment orchestrator.
type Service struct {
	orders   OrderStore
	ledgers  LedgerProvider
	resolver RecipeResolver
	sync     SyncPort
	audit    shared.AuditRecorder
	logger   *slog.Logger
}

// NewService builds the orchestrator. resolver is required when recipe lines
// are used; sync and audit may be nil.
func NewService(orders OrderStore, ledgers LedgerProvider, resolver RecipeResolver, sync SyncPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orders: orders, ledgers: ledgers, resolver: resolver, sync: sync, audit: audit, logger: logger}
}

// CreateInput describes an order to fulfill.
type CreateInput struct {
	Outlet       outlet.ID
	CustomerName string
	OrderDate    time.Time
	Items        []Line
	RecipeItems  []RecipeLine
	Discount     float64
	Notes        string
	Actor        string
}

// Create validates the whole order against the outlet ledger — direct lines
// and BOM-resolved aggregate demand together — then commits every decrement
// in one per-outlet transaction, then persists the order. A rejected order
// performs zero ledger mutations and reports every invalid line at once.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if !input.Outlet.Valid() {
		return Order{}, fmt.Errorf("sales: %w: %s", outlet.ErrUnknownOutlet, input.Outlet)
	}
	if len(input.Items) == 0 && len(input.RecipeItems) == 0 {
		return Order{}, ErrNoItems
	}
	items, recipes, summary, err := deriveTotals(input)
	if err != nil {
		return Order{}, err
	}

	led, err := s.ledgers.Ledger(input.Outlet)
	if err != nil {
		return Order{}, err
	}
	demand, err := s.expandDemand(ctx, led, items, recipes)
	if err != nil {
		return Order{}, err
	}
	if err := s.consume(ctx, led, demand); err != nil {
		return Order{}, err
	}

	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	order := Order{
		Outlet:       input.Outlet,
		CustomerName: input.CustomerName,
		OrderDate:    orderDate,
		Items:        items,
		RecipeItems:  recipes,
		Summary:      summary,
		Status:       StatusConfirmed,
		Notes:        input.Notes,
		CreatedBy:    input.Actor,
	}
	created, err := s.createWithRetry(ctx, order)
	if err != nil {
		// Stock is already consumed; persistence failure here needs operator
		// attention, not silent retry loops.
		s.logger.Error("sales order persist failed after stock consumption",
			slog.String("outlet", string(input.Outlet)), slog.Any("error", err))
		return Order{}, err
	}

	s.record(ctx, input.Actor, "sales:create", created.OrderNumber, map[string]any{
		"outlet": string(created.Outlet), "total": created.Summary.Total,
	})
	s.pushInvoice(ctx, &created)
	return created, nil
}

func deriveTotals(input CreateInput) ([]Line, []RecipeLine, Summary, error) {
	items := make([]Line, len(input.Items))
	var subTotal float64
	for i, line := range input.Items {
		if line.ItemCode == "" || line.Quantity <= 0 {
			return nil, nil, Summary{}, fmt.Errorf("sales: item code and positive quantity required: %w", shared.ErrValidation)
		}
		line.Total = line.Quantity * line.UnitPrice
		subTotal += line.Total
		items[i] = line
	}
	recipes := make([]RecipeLine, len(input.RecipeItems))
	for i, line := range input.RecipeItems {
		if line.BOMCode == "" || line.Quantity <= 0 {
			return nil, nil, Summary{}, fmt.Errorf("sales: bom code and positive quantity required: %w", shared.ErrValidation)
		}
		line.Total = line.Quantity * line.UnitPrice
		subTotal += line.Total
		recipes[i] = line
	}
	if input.Discount < 0 || input.Discount > subTotal {
		return nil, nil, Summary{}, fmt.Errorf("sales: discount out of range: %w", shared.ErrValidation)
	}
	return items, recipes, Summary{
		SubTotal: subTotal,
		Discount: input.Discount,
		Total:    subTotal - input.Discount,
	}, nil
}

// expandDemand merges direct lines and every recipe line's resolved demand
// into one aggregate per ledger kind. Quantities for the same code sum.
func (s *Service) expandDemand(ctx context.Context, led Ledger, items []Line, recipes []RecipeLine) (bom.Demand, error) {
	demand := bom.NewDemand()
	for _, line := range items {
		demand.FinishedGoods[line.ItemCode] += line.Quantity
	}
	if len(recipes) == 0 {
		return demand, nil
	}
	if s.resolver == nil {
		return bom.Demand{}, fmt.Errorf("sales: recipe lines need a resolver: %w", shared.ErrValidation)
	}
	probe := func(ctx context.Context, code string) (bool, error) {
		_, err := led.FindByCode(ctx, ledger.KindFinishedGood, code)
		if errors.Is(err, ledger.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	for _, line := range recipes {
		resolved, err := s.resolver.Resolve(ctx, line.BOMCode, line.Quantity, probe)
		if err != nil {
			return bom.Demand{}, err
		}
		demand.Merge(resolved)
	}
	return demand, nil
}

// consume runs the validate-then-commit pass inside one outlet transaction.
// Every code is checked before any decrement; problems are collected, not
// short-circuited, so the caller sees the full list.
func (s *Service) consume(ctx context.Context, led Ledger, demand bom.Demand) error {
	return led.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		var problems []LineProblem
		check := func(kind ledger.Kind, codes map[string]float64) error {
			for _, code := range sortedCodes(codes) {
				qty := codes[code]
				item, err := tx.FindByCode(ctx, kind, code)
				if errors.Is(err, ledger.ErrNotFound) {
					problems = append(problems, LineProblem{Kind: kind, Code: code, Reason: reasonNotFound, Requested: qty})
					continue
				}
				if err != nil {
					return err
				}
				if item.CurrentStock < qty {
					problems = append(problems, LineProblem{
						Kind: kind, Code: code, Reason: reasonInsufficient,
						Requested: qty, Available: item.CurrentStock,
					})
				}
			}
			return nil
		}
		if err := check(ledger.KindRawMaterial, demand.RawMaterials); err != nil {
			return err
		}
		if err := check(ledger.KindFinishedGood, demand.FinishedGoods); err != nil {
			return err
		}
		if len(problems) > 0 {
			return &ValidationError{Problems: problems}
		}

		for _, code := range sortedCodes(demand.RawMaterials) {
			if _, err := tx.Decrement(ctx, ledger.KindRawMaterial, code, demand.RawMaterials[code]); err != nil {
				return err
			}
		}
		for _, code := range sortedCodes(demand.FinishedGoods) {
			if _, err := tx.Decrement(ctx, ledger.KindFinishedGood, code, demand.FinishedGoods[code]); err != nil {
				return err
			}
		}
		return nil
	})
}

func sortedCodes(m map[string]float64) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// createWithRetry regenerates the order number exactly once on collision.
func (s *Service) createWithRetry(ctx context.Context, order Order) (Order, error) {
	order.OrderNumber = newOrderNumber(order.Outlet)
	created, err := s.orders.Create(ctx, order)
	if errors.Is(err, ErrDuplicateNumber) {
		order.OrderNumber = newOrderNumber(order.Outlet)
		created, err = s.orders.Create(ctx, order)
		if errors.Is(err, ErrDuplicateNumber) {
			return Order{}, fmt.Errorf("sales: order number collision after retry: %w", shared.ErrConflict)
		}
	}
	return created, err
}

func newOrderNumber(id outlet.ID) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("SO-%s-%d-%s", id.Code(), time.Now().UnixMilli(), suffix)
}

// pushInvoice pushes the order to the external system. A remote failure never
// fails the sale; it is recorded for reconciliation.
func (s *Service) pushInvoice(ctx context.Context, order *Order) {
	if s.sync == nil {
		return
	}
	push, err := s.sync.PushInvoice(ctx, *order)
	if err != nil {
		s.logger.Warn("zoho invoice push failed",
			slog.String("order", order.OrderNumber), slog.Any("error", err))
		order.ZohoSyncStatus = ZohoSyncFailed
		order.ZohoSyncError = err.Error()
		if saveErr := s.orders.SaveZohoSync(ctx, order.OrderNumber, "", ZohoSyncFailed, err.Error()); saveErr != nil {
			s.logger.Error("record zoho failure", slog.Any("error", saveErr))
		}
		return
	}
	order.ZohoSyncStatus = ZohoSyncPushed
	order.ZohoInvoiceID = push.InvoiceID
	if err := s.orders.SaveZohoSync(ctx, order.OrderNumber, push.InvoiceID, ZohoSyncPushed, ""); err != nil {
		s.logger.Error("record zoho success", slog.Any("error", err))
	}
}

// Get fetches one order.
func (s *Service) Get(ctx context.Context, orderNumber string) (Order, error) {
	return s.orders.Get(ctx, orderNumber)
}

// List returns a page of orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, shared.Pagination, error) {
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Complete marks a Confirmed order delivered.
func (s *Service) Complete(ctx context.Context, orderNumber, actor string) (Order, error) {
	return s.transition(ctx, orderNumber, actor, StatusCompleted)
}

// Cancel voids a Confirmed order. Stock already consumed is not restored;
// returns go through a stock adjustment, not through cancellation.
func (s *Service) Cancel(ctx context.Context, orderNumber, actor string) (Order, error) {
	return s.transition(ctx, orderNumber, actor, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, orderNumber, actor string, to Status) (Order, error) {
	order, err := s.orders.Get(ctx, orderNumber)
	if err != nil {
		return Order{}, err
	}
	if order.Status != StatusConfirmed {
		return Order{}, fmt.Errorf("sales: order %s is %s: %w", orderNumber, order.Status, shared.ErrValidation)
	}
	if err := s.orders.UpdateStatus(ctx, orderNumber, to); err != nil {
		return Order{}, err
	}
	s.record(ctx, actor, "sales:"+strings.ToLower(string(to)), orderNumber, nil)
	order.Status = to
	return order, nil
}

// RetryZohoPush re-pushes every order whose invoice push previously failed.
func (s *Service) RetryZohoPush(ctx context.Context) (map[string]bool, error) {
	if s.sync == nil {
		return nil, fmt.Errorf("sales: no sync adapter configured: %w", shared.ErrValidation)
	}
	failed, err := s.orders.ListZohoFailed(ctx)
	if err != nil {
		return nil, err
	}
	outcome := make(map[string]bool, len(failed))
	for _, order := range failed {
		s.pushInvoice(ctx, &order)
		outcome[order.OrderNumber] = order.ZohoSyncStatus == ZohoSyncPushed
	}
	return outcome, nil
}

func (s *Service) record(ctx context.Context, actor, action, orderNumber string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "sales_order",
		EntityID: orderNumber,
		Meta:     meta,
	})
}
