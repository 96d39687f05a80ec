package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// Store abstracts one outlet's ledger for the service layer.
type Store interface {
	Outlet() outlet.ID
	FindByCode(ctx context.Context, kind Kind, code string) (StockItem, error)
	UpsertIncrement(ctx context.Context, kind Kind, code string, delta float64, defaults Defaults) (StockItem, error)
	Decrement(ctx context.Context, kind Kind, code string, qty float64) (StockItem, error)
	SoftDelete(ctx context.Context, kind Kind, code string, actor string) error
	List(ctx context.Context, filter ListFilter) ([]StockItem, int, error)
	DistinctCategories(ctx context.Context, kind Kind) ([]string, error)
	FindLowStock(ctx context.Context, kind Kind) ([]StockItem, error)
}

// Provider resolves the ledger store for an outlet.
type Provider interface {
	Store(id outlet.ID) (Store, error)
}

// Store adapts Factory to the Provider port.
func (f *Factory) Store(id outlet.ID) (Store, error) {
	repo, err := f.Get(id)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Service coordinates ledger operations across outlets.
type Service struct {
	provider Provider
	audit    shared.AuditRecorder
}

// NewService builds Service. The audit recorder may be nil.
func NewService(provider Provider, audit shared.AuditRecorder) *Service {
	return &Service{provider: provider, audit: audit}
}

// CreateInput describes a new stock item.
type CreateInput struct {
	Kind          Kind
	Code          string
	Name          string
	Category      string
	SubCategory   string
	UnitOfMeasure string
	UnitPrice     float64
	InitialStock  float64
	MinimumStock  float64
	MaximumStock  float64
	ReorderPoint  float64
	Actor         string
}

// Item fetches one stock item.
func (s *Service) Item(ctx context.Context, id outlet.ID, kind Kind, code string) (StockItem, error) {
	store, err := s.provider.Store(id)
	if err != nil {
		return StockItem{}, err
	}
	return store.FindByCode(ctx, kind, code)
}

// Create registers a stock item, upserting by business code. A second create
// for the same code adds its initial stock rather than failing, matching
// import semantics.
func (s *Service) Create(ctx context.Context, id outlet.ID, input CreateInput) (StockItem, error) {
	if !input.Kind.Valid() {
		return StockItem{}, fmt.Errorf("ledger: unknown kind %q: %w", input.Kind, shared.ErrValidation)
	}
	if input.Code == "" || input.Name == "" {
		return StockItem{}, fmt.Errorf("ledger: code and name required: %w", shared.ErrValidation)
	}
	if input.InitialStock < 0 {
		return StockItem{}, ErrNegativeCreate
	}
	store, err := s.provider.Store(id)
	if err != nil {
		return StockItem{}, err
	}
	item, err := store.UpsertIncrement(ctx, input.Kind, input.Code, input.InitialStock, Defaults{
		Name:          input.Name,
		Category:      input.Category,
		SubCategory:   input.SubCategory,
		UnitOfMeasure: input.UnitOfMeasure,
		UnitPrice:     input.UnitPrice,
		MinimumStock:  input.MinimumStock,
		MaximumStock:  input.MaximumStock,
		ReorderPoint:  input.ReorderPoint,
		Actor:         input.Actor,
	})
	if err != nil {
		return StockItem{}, err
	}
	s.record(ctx, input.Actor, "ledger:create", id, input.Kind, input.Code, map[string]any{
		"initial_stock": input.InitialStock,
	})
	return item, nil
}

// Adjust applies a signed stock delta to an existing item.
func (s *Service) Adjust(ctx context.Context, id outlet.ID, kind Kind, code string, delta float64, actor string) (StockItem, error) {
	if delta == 0 {
		return StockItem{}, ErrInvalidQuantity
	}
	store, err := s.provider.Store(id)
	if err != nil {
		return StockItem{}, err
	}
	existing, err := store.FindByCode(ctx, kind, code)
	if err != nil {
		return StockItem{}, err
	}
	item, err := store.UpsertIncrement(ctx, kind, code, delta, DefaultsFrom(existing, actor))
	if err != nil {
		return StockItem{}, err
	}
	s.record(ctx, actor, "ledger:adjust", id, kind, code, map[string]any{"delta": delta})
	return item, nil
}

// SoftDelete deactivates an item.
func (s *Service) SoftDelete(ctx context.Context, id outlet.ID, kind Kind, code string, actor string) error {
	store, err := s.provider.Store(id)
	if err != nil {
		return err
	}
	if err := store.SoftDelete(ctx, kind, code, actor); err != nil {
		return err
	}
	s.record(ctx, actor, "ledger:soft_delete", id, kind, code, nil)
	return nil
}

// List returns a page of items with pagination metadata.
func (s *Service) List(ctx context.Context, id outlet.ID, filter ListFilter) ([]StockItem, shared.Pagination, error) {
	store, err := s.provider.Store(id)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	items, total, err := store.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Categories lists distinct categories for a kind.
func (s *Service) Categories(ctx context.Context, id outlet.ID, kind Kind) ([]string, error) {
	store, err := s.provider.Store(id)
	if err != nil {
		return nil, err
	}
	return store.DistinctCategories(ctx, kind)
}

// LowStock lists one outlet's items at or below reorder point.
func (s *Service) LowStock(ctx context.Context, id outlet.ID, kind Kind) ([]StockItem, error) {
	store, err := s.provider.Store(id)
	if err != nil {
		return nil, err
	}
	return store.FindLowStock(ctx, kind)
}

// OutletLowStock pairs an outlet with its low-stock items.
type OutletLowStock struct {
	Outlet outlet.ID   `json:"outlet"`
	Items  []StockItem `json:"items"`
}

// LowStockAcrossOutlets fans out over every outlet database concurrently.
func (s *Service) LowStockAcrossOutlets(ctx context.Context, kind Kind) ([]OutletLowStock, error) {
	var (
		mu      sync.Mutex
		results []OutletLowStock
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range outlet.All {
		id := id
		g.Go(func() error {
			items, err := s.LowStock(ctx, id, kind)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			mu.Lock()
			results = append(results, OutletLowStock{Outlet: id, Items: items})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Outlet < results[j].Outlet })
	return results, nil
}

func (s *Service) record(ctx context.Context, actor, action string, id outlet.ID, kind Kind, code string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["outlet"] = string(id)
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "stock_item",
		EntityID: fmt.Sprintf("%s/%s", kind, code),
		Meta:     meta,
	})
}
