// Package ledger implements the per-outlet stock ledger: raw materials and
// finished goods addressed by business code, with atomic stock mutation.
package ledger

import (
	"fmt"
	"time"

	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// Kind distinguishes the two stock item variants held by an outlet.
type Kind string

const (
	// KindRawMaterial marks ingredient stock.
	KindRawMaterial Kind = "raw_material"
	// KindFinishedGood marks sellable product stock.
	KindFinishedGood Kind = "finished_good"
)

// Valid reports whether the kind is one of the two known variants.
func (k Kind) Valid() bool {
	return k == KindRawMaterial || k == KindFinishedGood
}

// StockItem is one inventory line within one outlet ledger. Code is the
// business key, unique per kind within an outlet.
type StockItem struct {
	ID            int64     `json:"id"`
	Kind          Kind      `json:"kind"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	SubCategory   string    `json:"sub_category"`
	UnitOfMeasure string    `json:"unit_of_measure"`
	UnitPrice     float64   `json:"unit_price"`
	CurrentStock  float64   `json:"current_stock"`
	MinimumStock  float64   `json:"minimum_stock"`
	MaximumStock  float64   `json:"maximum_stock"`
	ReorderPoint  float64   `json:"reorder_point"`
	Status        string    `json:"status"`
	IsActive      bool      `json:"is_active"`
	CreatedBy     string    `json:"created_by"`
	UpdatedBy     string    `json:"updated_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Defaults supplies descriptive fields when an upsert has to create the
// record, e.g. the first-ever transfer of a code into an outlet.
type Defaults struct {
	Name          string
	Category      string
	SubCategory   string
	UnitOfMeasure string
	UnitPrice     float64
	MinimumStock  float64
	MaximumStock  float64
	ReorderPoint  float64
	Actor         string
}

// DefaultsFrom copies the descriptive fields of an existing record.
func DefaultsFrom(item StockItem, actor string) Defaults {
	return Defaults{
		Name:          item.Name,
		Category:      item.Category,
		SubCategory:   item.SubCategory,
		UnitOfMeasure: item.UnitOfMeasure,
		UnitPrice:     item.UnitPrice,
		MinimumStock:  item.MinimumStock,
		MaximumStock:  item.MaximumStock,
		ReorderPoint:  item.ReorderPoint,
		Actor:         actor,
	}
}

// ListFilter filters paginated ledger queries.
type ListFilter struct {
	Kind     Kind
	Category string
	Status   string
	Search   string
	Page     int
	PerPage  int
}

var (
	// ErrNotFound indicates a missing stock item.
	ErrNotFound = fmt.Errorf("ledger: stock item %w", shared.ErrNotFound)
	// ErrInsufficientStock indicates a mutation that would drive stock negative.
	ErrInsufficientStock = fmt.Errorf("ledger: %w", shared.ErrInsufficientStock)
	// ErrInvalidQuantity indicates a non-positive quantity where one is required.
	ErrInvalidQuantity = fmt.Errorf("ledger: quantity must be positive: %w", shared.ErrValidation)
	// ErrNegativeCreate indicates an upsert that would create a record with negative stock.
	ErrNegativeCreate = fmt.Errorf("ledger: cannot create item with negative stock: %w", shared.ErrValidation)
)
