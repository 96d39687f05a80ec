// Package bom stores bills of materials and resolves them into flat
// raw-material and finished-good demand.
package bom

import (
	"fmt"
	"time"

	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// ItemType marks a BOM line as a leaf material or a nested sub-recipe.
type ItemType string

const (
	// ItemTypeRawMaterial references a ledger raw material by code.
	ItemTypeRawMaterial ItemType = "raw_material"
	// ItemTypeBOM references another BOM by code.
	ItemTypeBOM ItemType = "bom"
)

// Item is one line of a bill of materials.
type Item struct {
	ItemType     ItemType `json:"item_type"`
	MaterialCode string   `json:"material_code"`
	MaterialName string   `json:"material_name"`
	Quantity     float64  `json:"quantity"`
}

// BOM is a recipe shared across outlets, owned by the central store.
type BOM struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Items       []Item    `json:"items"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates a missing BOM code.
	ErrNotFound = fmt.Errorf("bom: %w", shared.ErrNotFound)
	// ErrCircularReference indicates a recipe that references itself on the
	// active resolution path.
	ErrCircularReference = fmt.Errorf("bom: circular reference: %w", shared.ErrValidation)
	// ErrMissingSubCode indicates a bom-typed line without a referenced code.
	ErrMissingSubCode = fmt.Errorf("bom: sub-recipe line missing bom code: %w", shared.ErrValidation)
	// ErrUnknownItemType indicates a line whose type is neither raw material nor bom.
	ErrUnknownItemType = fmt.Errorf("bom: unknown item type: %w", shared.ErrValidation)
)
