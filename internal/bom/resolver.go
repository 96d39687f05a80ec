package bom

import (
	"context"
	"fmt"
)

// Catalog looks BOMs up by code.
type Catalog interface {
	FindByCode(ctx context.Context, code string) (BOM, error)
}

// FinishedGoodProbe reports whether the destination outlet's ledger holds a
// finished good under the given code. A nil probe degrades the resolver to
// treating every leaf as raw material, for outlets without a finished-goods
// ledger.
type FinishedGoodProbe func(ctx context.Context, code string) (bool, error)

// Demand is the flat multiset a recipe expands to. Quantities for the same
// code from different branches sum, never overwrite.
type Demand struct {
	RawMaterials  map[string]float64
	FinishedGoods map[string]float64
}

// NewDemand returns an empty demand accumulator.
func NewDemand() Demand {
	return Demand{
		RawMaterials:  make(map[string]float64),
		FinishedGoods: make(map[string]float64),
	}
}

// Merge sums other into d.
func (d Demand) Merge(other Demand) {
	for code, qty := range other.RawMaterials {
		d.RawMaterials[code] += qty
	}
	for code, qty := range other.FinishedGoods {
		d.FinishedGoods[code] += qty
	}
}

// Resolver expands recipes against a catalog.
type Resolver struct {
	catalog Catalog
}

// NewResolver builds a Resolver.
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve expands bomCode scaled by multiplier into flat demand. Quantities
// are float64 and never rounded here; rounding belongs to reporting.
func (r *Resolver) Resolve(ctx context.Context, bomCode string, multiplier float64, probe FinishedGoodProbe) (Demand, error) {
	demand := NewDemand()
	visiting := make(map[string]bool)
	if err := r.resolve(ctx, bomCode, multiplier, probe, visiting, demand); err != nil {
		return Demand{}, err
	}
	return demand, nil
}

func (r *Resolver) resolve(ctx context.Context, bomCode string, multiplier float64, probe FinishedGoodProbe, visiting map[string]bool, demand Demand) error {
	if visiting[bomCode] {
		return fmt.Errorf("%w: %s", ErrCircularReference, bomCode)
	}
	recipe, err := r.catalog.FindByCode(ctx, bomCode)
	if err != nil {
		return err
	}
	visiting[bomCode] = true
	// Release after the subtree so siblings may reuse the code; only a cycle
	// on the active path is rejected.
	defer delete(visiting, bomCode)

	for _, line := range recipe.Items {
		switch line.ItemType {
		case ItemTypeBOM:
			if line.MaterialCode == "" {
				return fmt.Errorf("%w (in %s)", ErrMissingSubCode, bomCode)
			}
			if err := r.resolve(ctx, line.MaterialCode, line.Quantity*multiplier, probe, visiting, demand); err != nil {
				return err
			}
		case ItemTypeRawMaterial:
			qty := line.Quantity * multiplier
			if probe != nil {
				isFinished, err := probe(ctx, line.MaterialCode)
				if err != nil {
					return fmt.Errorf("bom: probe %s: %w", line.MaterialCode, err)
				}
				if isFinished {
					demand.FinishedGoods[line.MaterialCode] += qty
					continue
				}
			}
			demand.RawMaterials[line.MaterialCode] += qty
		default:
			return fmt.Errorf("%w: %q in %s", ErrUnknownItemType, line.ItemType, bomCode)
		}
	}
	return nil
}
