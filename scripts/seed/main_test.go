package main

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soufra-erp/soufra-erp/internal/bom"
)

type memCatalog map[string]bom.BOM

func (c memCatalog) FindByCode(_ context.Context, code string) (bom.BOM, error) {
	b, ok := c[code]
	if !ok {
		return bom.BOM{}, fmt.Errorf("%w: %s", bom.ErrNotFound, code)
	}
	return b, nil
}

// The seeded recipes must survive the JSONB round trip and come back in the
// exact shape the resolver decodes.
func TestStarterBOMsResolveAfterRoundTrip(t *testing.T) {
	catalog := memCatalog{}
	for _, b := range starterBOMs {
		payload, err := json.Marshal(b.items)
		require.NoError(t, err)

		var items []bom.Item
		require.NoError(t, json.Unmarshal(payload, &items))
		for _, line := range items {
			require.NotEmpty(t, line.ItemType, "item_type lost in round trip for %s", b.code)
			require.NotEmpty(t, line.MaterialCode, "material_code lost in round trip for %s", b.code)
		}
		catalog[b.code] = bom.BOM{Code: b.code, Name: b.name, Items: items, IsActive: true}
	}

	resolver := bom.NewResolver(catalog)
	for _, b := range starterBOMs {
		demand, err := resolver.Resolve(context.Background(), b.code, 1, nil)
		require.NoError(t, err, "seeded recipe %s must resolve", b.code)
		require.NotEmpty(t, demand.RawMaterials, b.code)
	}

	// The machboos recipe nests the sauce; its demand flattens to leaves.
	demand, err := resolver.Resolve(context.Background(), "BOM-MACHBOOS", 2, nil)
	require.NoError(t, err)
	require.InDelta(t, 0.5, demand.RawMaterials["CHICKEN"], 1e-9)
	require.InDelta(t, 0.4, demand.RawMaterials["RICE"], 1e-9)
	require.InDelta(t, 0.4, demand.RawMaterials["TOMATO"], 1e-9)
	require.InDelta(t, 0.1, demand.RawMaterials["ONION"], 1e-9)
	require.InDelta(t, 0.05, demand.RawMaterials["OIL"], 1e-9)
}
