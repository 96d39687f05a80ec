package bom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryCatalog map[string]BOM

func (c memoryCatalog) FindByCode(_ context.Context, code string) (BOM, error) {
	if b, ok := c[code]; ok {
		return b, nil
	}
	return BOM{}, ErrNotFound
}

func raw(code string, qty float64) Item {
	return Item{ItemType: ItemTypeRawMaterial, MaterialCode: code, Quantity: qty}
}

func sub(code string, qty float64) Item {
	return Item{ItemType: ItemTypeBOM, MaterialCode: code, Quantity: qty}
}

func TestResolveNestedRecipe(t *testing.T) {
	catalog := memoryCatalog{
		"CAKE-1":       {Code: "CAKE-1", Items: []Item{sub("BOM-FROSTING", 2), raw("FLOUR", 1)}},
		"BOM-FROSTING": {Code: "BOM-FROSTING", Items: []Item{raw("SUGAR", 3)}},
	}
	resolver := NewResolver(catalog)

	demand, err := resolver.Resolve(context.Background(), "CAKE-1", 2, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"FLOUR": 2, "SUGAR": 12}, demand.RawMaterials)
	require.Empty(t, demand.FinishedGoods)
}

func TestResolveSumsAcrossBranches(t *testing.T) {
	catalog := memoryCatalog{
		"MEAL":  {Code: "MEAL", Items: []Item{sub("SAUCE", 1), sub("SIDE", 1)}},
		"SAUCE": {Code: "SAUCE", Items: []Item{raw("OIL", 2)}},
		"SIDE":  {Code: "SIDE", Items: []Item{raw("OIL", 3)}},
	}
	resolver := NewResolver(catalog)

	demand, err := resolver.Resolve(context.Background(), "MEAL", 1, nil)
	require.NoError(t, err)
	require.InDelta(t, 5.0, demand.RawMaterials["OIL"], 1e-9)
}

func TestResolveAdditiveInMultiplier(t *testing.T) {
	catalog := memoryCatalog{
		"CAKE-1":       {Code: "CAKE-1", Items: []Item{sub("BOM-FROSTING", 2), raw("FLOUR", 1)}},
		"BOM-FROSTING": {Code: "BOM-FROSTING", Items: []Item{raw("SUGAR", 3)}},
	}
	resolver := NewResolver(catalog)
	ctx := context.Background()

	whole, err := resolver.Resolve(ctx, "CAKE-1", 5, nil)
	require.NoError(t, err)

	part1, err := resolver.Resolve(ctx, "CAKE-1", 2, nil)
	require.NoError(t, err)
	part2, err := resolver.Resolve(ctx, "CAKE-1", 3, nil)
	require.NoError(t, err)
	part1.Merge(part2)

	require.Equal(t, whole.RawMaterials, part1.RawMaterials)
}

func TestResolveCycleDetection(t *testing.T) {
	catalog := memoryCatalog{
		"A": {Code: "A", Items: []Item{sub("B", 1)}},
		"B": {Code: "B", Items: []Item{sub("C", 1)}},
		"C": {Code: "C", Items: []Item{sub("A", 1)}},
	}
	resolver := NewResolver(catalog)

	_, err := resolver.Resolve(context.Background(), "A", 1, nil)
	require.ErrorIs(t, err, ErrCircularReference)
}

func TestResolveSiblingReuseIsNotACycle(t *testing.T) {
	// DOUGH appears under two siblings; that is sharing, not recursion.
	catalog := memoryCatalog{
		"COMBO": {Code: "COMBO", Items: []Item{sub("PIE", 1), sub("TART", 1)}},
		"PIE":   {Code: "PIE", Items: []Item{sub("DOUGH", 1)}},
		"TART":  {Code: "TART", Items: []Item{sub("DOUGH", 2)}},
		"DOUGH": {Code: "DOUGH", Items: []Item{raw("FLOUR", 4)}},
	}
	resolver := NewResolver(catalog)

	demand, err := resolver.Resolve(context.Background(), "COMBO", 1, nil)
	require.NoError(t, err)
	require.InDelta(t, 12.0, demand.RawMaterials["FLOUR"], 1e-9)
}

func TestResolveUnknownBOM(t *testing.T) {
	resolver := NewResolver(memoryCatalog{})
	_, err := resolver.Resolve(context.Background(), "NOPE", 1, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveMissingSubCode(t *testing.T) {
	catalog := memoryCatalog{
		"BROKEN": {Code: "BROKEN", Items: []Item{{ItemType: ItemTypeBOM, Quantity: 1}}},
	}
	resolver := NewResolver(catalog)
	_, err := resolver.Resolve(context.Background(), "BROKEN", 1, nil)
	require.ErrorIs(t, err, ErrMissingSubCode)
}

func TestResolveFinishedGoodReclassification(t *testing.T) {
	catalog := memoryCatalog{
		"PLATTER": {Code: "PLATTER", Items: []Item{raw("BREAD-LOAF", 2), raw("FLOUR", 1)}},
	}
	resolver := NewResolver(catalog)

	probe := func(_ context.Context, code string) (bool, error) {
		return code == "BREAD-LOAF", nil
	}
	demand, err := resolver.Resolve(context.Background(), "PLATTER", 3, probe)
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"FLOUR": 3}, demand.RawMaterials)
	require.Equal(t, map[string]float64{"BREAD-LOAF": 6}, demand.FinishedGoods)

	// Without a probe everything degrades to raw material.
	demand, err = resolver.Resolve(context.Background(), "PLATTER", 3, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"BREAD-LOAF": 6, "FLOUR": 3}, demand.RawMaterials)
	require.Empty(t, demand.FinishedGoods)
}
