package importer

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

type fakeCreator struct {
	created []ledger.CreateInput
	failOn  string
}

func (c *fakeCreator) Create(_ context.Context, _ outlet.ID, input ledger.CreateInput) (ledger.StockItem, error) {
	if input.Code == c.failOn {
		return ledger.StockItem{}, ledger.ErrNegativeCreate
	}
	c.created = append(c.created, input)
	return ledger.StockItem{Code: input.Code}, nil
}

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, value))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestImportPerRowBreakdown(t *testing.T) {
	buf := workbook(t, [][]any{
		{"Item Code", "Item Name", "Category", "Unit", "Unit Price", "Current Stock", "Reorder Point"},
		{"FLOUR", "Flour 25kg", "Dry Goods", "kg", 1.25, 40, 10},
		{"SUGAR", "Sugar", "Dry Goods", "kg", "not-a-number", 5, 2},
		{"SALT", "Salt", "Dry Goods", "kg", 0.5, 12, 3},
	})
	creator := &fakeCreator{}
	svc := NewService(creator, nil)

	results, err := svc.Import(context.Background(), outlet.KuwaitCity, ledger.KindRawMaterial, buf, "ops")
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.True(t, results[0].Success)
	require.Equal(t, 2, results[0].Row)
	require.False(t, results[1].Success)
	require.Contains(t, results[1].Error, "unit_price")
	require.True(t, results[2].Success)

	require.Len(t, creator.created, 2)
	require.Equal(t, "FLOUR", creator.created[0].Code)
	require.InDelta(t, 40.0, creator.created[0].InitialStock, 1e-9)
	require.InDelta(t, 10.0, creator.created[0].ReorderPoint, 1e-9)
	require.Equal(t, "ops", creator.created[0].Actor)
}

func TestImportLedgerRejectionIsPerRow(t *testing.T) {
	buf := workbook(t, [][]any{
		{"Code", "Name", "Current Stock"},
		{"A", "Item A", 1},
		{"B", "Item B", 2},
	})
	creator := &fakeCreator{failOn: "A"}
	svc := NewService(creator, nil)

	results, err := svc.Import(context.Background(), outlet.Mall360, ledger.KindRawMaterial, buf, "ops")
	require.NoError(t, err)
	require.False(t, results[0].Success)
	require.True(t, results[1].Success)
}

func TestImportRejectsWorkbookWithoutCodeColumn(t *testing.T) {
	buf := workbook(t, [][]any{
		{"Name", "Current Stock"},
		{"Item A", 1},
	})
	svc := NewService(&fakeCreator{}, nil)

	_, err := svc.Import(context.Background(), outlet.KuwaitCity, ledger.KindRawMaterial, buf, "ops")
	require.ErrorIs(t, err, shared.ErrValidation)
}

type fakeLister struct {
	items []ledger.StockItem
}

func (l *fakeLister) List(_ context.Context, _ outlet.ID, filter ledger.ListFilter) ([]ledger.StockItem, shared.Pagination, error) {
	if filter.Page > 1 {
		return nil, shared.NewPagination(filter.Page, filter.PerPage, len(l.items)), nil
	}
	return l.items, shared.NewPagination(filter.Page, filter.PerPage, len(l.items)), nil
}

func TestExportRoundTrip(t *testing.T) {
	lister := &fakeLister{items: []ledger.StockItem{
		{Code: "FLOUR", Name: "Flour 25kg", Category: "Dry Goods", UnitOfMeasure: "kg",
			UnitPrice: 1.25, CurrentStock: 40, ReorderPoint: 10, Status: "In Stock"},
		{Code: "SUGAR", Name: "Sugar", Category: "Dry Goods", UnitOfMeasure: "kg",
			UnitPrice: 0.8, CurrentStock: 2, ReorderPoint: 5, Status: "Low Stock"},
	}}
	svc := NewService(nil, lister)

	var buf bytes.Buffer
	err := svc.Export(context.Background(), outlet.VibeComplex, ledger.KindRawMaterial, &buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	sheet := f.GetSheetName(0)

	header, err := f.GetCellValue(sheet, "A1")
	require.NoError(t, err)
	require.Equal(t, "Code", header)

	code, err := f.GetCellValue(sheet, "A3")
	require.NoError(t, err)
	require.Equal(t, "SUGAR", code)
	status, err := f.GetCellValue(sheet, "K3")
	require.NoError(t, err)
	require.Equal(t, "Low Stock", status)
}

func TestExportedWorkbookReimports(t *testing.T) {
	lister := &fakeLister{items: []ledger.StockItem{
		{Code: "FLOUR", Name: "Flour 25kg", UnitOfMeasure: "kg", UnitPrice: 1.25, CurrentStock: 40},
	}}
	creator := &fakeCreator{}
	svc := NewService(creator, lister)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, outlet.KuwaitCity, ledger.KindRawMaterial, &buf))

	results, err := svc.Import(ctx, outlet.KuwaitCity, ledger.KindRawMaterial, &buf, "ops")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success, fmt.Sprintf("%+v", results[0]))
	require.InDelta(t, 40.0, creator.created[0].InitialStock, 1e-9)
}
