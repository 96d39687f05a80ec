// Package importer moves an outlet ledger in and out of Excel workbooks:
// bulk upload with a per-row breakdown, and full-ledger export.
package importer

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// Creator is the ledger surface imports write through. *ledger.Service
// satisfies it; its create semantics add stock on repeated codes, which is
// exactly what re-running an import should do.
type Creator interface {
	Create(ctx context.Context, id outlet.ID, input ledger.CreateInput) (ledger.StockItem, error)
}

// Lister is the ledger surface exports read through.
type Lister interface {
	List(ctx context.Context, id outlet.ID, filter ledger.ListFilter) ([]ledger.StockItem, shared.Pagination, error)
}

// RowResult is the outcome of one imported spreadsheet row.
type RowResult struct {
	Row     int    `json:"row"`
	Code    string `json:"code"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Service runs Excel imports and exports against one ledger surface.
type Service struct {
	creator Creator
	lister  Lister
}

// NewService builds Service.
func NewService(creator Creator, lister Lister) *Service {
	return &Service{creator: creator, lister: lister}
}

var headerAliases = map[string]string{
	"code":            "code",
	"item code":       "code",
	"sku":             "code",
	"name":            "name",
	"item name":       "name",
	"category":        "category",
	"sub category":    "sub_category",
	"sub_category":    "sub_category",
	"unit":            "unit",
	"unit of measure": "unit",
	"uom":             "unit",
	"unit price":      "unit_price",
	"unit_price":      "unit_price",
	"price":           "unit_price",
	"current stock":   "current_stock",
	"current_stock":   "current_stock",
	"stock":           "current_stock",
	"minimum stock":   "minimum_stock",
	"minimum_stock":   "minimum_stock",
	"maximum stock":   "maximum_stock",
	"maximum_stock":   "maximum_stock",
	"reorder point":   "reorder_point",
	"reorder_point":   "reorder_point",
}

// Import reads an xlsx workbook and upserts one stock item per row. The
// whole import never fails on a bad row; every row reports its own outcome.
func (s *Service) Import(ctx context.Context, id outlet.ID, kind ledger.Kind, r io.Reader, actor string) ([]RowResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("importer: open workbook: %w", shared.ErrValidation)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("importer: read sheet: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("importer: workbook has no data rows: %w", shared.ErrValidation)
	}

	columns := map[string]int{}
	for i, header := range rows[0] {
		if field, ok := headerAliases[strings.ToLower(strings.TrimSpace(header))]; ok {
			columns[field] = i
		}
	}
	if _, ok := columns["code"]; !ok {
		return nil, fmt.Errorf("importer: missing code column: %w", shared.ErrValidation)
	}
	if _, ok := columns["name"]; !ok {
		return nil, fmt.Errorf("importer: missing name column: %w", shared.ErrValidation)
	}

	cell := func(row []string, field string) string {
		idx, ok := columns[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var results []RowResult
	for i, row := range rows[1:] {
		rowNo := i + 2
		code := cell(row, "code")
		if code == "" && cell(row, "name") == "" {
			continue
		}
		input, err := buildInput(kind, code, row, cell, actor)
		if err != nil {
			results = append(results, RowResult{Row: rowNo, Code: code, Error: err.Error()})
			continue
		}
		if _, err := s.creator.Create(ctx, id, input); err != nil {
			results = append(results, RowResult{Row: rowNo, Code: code, Error: err.Error()})
			continue
		}
		results = append(results, RowResult{Row: rowNo, Code: code, Success: true})
	}
	return results, nil
}

func buildInput(kind ledger.Kind, code string, row []string, cell func([]string, string) string, actor string) (ledger.CreateInput, error) {
	number := func(field string) (float64, error) {
		raw := cell(row, field)
		if raw == "" {
			return 0, nil
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			return 0, fmt.Errorf("importer: %s %q is not a number", field, raw)
		}
		return value, nil
	}

	input := ledger.CreateInput{
		Kind:          kind,
		Code:          code,
		Name:          cell(row, "name"),
		Category:      cell(row, "category"),
		SubCategory:   cell(row, "sub_category"),
		UnitOfMeasure: cell(row, "unit"),
		Actor:         actor,
	}
	var err error
	if input.UnitPrice, err = number("unit_price"); err != nil {
		return ledger.CreateInput{}, err
	}
	if input.InitialStock, err = number("current_stock"); err != nil {
		return ledger.CreateInput{}, err
	}
	if input.MinimumStock, err = number("minimum_stock"); err != nil {
		return ledger.CreateInput{}, err
	}
	if input.MaximumStock, err = number("maximum_stock"); err != nil {
		return ledger.CreateInput{}, err
	}
	if input.ReorderPoint, err = number("reorder_point"); err != nil {
		return ledger.CreateInput{}, err
	}
	return input, nil
}

var exportHeaders = []string{
	"Code", "Name", "Category", "Sub Category", "Unit",
	"Unit Price", "Current Stock", "Minimum Stock", "Maximum Stock",
	"Reorder Point", "Status",
}

const exportPageSize = 500

// Export writes an outlet's full ledger for one kind into an xlsx workbook.
func (s *Service) Export(ctx context.Context, id outlet.ID, kind ledger.Kind, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for col, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("importer: header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("importer: write header: %w", err)
		}
	}

	rowNo := 2
	for page := 1; ; page++ {
		items, pagination, err := s.lister.List(ctx, id, ledger.ListFilter{
			Kind: kind, Page: page, PerPage: exportPageSize,
		})
		if err != nil {
			return err
		}
		for _, item := range items {
			values := []any{
				item.Code, item.Name, item.Category, item.SubCategory,
				item.UnitOfMeasure, item.UnitPrice, item.CurrentStock,
				item.MinimumStock, item.MaximumStock, item.ReorderPoint,
				item.Status,
			}
			for col, value := range values {
				cell, err := excelize.CoordinatesToCellName(col+1, rowNo)
				if err != nil {
					return fmt.Errorf("importer: data cell: %w", err)
				}
				if err := f.SetCellValue(sheet, cell, value); err != nil {
					return fmt.Errorf("importer: write row: %w", err)
				}
			}
			rowNo++
		}
		if page >= pagination.TotalPages || len(items) == 0 {
			break
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("importer: write workbook: %w", err)
	}
	return nil
}
