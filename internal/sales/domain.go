// Package sales implements the sales fulfillment orchestrator: direct
// finished-good lines plus BOM-resolved recipe lines are validated as one
// aggregate against a single outlet ledger, then committed in one per-outlet
// transaction, then persisted as a sales order.
package sales

import (
	"fmt"
	"strings"
	"time"

	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// Status is the sales order lifecycle state.
type Status string

const (
	StatusConfirmed Status = "Confirmed"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// Line is one direct finished-good order line. Total is always derived as
// Quantity*UnitPrice.
type Line struct {
	ItemCode  string  `json:"item_code"`
	ItemName  string  `json:"item_name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
}

// RecipeLine is one BOM-based order line, expanded into raw-material and
// finished-good demand at fulfillment time.
type RecipeLine struct {
	BOMCode   string  `json:"bom_code"`
	BOMName   string  `json:"bom_name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
}

// Summary totals one order.
type Summary struct {
	SubTotal float64 `json:"sub_total"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

// Zoho sync status values recorded on the order.
const (
	ZohoSyncNone   = "none"
	ZohoSyncPushed = "pushed"
	ZohoSyncFailed = "failed"
)

// Order is a customer transaction that consumed stock from one outlet. It is
// owned by the shared central store and references the outlet by enum ID.
type Order struct {
	ID             int64        `json:"id"`
	OrderNumber    string       `json:"order_number"`
	Outlet         outlet.ID    `json:"outlet"`
	CustomerName   string       `json:"customer_name"`
	OrderDate      time.Time    `json:"order_date"`
	Items          []Line       `json:"items"`
	RecipeItems    []RecipeLine `json:"recipe_items,omitempty"`
	Summary        Summary      `json:"summary"`
	Status         Status       `json:"status"`
	Notes          string       `json:"notes"`
	CreatedBy      string       `json:"created_by"`
	ZohoInvoiceID  string       `json:"zoho_invoice_id,omitempty"`
	ZohoSyncStatus string       `json:"zoho_sync_status,omitempty"`
	ZohoSyncError  string       `json:"zoho_sync_error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

var (
	// ErrNotFound indicates a missing sales order.
	ErrNotFound = fmt.Errorf("sales: order %w", shared.ErrNotFound)
	// ErrNoItems indicates an order without any direct or recipe lines.
	ErrNoItems = fmt.Errorf("sales: at least one order line required: %w", shared.ErrValidation)
)

// LineProblem is one invalid line found during the validation pass.
type LineProblem struct {
	Kind      ledger.Kind `json:"kind"`
	Code      string      `json:"code"`
	Reason    string      `json:"reason"`
	Requested float64     `json:"requested"`
	Available float64     `json:"available,omitempty"`
}

// ValidationError aggregates every invalid line of an order. When it is
// returned no ledger mutation has occurred.
type ValidationError struct {
	Problems []LineProblem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = fmt.Sprintf("%s %s: %s", p.Kind, p.Code, p.Reason)
	}
	return "sales: order rejected: " + strings.Join(parts, "; ")
}

// Unwrap maps the aggregate to the dominant sentinel so callers can
// distinguish stock shortage from structural problems.
func (e *ValidationError) Unwrap() error {
	for _, p := range e.Problems {
		if p.Reason == reasonInsufficient {
			return shared.ErrInsufficientStock
		}
	}
	return shared.ErrValidation
}

const (
	reasonNotFound     = "not found"
	reasonInsufficient = "insufficient stock"
)
