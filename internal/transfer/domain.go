// Package transfer implements inter-outlet stock transfer orders and the
// coordinator that moves stock between two independently connected ledgers.
package transfer

import (
	"fmt"
	"time"

	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// Status is the transfer order lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusApproved  Status = "Approved"
	StatusRejected  Status = "Rejected"
	StatusInTransit Status = "In Transit"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusFailed    Status = "Failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Priority orders transfer requests for fulfilment.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// Valid reports whether the priority is a known level.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Line is one item movement requested by a transfer order. TotalValue is
// always derived as Quantity*UnitPrice; caller-supplied totals are ignored.
type Line struct {
	ItemType   ledger.Kind `json:"item_type"`
	ItemCode   string      `json:"item_code"`
	ItemName   string      `json:"item_name"`
	Quantity   float64     `json:"quantity"`
	UnitPrice  float64     `json:"unit_price"`
	TotalValue float64     `json:"total_value"`
}

// Result is the per-item audit entry recorded while processing an approval.
type Result struct {
	ItemCode string `json:"item_code"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// Order is a transfer order kept in the central store. Outlets are enum IDs,
// never free text.
type Order struct {
	ID                  int64      `json:"id"`
	TransferNumber      string     `json:"transfer_number"`
	FromOutlet          outlet.ID  `json:"from_outlet"`
	ToOutlet            outlet.ID  `json:"to_outlet"`
	TransferDate        time.Time  `json:"transfer_date"`
	Priority            Priority   `json:"priority"`
	Items               []Line     `json:"items"`
	TotalAmount         float64    `json:"total_amount"`
	Status              Status     `json:"status"`
	Notes               string     `json:"notes"`
	RequestedBy         string     `json:"requested_by"`
	ApprovedBy          string     `json:"approved_by,omitempty"`
	Results             []Result   `json:"transfer_results,omitempty"`
	ZohoTransferOrderID string     `json:"zoho_transfer_order_id,omitempty"`
	ZohoSyncStatus      string     `json:"zoho_sync_status,omitempty"`
	ZohoSyncError       string     `json:"zoho_sync_error,omitempty"`
	InTransitAt         *time.Time `json:"in_transit_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Zoho sync status values recorded on the order.
const (
	ZohoSyncNone   = "none"
	ZohoSyncPushed = "pushed"
	ZohoSyncFailed = "failed"
)

var (
	// ErrNotFound indicates a missing transfer order.
	ErrNotFound = fmt.Errorf("transfer: order %w", shared.ErrNotFound)
	// ErrInvalidTransition indicates a status change the lifecycle forbids.
	ErrInvalidTransition = fmt.Errorf("transfer: invalid status transition: %w", shared.ErrValidation)
	// ErrSameOutlet indicates matching source and destination.
	ErrSameOutlet = fmt.Errorf("transfer: source and destination outlet must differ: %w", shared.ErrValidation)
	// ErrNoItems indicates an order without line items.
	ErrNoItems = fmt.Errorf("transfer: at least one item required: %w", shared.ErrValidation)
	// ErrPartialTransfer indicates the source was decremented but the
	// destination upsert and the compensating re-increment both failed.
	ErrPartialTransfer = fmt.Errorf("transfer: %w", shared.ErrPartialTransfer)
)
