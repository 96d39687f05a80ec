package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// OrderStore abstracts transfer order persistence for the service.
type OrderStore interface {
	Create(ctx context.Context, order Order) (Order, error)
	Get(ctx context.Context, transferNumber string) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	UpdateStatus(ctx context.Context, transferNumber string, status Status, approver, notes string) error
	SaveResults(ctx context.Context, transferNumber string, status Status, approver string, results []Result) error
	SaveZohoSync(ctx context.Context, transferNumber, zohoID, status, syncErr string) error
	ListZohoFailed(ctx context.Context) ([]Order, error)
}

// PushOutcome reports a successful external push.
type PushOutcome struct {
	ExternalID     string
	ExternalNumber string
	SkippedItems   []string
}

// SyncPort pushes transfer orders to the external inventory system. It never
// mutates internal ledgers.
type SyncPort interface {
	PushTransferOrder(ctx context.Context, order Order) (PushOutcome, error)
}

// Notifier emits fire-and-forget outlet notifications. Emission failure must
// never fail the triggering operation.
type Notifier interface {
	TransferRequested(ctx context.Context, order Order) error
	TransferCompleted(ctx context.Context, order Order) error
}

// Service is the stock transfer coordinator.
type Service struct {
	orders   OrderStore
	ledgers  ledger.Provider
	sync     SyncPort
	notifier Notifier
	audit    shared.AuditRecorder
	logger   *slog.Logger
}

// NewService builds the coordinator. sync, notifier and audit may be nil.
func NewService(orders OrderStore, ledgers ledger.Provider, sync SyncPort, notifier Notifier, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orders: orders, ledgers: ledgers, sync: sync, notifier: notifier, audit: audit, logger: logger}
}

// CreateInput describes a requested transfer.
type CreateInput struct {
	FromOutlet   outlet.ID
	ToOutlet     outlet.ID
	TransferDate time.Time
	Priority     Priority
	Items        []Line
	Notes        string
	RequestedBy  string
}

// Create registers a Pending transfer order. Line totals and the order total
// are derived from quantity and unit price; caller-supplied totals are
// discarded.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if !input.FromOutlet.Valid() || !input.ToOutlet.Valid() {
		return Order{}, fmt.Errorf("transfer: %w: %s -> %s", outlet.ErrUnknownOutlet, input.FromOutlet, input.ToOutlet)
	}
	if input.FromOutlet == input.ToOutlet {
		return Order{}, ErrSameOutlet
	}
	if len(input.Items) == 0 {
		return Order{}, ErrNoItems
	}
	if input.Priority == "" {
		input.Priority = PriorityNormal
	}
	if !input.Priority.Valid() {
		return Order{}, fmt.Errorf("transfer: unknown priority %q: %w", input.Priority, shared.ErrValidation)
	}
	var total float64
	items := make([]Line, len(input.Items))
	for i, line := range input.Items {
		if !line.ItemType.Valid() {
			return Order{}, fmt.Errorf("transfer: unknown item type %q: %w", line.ItemType, shared.ErrValidation)
		}
		if line.ItemCode == "" || line.Quantity <= 0 {
			return Order{}, fmt.Errorf("transfer: item code and positive quantity required: %w", shared.ErrValidation)
		}
		line.TotalValue = line.Quantity * line.UnitPrice
		total += line.TotalValue
		items[i] = line
	}
	transferDate := input.TransferDate
	if transferDate.IsZero() {
		transferDate = time.Now().UTC()
	}

	order := Order{
		FromOutlet:   input.FromOutlet,
		ToOutlet:     input.ToOutlet,
		TransferDate: transferDate,
		Priority:     input.Priority,
		Items:        items,
		TotalAmount:  total,
		Status:       StatusPending,
		Notes:        input.Notes,
		RequestedBy:  input.RequestedBy,
	}

	created, err := s.createWithRetry(ctx, order)
	if err != nil {
		return Order{}, err
	}

	if s.notifier != nil {
		if err := s.notifier.TransferRequested(ctx, created); err != nil {
			s.logger.Warn("transfer requested notification failed",
				slog.String("transfer", created.TransferNumber), slog.Any("error", err))
		}
	}
	s.record(ctx, input.RequestedBy, "transfer:create", created.TransferNumber, map[string]any{
		"from": string(created.FromOutlet), "to": string(created.ToOutlet),
	})
	return created, nil
}

// createWithRetry regenerates the transfer number exactly once on collision.
func (s *Service) createWithRetry(ctx context.Context, order Order) (Order, error) {
	order.TransferNumber = newTransferNumber(order.FromOutlet)
	created, err := s.orders.Create(ctx, order)
	if errors.Is(err, ErrDuplicateNumber) {
		order.TransferNumber = newTransferNumber(order.FromOutlet)
		created, err = s.orders.Create(ctx, order)
		if errors.Is(err, ErrDuplicateNumber) {
			return Order{}, fmt.Errorf("transfer: number collision after retry: %w", shared.ErrConflict)
		}
	}
	return created, err
}

func newTransferNumber(from outlet.ID) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("TR-%s-%d-%s", from.Code(), time.Now().UnixMilli(), suffix)
}

// Get fetches one order.
func (s *Service) Get(ctx context.Context, transferNumber string) (Order, error) {
	return s.orders.Get(ctx, transferNumber)
}

// List returns a page of orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, shared.Pagination, error) {
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// TransferItem moves qty of one code from the source ledger to the
// destination ledger. On a destination failure after the source decrement it
// re-increments the source; only when that compensation also fails does the
// movement surface as partially applied.
func (s *Service) TransferItem(ctx context.Context, from, to outlet.ID, kind ledger.Kind, code string, qty float64) error {
	src, err := s.ledgers.Store(from)
	if err != nil {
		return err
	}
	dst, err := s.ledgers.Store(to)
	if err != nil {
		return err
	}
	return s.transferItem(ctx, src, dst, kind, code, qty, "")
}

func (s *Service) transferItem(ctx context.Context, src, dst ledger.Store, kind ledger.Kind, code string, qty float64, actor string) error {
	srcItem, err := src.FindByCode(ctx, kind, code)
	if err != nil {
		return fmt.Errorf("source %s: %w", src.Outlet(), err)
	}
	if _, err := src.Decrement(ctx, kind, code, qty); err != nil {
		return fmt.Errorf("source %s: %w", src.Outlet(), err)
	}
	if _, err := dst.UpsertIncrement(ctx, kind, code, qty, ledger.DefaultsFrom(srcItem, actor)); err != nil {
		// Source already moved; put it back.
		if _, compErr := src.UpsertIncrement(ctx, kind, code, qty, ledger.DefaultsFrom(srcItem, actor)); compErr != nil {
			s.logger.Error("transfer compensation failed",
				slog.String("code", code),
				slog.String("source", string(src.Outlet())),
				slog.Any("dest_error", err),
				slog.Any("comp_error", compErr))
			return fmt.Errorf("%w: %s (destination: %v, compensation: %v)", ErrPartialTransfer, code, err, compErr)
		}
		s.logger.Warn("destination upsert failed, source restored",
			slog.String("code", code), slog.Any("error", err))
		return fmt.Errorf("destination %s: %w", dst.Outlet(), err)
	}
	return nil
}

// Approve processes every line item of a Pending order fail-fast: the first
// failing item stops processing, earlier movements stay applied and are
// recorded in the per-item results, remaining items are marked skipped and
// never run. The order lands in Approved or Failed accordingly.
func (s *Service) Approve(ctx context.Context, transferNumber, approver string) (Order, error) {
	order, err := s.orders.Get(ctx, transferNumber)
	if err != nil {
		return Order{}, err
	}
	if order.Status != StatusPending {
		return Order{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, transferNumber, order.Status)
	}
	src, err := s.ledgers.Store(order.FromOutlet)
	if err != nil {
		return Order{}, err
	}
	dst, err := s.ledgers.Store(order.ToOutlet)
	if err != nil {
		return Order{}, err
	}

	results := make([]Result, 0, len(order.Items))
	failed := false
	for i, line := range order.Items {
		if failed {
			results = append(results, Result{ItemCode: line.ItemCode, Skipped: true})
			continue
		}
		if err := s.transferItem(ctx, src, dst, line.ItemType, line.ItemCode, line.Quantity, approver); err != nil {
			s.logger.Warn("transfer item failed",
				slog.String("transfer", transferNumber),
				slog.String("code", line.ItemCode),
				slog.Int("line", i+1),
				slog.Any("error", err))
			results = append(results, Result{ItemCode: line.ItemCode, Error: err.Error()})
			failed = true
			continue
		}
		results = append(results, Result{ItemCode: line.ItemCode, Success: true})
	}

	status := StatusApproved
	if failed {
		status = StatusFailed
	}
	if err := s.orders.SaveResults(ctx, transferNumber, status, approver, results); err != nil {
		return Order{}, err
	}
	order.Status = status
	order.ApprovedBy = approver
	order.Results = results

	s.record(ctx, approver, "transfer:approve", transferNumber, map[string]any{"status": string(status)})

	if status == StatusApproved {
		s.pushToZoho(ctx, &order)
	}
	return order, nil
}

// pushToZoho pushes an approved order to the external system. A remote
// failure never aborts the internal approval; it is recorded on the order for
// manual reconciliation.
func (s *Service) pushToZoho(ctx context.Context, order *Order) {
	if s.sync == nil {
		return
	}
	outcome, err := s.sync.PushTransferOrder(ctx, *order)
	if err != nil {
		s.logger.Warn("zoho push failed",
			slog.String("transfer", order.TransferNumber), slog.Any("error", err))
		order.ZohoSyncStatus = ZohoSyncFailed
		order.ZohoSyncError = err.Error()
		if saveErr := s.orders.SaveZohoSync(ctx, order.TransferNumber, "", ZohoSyncFailed, err.Error()); saveErr != nil {
			s.logger.Error("record zoho failure", slog.Any("error", saveErr))
		}
		return
	}
	order.ZohoSyncStatus = ZohoSyncPushed
	order.ZohoTransferOrderID = outcome.ExternalID
	if len(outcome.SkippedItems) > 0 {
		s.logger.Info("zoho push skipped unmapped items",
			slog.String("transfer", order.TransferNumber),
			slog.Any("skipped", outcome.SkippedItems))
	}
	if err := s.orders.SaveZohoSync(ctx, order.TransferNumber, outcome.ExternalID, ZohoSyncPushed, ""); err != nil {
		s.logger.Error("record zoho success", slog.Any("error", err))
	}
}

// Reject declines a Pending order. No ledger mutation occurs.
func (s *Service) Reject(ctx context.Context, transferNumber, approver, notes string) (Order, error) {
	order, err := s.orders.Get(ctx, transferNumber)
	if err != nil {
		return Order{}, err
	}
	if order.Status != StatusPending {
		return Order{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, transferNumber, order.Status)
	}
	if err := s.orders.UpdateStatus(ctx, transferNumber, StatusRejected, approver, notes); err != nil {
		return Order{}, err
	}
	s.record(ctx, approver, "transfer:reject", transferNumber, nil)
	return s.orders.Get(ctx, transferNumber)
}

// MarkInTransit advances an Approved order.
func (s *Service) MarkInTransit(ctx context.Context, transferNumber, actor string) (Order, error) {
	return s.advance(ctx, transferNumber, actor, StatusApproved, StatusInTransit)
}

// Complete finishes an In Transit (or directly Approved) order and emits the
// completion notification to the receiving outlet.
func (s *Service) Complete(ctx context.Context, transferNumber, actor string) (Order, error) {
	order, err := s.orders.Get(ctx, transferNumber)
	if err != nil {
		return Order{}, err
	}
	if order.Status != StatusInTransit && order.Status != StatusApproved {
		return Order{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, transferNumber, order.Status)
	}
	if err := s.orders.UpdateStatus(ctx, transferNumber, StatusCompleted, actor, ""); err != nil {
		return Order{}, err
	}
	order, err = s.orders.Get(ctx, transferNumber)
	if err != nil {
		return Order{}, err
	}
	if s.notifier != nil {
		if err := s.notifier.TransferCompleted(ctx, order); err != nil {
			s.logger.Warn("transfer completed notification failed",
				slog.String("transfer", transferNumber), slog.Any("error", err))
		}
	}
	s.record(ctx, actor, "transfer:complete", transferNumber, nil)
	return order, nil
}

// Cancel voids a Pending order.
func (s *Service) Cancel(ctx context.Context, transferNumber, actor, notes string) (Order, error) {
	return s.advance(ctx, transferNumber, actor, StatusPending, StatusCancelled, notes)
}

func (s *Service) advance(ctx context.Context, transferNumber, actor string, from, to Status, notes ...string) (Order, error) {
	order, err := s.orders.Get(ctx, transferNumber)
	if err != nil {
		return Order{}, err
	}
	if order.Status != from {
		return Order{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, transferNumber, order.Status)
	}
	note := ""
	if len(notes) > 0 {
		note = notes[0]
	}
	if err := s.orders.UpdateStatus(ctx, transferNumber, to, actor, note); err != nil {
		return Order{}, err
	}
	return s.orders.Get(ctx, transferNumber)
}

// RetryZohoPush re-pushes every order whose external sync previously failed
// and reports a per-order breakdown.
func (s *Service) RetryZohoPush(ctx context.Context) ([]Result, error) {
	if s.sync == nil {
		return nil, fmt.Errorf("transfer: no sync adapter configured: %w", shared.ErrValidation)
	}
	failed, err := s.orders.ListZohoFailed(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(failed))
	for _, order := range failed {
		s.pushToZoho(ctx, &order)
		res := Result{ItemCode: order.TransferNumber, Success: order.ZohoSyncStatus == ZohoSyncPushed}
		if !res.Success {
			res.Error = order.ZohoSyncError
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) record(ctx context.Context, actor, action, transferNumber string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "transfer_order",
		EntityID: transferNumber,
		Meta:     meta,
	})
}
