package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/platform/db"
)

const orderColumns = `id, transfer_number, from_outlet, to_outlet, transfer_date,
	priority, items, total_amount, status, notes, requested_by, approved_by,
	transfer_results, zoho_transfer_order_id, zoho_sync_status, zoho_sync_error,
	in_transit_at, completed_at, created_at, updated_at`

// Repository persists transfer orders in the central database.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrDuplicateNumber indicates a transfer number collision; the service
// regenerates and retries once.
var ErrDuplicateNumber = errors.New("transfer: duplicate transfer number")

// Create inserts a Pending order.
func (r *Repository) Create(ctx context.Context, order Order) (Order, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return Order{}, fmt.Errorf("transfer: marshal items: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO transfer_orders (transfer_number, from_outlet, to_outlet,
			transfer_date, priority, items, total_amount, status, notes,
			requested_by, zoho_sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING id, created_at, updated_at`,
		order.TransferNumber, order.FromOutlet, order.ToOutlet, order.TransferDate,
		order.Priority, items, order.TotalAmount, order.Status, order.Notes,
		order.RequestedBy, ZohoSyncNone)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Order{}, ErrDuplicateNumber
		}
		return Order{}, fmt.Errorf("transfer: create: %w", err)
	}
	order.ZohoSyncStatus = ZohoSyncNone
	return order, nil
}

// Get fetches one order by transfer number.
func (r *Repository) Get(ctx context.Context, transferNumber string) (Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM transfer_orders WHERE transfer_number = $1`,
		transferNumber)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, transferNumber)
	}
	return order, err
}

// ListFilter filters order listings.
type ListFilter struct {
	Status  Status
	Outlet  outlet.ID
	Page    int
	PerPage int
}

// List returns a page of orders newest first, plus the filtered total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	where := []string{"true"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(filter.Status))
	}
	if filter.Outlet != "" {
		p := arg(filter.Outlet)
		where = append(where, "(from_outlet = "+p+" OR to_outlet = "+p+")")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM transfer_orders WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("transfer: count: %w", err)
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM transfer_orders WHERE `+cond+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("transfer: list: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// UpdateStatus advances the lifecycle and stamps lifecycle timestamps.
func (r *Repository) UpdateStatus(ctx context.Context, transferNumber string, status Status, approver, notes string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transfer_orders SET
			status = $2,
			approved_by = CASE WHEN $3 <> '' THEN $3 ELSE approved_by END,
			notes = CASE WHEN $4 <> '' THEN $4 ELSE notes END,
			in_transit_at = CASE WHEN $2 = 'In Transit' THEN now() ELSE in_transit_at END,
			completed_at = CASE WHEN $2 = 'Completed' THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE transfer_number = $1`,
		transferNumber, status, approver, notes)
	if err != nil {
		return fmt.Errorf("transfer: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, transferNumber)
	}
	return nil
}

// SaveResults records the per-item processing audit and the resulting status.
func (r *Repository) SaveResults(ctx context.Context, transferNumber string, status Status, approver string, results []Result) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("transfer: marshal results: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE transfer_orders SET
			status = $2, approved_by = $3, transfer_results = $4, updated_at = now()
		WHERE transfer_number = $1`,
		transferNumber, status, approver, payload)
	if err != nil {
		return fmt.Errorf("transfer: save results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, transferNumber)
	}
	return nil
}

// SaveZohoSync records the outcome of the external push.
func (r *Repository) SaveZohoSync(ctx context.Context, transferNumber, zohoID, status, syncErr string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE transfer_orders SET
			zoho_transfer_order_id = CASE WHEN $2 <> '' THEN $2 ELSE zoho_transfer_order_id END,
			zoho_sync_status = $3, zoho_sync_error = $4, updated_at = now()
		WHERE transfer_number = $1`,
		transferNumber, zohoID, status, syncErr)
	if err != nil {
		return fmt.Errorf("transfer: save zoho sync: %w", err)
	}
	return nil
}

// ListZohoFailed lists orders whose external push failed, for reconciliation.
func (r *Repository) ListZohoFailed(ctx context.Context) ([]Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM transfer_orders WHERE zoho_sync_status = $1 ORDER BY created_at`,
		ZohoSyncFailed)
	if err != nil {
		return nil, fmt.Errorf("transfer: list zoho failed: %w", err)
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		order      Order
		items      []byte
		results    []byte
		approvedBy *string
		zohoID     *string
		zohoStatus *string
		zohoErr    *string
		inTransit  *time.Time
		completed  *time.Time
	)
	err := row.Scan(&order.ID, &order.TransferNumber, &order.FromOutlet, &order.ToOutlet,
		&order.TransferDate, &order.Priority, &items, &order.TotalAmount, &order.Status,
		&order.Notes, &order.RequestedBy, &approvedBy, &results, &zohoID, &zohoStatus,
		&zohoErr, &inTransit, &completed, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return Order{}, fmt.Errorf("transfer: unmarshal items: %w", err)
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &order.Results); err != nil {
			return Order{}, fmt.Errorf("transfer: unmarshal results: %w", err)
		}
	}
	if approvedBy != nil {
		order.ApprovedBy = *approvedBy
	}
	if zohoID != nil {
		order.ZohoTransferOrderID = *zohoID
	}
	if zohoStatus != nil {
		order.ZohoSyncStatus = *zohoStatus
	}
	if zohoErr != nil {
		order.ZohoSyncError = *zohoErr
	}
	order.InTransitAt = inTransit
	order.CompletedAt = completed
	return order, nil
}
