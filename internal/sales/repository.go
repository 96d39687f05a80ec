package sales

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

const orderColumns = `id, order_number, outlet, customer_name, order_date, items,
	recipe_items, sub_total, discount, total, status, notes, created_by,
	zoho_invoice_id, zoho_sync_status, zoho_sync_error, created_at, updated_at`

// Repository persists sales orders in the central database.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrDuplicateNumber indicates an order number collision; the service
// regenerates and retries once.
var ErrDuplicateNumber = errors.New("sales: duplicate order number")

// Create inserts a fulfilled order.
func (r *Repository) Create(ctx context.Context, order Order) (Order, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return Order{}, fmt.Errorf("sales: marshal items: %w", err)
	}
	recipes, err := json.Marshal(order.RecipeItems)
	if err != nil {
		return Order{}, fmt.Errorf("sales: marshal recipe items: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sales_orders (order_number, outlet, customer_name, order_date,
			items, recipe_items, sub_total, discount, total, status, notes,
			created_by, zoho_sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING id, created_at, updated_at`,
		order.OrderNumber, order.Outlet, order.CustomerName, order.OrderDate,
		items, recipes, order.Summary.SubTotal, order.Summary.Discount,
		order.Summary.Total, order.Status, order.Notes, order.CreatedBy, ZohoSyncNone)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Order{}, ErrDuplicateNumber
		}
		return Order{}, fmt.Errorf("sales: create: %w", err)
	}
	order.ZohoSyncStatus = ZohoSyncNone
	return order, nil
}

// Get fetches one order by order number.
func (r *Repository) Get(ctx context.Context, orderNumber string) (Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM sales_orders WHERE order_number = $1`,
		orderNumber)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderNumber)
	}
	return order, err
}

// ListFilter filters order listings.
type ListFilter struct {
	Outlet  outlet.ID
	Status  Status
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
	if filter.Outlet != "" {
		where = append(where, "outlet = "+arg(filter.Outlet))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(filter.Status))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM sales_orders WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sales: count: %w", err)
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
		`SELECT `+orderColumns+` FROM sales_orders WHERE `+cond+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list: %w", err)
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

// UpdateStatus changes an order's lifecycle state.
func (r *Repository) UpdateStatus(ctx context.Context, orderNumber string, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sales_orders SET status = $2, updated_at = now() WHERE order_number = $1`,
		orderNumber, status)
	if err != nil {
		return fmt.Errorf("sales: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, orderNumber)
	}
	return nil
}

// SaveZohoSync records the outcome of the external invoice push.
func (r *Repository) SaveZohoSync(ctx context.Context, orderNumber, invoiceID, status, syncErr string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sales_orders SET
			zoho_invoice_id = CASE WHEN $2 <> '' THEN $2 ELSE zoho_invoice_id END,
			zoho_sync_status = $3, zoho_sync_error = $4, updated_at = now()
		WHERE order_number = $1`,
		orderNumber, invoiceID, status, syncErr)
	if err != nil {
		return fmt.Errorf("sales: save zoho sync: %w", err)
	}
	return nil
}

// ListZohoFailed lists orders whose invoice push failed, for reconciliation.
func (r *Repository) ListZohoFailed(ctx context.Context) ([]Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM sales_orders WHERE zoho_sync_status = $1 ORDER BY created_at`,
		ZohoSyncFailed)
	if err != nil {
		return nil, fmt.Errorf("sales: list zoho failed: %w", err)
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
		recipes    []byte
		invoiceID  *string
		zohoStatus *string
		zohoErr    *string
		orderDate  time.Time
	)
	err := row.Scan(&order.ID, &order.OrderNumber, &order.Outlet, &order.CustomerName,
		&orderDate, &items, &recipes, &order.Summary.SubTotal, &order.Summary.Discount,
		&order.Summary.Total, &order.Status, &order.Notes, &order.CreatedBy,
		&invoiceID, &zohoStatus, &zohoErr, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	order.OrderDate = orderDate
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return Order{}, fmt.Errorf("sales: unmarshal items: %w", err)
	}
	if len(recipes) > 0 {
		if err := json.Unmarshal(recipes, &order.RecipeItems); err != nil {
			return Order{}, fmt.Errorf("sales: unmarshal recipe items: %w", err)
		}
	}
	if invoiceID != nil {
		order.ZohoInvoiceID = *invoiceID
	}
	if zohoStatus != nil {
		order.ZohoSyncStatus = *zohoStatus
	}
	if zohoErr != nil {
		order.ZohoSyncError = *zohoErr
	}
	return order, nil
}
