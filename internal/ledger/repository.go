package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/platform/db"
)

const itemColumns = `id, kind, code, name, category, sub_category, unit_of_measure,
	unit_price, current_stock, minimum_stock, maximum_stock, reorder_point,
	status, is_active, created_by, updated_by, created_at, updated_at`

// Repository persists one outlet's stock items in that outlet's database.
// Stock arithmetic always happens inside a single SQL statement; the
// application never does read-modify-write on current_stock.
type Repository struct {
	outlet outlet.ID
	scheme outlet.StatusScheme
	pool   *pgxpool.Pool
}

// NewRepository constructs a Repository bound to one outlet's pool.
func NewRepository(id outlet.ID, pool *pgxpool.Pool) *Repository {
	return &Repository{outlet: id, scheme: id.Scheme(), pool: pool}
}

// Outlet returns the outlet this repository is bound to.
func (r *Repository) Outlet() outlet.ID {
	return r.outlet
}

func scanItem(row pgx.Row) (StockItem, error) {
	var item StockItem
	err := row.Scan(&item.ID, &item.Kind, &item.Code, &item.Name, &item.Category,
		&item.SubCategory, &item.UnitOfMeasure, &item.UnitPrice, &item.CurrentStock,
		&item.MinimumStock, &item.MaximumStock, &item.ReorderPoint, &item.Status,
		&item.IsActive, &item.CreatedBy, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// FindByCode fetches one active item by kind and business code. Soft-deleted
// items are invisible here, matching Decrement and List.
func (r *Repository) FindByCode(ctx context.Context, kind Kind, code string) (StockItem, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM stock_items WHERE kind = $1 AND code = $2 AND is_active`,
		kind, code)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, code)
	}
	if err != nil {
		return StockItem{}, fmt.Errorf("ledger: find %s/%s: %w", kind, code, err)
	}
	return item, nil
}

// UpsertIncrement atomically adds delta to an item's stock, creating the
// record from defaults when absent. A negative delta on an existing record is
// a guarded decrement; a negative delta on an absent record is an error.
func (r *Repository) UpsertIncrement(ctx context.Context, kind Kind, code string, delta float64, defaults Defaults) (StockItem, error) {
	if delta < 0 {
		item, err := r.decrement(ctx, r.pool, kind, code, -delta)
		if errors.Is(err, ErrNotFound) {
			return StockItem{}, fmt.Errorf("%w (%s/%s)", ErrNegativeCreate, kind, code)
		}
		return item, err
	}
	insertStatus := r.scheme.Derive(delta, defaults.ReorderPoint)
	row := r.pool.QueryRow(ctx, `
		INSERT INTO stock_items (kind, code, name, category, sub_category,
			unit_of_measure, unit_price, current_stock, minimum_stock,
			maximum_stock, reorder_point, status, is_active, created_by,
			updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true, $13, $13, now(), now())
		ON CONFLICT (kind, code) DO UPDATE SET
			current_stock = stock_items.current_stock + EXCLUDED.current_stock,
			status = CASE
				WHEN stock_items.current_stock + EXCLUDED.current_stock <= 0 THEN $14
				WHEN stock_items.current_stock + EXCLUDED.current_stock <= stock_items.reorder_point THEN $15
				ELSE $16
			END,
			updated_by = EXCLUDED.updated_by,
			updated_at = now()
		RETURNING `+itemColumns,
		kind, code, defaults.Name, defaults.Category, defaults.SubCategory,
		defaults.UnitOfMeasure, defaults.UnitPrice, delta, defaults.MinimumStock,
		defaults.MaximumStock, defaults.ReorderPoint, insertStatus, defaults.Actor,
		r.scheme.Out, r.scheme.Low, r.scheme.OK)
	item, err := scanItem(row)
	if err != nil {
		return StockItem{}, fmt.Errorf("ledger: upsert %s/%s: %w", kind, code, err)
	}
	return item, nil
}

// Decrement subtracts qty from an item's stock, failing with
// ErrInsufficientStock when qty exceeds the current level. The guard and the
// subtraction are one conditional UPDATE.
func (r *Repository) Decrement(ctx context.Context, kind Kind, code string, qty float64) (StockItem, error) {
	return r.decrement(ctx, r.pool, kind, code, qty)
}

type rowQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) decrement(ctx context.Context, q rowQueryer, kind Kind, code string, qty float64) (StockItem, error) {
	if qty <= 0 {
		return StockItem{}, ErrInvalidQuantity
	}
	row := q.QueryRow(ctx, `
		UPDATE stock_items SET
			current_stock = current_stock - $3,
			status = CASE
				WHEN current_stock - $3 <= 0 THEN $4
				WHEN current_stock - $3 <= reorder_point THEN $5
				ELSE $6
			END,
			updated_at = now()
		WHERE kind = $1 AND code = $2 AND is_active AND current_stock >= $3
		RETURNING `+itemColumns,
		kind, code, qty, r.scheme.Out, r.scheme.Low, r.scheme.OK)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the item is missing or the stock is too low; tell them apart.
		var exists bool
		probeErr := q.QueryRow(ctx,
			`SELECT true FROM stock_items WHERE kind = $1 AND code = $2 AND is_active`,
			kind, code).Scan(&exists)
		if errors.Is(probeErr, pgx.ErrNoRows) {
			return StockItem{}, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, code)
		}
		if probeErr != nil {
			return StockItem{}, fmt.Errorf("ledger: decrement probe %s/%s: %w", kind, code, probeErr)
		}
		return StockItem{}, fmt.Errorf("%w: %s/%s needs %.3f", ErrInsufficientStock, kind, code, qty)
	}
	if err != nil {
		return StockItem{}, fmt.Errorf("ledger: decrement %s/%s: %w", kind, code, err)
	}
	return item, nil
}

// SoftDelete flags an item inactive; the record is never removed.
func (r *Repository) SoftDelete(ctx context.Context, kind Kind, code string, actor string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE stock_items SET is_active = false, updated_by = $3, updated_at = now()
		 WHERE kind = $1 AND code = $2`,
		kind, code, actor)
	if err != nil {
		return fmt.Errorf("ledger: soft delete %s/%s: %w", kind, code, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, kind, code)
	}
	return nil
}

// List returns a filtered page of items plus the unfiltered total for the
// page metadata.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]StockItem, int, error) {
	where := []string{"is_active"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Kind != "" {
		where = append(where, "kind = "+arg(filter.Kind))
	}
	if filter.Category != "" {
		where = append(where, "category = "+arg(filter.Category))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(filter.Status))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, "(code ILIKE "+p+" OR name ILIKE "+p+")")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM stock_items WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ledger: count: %w", err)
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limitArgs := append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM stock_items WHERE `+cond+
			fmt.Sprintf(` ORDER BY code LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2),
		limitArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	var items []StockItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ledger: scan: %w", err)
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// DistinctCategories lists the categories present in the ledger for a kind.
func (r *Repository) DistinctCategories(ctx context.Context, kind Kind) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT category FROM stock_items
		 WHERE kind = $1 AND is_active AND category <> '' ORDER BY category`,
		kind)
	if err != nil {
		return nil, fmt.Errorf("ledger: categories: %w", err)
	}
	defer rows.Close()
	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// FindLowStock lists active items at or below their reorder point.
func (r *Repository) FindLowStock(ctx context.Context, kind Kind) ([]StockItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM stock_items
		 WHERE kind = $1 AND is_active AND current_stock <= reorder_point
		 ORDER BY current_stock / GREATEST(reorder_point, 0.001)`,
		kind)
	if err != nil {
		return nil, fmt.Errorf("ledger: low stock: %w", err)
	}
	defer rows.Close()
	var items []StockItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// TxStore exposes the mutation surface inside one ledger transaction.
type TxStore interface {
	FindByCode(ctx context.Context, kind Kind, code string) (StockItem, error)
	Decrement(ctx context.Context, kind Kind, code string, qty float64) (StockItem, error)
}

type txStore struct {
	repo *Repository
	tx   pgx.Tx
}

func (s *txStore) FindByCode(ctx context.Context, kind Kind, code string) (StockItem, error) {
	row := s.tx.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM stock_items WHERE kind = $1 AND code = $2 AND is_active`,
		kind, code)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, code)
	}
	return item, err
}

func (s *txStore) Decrement(ctx context.Context, kind Kind, code string, qty float64) (StockItem, error) {
	return s.repo.decrement(ctx, s.tx, kind, code, qty)
}

// WithTx runs fn inside a repeatable-read transaction on this outlet's
// database. Cross-outlet operations cannot share a transaction; this is the
// per-ledger guarantee only.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{repo: r, tx: tx})
	})
}
