package bom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soufra-erp/soufra-erp/internal/platform/db"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// Repository persists BOMs in the central database. Line items are stored as
// a jsonb document; recipes are reference data read far more than written.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByCode fetches one BOM with its items.
func (r *Repository) FindByCode(ctx context.Context, code string) (BOM, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, code, name, description, items, is_active, created_by, created_at, updated_at
		 FROM boms WHERE code = $1 AND is_active`, code)
	return scanBOM(row, code)
}

// List returns every active BOM.
func (r *Repository) List(ctx context.Context) ([]BOM, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, description, items, is_active, created_by, created_at, updated_at
		 FROM boms WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("bom: list: %w", err)
	}
	defer rows.Close()
	var boms []BOM
	for rows.Next() {
		b, err := scanBOM(rows, "")
		if err != nil {
			return nil, err
		}
		boms = append(boms, b)
	}
	return boms, rows.Err()
}

// Create inserts a BOM; the code is a unique business key.
func (r *Repository) Create(ctx context.Context, b BOM) (BOM, error) {
	items, err := json.Marshal(b.Items)
	if err != nil {
		return BOM{}, fmt.Errorf("bom: marshal items: %w", err)
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO boms (code, name, description, items, is_active, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, true, $5, now(), now())
		 RETURNING id, created_at, updated_at`,
		b.Code, b.Name, b.Description, items, b.CreatedBy)
	if err := row.Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return BOM{}, fmt.Errorf("bom: code %s: %w", b.Code, shared.ErrConflict)
		}
		return BOM{}, fmt.Errorf("bom: create %s: %w", b.Code, err)
	}
	b.IsActive = true
	return b, nil
}

// Update replaces a BOM's descriptive fields and items.
func (r *Repository) Update(ctx context.Context, code string, name, description string, items []Item) (BOM, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return BOM{}, fmt.Errorf("bom: marshal items: %w", err)
	}
	row := r.pool.QueryRow(ctx,
		`UPDATE boms SET name = $2, description = $3, items = $4, updated_at = now()
		 WHERE code = $1 AND is_active
		 RETURNING id, code, name, description, items, is_active, created_by, created_at, updated_at`,
		code, name, description, payload)
	return scanBOM(row, code)
}

// Deactivate soft-deletes a BOM.
func (r *Repository) Deactivate(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE boms SET is_active = false, updated_at = now() WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("bom: deactivate %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return nil
}

func scanBOM(row pgx.Row, code string) (BOM, error) {
	var (
		b     BOM
		items []byte
	)
	err := row.Scan(&b.ID, &b.Code, &b.Name, &b.Description, &items, &b.IsActive,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BOM{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if err != nil {
		return BOM{}, fmt.Errorf("bom: scan: %w", err)
	}
	if err := json.Unmarshal(items, &b.Items); err != nil {
		return BOM{}, fmt.Errorf("bom: unmarshal items for %s: %w", b.Code, err)
	}
	return b, nil
}
