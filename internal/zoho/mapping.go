package zoho

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

var (
	// ErrMissingLocationMapping indicates an outlet with no cached external
	// location ID; the whole push fails.
	ErrMissingLocationMapping = fmt.Errorf("zoho: missing location mapping: %w", shared.ErrValidation)
	// ErrMissingItemMapping indicates a SKU with no cached external item ID;
	// the line is skipped, not the push.
	ErrMissingItemMapping = fmt.Errorf("zoho: missing item mapping: %w", shared.ErrValidation)
	// ErrNoMappableItems indicates a push where every line lacked a mapping.
	ErrNoMappableItems = fmt.Errorf("zoho: no mappable items: %w", shared.ErrValidation)
)

// Mapper caches the external system's location and item identifiers in the
// central database and translates internal keys to them.
type Mapper struct {
	pool *pgxpool.Pool
}

// NewMapper constructs Mapper.
func NewMapper(pool *pgxpool.Pool) *Mapper {
	return &Mapper{pool: pool}
}

// ResolveLocationID translates an outlet to its external location ID.
func (m *Mapper) ResolveLocationID(ctx context.Context, id outlet.ID) (string, error) {
	var locationID string
	err := m.pool.QueryRow(ctx,
		`SELECT location_id FROM zoho_locations WHERE outlet = $1`, id).Scan(&locationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrMissingLocationMapping, id)
	}
	if err != nil {
		return "", fmt.Errorf("zoho: resolve location %s: %w", id, err)
	}
	return locationID, nil
}

// ResolveItemID translates an internal SKU to its external item ID.
func (m *Mapper) ResolveItemID(ctx context.Context, sku string) (string, error) {
	var itemID string
	err := m.pool.QueryRow(ctx,
		`SELECT item_id FROM zoho_items WHERE sku = $1`, sku).Scan(&itemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrMissingItemMapping, sku)
	}
	if err != nil {
		return "", fmt.Errorf("zoho: resolve item %s: %w", sku, err)
	}
	return itemID, nil
}

// SaveLocation upserts one location mapping.
func (m *Mapper) SaveLocation(ctx context.Context, id outlet.ID, locationID, locationName string) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO zoho_locations (outlet, location_id, location_name, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (outlet) DO UPDATE SET
			location_id = EXCLUDED.location_id,
			location_name = EXCLUDED.location_name,
			updated_at = now()`,
		id, locationID, locationName)
	if err != nil {
		return fmt.Errorf("zoho: save location %s: %w", id, err)
	}
	return nil
}

// SaveItem upserts one item mapping.
func (m *Mapper) SaveItem(ctx context.Context, sku, itemID, itemName string) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO zoho_items (sku, item_id, item_name, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (sku) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			item_name = EXCLUDED.item_name,
			updated_at = now()`,
		sku, itemID, itemName)
	if err != nil {
		return fmt.Errorf("zoho: save item %s: %w", sku, err)
	}
	return nil
}
