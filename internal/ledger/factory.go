package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/platform/db"
)

// Factory holds one Repository per outlet, constructed once at process start
// and injected wherever ledger access is needed. Request-handling code never
// opens connections of its own.
type Factory struct {
	repos map[outlet.ID]*Repository
}

// NewFactory connects every configured outlet database. All five outlets must
// be configured; a missing DSN is a startup error, not a lazy runtime one.
func NewFactory(ctx context.Context, dsns map[outlet.ID]string) (*Factory, error) {
	repos := make(map[outlet.ID]*Repository, len(outlet.All))
	for _, id := range outlet.All {
		dsn, ok := dsns[id]
		if !ok || dsn == "" {
			return nil, fmt.Errorf("ledger: no DSN configured for outlet %s", id)
		}
		pool, err := db.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("ledger: connect %s: %w", id, err)
		}
		repos[id] = NewRepository(id, pool)
	}
	return &Factory{repos: repos}, nil
}

// NewFactoryFromPools builds a Factory from pre-built pools, used by tests
// and the seed script.
func NewFactoryFromPools(pools map[outlet.ID]*pgxpool.Pool) *Factory {
	repos := make(map[outlet.ID]*Repository, len(pools))
	for id, pool := range pools {
		repos[id] = NewRepository(id, pool)
	}
	return &Factory{repos: repos}
}

// Get returns the repository for one outlet.
func (f *Factory) Get(id outlet.ID) (*Repository, error) {
	repo, ok := f.repos[id]
	if !ok {
		return nil, fmt.Errorf("ledger: %w: %s", outlet.ErrUnknownOutlet, id)
	}
	return repo, nil
}

// Close releases every outlet pool.
func (f *Factory) Close() {
	for _, repo := range f.repos {
		repo.pool.Close()
	}
}
