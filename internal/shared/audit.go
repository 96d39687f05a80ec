package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog captures one auditable action against the central store.
type AuditLog struct {
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes audit entries to the central database.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger constructs an AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record inserts one audit row. Audit failures are the caller's decision to
// swallow; stock mutations never depend on audit success.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor, action, entity, entity_id, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.Actor, log.Action, log.Entity, log.EntityID, meta, time.Now().UTC())
	return err
}
