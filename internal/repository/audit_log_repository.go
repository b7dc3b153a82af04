package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLogEntry is one row of spec §6's audit_log table: a best-effort
// record of an operation against an aggregate, not a correctness
// mechanism (spec §9 supplemented features).
type AuditLogEntry struct {
	ID            string
	AggregateType string
	AggregateID   string
	Operation     string
	Changes       []byte
	UserID        *string
	Timestamp     time.Time
}

// AuditLogRepository records audit_log rows. Callers treat write
// failures as non-fatal: logged, never propagated to the caller of the
// operation being audited.
type AuditLogRepository interface {
	Insert(ctx context.Context, entry AuditLogEntry) error
}

type PostgresAuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAuditLogRepository(pool *pgxpool.Pool) *PostgresAuditLogRepository {
	return &PostgresAuditLogRepository{pool: pool}
}

func (r *PostgresAuditLogRepository) Insert(ctx context.Context, entry AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	const query = `
		INSERT INTO audit_log (id, aggregate_type, aggregate_id, operation, changes, user_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q(ctx, r.pool).Exec(ctx, query,
		entry.ID, entry.AggregateType, entry.AggregateID, entry.Operation, entry.Changes, entry.UserID, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit log entry: %w", err)
	}
	return nil
}

var _ AuditLogRepository = (*PostgresAuditLogRepository)(nil)
