package repository

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bakate/avionics/internal/domain"

	"context"
)

// OutboxRepository persists and retrieves event_outbox rows. Grounded on
// the teacher's postgres_outbox_repository.go, generalized from a
// status-enum column to the spec's processing_at/published_at nullable
// timestamp pair (spec §3/§6).
type OutboxRepository interface {
	Insert(ctx context.Context, msg *domain.OutboxMessage) error
	SelectForProcessing(ctx context.Context, batch int, staleAfter time.Duration, maxRetries int) ([]*domain.OutboxMessage, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

type PostgresOutboxRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOutboxRepository(pool *pgxpool.Pool) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{pool: pool}
}

// Insert writes a row inside the ambient UoW transaction if one is open,
// else directly on the pool (used outside a saga, e.g. by tests).
func (r *PostgresOutboxRepository) Insert(ctx context.Context, msg *domain.OutboxMessage) error {
	const query = `
		INSERT INTO event_outbox (id, event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q(ctx, r.pool).Exec(ctx, query, msg.ID, msg.EventType, msg.AggregateId, msg.Payload, msg.CreatedAt)
	if err != nil {
		return &domain.OutboxPersistenceErr{Cause: fmt.Errorf("insert outbox row: %w", err)}
	}
	return nil
}

// SelectForProcessing implements the publisher's pickup step (spec §4.H
// step 1): SELECT ... FOR UPDATE SKIP LOCKED, stamping processing_at, in
// a short transaction owned by this call.
func (r *PostgresOutboxRepository) SelectForProcessing(ctx context.Context, batch int, staleAfter time.Duration, maxRetries int) ([]*domain.OutboxMessage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin outbox pickup tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	staleBefore := now.Add(-staleAfter)

	const selectQuery = `
		SELECT id, event_type, aggregate_id, payload, created_at, processing_at, published_at, retry_count, last_error
		FROM event_outbox
		WHERE published_at IS NULL
		  AND (processing_at IS NULL OR processing_at < $1)
		  AND retry_count < $2
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, selectQuery, staleBefore, maxRetries, batch)
	if err != nil {
		return nil, fmt.Errorf("select outbox batch: %w", err)
	}
	msgs, err := scanOutboxRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		t := now
		m.ProcessingAt = &t
	}
	const stampQuery = `UPDATE event_outbox SET processing_at = $1 WHERE id = ANY($2)`
	if _, err := tx.Exec(ctx, stampQuery, now, ids); err != nil {
		return nil, fmt.Errorf("stamp outbox processing_at: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit outbox pickup: %w", err)
	}
	return msgs, nil
}

// MarkPublished records successful delivery (spec §4.H step 2).
func (r *PostgresOutboxRepository) MarkPublished(ctx context.Context, id string) error {
	const query = `UPDATE event_outbox SET published_at = $2, processing_at = NULL WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return &domain.OutboxPersistenceErr{Cause: fmt.Errorf("mark outbox published: %w", err)}
	}
	return nil
}

// MarkFailed clears processing_at, bumps retry_count, and records the
// error, leaving the row for the next poll (or dead-lettered if
// retry_count now reaches MAX_RETRIES).
func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	const query = `
		UPDATE event_outbox
		SET processing_at = NULL, retry_count = retry_count + 1, last_error = $2
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, errMsg)
	if err != nil {
		return &domain.OutboxPersistenceErr{Cause: fmt.Errorf("mark outbox failed: %w", err)}
	}
	return nil
}

func scanOutboxRows(rows pgx.Rows) ([]*domain.OutboxMessage, error) {
	var out []*domain.OutboxMessage
	for rows.Next() {
		m := &domain.OutboxMessage{}
		var lastError *string
		if err := rows.Scan(&m.ID, &m.EventType, &m.AggregateId, &m.Payload, &m.CreatedAt,
			&m.ProcessingAt, &m.PublishedAt, &m.RetryCount, &lastError); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		if lastError != nil {
			m.LastError = *lastError
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ OutboxRepository = (*PostgresOutboxRepository)(nil)
