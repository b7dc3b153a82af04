package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txKey struct{}

// UnitOfWorker is the interface services depend on, so a fake can stand in
// for *UnitOfWork in tests without a live Postgres connection.
type UnitOfWorker interface {
	Do(ctx context.Context, action func(ctx context.Context) error) error
}

// UnitOfWork scopes a group of repository calls in one ACID transaction,
// per spec §4.E. It is the generalization of what every teacher repository
// method used to do inline (pool.Begin / defer Rollback / Commit).
type UnitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Do runs action inside one REPEATABLE READ transaction, committing on
// success and rolling back on any error or panic. A call made with a
// context that already carries a transaction reuses it instead of nesting.
func (u *UnitOfWork) Do(ctx context.Context, action func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return action(ctx)
	}

	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	ctx = context.WithValue(ctx, txKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := action(ctx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ UnitOfWorker = (*UnitOfWork)(nil)

// txFromContext returns the transaction stashed by Do, or nil outside one.
func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// q returns the ambient transaction if one is open on ctx, else the pool
// itself (auto-commit single-statement mode).
func q(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}
