package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "db_tx"

// TxFromContext retrieves the active transaction from context, if any.
// Repositories use this to join a transaction opened higher up the call
// stack, so a business write and its audit event commit atomically.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// WithTx stores a transaction in the context for downstream repositories.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TxRunner runs a function inside a transaction boundary. The production
// implementation is PoolRunner; tests substitute a pass-through runner.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolRunner runs functions inside a pgx transaction taken from the pool.
// The transaction is injected into the context so that every repository
// call made by fn joins it. Commit happens only if fn returns nil; any
// error rolls the whole unit of work back.
type PoolRunner struct {
	pool *pgxpool.Pool
}

func NewPoolRunner(pool *pgxpool.Pool) *PoolRunner {
	return &PoolRunner{pool: pool}
}

func (r *PoolRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested calls join the outer transaction instead of opening a new one.
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", MapError(err))
	}
	defer tx.Rollback(ctx)

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", MapError(err))
	}
	return nil
}
