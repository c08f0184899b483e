package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbook/stockbook/internal/shared"
)

// Beginner is satisfied by *pgxpool.Pool and by pgx.Tx for nested savepoints.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ Beginner = (*pgxpool.Pool)(nil)

// MaxTxAttempts bounds how often WithTx runs fn when Postgres aborts the
// transaction with a serialization failure or a deadlock.
const MaxTxAttempts = 3

// ErrTxConflict is returned once every attempt lost a concurrent update.
var ErrTxConflict = fmt.Errorf("%w: concurrent update, retry the request", shared.ErrConflict)

var retryBackoff = 20 * time.Millisecond

// WithTx runs fn inside a RepeatableRead transaction. The transaction is
// rolled back when fn fails and committed otherwise. Serialization failures
// (40001) and deadlocks (40P01) restart fn in a fresh transaction, so fn must
// not leak state from an aborted attempt.
func WithTx(ctx context.Context, db Beginner, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= MaxTxAttempts; attempt++ {
		err = runTx(ctx, db, fn)
		if !retryable(err) {
			return err
		}
		if attempt == MaxTxAttempts {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return fmt.Errorf("platform/db: %w: %w", ErrTxConflict, err)
}

func runTx(ctx context.Context, db Beginner, fn func(pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
