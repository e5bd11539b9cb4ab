package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx executes a function within a RepeatableRead transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return withTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, 0, fn)
}

// WithLockingTx executes fn within a Serializable transaction with a local
// lock_timeout, for read-siblings-then-insert amendment allocation. A lock
// wait beyond the timeout surfaces as ErrLockTimeout and is retryable.
func WithLockingTx(ctx context.Context, pool *pgxpool.Pool, lockTimeout time.Duration, fn func(pgx.Tx) error) error {
	return withTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, lockTimeout, fn)
}

// ErrLockTimeout indicates the transaction could not acquire its row locks
// within the configured timeout.
var ErrLockTimeout = errors.New("platform/db: lock timeout")

const (
	sqlstateLockNotAvailable    = "55P03"
	sqlstateSerializationFail   = "40001"
	sqlstateForeignKeyViolation = "23503"
)

func withTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, lockTimeout time.Duration, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("platform/db: set lock_timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		if isLockError(err) {
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isLockError(err) {
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

func isLockError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateLockNotAvailable || pgErr.Code == sqlstateSerializationFail
}

// IsForeignKeyViolation reports whether err is a foreign key violation on
// the named column's constraint. An empty constraint matches any.
func IsForeignKeyViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != sqlstateForeignKeyViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
