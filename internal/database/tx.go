package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

type TxOptions struct {
	IsolationLevel sql.IsolationLevel
	ReadOnly       bool
	MaxRetries     int
	// Timeout bounds the whole call, retries included. Zero means no budget
	// beyond the caller's context.
	Timeout time.Duration
}

func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		ReadOnly:       false,
		MaxRetries:     3,
	}
}

// ErrTxBudgetExceeded is returned when TxOptions.Timeout elapses before commit.
var ErrTxBudgetExceeded = errors.New("transaction budget exceeded")

// TxFunc runs inside a transaction. Every query must use ctx: it carries the
// budget, and a query issued on any other context outlives it.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

func WithTransaction(ctx context.Context, db *sql.DB, opts TxOptions, fn TxFunc) error {
	ctx, cancel := withBudget(ctx, opts.Timeout)
	defer cancel()

	err := runOnce(ctx, db, opts, fn)
	return budgetError(ctx, err)
}

func WithRetry(ctx context.Context, db *sql.DB, opts TxOptions, fn TxFunc) error {
	ctx, cancel := withBudget(ctx, opts.Timeout)
	defer cancel()

	var lastErr error
	backoff := 50 * time.Millisecond

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return budgetError(ctx, ctx.Err())
		default:
		}

		err := runOnce(ctx, db, opts, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return budgetError(ctx, err)
		}
		if attempt == opts.MaxRetries {
			return budgetError(ctx, fmt.Errorf("max retries (%d) exceeded: %w", opts.MaxRetries, err))
		}

		lastErr = err

		jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return budgetError(ctx, ctx.Err())
		}

		backoff *= 2
	}

	return lastErr
}

func runOnce(ctx context.Context, db *sql.DB, opts TxOptions, fn TxFunc) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{
		Isolation: opts.IsolationLevel,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func withBudget(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func budgetError(ctx context.Context, err error) error {
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTxBudgetExceeded, err)
	}
	return err
}
