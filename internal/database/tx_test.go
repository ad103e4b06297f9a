package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockWaitDriver answers every query only once the query's own context ends,
// the way a statement blocked on a contested row lock behaves.
type lockWaitDriver struct{}

func (lockWaitDriver) Open(string) (driver.Conn, error) { return lockWaitConn{}, nil }

type lockWaitConn struct{}

func (lockWaitConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (lockWaitConn) Close() error                        { return nil }
func (lockWaitConn) Begin() (driver.Tx, error)           { return lockWaitTx{}, nil }

func (lockWaitConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return lockWaitTx{}, nil
}

func (lockWaitConn) QueryContext(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (lockWaitConn) ExecContext(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type lockWaitTx struct{}

func (lockWaitTx) Commit() error   { return nil }
func (lockWaitTx) Rollback() error { return nil }

func init() {
	sql.Register("lockwait", lockWaitDriver{})
}

func lockWaitDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("lockwait", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWithRetry_BudgetStopsBlockedQuery(t *testing.T) {
	db := lockWaitDB(t)
	opts := DefaultTxOptions()
	opts.Timeout = 100 * time.Millisecond

	start := time.Now()
	err := WithRetry(context.Background(), db, opts, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "SELECT id FROM products WHERE id = $1 FOR UPDATE", 1)
		return err
	})

	assert.ErrorIs(t, err, ErrTxBudgetExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWithTransaction_BudgetStopsBlockedQuery(t *testing.T) {
	db := lockWaitDB(t)
	opts := DefaultTxOptions()
	opts.Timeout = 50 * time.Millisecond

	start := time.Now()
	err := WithTransaction(context.Background(), db, opts, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE orders SET status = 'sent' WHERE id = 1")
		return err
	})

	assert.ErrorIs(t, err, ErrTxBudgetExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWithRetry_RetriesSerializationFailures(t *testing.T) {
	db := lockWaitDB(t)
	opts := DefaultTxOptions()
	opts.MaxRetries = 2

	attempts := 0
	err := WithRetry(context.Background(), db, opts, func(ctx context.Context, tx *sql.Tx) error {
		attempts++
		return &pq.Error{Code: "40001"}
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.NotErrorIs(t, err, ErrTxBudgetExceeded)
}

func TestWithRetry_PermanentErrorIsNotRetried(t *testing.T) {
	db := lockWaitDB(t)

	attempts := 0
	errOut := errors.New("insufficient stock")
	err := WithRetry(context.Background(), db, DefaultTxOptions(), func(ctx context.Context, tx *sql.Tx) error {
		attempts++
		return errOut
	})

	assert.ErrorIs(t, err, errOut)
	assert.Equal(t, 1, attempts)
}
