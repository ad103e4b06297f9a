package inventory_test

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/database"
	"github.com/safar/go-shop/internal/inventory"
	"github.com/safar/go-shop/internal/store"
	"github.com/safar/go-shop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortLines(t *testing.T) {
	lines := []inventory.Line{{ProductID: 9, Quantity: 1}, {ProductID: 2, Quantity: 3}, {ProductID: 5, Quantity: 2}}
	inventory.SortLines(lines)
	assert.Equal(t, []int64{2, 5, 9}, []int64{lines[0].ProductID, lines[1].ProductID, lines[2].ProductID})
}

func TestConcurrentStockReservation(t *testing.T) {
	db := testutil.SetupPostgres(t)
	ctx := context.Background()

	cat := testutil.Category(t, db)
	product := testutil.Product(t, db, cat.ID, "100.00", 10)

	concurrency := 5
	var wg sync.WaitGroup
	var succeeded atomic.Int32

	for i := 0; i < concurrency*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(ctx context.Context, tx *sql.Tx) error {
				if _, err := inventory.Reserve(ctx, tx, product.ID, 2); err != nil {
					return err
				}
				_, err := inventory.Decrement(ctx, tx, product.ID, 2)
				return err
			})
			if err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
			}
		}()
	}

	wg.Wait()

	final, err := store.GetProduct(ctx, db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(concurrency), succeeded.Load())
	assert.Equal(t, 0, final.StockQuantity)
}

func TestReserve_ShortageCarriesDetails(t *testing.T) {
	db := testutil.SetupPostgres(t)
	ctx := context.Background()

	cat := testutil.Category(t, db)
	product := testutil.Product(t, db, cat.ID, "5.00", 1)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(ctx context.Context, tx *sql.Tx) error {
		_, err := inventory.Reserve(ctx, tx, product.ID, 3)
		return err
	})

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, e.Kind)
	assert.Equal(t, product.ID, e.Details["product_id"])
	assert.Equal(t, 3, e.Details["requested"])
	assert.Equal(t, 1, e.Details["available"])
}

func TestAdjust(t *testing.T) {
	db := testutil.SetupPostgres(t)
	ctx := context.Background()

	cat := testutil.Category(t, db)
	product := testutil.Product(t, db, cat.ID, "5.00", 4)

	var remaining int
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(ctx context.Context, tx *sql.Tx) error {
		var err error
		remaining, err = inventory.Adjust(ctx, tx, product.ID, 6)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(ctx context.Context, tx *sql.Tx) error {
		_, err := inventory.Adjust(ctx, tx, product.ID, -11)
		return err
	})
	assert.ErrorIs(t, err, inventory.ErrNegativeStock)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, 10, e.Details["available"])
	assert.Equal(t, -11, e.Details["delta"])

	final, err := store.GetProduct(ctx, db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, final.StockQuantity)
}

func TestReserve_UnknownProduct(t *testing.T) {
	db := testutil.SetupPostgres(t)
	ctx := context.Background()

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(ctx context.Context, tx *sql.Tx) error {
		_, err := inventory.Reserve(ctx, tx, 987654, 1)
		return err
	})
	assert.ErrorIs(t, err, store.ErrProductNotFound)
}
