package catalog_test

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/safar/go-shop/internal/cache"
	"github.com/safar/go-shop/internal/catalog"
	"github.com/safar/go-shop/internal/inventory"
	"github.com/safar/go-shop/internal/models"
	"github.com/safar/go-shop/internal/store"
	"github.com/safar/go-shop/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestService(t *testing.T) (*catalog.Service, *miniredis.Miniredis) {
	svc, mr, _ := setupTestServiceDB(t)
	return svc, mr
}

func setupTestServiceDB(t *testing.T) (*catalog.Service, *miniredis.Miniredis, *sql.DB) {
	db := testutil.SetupPostgres(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c := cache.NewCatalog(client, time.Hour, nil, nil)
	return catalog.NewService(db, c, 5*time.Second, nil), mr, db
}

func TestUpdateProduct_InvalidatesCachedPrice(t *testing.T) {
	svc, mr := setupTestService(t)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "Home", "", nil)
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, models.Product{
		SKU: "LAMP-42", Name: "Lamp", Price: decimal.RequireFromString("10.00"),
		StockQuantity: 3, CategoryID: cat.ID, IsActive: true,
	})
	require.NoError(t, err)

	cached, err := svc.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, cached.Price.Equal(decimal.RequireFromString("10.00")))
	require.True(t, mr.Exists(keyFor(p.ID)))

	_, err = svc.UpdateProduct(ctx, p.ID, (&models.ProductUpdate{}).SetPrice(decimal.RequireFromString("12.50")))
	require.NoError(t, err)
	assert.False(t, mr.Exists(keyFor(p.ID)))

	fresh, err := svc.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Price.Equal(decimal.RequireFromString("12.50")))
}

func TestAdjustStock_InvalidatesAndGuards(t *testing.T) {
	svc, mr := setupTestService(t)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "Books", "", nil)
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, models.Product{
		SKU: "BOOK-1", Name: "Book", Price: decimal.NewFromInt(8), StockQuantity: 2, CategoryID: cat.ID, IsActive: true,
	})
	require.NoError(t, err)

	_, err = svc.CategoryTree(ctx)
	require.NoError(t, err)
	_, err = svc.Product(ctx, p.ID)
	require.NoError(t, err)

	updated, err := svc.AdjustStock(ctx, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.StockQuantity)
	assert.False(t, mr.Exists(keyFor(p.ID)))
	assert.False(t, mr.Exists("category:tree"))

	_, err = svc.AdjustStock(ctx, p.ID, -8)
	assert.ErrorIs(t, err, inventory.ErrNegativeStock)
}

func TestCategoryTree_CachedAndInvalidated(t *testing.T) {
	svc, mr := setupTestService(t)
	ctx := context.Background()

	root, err := svc.CreateCategory(ctx, "Home", "", nil)
	require.NoError(t, err)

	tree, err := svc.CategoryTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.True(t, mr.Exists("category:tree"))

	_, err = svc.CreateCategory(ctx, "Lamps", "", &root.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists("category:tree"))

	tree, err = svc.CategoryTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree[0].Children, 1)
}

func TestProduct_ConcurrentMisses(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "Toys", "", nil)
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, models.Product{
		SKU: "TOY-1", Name: "Ball", Price: decimal.NewFromInt(3), StockQuantity: 1, CategoryID: cat.ID, IsActive: true,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Product(ctx, p.ID)
			if assert.NoError(t, err) {
				assert.Equal(t, "Ball", got.Name)
			}
		}()
	}
	wg.Wait()
}

func TestUpdateProduct_Rejects(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateProduct(ctx, 1, &models.ProductUpdate{})
	assert.ErrorIs(t, err, catalog.ErrEmptyUpdate)

	_, err = svc.UpdateProduct(ctx, 1, (&models.ProductUpdate{}).SetPrice(decimal.NewFromInt(-1)))
	assert.ErrorIs(t, err, catalog.ErrInvalidField)
}

func TestProduct_LoadSurvivesCallerCancellation(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "Garden", "", nil)
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, models.Product{
		SKU: "HOSE-1", Name: "Hose", Price: decimal.NewFromInt(15), StockQuantity: 2, CategoryID: cat.ID, IsActive: true,
	})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	got, err := svc.Product(cancelled, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hose", got.Name)
}

func TestDeleteProduct(t *testing.T) {
	svc, mr, db := setupTestServiceDB(t)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "Kitchen", "", nil)
	require.NoError(t, err)
	unused, err := svc.CreateProduct(ctx, models.Product{
		SKU: "PAN-1", Name: "Pan", Price: decimal.NewFromInt(20), StockQuantity: 1, CategoryID: cat.ID, IsActive: true,
	})
	require.NoError(t, err)
	ordered, err := svc.CreateProduct(ctx, models.Product{
		SKU: "POT-1", Name: "Pot", Price: decimal.NewFromInt(30), StockQuantity: 1, CategoryID: cat.ID, IsActive: true,
	})
	require.NoError(t, err)

	user, addr := testutil.Customer(t, db)
	var orderID int64
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, shipping_address_id) VALUES ($1, $2) RETURNING id`, user.ID, addr.ID).Scan(&orderID))
	_, err = db.ExecContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, price_at_time) VALUES ($1, $2, 1, 30.00)`, orderID, ordered.ID)
	require.NoError(t, err)

	_, err = svc.Product(ctx, ordered.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists(keyFor(ordered.ID)))

	deactivated, err := svc.DeleteProduct(ctx, unused.ID)
	require.NoError(t, err)
	assert.False(t, deactivated)
	_, err = svc.Product(ctx, unused.ID)
	assert.ErrorIs(t, err, store.ErrProductNotFound)

	deactivated, err = svc.DeleteProduct(ctx, ordered.ID)
	require.NoError(t, err)
	assert.True(t, deactivated)
	assert.False(t, mr.Exists(keyFor(ordered.ID)))

	kept, err := svc.Product(ctx, ordered.ID)
	require.NoError(t, err)
	assert.False(t, kept.IsActive)

	_, err = svc.DeleteProduct(ctx, 424242)
	assert.ErrorIs(t, err, store.ErrProductNotFound)
}

func TestSearchProducts(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "Lighting", "", nil)
	require.NoError(t, err)
	for _, p := range []models.Product{
		{SKU: "L-1", Name: "Desk Lamp", Description: "warm light", IsActive: true},
		{SKU: "L-2", Name: "Bulb", Description: "fits any LAMP", IsActive: true},
		{SKU: "L-3", Name: "Old lamp", IsActive: false},
		{SKU: "L-4", Name: "100% cotton shade", IsActive: true},
	} {
		p.CategoryID = cat.ID
		p.Price = decimal.NewFromInt(1)
		_, err := svc.CreateProduct(ctx, p)
		require.NoError(t, err)
	}

	page, err := svc.SearchProducts(ctx, store.ProductFilter{Query: "lamp"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = svc.SearchProducts(ctx, store.ProductFilter{Query: "100%"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = svc.SearchProducts(ctx, store.ProductFilter{Query: "%"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	_, err = svc.SearchProducts(ctx, store.ProductFilter{Query: "  "})
	assert.ErrorIs(t, err, catalog.ErrInvalidField)
}

func TestListCategories(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	root, err := svc.CreateCategory(ctx, "Home", "", nil)
	require.NoError(t, err)
	for _, name := range []string{"Lamps", "Chairs"} {
		_, err := svc.CreateCategory(ctx, name, "", &root.ID)
		require.NoError(t, err)
	}

	all, err := svc.ListCategories(ctx, store.CategoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)

	children, err := svc.ListCategories(ctx, store.CategoryFilter{ParentID: &root.ID, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), children.Total)
	assert.Equal(t, 2, children.TotalPages)
	items := children.Items.([]models.Category)
	require.Len(t, items, 1)
	assert.Equal(t, "Chairs", items[0].Name)

	got, err := svc.Category(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "Home", got.Name)

	_, err = svc.Category(ctx, 999999)
	assert.ErrorIs(t, err, store.ErrCategoryNotFound)
}

func keyFor(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}
