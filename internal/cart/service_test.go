package cart

import (
	"context"
	"testing"

	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = apperr.New(apperr.KindNotFound, "product_not_found", "product not found")

type fakeProducts map[int64]*models.Product

func (f fakeProducts) Product(_ context.Context, id int64) (*models.Product, error) {
	p, ok := f[id]
	if !ok {
		return nil, errMissing
	}
	cp := *p
	return &cp, nil
}

func setupTestService(t *testing.T) (*Service, fakeProducts) {
	s, _ := setupTestStore(t)
	products := fakeProducts{
		1: {ID: 1, Name: "Lamp", Price: decimal.RequireFromString("19.90"), StockQuantity: 5, Images: []string{"lamp.png"}, IsActive: true},
		2: {ID: 2, Name: "Retired", Price: decimal.NewFromInt(1), StockQuantity: 100, IsActive: false},
	}
	return NewService(s, products, nil), products
}

func TestService_AddSnapshotsProduct(t *testing.T) {
	svc, _ := setupTestService(t)

	c, err := svc.Add(context.Background(), 1, 1, 2)
	require.NoError(t, err)

	item := c.Items[1]
	assert.Equal(t, "Lamp", item.NameSnapshot)
	assert.Equal(t, "lamp.png", item.ImageSnapshot)
	assert.True(t, item.PriceSnapshot.Equal(decimal.RequireFromString("19.90")))
}

func TestService_AddChecksCombinedQuantity(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, 1, 1, 3)
	require.NoError(t, err)

	_, err = svc.Add(ctx, 1, 1, 3)
	require.ErrorIs(t, err, ErrNotEnoughStock)
	e, _ := apperr.As(err)
	assert.Equal(t, 6, e.Details["requested"])
	assert.Equal(t, 5, e.Details["available"])

	assert.Equal(t, 3, svc.Get(ctx, 1).Quantity(1))
}

func TestService_AddRejects(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, 1, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Add(ctx, 1, 2, 1)
	assert.ErrorIs(t, err, ErrProductUnavailable)

	_, err = svc.Add(ctx, 1, 99, 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_UpdateZeroRemoves(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, 1, 1, 1)
	require.NoError(t, err)

	_, err = svc.Update(ctx, 1, 1, 6)
	assert.ErrorIs(t, err, ErrNotEnoughStock)

	c, err := svc.Update(ctx, 1, 1, 0)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestService_Validate(t *testing.T) {
	svc, products := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, 1, 1, 4)
	require.NoError(t, err)

	v, err := svc.Validate(ctx, 1)
	require.NoError(t, err)
	assert.True(t, v.Valid)

	products[1].StockQuantity = 2
	v, err = svc.Validate(ctx, 1)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	require.Len(t, v.Issues, 1)
	assert.Equal(t, 4, v.Issues[0].Requested)
	assert.Equal(t, 2, *v.Issues[0].Available)

	delete(products, 1)
	v, err = svc.Validate(ctx, 1)
	require.NoError(t, err)
	require.Len(t, v.Issues, 1)
	assert.Nil(t, v.Issues[0].Available)
	assert.Equal(t, 4, svc.Get(ctx, 1).Quantity(1))
}
