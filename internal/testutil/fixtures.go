package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/safar/go-shop/internal/models"
	"github.com/safar/go-shop/internal/store"
	"github.com/shopspring/decimal"
)

var seq atomic.Int64

// Customer creates a verified client with a complete profile and one address.
func Customer(t *testing.T, db *sql.DB) (*models.User, *models.Address) {
	t.Helper()
	ctx := context.Background()
	n := seq.Add(1)

	user, err := store.CreateUser(ctx, db, models.User{
		Email:           fmt.Sprintf("customer%d@example.com", n),
		FullName:        "Test Customer",
		Phone:           "+10000000000",
		Role:            models.RoleClient,
		IsEmailVerified: true,
	})
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	addr, err := store.CreateAddress(ctx, db, models.Address{
		UserID:     user.ID,
		Street:     "1 Main St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	})
	if err != nil {
		t.Fatalf("Create address: %v", err)
	}

	return user, addr
}

func Category(t *testing.T, db *sql.DB) *models.Category {
	t.Helper()
	c, err := store.CreateCategory(context.Background(), db, fmt.Sprintf("Category %d", seq.Add(1)), "", nil)
	if err != nil {
		t.Fatalf("Create category: %v", err)
	}
	return c
}

func Product(t *testing.T, db *sql.DB, categoryID int64, price string, stock int) *models.Product {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), db, models.Product{
		SKU:           fmt.Sprintf("SKU-%d", seq.Add(1)),
		Name:          "Test product",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		Images:        []string{"img.png"},
		CategoryID:    categoryID,
		IsActive:      true,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return p
}
