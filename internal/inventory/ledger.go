// Package inventory owns every change to products.stock_quantity. All
// operations run on a caller-supplied transaction and hold the product row
// lock until that transaction ends.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/database"
	"github.com/safar/go-shop/internal/models"
	"github.com/safar/go-shop/internal/store"
)

var (
	ErrInsufficientStock = apperr.New(apperr.KindConflict, "insufficient_stock", "not enough stock")
	ErrProductInactive   = apperr.New(apperr.KindConflict, "product_unavailable", "product is not available")
	ErrNegativeStock     = apperr.New(apperr.KindInvalid, "negative_stock", "stock cannot go below zero")
)

const lockQuery = `
	SELECT id, sku, name, description, price, stock_quantity, category_id, is_active, version
	FROM products
	WHERE id = $1
	FOR UPDATE`

func lock(ctx context.Context, tx *sql.Tx, productID int64) (*models.Product, error) {
	p := &models.Product{}
	err := tx.QueryRowContext(ctx, lockQuery, productID).Scan(
		&p.ID,
		&p.SKU,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.StockQuantity,
		&p.CategoryID,
		&p.IsActive,
		&p.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound.With("product_id", productID)
		}
		return nil, fmt.Errorf("lock product %d: %w", productID, err)
	}
	return p, nil
}

func shortage(productID int64, requested, available int) error {
	return ErrInsufficientStock.
		With("product_id", productID).
		With("requested", requested).
		With("available", available)
}

// Reserve locks the product row and checks it can supply qty. The returned
// product carries the live price.
func Reserve(ctx context.Context, tx *sql.Tx, productID int64, qty int) (*models.Product, error) {
	p, err := lock(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrProductInactive.With("product_id", productID)
	}
	if p.StockQuantity < qty {
		return nil, shortage(productID, qty, p.StockQuantity)
	}
	return p, nil
}

// Decrement never lets stock go negative, even if called without Reserve.
func Decrement(ctx context.Context, tx *sql.Tx, productID int64, qty int) (int, error) {
	var remaining int
	err := tx.QueryRowContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1
		 RETURNING stock_quantity`,
		qty, productID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, shortage(productID, qty, -1)
		}
		return 0, fmt.Errorf("decrement stock: %w", err)
	}
	return remaining, nil
}

// Adjust applies an admin correction of delta units under the row lock. The
// stock_quantity >= 0 constraint rejects corrections below zero.
func Adjust(ctx context.Context, tx *sql.Tx, productID int64, delta int) (int, error) {
	p, err := lock(ctx, tx, productID)
	if err != nil {
		return 0, err
	}

	var remaining int
	err = tx.QueryRowContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING stock_quantity`,
		delta, productID).Scan(&remaining)
	if err != nil {
		if database.IsCheckViolation(err) {
			return 0, ErrNegativeStock.
				With("product_id", productID).
				With("available", p.StockQuantity).
				With("delta", delta)
		}
		return 0, fmt.Errorf("adjust stock: %w", err)
	}
	return remaining, nil
}

// Line is one product/quantity pair of a checkout.
type Line struct {
	ProductID int64
	Quantity  int
}

// SortLines orders lines by product id so concurrent transactions acquire row
// locks in the same order.
func SortLines(lines []Line) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
}
