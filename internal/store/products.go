package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/safar/go-shop/internal/database"
	"github.com/safar/go-shop/internal/models"
)

const productColumns = `id, sku, name, description, price, stock_quantity, images, category_id, is_active, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, p *models.Product) error {
	return row.Scan(
		&p.ID,
		&p.SKU,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.StockQuantity,
		pq.Array(&p.Images),
		&p.CategoryID,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
}

func CreateProduct(ctx context.Context, q database.Querier, p models.Product) (*models.Product, error) {
	if p.Images == nil {
		p.Images = []string{}
	}
	product := &models.Product{}

	query := `
		INSERT INTO products (sku, name, description, price, stock_quantity, images, category_id, is_active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	row := q.QueryRowContext(ctx, query,
		p.SKU, p.Name, p.Description, p.Price, p.StockQuantity, pq.Array(p.Images), p.CategoryID, p.IsActive)
	if err := scanProduct(row, product); err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return nil, ErrDuplicateSKU
		case database.IsForeignKeyViolation(err):
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q database.Querier, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := scanProduct(q.QueryRowContext(ctx, query, id), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// UpdateProduct writes every mutable column except stock, guarded by the
// version the caller read. Stock is owned by the inventory ledger.
func UpdateProduct(ctx context.Context, q database.Querier, p *models.Product) error {
	if p.Images == nil {
		p.Images = []string{}
	}

	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, images = $4, category_id = $5, is_active = $6,
		    version = version + 1, updated_at = NOW()
		WHERE id = $7 AND version = $8
		RETURNING ` + productColumns

	row := q.QueryRowContext(ctx, query,
		p.Name, p.Description, p.Price, pq.Array(p.Images), p.CategoryID, p.IsActive, p.ID, p.Version)
	if err := scanProduct(row, p); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrStaleProduct
		case database.IsForeignKeyViolation(err):
			return ErrCategoryNotFound
		}
		return fmt.Errorf("update product: %w", err)
	}

	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type ProductFilter struct {
	CategoryID int64
	ActiveOnly bool
	// Query matches name or description case-insensitively.
	Query    string
	Page     int
	PageSize int
}

func (f *ProductFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

func ListProducts(ctx context.Context, q database.Querier, f ProductFilter) (*OffsetPage, error) {
	f.normalize()

	var where []string
	var args []any
	if f.CategoryID > 0 {
		args = append(args, f.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+clause, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (f.Page - 1) * f.PageSize
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		productColumns, clause, len(args)+1, len(args)+2)

	rows, err := q.QueryContext(ctx, query, append(args, f.PageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, f.Page, f.PageSize), nil
}

// DeleteProduct removes a product under its row lock. Products that appear in
// any order are only deactivated so order history keeps its references.
func DeleteProduct(ctx context.Context, tx *sql.Tx, id int64) (deactivated bool, err error) {
	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrProductNotFound
		}
		return false, fmt.Errorf("lock product: %w", err)
	}

	var referenced bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM order_items WHERE product_id = $1)`, id).Scan(&referenced)
	if err != nil {
		return false, fmt.Errorf("check product references: %w", err)
	}

	if referenced {
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET is_active = FALSE, version = version + 1, updated_at = NOW() WHERE id = $1`, id)
		if err != nil {
			return false, fmt.Errorf("deactivate product: %w", err)
		}
		return true, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	return false, nil
}
