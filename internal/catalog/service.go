// Package catalog serves product and category reads through the cache and
// invalidates the cache after every committed write.
package catalog

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/cache"
	"github.com/safar/go-shop/internal/database"
	"github.com/safar/go-shop/internal/inventory"
	"github.com/safar/go-shop/internal/models"
	"github.com/safar/go-shop/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrEmptyUpdate  = apperr.New(apperr.KindInvalid, "empty_update", "no fields to update")
	ErrInvalidField = apperr.New(apperr.KindInvalid, "invalid_field", "invalid field value")
)

type Service struct {
	db        *sql.DB
	cache     *cache.Catalog
	logger    *zap.Logger
	txTimeout time.Duration
	sfg       singleflight.Group
}

func NewService(db *sql.DB, c *cache.Catalog, txTimeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, cache: c, txTimeout: txTimeout, logger: logger.Named("catalog")}
}

// Product is read-through: concurrent misses for the same id share one query.
// The shared load runs detached from any single caller, so one cancelled
// request does not fail the others waiting on it.
func (s *Service) Product(ctx context.Context, id int64) (*models.Product, error) {
	if p, ok := s.cache.Product(ctx, id); ok {
		return p, nil
	}

	v, err, _ := s.sfg.Do("product:"+strconv.FormatInt(id, 10), func() (interface{}, error) {
		ctx, cancel := s.loadContext(ctx)
		defer cancel()

		ticket := s.cache.ProductTicket(ctx, id)
		p, err := store.GetProduct(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		s.cache.FillProduct(ctx, ticket, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	cp := *v.(*models.Product)
	return &cp, nil
}

func (s *Service) ListProducts(ctx context.Context, f store.ProductFilter) (*store.OffsetPage, error) {
	return store.ListProducts(ctx, s.db, f)
}

// SearchProducts matches active products by name or description.
func (s *Service) SearchProducts(ctx context.Context, f store.ProductFilter) (*store.OffsetPage, error) {
	f.Query = strings.TrimSpace(f.Query)
	if f.Query == "" {
		return nil, ErrInvalidField.With("field", "q")
	}
	f.ActiveOnly = true
	return store.ListProducts(ctx, s.db, f)
}

func (s *Service) CategoryTree(ctx context.Context) ([]models.CategoryNode, error) {
	if tree, ok := s.cache.CategoryTree(ctx); ok {
		return tree, nil
	}

	v, err, _ := s.sfg.Do("category:tree", func() (interface{}, error) {
		ctx, cancel := s.loadContext(ctx)
		defer cancel()

		ticket := s.cache.CategoryTreeTicket(ctx)
		categories, err := store.ListCategories(ctx, s.db)
		if err != nil {
			return nil, err
		}
		tree := store.BuildCategoryTree(categories)
		s.cache.FillCategoryTree(ctx, ticket, tree)
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.CategoryNode), nil
}

func (s *Service) ListCategories(ctx context.Context, f store.CategoryFilter) (*store.OffsetPage, error) {
	return store.ListCategoriesPage(ctx, s.db, f)
}

func (s *Service) Category(ctx context.Context, id int64) (*models.Category, error) {
	return store.GetCategory(ctx, s.db, id)
}

func (s *Service) CreateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	if p.SKU == "" {
		return nil, ErrInvalidField.With("field", "sku")
	}
	if p.Name == "" {
		return nil, ErrInvalidField.With("field", "name")
	}
	if p.Price.IsNegative() {
		return nil, ErrInvalidField.With("field", "price")
	}
	if p.StockQuantity < 0 {
		return nil, ErrInvalidField.With("field", "stock_quantity")
	}

	created, err := store.CreateProduct(ctx, s.db, p)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, created.ID)
	s.logger.Info("product created", zap.Int64("product_id", created.ID), zap.String("sku", created.SKU))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, u *models.ProductUpdate) (*models.Product, error) {
	if u == nil || u.Empty() {
		return nil, ErrEmptyUpdate
	}
	if price, ok := u.Price(); ok && price.IsNegative() {
		return nil, ErrInvalidField.With("field", "price")
	}

	var updated *models.Product
	err := database.WithTransaction(ctx, s.db, s.txOptions(), func(ctx context.Context, tx *sql.Tx) error {
		p, err := store.GetProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		u.Apply(p)
		if strings.TrimSpace(p.Name) == "" {
			return ErrInvalidField.With("field", "name")
		}
		if err := store.UpdateProduct(ctx, tx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	return updated, nil
}

// AdjustStock changes stock by delta under the product row lock.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int) (*models.Product, error) {
	if delta == 0 {
		return nil, ErrInvalidField.With("field", "delta")
	}

	var updated *models.Product
	err := database.WithRetry(ctx, s.db, s.txOptions(), func(ctx context.Context, tx *sql.Tx) error {
		if _, err := inventory.Adjust(ctx, tx, id, delta); err != nil {
			return err
		}
		p, err := store.GetProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.logger.Info("stock adjusted",
		zap.Int64("product_id", id), zap.Int("delta", delta), zap.Int("stock", updated.StockQuantity))
	return updated, nil
}

// DeleteProduct hard-deletes a product no order refers to and deactivates the
// rest. It reports whether the product was only deactivated.
func (s *Service) DeleteProduct(ctx context.Context, id int64) (bool, error) {
	var deactivated bool
	err := database.WithTransaction(ctx, s.db, s.txOptions(), func(ctx context.Context, tx *sql.Tx) error {
		var err error
		deactivated, err = store.DeleteProduct(ctx, tx, id)
		return err
	})
	if err != nil {
		return false, err
	}

	s.invalidate(ctx, id)
	s.logger.Info("product deleted", zap.Int64("product_id", id), zap.Bool("deactivated", deactivated))
	return deactivated, nil
}

func (s *Service) CreateCategory(ctx context.Context, name, description string, parentID *int64) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidField.With("field", "name")
	}

	c, err := store.CreateCategory(ctx, s.db, name, description, parentID)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateCategoryTree(ctx)
	return c, nil
}

func (s *Service) invalidate(ctx context.Context, productID int64) {
	s.cache.InvalidateProduct(ctx, productID)
	s.cache.InvalidateCategoryTree(ctx)
}

func (s *Service) loadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.txTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (s *Service) txOptions() database.TxOptions {
	opts := database.DefaultTxOptions()
	opts.Timeout = s.txTimeout
	return opts
}
