package cart

import (
	"context"
	"sort"

	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/models"
	"go.uber.org/zap"
)

const MaxLineQuantity = 99

var (
	ErrInvalidQuantity    = apperr.New(apperr.KindInvalid, "invalid_quantity", "quantity must be between 1 and 99")
	ErrProductUnavailable = apperr.New(apperr.KindConflict, "product_unavailable", "product is not available")
	ErrNotEnoughStock     = apperr.New(apperr.KindConflict, "insufficient_stock", "not enough stock available")
)

// ProductSource resolves live products. The catalog service satisfies it.
type ProductSource interface {
	Product(ctx context.Context, id int64) (*models.Product, error)
}

// Service applies the checks a cart mutation needs before it reaches the
// store. Stock checks here are advisory; checkout verifies again under lock.
type Service struct {
	store    *Store
	products ProductSource
	logger   *zap.Logger
}

func NewService(store *Store, products ProductSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, products: products, logger: logger}
}

func (s *Service) Get(ctx context.Context, userID int64) *models.Cart {
	return s.store.GetOrCreate(ctx, userID)
}

func (s *Service) Add(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	if quantity < 1 || quantity > MaxLineQuantity {
		return nil, ErrInvalidQuantity.With("quantity", quantity)
	}

	p, err := s.available(ctx, productID)
	if err != nil {
		return nil, err
	}

	existing := 0
	if c, ok := s.store.Get(ctx, userID); ok {
		existing = c.Quantity(productID)
	}
	if existing+quantity > MaxLineQuantity {
		return nil, ErrInvalidQuantity.With("quantity", existing+quantity)
	}
	if p.StockQuantity < existing+quantity {
		return nil, ErrNotEnoughStock.
			With("product_id", productID).
			With("requested", existing+quantity).
			With("available", p.StockQuantity)
	}

	return s.store.AddItem(ctx, userID, productID, quantity, p.Price, p.Name, p.PrimaryImage())
}

// Update sets the line quantity; zero removes the line.
func (s *Service) Update(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	if quantity < 0 || quantity > MaxLineQuantity {
		return nil, ErrInvalidQuantity.With("quantity", quantity)
	}
	if quantity == 0 {
		return s.store.RemoveItem(ctx, userID, productID)
	}

	p, err := s.available(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.StockQuantity < quantity {
		return nil, ErrNotEnoughStock.
			With("product_id", productID).
			With("requested", quantity).
			With("available", p.StockQuantity)
	}

	return s.store.UpdateQuantity(ctx, userID, productID, quantity)
}

func (s *Service) Remove(ctx context.Context, userID, productID int64) (*models.Cart, error) {
	return s.store.RemoveItem(ctx, userID, productID)
}

func (s *Service) Clear(ctx context.Context, userID int64) (*models.Cart, error) {
	return s.store.Clear(ctx, userID)
}

func (s *Service) available(ctx context.Context, productID int64) (*models.Product, error) {
	p, err := s.products.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrProductUnavailable.With("product_id", productID)
	}
	return p, nil
}

type Issue struct {
	ProductID int64  `json:"product_id"`
	Error     string `json:"error"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

type Validation struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// Validate reports lines that checkout would reject right now. It never
// changes the cart.
func (s *Service) Validate(ctx context.Context, userID int64) (*Validation, error) {
	v := &Validation{Valid: true, Issues: []Issue{}}

	c, ok := s.store.Get(ctx, userID)
	if !ok {
		return v, nil
	}

	ids := make([]int64, 0, len(c.Items))
	for id := range c.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		item := c.Items[id]
		p, err := s.products.Product(ctx, id)
		if err != nil {
			if apperr.KindOf(err) != apperr.KindNotFound {
				return nil, err
			}
			v.Issues = append(v.Issues, Issue{ProductID: id, Error: "product no longer available"})
			continue
		}
		if !p.IsActive {
			v.Issues = append(v.Issues, Issue{ProductID: id, Error: "product no longer available"})
			continue
		}
		if p.StockQuantity < item.Quantity {
			available := p.StockQuantity
			v.Issues = append(v.Issues, Issue{
				ProductID: id,
				Error:     "not enough stock",
				Requested: item.Quantity,
				Available: &available,
			})
		}
	}

	v.Valid = len(v.Issues) == 0
	return v, nil
}
