// Package cart keeps one JSON document per user under cart:{user_id}. Every
// write renews the document's TTL.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	keyPrefix     = "cart:"
	maxWatchTries = 3
)

var ErrItemNotInCart = apperr.New(apperr.KindNotFound, "cart_item_not_found", "item not in cart")

type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		ttl:    ttl,
		logger: logger.Named("cart"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func cartKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

// Get reports an unreachable store or an unreadable document as a missing
// cart. Both cases are logged.
func (s *Store) Get(ctx context.Context, userID int64) (*models.Cart, bool) {
	data, err := s.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cart read failed, treating as empty",
			zap.Int64("user_id", userID), zap.Error(err))
		return nil, false
	}

	c, err := decode(data)
	if err != nil {
		s.logger.Warn("cart document unreadable, treating as empty",
			zap.Int64("user_id", userID), zap.Error(err))
		return nil, false
	}
	return c, true
}

// GetOrCreate never fails. A new empty cart is persisted best-effort without
// overwriting a document written concurrently.
func (s *Store) GetOrCreate(ctx context.Context, userID int64) *models.Cart {
	if c, ok := s.Get(ctx, userID); ok {
		return c
	}

	now := s.now()
	c := models.NewCart(userID, now)
	c.ExpiresAt = now.Add(s.ttl)

	data, err := json.Marshal(c)
	if err == nil {
		err = s.client.SetNX(ctx, cartKey(userID), data, s.ttl).Err()
	}
	if err != nil {
		s.logger.Debug("persist empty cart failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	return c
}

func (s *Store) Put(ctx context.Context, c *models.Cart) error {
	now := s.now()
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(s.ttl)

	data, err := json.Marshal(c)
	if err != nil {
		return apperr.Internal(err, "encode cart")
	}
	if err := s.client.Set(ctx, cartKey(c.UserID), data, s.ttl).Err(); err != nil {
		return apperr.Unavailable(err, "save cart")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return apperr.Unavailable(err, "delete cart")
	}
	return nil
}

func (s *Store) AddItem(ctx context.Context, userID, productID int64, quantity int, price decimal.Decimal, name, image string) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(c *models.Cart, now time.Time) error {
		c.AddItem(productID, quantity, price, name, image, now)
		return nil
	})
}

func (s *Store) UpdateQuantity(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(c *models.Cart, now time.Time) error {
		if !c.UpdateQuantity(productID, quantity, now) {
			return ErrItemNotInCart.With("product_id", productID)
		}
		return nil
	})
}

func (s *Store) RemoveItem(ctx context.Context, userID, productID int64) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(c *models.Cart, now time.Time) error {
		if !c.RemoveItem(productID, now) {
			return ErrItemNotInCart.With("product_id", productID)
		}
		return nil
	})
}

func (s *Store) Clear(ctx context.Context, userID int64) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(c *models.Cart, now time.Time) error {
		c.Clear(now)
		return nil
	})
}

// mutate is an optimistic read-modify-write: the key is WATCHed so a
// concurrent writer makes EXEC fail and the change is reapplied to the
// fresh document.
func (s *Store) mutate(ctx context.Context, userID int64, fn func(*models.Cart, time.Time) error) (*models.Cart, error) {
	key := cartKey(userID)
	var result *models.Cart

	txf := func(tx *redis.Tx) error {
		now := s.now()
		c := models.NewCart(userID, now)

		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if decoded, derr := decode(data); derr == nil {
				c = decoded
			} else {
				s.logger.Warn("replacing unreadable cart document",
					zap.Int64("user_id", userID), zap.Error(derr))
			}
		}

		if err := fn(c, now); err != nil {
			return err
		}
		c.UpdatedAt = now
		c.ExpiresAt = now.Add(s.ttl)

		encoded, err := json.Marshal(c)
		if err != nil {
			return apperr.Internal(err, "encode cart")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		if err == nil {
			result = c
		}
		return err
	}

	var err error
	for i := 0; i < maxWatchTries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		if errors.Is(err, redis.TxFailedErr) {
			return nil, apperr.Wrap(err, apperr.KindConflict, "cart_contended", "cart is being modified concurrently, retry")
		}
		return nil, apperr.Unavailable(err, "update cart")
	}
	return result, nil
}

// PurgeStale deletes cart documents that carry no expiry or cannot be read.
// Healthy carts expire on their own.
func (s *Store) PurgeStale(ctx context.Context) (int, error) {
	var cursor uint64
	purged := 0

	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return purged, apperr.Unavailable(err, "scan carts")
		}

		for _, key := range keys {
			stale, err := s.isStale(ctx, key)
			if err != nil {
				return purged, apperr.Unavailable(err, "inspect cart")
			}
			if !stale {
				continue
			}
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return purged, apperr.Unavailable(err, "delete stale cart")
			}
			purged++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if purged > 0 {
		s.logger.Info("purged stale carts", zap.Int("count", purged))
	}
	return purged, nil
}

func (s *Store) isStale(ctx context.Context, key string) (bool, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if ttl == -1 {
		return true, nil
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c, err := decode(data)
	if err != nil {
		return true, nil
	}
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(s.now()), nil
}

func decode(data []byte) (*models.Cart, error) {
	var c models.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	if c.Items == nil {
		c.Items = map[int64]models.CartItem{}
	}
	for id, item := range c.Items {
		if item.Quantity <= 0 {
			delete(c.Items, id)
		}
	}
	return &c, nil
}
