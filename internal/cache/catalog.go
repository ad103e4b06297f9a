// Package cache is the only writer of catalog cache keys: product:{id} and
// category:tree. Every invalidation also bumps a generation counter kept next
// to the key, and read-through fills only land if the generation they started
// from is still current.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-shop/internal/metrics"
	"github.com/safar/go-shop/internal/models"
	"go.uber.org/zap"
)

const categoryTreeKey = "category:tree"

func productKey(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

func generationKey(key string) string {
	return key + ":gen"
}

var errStaleFill = errors.New("cache generation moved")

// Ticket is taken before loading a value from the database and handed back to
// the matching Fill call.
type Ticket struct {
	key   string
	gen   int64
	valid bool
}

type Catalog struct {
	client  redis.UniversalClient
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewCatalog(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{client: client, ttl: ttl, logger: logger.Named("cache"), metrics: m}
}

func (c *Catalog) Product(ctx context.Context, id int64) (*models.Product, bool) {
	var p models.Product
	if !c.get(ctx, "product", productKey(id), &p) {
		return nil, false
	}
	return &p, true
}

func (c *Catalog) ProductTicket(ctx context.Context, id int64) Ticket {
	return c.ticket(ctx, productKey(id))
}

// FillProduct stores p unless the product was invalidated after t was taken.
func (c *Catalog) FillProduct(ctx context.Context, t Ticket, p *models.Product) bool {
	if t.key != productKey(p.ID) {
		return false
	}
	return c.fill(ctx, t, p)
}

func (c *Catalog) InvalidateProduct(ctx context.Context, id int64) {
	c.del(ctx, productKey(id))
}

func (c *Catalog) CategoryTree(ctx context.Context) ([]models.CategoryNode, bool) {
	var tree []models.CategoryNode
	if !c.get(ctx, "category_tree", categoryTreeKey, &tree) {
		return nil, false
	}
	return tree, true
}

func (c *Catalog) CategoryTreeTicket(ctx context.Context) Ticket {
	return c.ticket(ctx, categoryTreeKey)
}

func (c *Catalog) FillCategoryTree(ctx context.Context, t Ticket, tree []models.CategoryNode) bool {
	if t.key != categoryTreeKey {
		return false
	}
	return c.fill(ctx, t, tree)
}

func (c *Catalog) InvalidateCategoryTree(ctx context.Context) {
	c.del(ctx, categoryTreeKey)
}

// get treats every failure as a miss. Entries that no longer decode are
// removed so the next read repopulates them.
func (c *Catalog) get(ctx context.Context, kind, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		c.observe(kind, "miss")
		return false
	case err != nil:
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		c.observe(kind, "error")
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.del(ctx, key)
		c.observe(kind, "miss")
		return false
	}
	c.observe(kind, "hit")
	return true
}

// ticket is invalid when Redis cannot be read; fills with it are skipped.
func (c *Catalog) ticket(ctx context.Context, key string) Ticket {
	gen, err := generation(ctx, c.client, generationKey(key))
	if err != nil {
		c.logger.Warn("cache generation read failed", zap.String("key", key), zap.Error(err))
		return Ticket{key: key}
	}
	return Ticket{key: key, gen: gen, valid: true}
}

func (c *Catalog) fill(ctx context.Context, t Ticket, v any) bool {
	if !t.valid {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("encode cache entry", zap.String("key", t.key), zap.Error(err))
		return false
	}

	genKey := generationKey(t.key)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(ctx, tx, genKey)
		if err != nil {
			return err
		}
		if current != t.gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, t.key, data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
		return true
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("skipping stale cache fill", zap.String("key", t.key))
	default:
		c.logger.Warn("cache write failed", zap.String("key", t.key), zap.Error(err))
	}
	return false
}

// del removes the entry and bumps its generation in one MULTI so a fill that
// loaded before the write cannot land after it.
func (c *Catalog) del(ctx context.Context, key string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Incr(ctx, generationKey(key))
		return nil
	})
	if err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, r getter, key string) (int64, error) {
	gen, err := r.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *Catalog) observe(kind, result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(kind, result).Inc()
	}
}
