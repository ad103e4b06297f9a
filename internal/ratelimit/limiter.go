// Package ratelimit implements sliding-window admission control on Redis.
// The limiter fails open: when Redis is slow or unreachable every request is
// admitted and the decision is marked as such.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/safar/go-shop/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	FailOpen   bool
}

type window struct {
	count int64
	// release is the timestamp of the entry that must age out before the
	// window holds fewer than limit entries again.
	release time.Time
}

type Limiter struct {
	client  redis.UniversalClient
	window  time.Duration
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[window]
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewLimiter(client redis.UniversalClient, windowSize, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	logger = logger.Named("ratelimit")

	breaker := gobreaker.NewCircuitBreaker[window](gobreaker.Settings{
		Name:        "ratelimit-redis",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Limiter{
		client:  client,
		window:  windowSize,
		timeout: timeout,
		breaker: breaker,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func (l *Limiter) Window() time.Duration { return l.window }

// Check records one request against key and reports whether it fits in limit.
// Rejected requests are recorded too, so a client hammering a closed window
// keeps it closed.
func (l *Limiter) Check(ctx context.Context, key string, limit int) Decision {
	now := l.now()

	w, err := l.breaker.Execute(func() (window, error) {
		return l.record(ctx, key, limit, now)
	})
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
		l.observe("fail_open")
		return Decision{Allowed: true, Limit: limit, Remaining: limit, FailOpen: true}
	}

	d := Decision{Limit: limit, Remaining: max(0, limit-int(w.count))}
	if w.count <= int64(limit) {
		d.Allowed = true
		l.observe("allowed")
		return d
	}

	d.RetryAfter = w.release.Add(l.window).Sub(now)
	if d.RetryAfter < time.Second {
		d.RetryAfter = time.Second
	}
	l.observe("rejected")
	return d
}

// record adds now to the window in one MULTI. Entries are sorted by time, so
// once count > limit the next request fits only after the entry limit places
// from the newest has expired.
func (l *Limiter) record(ctx context.Context, key string, limit int, now time.Time) (window, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	nowNanos := now.UnixNano()
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)
	member := fmt.Sprintf("%d:%s", nowNanos, uuid.NewString())

	var card *redis.IntCmd
	var release *redis.ZSliceCmd
	idx := -int64(max(limit, 1))
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowNanos), Member: member})
		card = pipe.ZCard(ctx, key)
		release = pipe.ZRangeWithScores(ctx, key, idx, idx)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return window{}, fmt.Errorf("record request: %w", err)
	}

	w := window{count: card.Val(), release: now}
	if zs := release.Val(); len(zs) > 0 {
		w.release = time.Unix(0, int64(zs[0].Score))
	}
	return w, nil
}

func (l *Limiter) observe(outcome string) {
	if l.metrics != nil {
		l.metrics.RateLimitDecisions.WithLabelValues(outcome).Inc()
	}
}
