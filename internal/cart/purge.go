package cart

import (
	"context"
	"time"

	"github.com/safar/go-shop/internal/metrics"
	"go.uber.org/zap"
)

// RunPurger calls PurgeStale every interval until ctx is done. Failures are
// logged and retried on the next tick.
func (s *Store) RunPurger(ctx context.Context, interval time.Duration, m *metrics.Metrics) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeStale(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("cart purge failed", zap.Error(err))
			}
			if m != nil && n > 0 {
				m.CartsPurged.Add(float64(n))
			}
		}
	}
}
