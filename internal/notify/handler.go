package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-shop/internal/metrics"
	"go.uber.org/zap"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailHandler delivers each message id at most once per claim TTL. The
// claim is taken before sending and released if sending fails, so a
// redelivered message is retried rather than skipped.
type EmailHandler struct {
	client   redis.UniversalClient
	sender   Sender
	claimTTL time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewEmailHandler(client redis.UniversalClient, sender Sender, logger *zap.Logger, m *metrics.Metrics) *EmailHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailHandler{
		client:   client,
		sender:   sender,
		claimTTL: 7 * 24 * time.Hour,
		logger:   logger.Named("email"),
		metrics:  m,
	}
}

func claimKey(m Message) string {
	return "notify:done:" + m.ID.String()
}

func (h *EmailHandler) Handle(ctx context.Context, m Message) error {
	subject, body, err := Render(m)
	if err != nil {
		h.logger.Error("dropping unrenderable notification", zap.Stringer("id", m.ID), zap.Error(err))
		return nil
	}
	if m.To == "" {
		h.logger.Warn("notification without recipient", zap.Stringer("id", m.ID), zap.String("kind", string(m.Kind)))
		return nil
	}

	claimed, err := h.client.SetNX(ctx, claimKey(m), time.Now().UTC().Format(time.RFC3339), h.claimTTL).Result()
	if err != nil {
		return fmt.Errorf("claim notification %s: %w", m.ID, err)
	}
	if !claimed {
		h.logger.Debug("duplicate notification skipped", zap.Stringer("id", m.ID))
		h.observe("duplicate")
		return nil
	}

	if err := h.sender.Send(ctx, m.To, subject, body); err != nil {
		if delErr := h.client.Del(context.WithoutCancel(ctx), claimKey(m)).Err(); delErr != nil {
			h.logger.Error("release notification claim", zap.Stringer("id", m.ID), zap.Error(delErr))
		}
		return fmt.Errorf("send %s to %s: %w", m.Kind, m.To, err)
	}

	h.logger.Info("notification delivered",
		zap.Stringer("id", m.ID), zap.String("kind", string(m.Kind)), zap.Int64("order_id", m.OrderID))
	h.observe("delivered")
	return nil
}

func (h *EmailHandler) observe(stage string) {
	if h.metrics != nil {
		h.metrics.Notifications.WithLabelValues(stage).Inc()
	}
}
