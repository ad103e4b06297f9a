package notify

import (
	"context"
	"errors"
	"time"

	"github.com/safar/go-shop/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Handler interface {
	Handle(ctx context.Context, m Message) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer commits an offset only after its message was handled, so every
// message is delivered at least once. Handlers must tolerate duplicates.
type Consumer struct {
	reader     messageReader
	handler    Handler
	logger     *zap.Logger
	metrics    *metrics.Metrics
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, handler Handler, logger *zap.Logger, m *metrics.Metrics) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newConsumer(reader, handler, logger, m)
}

func newConsumer(r messageReader, handler Handler, logger *zap.Logger, m *metrics.Metrics) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		reader:     r,
		handler:    handler,
		logger:     logger.Named("consumer"),
		metrics:    m,
		backoff:    500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Run blocks until ctx is cancelled. A message that keeps failing is retried
// with capped backoff and holds back the rest of its partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("fetch notification", zap.Error(err))
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		msg, err := decode(km)
		if err != nil {
			c.logger.Error("skipping undecodable notification",
				zap.Int("partition", km.Partition), zap.Int64("offset", km.Offset), zap.Error(err))
			c.observe("undecodable")
		} else if !c.handle(ctx, msg) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, km); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("commit notification offset", zap.Int64("offset", km.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg Message) bool {
	backoff := c.backoff
	for {
		err := c.handler.Handle(ctx, msg)
		if err == nil {
			return true
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return false
		}

		c.logger.Warn("notification delivery failed, retrying",
			zap.Stringer("id", msg.ID),
			zap.String("kind", string(msg.Kind)),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		c.observe("failed")

		if !sleep(ctx, backoff) {
			return false
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) observe(stage string) {
	if c.metrics != nil {
		c.metrics.Notifications.WithLabelValues(stage).Inc()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
