package notify

import (
	"context"
	"sync"
	"time"

	"github.com/safar/go-shop/internal/metrics"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
	Close() error
}

// Dispatcher decouples request handlers from the queue: Enqueue never blocks
// and a single worker publishes in the background.
type Dispatcher struct {
	pub     Publisher
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	done   chan struct{}

	attempts       int
	backoff        time.Duration
	publishTimeout time.Duration
}

func NewDispatcher(pub Publisher, buffer int, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{
		pub:            pub,
		logger:         logger.Named("dispatcher"),
		metrics:        m,
		queue:          make(chan Message, buffer),
		done:           make(chan struct{}),
		attempts:       3,
		backoff:        100 * time.Millisecond,
		publishTimeout: 5 * time.Second,
	}
	go d.run()
	return d
}

// Enqueue reports false when the message was dropped because the buffer is
// full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping notification",
			zap.String("kind", string(msg.Kind)), zap.Stringer("id", msg.ID))
		d.observe("dropped")
		return false
	}

	select {
	case d.queue <- msg:
		d.observe("enqueued")
		return true
	default:
		d.logger.Warn("notification buffer full, dropping",
			zap.String("kind", string(msg.Kind)), zap.Stringer("id", msg.ID))
		d.observe("dropped")
		return false
	}
}

// Close stops accepting messages and waits for the buffer to drain or ctx
// to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		d.publish(msg)
	}
}

func (d *Dispatcher) publish(msg Message) {
	backoff := d.backoff
	var err error

	for attempt := 1; attempt <= d.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.publishTimeout)
		err = d.pub.Publish(ctx, msg)
		cancel()
		if err == nil {
			d.observe("published")
			return
		}
		if attempt < d.attempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	d.logger.Error("publish notification failed",
		zap.String("kind", string(msg.Kind)),
		zap.Stringer("id", msg.ID),
		zap.Int("attempts", d.attempts),
		zap.Error(err))
	d.observe("publish_failed")
}

func (d *Dispatcher) observe(stage string) {
	if d.metrics != nil {
		d.metrics.Notifications.WithLabelValues(stage).Inc()
	}
}
