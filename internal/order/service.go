// Package order turns a cart into an order in one transaction and applies
// the status and payment rules afterwards.
package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/database"
	"github.com/safar/go-shop/internal/inventory"
	"github.com/safar/go-shop/internal/logging"
	"github.com/safar/go-shop/internal/metrics"
	"github.com/safar/go-shop/internal/models"
	"github.com/safar/go-shop/internal/notify"
	"github.com/safar/go-shop/internal/payment"
	"github.com/safar/go-shop/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrEmailNotVerified  = apperr.New(apperr.KindForbidden, "email_not_verified", "email address must be verified before ordering")
	ErrProfileIncomplete = apperr.New(apperr.KindPrecondition, "profile_incomplete", "full name and phone number are required before ordering")
	ErrCartEmpty         = apperr.New(apperr.KindPrecondition, "cart_empty", "cart is empty")
	ErrCheckoutTimeout   = apperr.New(apperr.KindUnavailable, "checkout_timeout", "checkout did not finish in time, retry")
	ErrCheckoutFailed    = apperr.New(apperr.KindUnavailable, "checkout_failed", "order could not be saved, retry")
	ErrPaymentDeclined   = apperr.New(apperr.KindConflict, "payment_declined", "payment was declined")
	ErrInvalidPeriod     = apperr.New(apperr.KindInvalid, "invalid_period", "period must be one of 24h, 7d, 30d")
)

var statsPeriods = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

type CartStore interface {
	Get(ctx context.Context, userID int64) (*models.Cart, bool)
	Delete(ctx context.Context, userID int64) error
}

type CacheInvalidator interface {
	InvalidateProduct(ctx context.Context, id int64)
	InvalidateCategoryTree(ctx context.Context)
}

type Notifier interface {
	Enqueue(msg notify.Message) bool
}

type Config struct {
	TxTimeout         time.Duration
	MaxRetries        int
	LowStockThreshold int
	AdminEmail        string
}

type Service struct {
	db       *sql.DB
	carts    CartStore
	cache    CacheInvalidator
	notifier Notifier
	payments payment.Processor
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(db *sql.DB, carts CartStore, cache CacheInvalidator, notifier Notifier, payments payment.Processor, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Service{
		db:       db,
		carts:    carts,
		cache:    cache,
		notifier: notifier,
		payments: payments,
		cfg:      cfg,
		logger:   logger.Named("orders"),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type lowStock struct {
	productID int64
	name      string
	remaining int
}

// Place converts the caller's cart into an order. Nothing is written unless
// every line can be supplied. The cart survives any failure.
func (s *Service) Place(ctx context.Context, userID, shippingAddressID int64) (*models.Order, error) {
	start := time.Now()
	o, err := s.place(ctx, userID, shippingAddressID)
	if s.metrics != nil {
		s.metrics.CheckoutDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.CheckoutFailures.WithLabelValues(reason(err)).Inc()
		} else {
			s.metrics.OrdersPlaced.Inc()
		}
	}
	return o, err
}

func (s *Service) place(ctx context.Context, userID, shippingAddressID int64) (*models.Order, error) {
	log := logging.FromContext(ctx, s.logger)

	user, err := store.GetUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsEmailVerified {
		return nil, ErrEmailNotVerified
	}
	if !user.ProfileComplete() {
		return nil, ErrProfileIncomplete
	}

	cart, ok := s.carts.Get(ctx, userID)
	if !ok || cart.IsEmpty() {
		return nil, ErrCartEmpty
	}

	if _, err := store.GetUserAddress(ctx, s.db, userID, shippingAddressID); err != nil {
		return nil, err
	}

	lines := make([]inventory.Line, 0, len(cart.Items))
	for productID, item := range cart.Items {
		lines = append(lines, inventory.Line{ProductID: productID, Quantity: item.Quantity})
	}
	inventory.SortLines(lines)

	var order *models.Order
	var low []lowStock

	err = database.WithRetry(ctx, s.db, s.txOptions(), func(ctx context.Context, tx *sql.Tx) error {
		order, low = nil, nil

		o, err := store.InsertOrderShell(ctx, tx, userID, shippingAddressID)
		if err != nil {
			return err
		}

		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			p, err := inventory.Reserve(ctx, tx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}

			item := models.OrderItem{
				OrderID:     o.ID,
				ProductID:   p.ID,
				Quantity:    line.Quantity,
				PriceAtTime: p.Price,
			}
			if err := store.InsertOrderItem(ctx, tx, &item); err != nil {
				return err
			}

			remaining, err := inventory.Decrement(ctx, tx, p.ID, line.Quantity)
			if err != nil {
				return err
			}

			total = total.Add(item.Subtotal())
			items = append(items, item)
			if remaining <= s.cfg.LowStockThreshold {
				low = append(low, lowStock{productID: p.ID, name: p.Name, remaining: remaining})
			}
		}

		if err := store.SetOrderTotal(ctx, tx, o, total); err != nil {
			return err
		}
		o.Items = items
		order = o
		return nil
	})
	if err != nil {
		return nil, checkoutError(err)
	}

	log.Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(order.Items)))

	s.afterCommit(ctx, user, order, low)
	return order, nil
}

// afterCommit never fails the order; it only logs.
func (s *Service) afterCommit(ctx context.Context, user *models.User, o *models.Order, low []lowStock) {
	log := logging.FromContext(ctx, s.logger)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.carts.Delete(ctx, user.ID); err != nil {
		log.Warn("cart not cleared after order", zap.Int64("order_id", o.ID), zap.Error(err))
	}

	for _, item := range o.Items {
		s.cache.InvalidateProduct(ctx, item.ProductID)
	}
	s.cache.InvalidateCategoryTree(ctx)

	now := s.now()
	if !s.notifier.Enqueue(notify.OrderMessage(notify.KindOrderConfirmation, user.Email, o, now)) {
		log.Warn("order confirmation not queued", zap.Int64("order_id", o.ID))
	}

	if s.cfg.AdminEmail == "" {
		return
	}
	for _, l := range low {
		s.notifier.Enqueue(notify.LowStockMessage(s.cfg.AdminEmail, l.productID, l.name, l.remaining, now))
	}
}

func checkoutError(err error) error {
	if errors.Is(err, database.ErrTxBudgetExceeded) {
		return apperr.Wrap(err, ErrCheckoutTimeout.Kind, ErrCheckoutTimeout.Code, ErrCheckoutTimeout.Message)
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Wrap(err, ErrCheckoutFailed.Kind, ErrCheckoutFailed.Code, ErrCheckoutFailed.Message)
}

// GetForUser hides other users' orders behind not found.
func (s *Service) GetForUser(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	o, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, store.ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, orderID int64) (*models.Order, error) {
	return store.GetOrder(ctx, s.db, orderID)
}

func (s *Service) ListForUser(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return store.ListOrdersCursor(ctx, s.db, userID, cursor, limit)
}

func (s *Service) ListAll(ctx context.Context, f store.OrderFilter) (*store.OffsetPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus.With("status", string(f.Status))
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return nil, apperr.New(apperr.KindInvalid, "invalid_payment_status", "unknown payment status").
			With("payment_status", string(f.PaymentStatus))
	}
	return store.ListOrders(ctx, s.db, f)
}

// Stats reports sales over the last period: 24h, 7d or 30d.
func (s *Service) Stats(ctx context.Context, period string) (*models.OrderStats, error) {
	d, ok := statsPeriods[period]
	if !ok {
		return nil, ErrInvalidPeriod.With("period", period)
	}
	stats, err := store.OrderStats(ctx, s.db, s.now().Add(-d))
	if err != nil {
		return nil, err
	}
	stats.Period = period
	return stats, nil
}

// UpdateStatus applies an admin transition under the order row lock.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to models.OrderStatus) (*models.Order, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus.With("status", string(to))
	}

	var order *models.Order
	err := database.WithRetry(ctx, s.db, s.txOptions(), func(ctx context.Context, tx *sql.Tx) error {
		o, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := Transition(o, to, s.now()); err != nil {
			return err
		}
		if err := store.SaveOrderState(ctx, tx, o); err != nil {
			return err
		}
		if o.Items, err = store.GetOrderItems(ctx, tx, o.ID); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.logger).Info("order status changed",
		zap.Int64("order_id", order.ID), zap.String("status", string(order.Status)))
	s.notifyOwner(ctx, order)
	return order, nil
}

// Pay charges the order total through the processor while holding the order
// row lock, so concurrent attempts cannot both charge. A declined charge is
// committed as payment failed and reported as ErrPaymentDeclined.
func (s *Service) Pay(ctx context.Context, userID, orderID int64, method string) (*models.Order, *models.Payment, error) {
	if !payment.ValidMethod(method) {
		return nil, nil, payment.ErrUnsupportedMethod.With("method", method)
	}

	var order *models.Order
	var record models.Payment
	var approved bool

	err := database.WithTransaction(ctx, s.db, s.txOptions(), func(ctx context.Context, tx *sql.Tx) error {
		o, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return store.ErrOrderNotFound
		}
		if err := Payable(o); err != nil {
			return err
		}

		res, err := s.payments.Charge(ctx, payment.Request{OrderID: o.ID, Method: method, Amount: o.TotalAmount})
		if err != nil {
			return err
		}

		now := s.now()
		approved = res.Approved
		if approved {
			err = MarkPaid(o, now)
		} else {
			err = MarkPaymentFailed(o, now)
		}
		if err != nil {
			return err
		}
		if err := store.SaveOrderState(ctx, tx, o); err != nil {
			return err
		}
		if o.Items, err = store.GetOrderItems(ctx, tx, o.ID); err != nil {
			return err
		}

		record = payment.Record(o, method, res, now)
		order = o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log := logging.FromContext(ctx, s.logger)
	if !approved {
		log.Info("payment declined", zap.Int64("order_id", order.ID))
		return order, &record, ErrPaymentDeclined.With("order_id", order.ID)
	}

	log.Info("order paid", zap.Int64("order_id", order.ID), zap.String("transaction_id", record.TransactionID))
	s.notifyOwner(ctx, order)
	return order, &record, nil
}

func (s *Service) notifyOwner(ctx context.Context, o *models.Order) {
	log := logging.FromContext(ctx, s.logger)

	user, err := store.GetUser(context.WithoutCancel(ctx), s.db, o.UserID)
	if err != nil {
		log.Warn("order owner lookup failed, notification skipped", zap.Int64("order_id", o.ID), zap.Error(err))
		return
	}
	if !s.notifier.Enqueue(notify.StatusMessage(user.Email, o, s.now())) {
		log.Warn("status notification not queued", zap.Int64("order_id", o.ID))
	}
}

func (s *Service) txOptions() database.TxOptions {
	opts := database.DefaultTxOptions()
	opts.MaxRetries = s.cfg.MaxRetries
	opts.Timeout = s.cfg.TxTimeout
	return opts
}

func reason(err error) string {
	if e, ok := apperr.As(err); ok {
		return e.Code
	}
	return "internal"
}
