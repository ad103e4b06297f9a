// Package notify hands post-commit notifications to a durable queue and
// delivers them from a separate consumer.
package notify

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-shop/internal/models"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindOrderConfirmation Kind = "order_confirmation"
	KindOrderStatusUpdate Kind = "order_status_update"
	KindOrderCancellation Kind = "order_cancellation"
	KindLowStockAlert     Kind = "low_stock_alert"
	KindEmailVerification Kind = "email_verification"
)

type Item struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Message is self-contained so the consumer never has to read the database.
type Message struct {
	ID            uuid.UUID            `json:"id"`
	Kind          Kind                 `json:"kind"`
	To            string               `json:"to"`
	UserID        int64                `json:"user_id,omitempty"`
	OrderID       int64                `json:"order_id,omitempty"`
	Status        models.OrderStatus   `json:"status,omitempty"`
	PaymentStatus models.PaymentStatus `json:"payment_status,omitempty"`
	Total         decimal.Decimal      `json:"total"`
	Items         []Item               `json:"items,omitempty"`
	ProductID     int64                `json:"product_id,omitempty"`
	ProductName   string               `json:"product_name,omitempty"`
	Stock         int                  `json:"stock,omitempty"`
	Token         string               `json:"token,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

func OrderMessage(kind Kind, to string, o *models.Order, now time.Time) Message {
	items := make([]Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.PriceAtTime})
	}
	return Message{
		ID:            uuid.New(),
		Kind:          kind,
		To:            to,
		UserID:        o.UserID,
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.TotalAmount,
		Items:         items,
		CreatedAt:     now,
	}
}

// StatusMessage picks the cancellation kind for cancelled orders.
func StatusMessage(to string, o *models.Order, now time.Time) Message {
	kind := KindOrderStatusUpdate
	if o.Status == models.OrderStatusCancelled {
		kind = KindOrderCancellation
	}
	return OrderMessage(kind, to, o, now)
}

func LowStockMessage(to string, productID int64, name string, stock int, now time.Time) Message {
	return Message{
		ID:          uuid.New(),
		Kind:        KindLowStockAlert,
		To:          to,
		ProductID:   productID,
		ProductName: name,
		Stock:       stock,
		CreatedAt:   now,
	}
}

func VerificationMessage(to string, userID int64, token string, now time.Time) Message {
	return Message{
		ID:        uuid.New(),
		Kind:      KindEmailVerification,
		To:        to,
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
	}
}

// Key keeps messages about one order, product or user on one partition.
func (m Message) Key() string {
	switch {
	case m.OrderID != 0:
		return "order-" + strconv.FormatInt(m.OrderID, 10)
	case m.ProductID != 0:
		return "product-" + strconv.FormatInt(m.ProductID, 10)
	case m.UserID != 0:
		return "user-" + strconv.FormatInt(m.UserID, 10)
	}
	return m.ID.String()
}
