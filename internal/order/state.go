package order

import (
	"time"

	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/models"
)

var (
	ErrInvalidStatus     = apperr.New(apperr.KindInvalid, "invalid_status", "unknown order status")
	ErrInvalidTransition = apperr.New(apperr.KindConflict, "invalid_transition", "invalid status transition")
	ErrAlreadyPaid       = apperr.New(apperr.KindConflict, "already_paid", "order already paid")
	ErrNotPayable        = apperr.New(apperr.KindConflict, "not_payable", "order cannot be paid in its current state")
)

var successors = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusNew:        {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:  {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusSent, models.OrderStatusCancelled},
	models.OrderStatusSent:       {models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusDelivered:  {},
	models.OrderStatusCancelled:  {},
}

func Successors(from models.OrderStatus) []models.OrderStatus {
	return append([]models.OrderStatus(nil), successors[from]...)
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, s := range successors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves o to status to, or leaves o untouched and returns an error.
// Requesting the current status is an invalid transition.
func Transition(o *models.Order, to models.OrderStatus, now time.Time) error {
	if !to.Valid() {
		return ErrInvalidStatus.With("status", string(to))
	}
	if !CanTransition(o.Status, to) {
		return ErrInvalidTransition.
			With("from", string(o.Status)).
			With("to", string(to)).
			With("allowed", Successors(o.Status))
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// MarkPaid records a successful payment. A new order becomes confirmed at the
// same time.
func MarkPaid(o *models.Order, now time.Time) error {
	if err := Payable(o); err != nil {
		return err
	}
	o.PaymentStatus = models.PaymentStatusPaid
	if o.Status == models.OrderStatusNew {
		o.Status = models.OrderStatusConfirmed
	}
	o.UpdatedAt = now
	return nil
}

func MarkPaymentFailed(o *models.Order, now time.Time) error {
	if err := Payable(o); err != nil {
		return err
	}
	o.PaymentStatus = models.PaymentStatusFailed
	o.UpdatedAt = now
	return nil
}

// Payable reports why o cannot take a payment, if it cannot.
func Payable(o *models.Order) error {
	switch {
	case o.PaymentStatus == models.PaymentStatusPaid:
		return ErrAlreadyPaid.With("order_id", o.ID)
	case o.PaymentStatus == models.PaymentStatusRefunded, o.Status == models.OrderStatusCancelled:
		return ErrNotPayable.
			With("order_id", o.ID).
			With("status", string(o.Status)).
			With("payment_status", string(o.PaymentStatus))
	}
	return nil
}
