// Package payment defines the processor boundary used by the order pipeline.
// Stub is the only implementation; a real gateway plugs in behind Processor.
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/models"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedMethod = apperr.New(apperr.KindInvalid, "unsupported_payment_method", "unsupported payment method")

var methods = map[string]bool{
	"card":          true,
	"bank_transfer": true,
	"paypal":        true,
}

type Request struct {
	OrderID int64
	Method  string
	Amount  decimal.Decimal
}

type Result struct {
	Approved      bool
	TransactionID string
	Reason        string
}

type Processor interface {
	Charge(ctx context.Context, req Request) (Result, error)
}

func ValidMethod(m string) bool {
	return methods[strings.ToLower(m)]
}

// Stub approves every charge with a transaction id derived from the request,
// so retries of the same charge report the same id.
type Stub struct {
	// Decline, when set, rejects charges for which it returns true.
	Decline func(Request) bool
}

func (s Stub) Charge(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if !ValidMethod(req.Method) {
		return Result{}, ErrUnsupportedMethod.With("method", req.Method)
	}

	if s.Decline != nil && s.Decline(req) {
		return Result{Approved: false, Reason: "declined"}, nil
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", req.OrderID, strings.ToLower(req.Method), req.Amount.StringFixed(2))))
	return Result{Approved: true, TransactionID: "stub_" + hex.EncodeToString(sum[:8])}, nil
}

// Record builds the payment record returned to the caller.
func Record(o *models.Order, method string, res Result, now time.Time) models.Payment {
	status := models.PaymentStatusFailed
	if res.Approved {
		status = models.PaymentStatusPaid
	}
	return models.Payment{
		OrderID:       o.ID,
		Method:        strings.ToLower(method),
		Amount:        o.TotalAmount,
		Status:        status,
		TransactionID: res.TransactionID,
		CreatedAt:     now,
	}
}
