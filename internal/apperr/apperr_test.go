package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errEmpty = New(KindPrecondition, "cart_empty", "cart is empty")

func TestIs_MatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("place order: %w", New(KindPrecondition, "cart_empty", "nothing to order"))

	assert.ErrorIs(t, err, errEmpty)
	assert.NotErrorIs(t, err, New(KindPrecondition, "profile_incomplete", ""))
}

func TestWith_CopiesDetails(t *testing.T) {
	base := New(KindConflict, "insufficient_stock", "not enough stock")
	withID := base.With("product_id", int64(7))

	assert.Nil(t, base.Details)
	assert.Equal(t, int64(7), withID.Details["product_id"])
	assert.ErrorIs(t, withID, base)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnavailable, KindOf(Unavailable(errors.New("dial tcp"), "cart write failed")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.True(t, Unavailable(nil, "x").Retryable())
	assert.False(t, errEmpty.Retryable())
}

func TestError_IncludesCause(t *testing.T) {
	err := Wrap(errors.New("connection refused"), KindUnavailable, "store_unavailable", "save cart")
	assert.Equal(t, "save cart: connection refused", err.Error())
	assert.ErrorContains(t, err, "connection refused")
}
