package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New("shop")
	b := New("shop")

	a.OrdersPlaced.Inc()
	a.CheckoutFailures.WithLabelValues("cart_empty").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.OrdersPlaced))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.OrdersPlaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.CheckoutFailures.WithLabelValues("cart_empty")))

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shop_orders_placed_total"])
}
