package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/safar/go-shop/internal/account"
	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/auth"
	"github.com/safar/go-shop/internal/cart"
	"github.com/safar/go-shop/internal/config"
	"github.com/safar/go-shop/internal/inventory"
	"github.com/safar/go-shop/internal/metrics"
	"github.com/safar/go-shop/internal/models"
	"github.com/safar/go-shop/internal/order"
	"github.com/safar/go-shop/internal/ratelimit"
	"github.com/safar/go-shop/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	CatalogService
	products           map[int64]*models.Product
	lastFilter         store.ProductFilter
	lastCategoryFilter store.CategoryFilter
}

func (f *fakeCatalog) Product(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeCatalog) CategoryTree(ctx context.Context) ([]models.CategoryNode, error) {
	return []models.CategoryNode{{Category: models.Category{ID: 1, Name: "Root"}, Children: []models.CategoryNode{}}}, nil
}

func (f *fakeCatalog) SearchProducts(ctx context.Context, pf store.ProductFilter) (*store.OffsetPage, error) {
	f.lastFilter = pf
	return &store.OffsetPage{Items: []models.Product{*f.products[7]}, Total: 1, Page: pf.Page, PageSize: pf.PageSize, TotalPages: 1}, nil
}

func (f *fakeCatalog) ListCategories(ctx context.Context, cf store.CategoryFilter) (*store.OffsetPage, error) {
	f.lastCategoryFilter = cf
	return &store.OffsetPage{Items: []models.Category{{ID: 1, Name: "Root"}}, Total: 1, Page: cf.Page, PageSize: cf.PageSize, TotalPages: 1}, nil
}

func (f *fakeCatalog) Category(ctx context.Context, id int64) (*models.Category, error) {
	if id != 1 {
		return nil, store.ErrCategoryNotFound
	}
	return &models.Category{ID: 1, Name: "Root"}, nil
}

func (f *fakeCatalog) DeleteProduct(ctx context.Context, id int64) (bool, error) {
	p, ok := f.products[id]
	if !ok {
		return false, store.ErrProductNotFound
	}
	return !p.IsActive, nil
}

type fakeOrders struct {
	OrderService
	placeErr    error
	payErr      error
	statsPeriod string
}

func (f *fakeOrders) Stats(ctx context.Context, period string) (*models.OrderStats, error) {
	f.statsPeriod = period
	if period != "24h" && period != "7d" && period != "30d" {
		return nil, order.ErrInvalidPeriod
	}
	return &models.OrderStats{Period: period, OrderCount: 3, PopularProducts: []models.ProductSales{}}, nil
}

func (f *fakeOrders) Place(ctx context.Context, userID, addressID int64) (*models.Order, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	return &models.Order{ID: 1, UserID: userID, ShippingAddressID: addressID, Status: models.OrderStatusNew}, nil
}

func (f *fakeOrders) Pay(ctx context.Context, userID, orderID int64, method string) (*models.Order, *models.Payment, error) {
	o := &models.Order{ID: orderID, UserID: userID, PaymentStatus: models.PaymentStatusFailed}
	return o, &models.Payment{OrderID: orderID, Method: method, Status: models.PaymentStatusFailed}, f.payErr
}

type fakeAccounts struct {
	AccountService
}

func (fakeAccounts) Login(ctx context.Context, email, password string) (*account.Session, error) {
	return nil, account.ErrInvalidCredentials
}

type testServer struct {
	handler http.Handler
	tokens  *auth.JWTService
	orders  *fakeOrders
	catalog *fakeCatalog
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	catalog := &fakeCatalog{products: map[int64]*models.Product{
		7: {ID: 7, Name: "Mug", Price: decimal.RequireFromString("4.50"), StockQuantity: 10, IsActive: true},
		8: {ID: 8, Name: "Retired", Price: decimal.NewFromInt(1), StockQuantity: 10, IsActive: false},
	}}
	tokens := auth.NewJWTService("test-secret-key-for-testing-purposes", time.Hour)
	orders := &fakeOrders{}

	h := NewRouter(Deps{
		Accounts: fakeAccounts{},
		Catalog:  catalog,
		Carts:    cart.NewService(cart.NewStore(client, time.Hour, nil), catalog, nil),
		Orders:   orders,
		Tokens:   tokens,
		Limiter:  limiter,
		Policy: ratelimit.NewPolicy(config.RateLimitConfig{
			Anonymous: 30, Authenticated: 60, Admin: 120,
			Routes: map[string]int{"/api/v1/auth/login": 2},
		}),
		Metrics: metrics.New("test"),
	})
	return &testServer{handler: h, tokens: tokens, orders: orders, catalog: catalog}
}

func (s *testServer) token(t *testing.T, role models.Role) string {
	tok, _, err := s.tokens.GenerateAccessToken(&models.User{ID: 5, Email: "u@example.com", Role: role})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())
	return e
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestAuthGuards(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorBody(t, w).Code)

	w = s.do(t, http.MethodGet, "/api/v1/cart", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/admin/categories", s.token(t, models.RoleClient), map[string]string{"name": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", errorBody(t, w).Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "a@b.c", "password": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", errorBody(t, w).Code)
}

func TestCartEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.token(t, models.RoleClient)

	w := s.do(t, http.MethodPost, "/api/v1/cart/items", tok, addItemRequest{ProductID: 7, Quantity: 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view cartView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.ItemCount)
	assert.True(t, view.Total.Equal(decimal.RequireFromString("13.50")))

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", tok, addItemRequest{ProductID: 7, Quantity: 100})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_quantity", errorBody(t, w).Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", tok, addItemRequest{ProductID: 8, Quantity: 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/cart/items/abc", tok, updateQuantityRequest{Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_id", errorBody(t, w).Code)

	w = s.do(t, http.MethodDelete, "/api/v1/cart/items/7", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Empty(t, view.Items)
}

func TestPlaceOrder_ErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.token(t, models.RoleClient)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{order.ErrEmailNotVerified, http.StatusForbidden, "email_not_verified"},
		{order.ErrProfileIncomplete, http.StatusUnprocessableEntity, "profile_incomplete"},
		{order.ErrCartEmpty, http.StatusUnprocessableEntity, "cart_empty"},
		{store.ErrAddressNotFound, http.StatusNotFound, "address_not_found"},
		{inventory.ErrInsufficientStock.With("product_id", int64(7)), http.StatusConflict, "insufficient_stock"},
		{apperr.Unavailable(nil, "checkout"), http.StatusServiceUnavailable, "store_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			s.orders.placeErr = tc.err
			w := s.do(t, http.MethodPost, "/api/v1/orders", tok, placeOrderRequest{ShippingAddressID: 3})
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, errorBody(t, w).Code)
		})
	}

	w := s.do(t, http.MethodPost, "/api/v1/orders", tok, placeOrderRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.orders.placeErr = nil
	w = s.do(t, http.MethodPost, "/api/v1/orders", tok, placeOrderRequest{ShippingAddressID: 3})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestInsufficientStockDetails(t *testing.T) {
	s := newTestServer(t, nil)
	s.orders.placeErr = inventory.ErrInsufficientStock.With("product_id", int64(7)).With("available", 1)

	w := s.do(t, http.MethodPost, "/api/v1/orders", s.token(t, models.RoleClient), placeOrderRequest{ShippingAddressID: 3})
	require.Equal(t, http.StatusConflict, w.Code)
	e := errorBody(t, w)
	assert.EqualValues(t, 7, e.Details["product_id"])
	assert.EqualValues(t, 1, e.Details["available"])
}

func TestPayOrder_DeclinedIs402(t *testing.T) {
	s := newTestServer(t, nil)
	s.orders.payErr = order.ErrPaymentDeclined

	w := s.do(t, http.MethodPost, "/api/v1/orders/9/pay", s.token(t, models.RoleClient), payRequest{PaymentMethod: "card"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp payResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.PaymentStatusFailed, resp.Payment.Status)
}

func TestCatalogPublicRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/products/7", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/products/8", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "inactive products are hidden")

	w = s.do(t, http.MethodGet, "/api/v1/categories/tree", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"Root"`))
}

func TestSearchAndCategoryRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/products/search?q=mug&category_id=3&page=2&page_size=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "mug", s.catalog.lastFilter.Query)
	assert.EqualValues(t, 3, s.catalog.lastFilter.CategoryID)
	assert.Equal(t, 2, s.catalog.lastFilter.Page)
	assert.Equal(t, 5, s.catalog.lastFilter.PageSize)
	assert.True(t, s.catalog.lastFilter.ActiveOnly)

	w = s.do(t, http.MethodGet, "/api/v1/products/search?page=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/categories?parent_id=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, s.catalog.lastCategoryFilter.ParentID)
	assert.EqualValues(t, 1, *s.catalog.lastCategoryFilter.ParentID)

	w = s.do(t, http.MethodGet, "/api/v1/categories", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, s.catalog.lastCategoryFilter.ParentID)

	w = s.do(t, http.MethodGet, "/api/v1/categories/1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Root"`)

	w = s.do(t, http.MethodGet, "/api/v1/categories/99", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminDeleteProduct(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodDelete, "/api/v1/admin/products/7", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/admin/products/7", s.token(t, models.RoleClient), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := s.token(t, models.RoleAdmin)
	w = s.do(t, http.MethodDelete, "/api/v1/admin/products/7", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		ID          int64 `json:"id"`
		Deactivated bool  `json:"deactivated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 7, resp.ID)
	assert.False(t, resp.Deactivated)

	w = s.do(t, http.MethodDelete, "/api/v1/admin/products/404", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminStats(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/admin/stats", s.token(t, models.RoleClient), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := s.token(t, models.RoleAdmin)
	w = s.do(t, http.MethodGet, "/api/v1/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "24h", s.orders.statsPeriod)

	w = s.do(t, http.MethodGet, "/api/v1/admin/stats?period=7d", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7d", s.orders.statsPeriod)

	w = s.do(t, http.MethodGet, "/api/v1/admin/stats?period=1y", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_period", errorBody(t, w).Code)
}

func TestRateLimitedLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	s := newTestServer(t, ratelimit.NewLimiter(client, time.Minute, time.Second, nil, nil))

	body := map[string]string{"email": "a@b.c", "password": "x"}
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
