// Package api exposes the store over HTTP with chi.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/go-shop/internal/account"
	"github.com/safar/go-shop/internal/auth"
	"github.com/safar/go-shop/internal/cart"
	"github.com/safar/go-shop/internal/metrics"
	"github.com/safar/go-shop/internal/models"
	"github.com/safar/go-shop/internal/ratelimit"
	"github.com/safar/go-shop/internal/store"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type AccountService interface {
	Register(ctx context.Context, req account.Registration) (*models.User, error)
	Login(ctx context.Context, email, password string) (*account.Session, error)
	VerifyEmail(ctx context.Context, token string) (*models.User, error)
	Profile(ctx context.Context, userID int64) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int64, u account.ProfileUpdate) (*models.User, error)
	AddAddress(ctx context.Context, userID int64, a models.Address) (*models.Address, error)
	Addresses(ctx context.Context, userID int64) ([]models.Address, error)
}

type CatalogService interface {
	Product(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, f store.ProductFilter) (*store.OffsetPage, error)
	SearchProducts(ctx context.Context, f store.ProductFilter) (*store.OffsetPage, error)
	CategoryTree(ctx context.Context) ([]models.CategoryNode, error)
	ListCategories(ctx context.Context, f store.CategoryFilter) (*store.OffsetPage, error)
	Category(ctx context.Context, id int64) (*models.Category, error)
	CreateProduct(ctx context.Context, p models.Product) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, u *models.ProductUpdate) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) (bool, error)
	AdjustStock(ctx context.Context, id int64, delta int) (*models.Product, error)
	CreateCategory(ctx context.Context, name, description string, parentID *int64) (*models.Category, error)
}

type CartService interface {
	Get(ctx context.Context, userID int64) *models.Cart
	Add(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error)
	Update(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error)
	Remove(ctx context.Context, userID, productID int64) (*models.Cart, error)
	Clear(ctx context.Context, userID int64) (*models.Cart, error)
	Validate(ctx context.Context, userID int64) (*cart.Validation, error)
}

type OrderService interface {
	Place(ctx context.Context, userID, shippingAddressID int64) (*models.Order, error)
	Get(ctx context.Context, orderID int64) (*models.Order, error)
	GetForUser(ctx context.Context, userID, orderID int64) (*models.Order, error)
	ListForUser(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error)
	ListAll(ctx context.Context, f store.OrderFilter) (*store.OffsetPage, error)
	UpdateStatus(ctx context.Context, orderID int64, to models.OrderStatus) (*models.Order, error)
	Pay(ctx context.Context, userID, orderID int64, method string) (*models.Order, *models.Payment, error)
	Stats(ctx context.Context, period string) (*models.OrderStats, error)
}

type Deps struct {
	Accounts AccountService
	Catalog  CatalogService
	Carts    CartService
	Orders   OrderService
	Tokens   *auth.JWTService

	// Limiter is optional; without it requests are never throttled.
	Limiter *ratelimit.Limiter
	Policy  ratelimit.Policy

	Metrics *metrics.Metrics
	Logger  *zap.Logger

	// Health reports whether backing stores are reachable.
	Health  func(ctx context.Context) error
	Timeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}

	h := &handlers{
		accounts: d.Accounts,
		catalog:  d.Catalog,
		carts:    d.Carts,
		orders:   d.Orders,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(optionalAuth(d.Tokens))
	if d.Limiter != nil {
		r.Use(ratelimit.Middleware(d.Limiter, d.Policy, callerClass))
	}
	r.Use(middleware.Timeout(d.Timeout))

	r.Get("/health", healthHandler(d.Health))
	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)
		r.Post("/auth/verify-email", h.verifyEmail)

		r.Get("/products", h.listProducts)
		r.Get("/products/search", h.searchProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/categories", h.listCategories)
		r.Get("/categories/tree", h.categoryTree)
		r.Get("/categories/{id}", h.getCategory)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/users/me", h.me)
			r.Put("/users/me", h.updateMe)
			r.Get("/users/addresses", h.listAddresses)
			r.Post("/users/addresses", h.addAddress)

			r.Get("/cart", h.getCart)
			r.Delete("/cart", h.clearCart)
			r.Post("/cart/items", h.addCartItem)
			r.Put("/cart/items/{productID}", h.updateCartItem)
			r.Delete("/cart/items/{productID}", h.removeCartItem)
			r.Post("/cart/validate", h.validateCart)

			r.Post("/orders", h.placeOrder)
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{id}", h.getOrder)
			r.Post("/orders/{id}/pay", h.payOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)

			r.Put("/orders/{id}/status", h.updateOrderStatus)
			r.Get("/admin/orders", h.adminListOrders)
			r.Get("/admin/stats", h.adminStats)
			r.Post("/admin/products", h.createProduct)
			r.Put("/admin/products/{id}", h.updateProduct)
			r.Delete("/admin/products/{id}", h.deleteProduct)
			r.Post("/admin/products/{id}/stock", h.adjustStock)
			r.Post("/admin/categories", h.createCategory)
		})
	})

	return otelhttp.NewHandler(r, "shop-api")
}

type handlers struct {
	accounts AccountService
	catalog  CatalogService
	carts    CartService
	orders   OrderService
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				respondJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}
