package store

import "github.com/safar/go-shop/internal/apperr"

var (
	ErrUserNotFound     = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
	ErrAddressNotFound  = apperr.New(apperr.KindNotFound, "address_not_found", "shipping address not found")
	ErrProductNotFound  = apperr.New(apperr.KindNotFound, "product_not_found", "product not found")
	ErrCategoryNotFound = apperr.New(apperr.KindNotFound, "category_not_found", "category not found")
	ErrOrderNotFound    = apperr.New(apperr.KindNotFound, "order_not_found", "order not found")
	ErrStaleProduct     = apperr.New(apperr.KindConflict, "stale_product", "product was modified concurrently")
	ErrDuplicateSKU     = apperr.New(apperr.KindConflict, "duplicate_sku", "a product with this sku already exists")
	ErrDuplicateEmail   = apperr.New(apperr.KindConflict, "duplicate_email", "an account with this email already exists")
	ErrInvalidCursor    = apperr.New(apperr.KindInvalid, "invalid_cursor", "invalid cursor")
)
