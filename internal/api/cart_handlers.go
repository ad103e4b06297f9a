package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/safar/go-shop/internal/models"
	"github.com/shopspring/decimal"
)

type cartItemView struct {
	ProductID     int64           `json:"product_id"`
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	NameSnapshot  string          `json:"name_snapshot"`
	ImageSnapshot string          `json:"image_snapshot,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	AddedAt       time.Time       `json:"added_at"`
}

type cartView struct {
	UserID    int64           `json:"user_id"`
	Items     []cartItemView  `json:"items"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// viewCart lists items in product id order; the stored document is a map.
func viewCart(c *models.Cart) cartView {
	v := cartView{
		UserID:    c.UserID,
		Items:     make([]cartItemView, 0, len(c.Items)),
		ItemCount: c.ItemCount(),
		Total:     c.Total(),
		UpdatedAt: c.UpdatedAt,
		ExpiresAt: c.ExpiresAt,
	}
	for id, item := range c.Items {
		v.Items = append(v.Items, cartItemView{
			ProductID:     id,
			Quantity:      item.Quantity,
			PriceSnapshot: item.PriceSnapshot,
			NameSnapshot:  item.NameSnapshot,
			ImageSnapshot: item.ImageSnapshot,
			Subtotal:      item.PriceSnapshot.Mul(decimal.NewFromInt(int64(item.Quantity))),
			AddedAt:       item.AddedAt,
		})
	}
	sort.Slice(v.Items, func(i, j int) bool { return v.Items[i].ProductID < v.Items[j].ProductID })
	return v
}

func (h *handlers) getCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, viewCart(h.carts.Get(r.Context(), caller(r).UserID)))
}

func (h *handlers) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), caller(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, viewCart(c))
}

type addItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (h *handlers) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		respondError(w, r, errBadArg.With("param", "product_id"))
		return
	}

	c, err := h.carts.Add(r.Context(), caller(r).UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, viewCart(c))
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *handlers) updateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req updateQuantityRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.carts.Update(r.Context(), caller(r).UserID, productID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, viewCart(c))
}

func (h *handlers) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.carts.Remove(r.Context(), caller(r).UserID, productID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, viewCart(c))
}

func (h *handlers) validateCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.Validate(r.Context(), caller(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, v)
}
