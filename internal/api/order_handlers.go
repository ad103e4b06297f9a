package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/safar/go-shop/internal/models"
	"github.com/safar/go-shop/internal/order"
	"github.com/safar/go-shop/internal/store"
)

type placeOrderRequest struct {
	ShippingAddressID int64 `json:"shipping_address_id"`
}

func (h *handlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.ShippingAddressID <= 0 {
		respondError(w, r, errBadArg.With("param", "shipping_address_id"))
		return
	}

	o, err := h.orders.Place(r.Context(), caller(r).UserID, req.ShippingAddressID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, o)
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, r, err)
		return
	}

	page, err := h.orders.ListForUser(r.Context(), caller(r).UserID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, page)
}

// getOrder lets admins read any order; clients only see their own.
func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	claims := caller(r)
	var o *models.Order
	if claims.IsAdmin() {
		o, err = h.orders.Get(r.Context(), id)
	} else {
		o, err = h.orders.GetForUser(r.Context(), claims.UserID, id)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, o)
}

type payRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type payResponse struct {
	Order   *models.Order   `json:"order"`
	Payment *models.Payment `json:"payment"`
}

func (h *handlers) payOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req payRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	o, p, err := h.orders.Pay(r.Context(), caller(r).UserID, id, req.PaymentMethod)
	if errors.Is(err, order.ErrPaymentDeclined) {
		respondJSON(w, r, http.StatusPaymentRequired, payResponse{Order: o, Payment: p})
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, payResponse{Order: o, Payment: p})
}

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
}

func (h *handlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, o)
}

func (h *handlers) adminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.OrderFilter{
		Status:        models.OrderStatus(q.Get("status")),
		PaymentStatus: models.PaymentStatus(q.Get("payment_status")),
	}

	var err error
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		respondError(w, r, err)
		return
	}
	if f.PageSize, err = queryInt(r, "page_size", 20); err != nil {
		respondError(w, r, err)
		return
	}
	if f.From, err = queryTime(r, "from"); err != nil {
		respondError(w, r, err)
		return
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		respondError(w, r, err)
		return
	}

	page, err := h.orders.ListAll(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, page)
}

func (h *handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "24h"
	}

	stats, err := h.orders.Stats(r.Context(), period)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, stats)
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errBadArg.With("param", name)
	}
	return t, nil
}
