package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is the per-user document held in the key-value store. Items are keyed
// by product id; the total is always derived.
type Cart struct {
	UserID    int64              `json:"user_id"`
	Items     map[int64]CartItem `json:"items"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

type CartItem struct {
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	NameSnapshot  string          `json:"name_snapshot"`
	ImageSnapshot string          `json:"image_snapshot"`
	AddedAt       time.Time       `json:"added_at"`
}

func NewCart(userID int64, now time.Time) *Cart {
	return &Cart{
		UserID:    userID,
		Items:     map[int64]CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c *Cart) Quantity(productID int64) int {
	return c.Items[productID].Quantity
}

// AddItem sums into an existing line; snapshots are taken only for new lines.
func (c *Cart) AddItem(productID int64, quantity int, price decimal.Decimal, name, image string, now time.Time) {
	if c.Items == nil {
		c.Items = map[int64]CartItem{}
	}
	if item, ok := c.Items[productID]; ok {
		item.Quantity += quantity
		c.Items[productID] = item
	} else {
		c.Items[productID] = CartItem{
			Quantity:      quantity,
			PriceSnapshot: price,
			NameSnapshot:  name,
			ImageSnapshot: image,
			AddedAt:       now,
		}
	}
	c.UpdatedAt = now
}

// UpdateQuantity returns false when the product is not in the cart.
// A non-positive quantity removes the line.
func (c *Cart) UpdateQuantity(productID int64, quantity int, now time.Time) bool {
	item, ok := c.Items[productID]
	if !ok {
		return false
	}
	if quantity <= 0 {
		delete(c.Items, productID)
	} else {
		item.Quantity = quantity
		c.Items[productID] = item
	}
	c.UpdatedAt = now
	return true
}

func (c *Cart) RemoveItem(productID int64, now time.Time) bool {
	if _, ok := c.Items[productID]; !ok {
		return false
	}
	delete(c.Items, productID)
	c.UpdatedAt = now
	return true
}

func (c *Cart) Clear(now time.Time) {
	c.Items = map[int64]CartItem{}
	c.UpdatedAt = now
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.PriceSnapshot.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}
