package models

import (
	"github.com/shopspring/decimal"
)

// ProductUpdate lists every field an admin may change on a product. Unset
// fields are left untouched; stock is changed only through the inventory ledger.
type ProductUpdate struct {
	name        *string
	description *string
	price       *decimal.Decimal
	images      []string
	imagesSet   bool
	categoryID  *int64
	isActive    *bool
}

func (u *ProductUpdate) SetName(v string) *ProductUpdate { u.name = &v; return u }

func (u *ProductUpdate) SetDescription(v string) *ProductUpdate { u.description = &v; return u }

func (u *ProductUpdate) SetPrice(v decimal.Decimal) *ProductUpdate { u.price = &v; return u }

func (u *ProductUpdate) SetImages(v []string) *ProductUpdate {
	u.images = append([]string(nil), v...)
	u.imagesSet = true
	return u
}

func (u *ProductUpdate) SetCategoryID(v int64) *ProductUpdate { u.categoryID = &v; return u }

func (u *ProductUpdate) SetActive(v bool) *ProductUpdate { u.isActive = &v; return u }

func (u *ProductUpdate) Empty() bool {
	return u.name == nil && u.description == nil && u.price == nil &&
		!u.imagesSet && u.categoryID == nil && u.isActive == nil
}

func (u *ProductUpdate) Price() (decimal.Decimal, bool) {
	if u.price == nil {
		return decimal.Decimal{}, false
	}
	return *u.price, true
}

func (u *ProductUpdate) CategoryID() (int64, bool) {
	if u.categoryID == nil {
		return 0, false
	}
	return *u.categoryID, true
}

// Apply copies the set fields onto p.
func (u *ProductUpdate) Apply(p *Product) {
	if u.name != nil {
		p.Name = *u.name
	}
	if u.description != nil {
		p.Description = *u.description
	}
	if u.price != nil {
		p.Price = *u.price
	}
	if u.imagesSet {
		p.Images = append([]string(nil), u.images...)
	}
	if u.categoryID != nil {
		p.CategoryID = *u.categoryID
	}
	if u.isActive != nil {
		p.IsActive = *u.isActive
	}
}
