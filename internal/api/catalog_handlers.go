package api

import (
	"net/http"

	"github.com/safar/go-shop/internal/models"
	"github.com/safar/go-shop/internal/store"
	"github.com/shopspring/decimal"
)

func productFilter(r *http.Request) (store.ProductFilter, error) {
	f := store.ProductFilter{ActiveOnly: true, Query: r.URL.Query().Get("q")}
	var err error
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		return f, err
	}
	if f.PageSize, err = queryInt(r, "page_size", 20); err != nil {
		return f, err
	}
	categoryID, err := queryInt(r, "category_id", 0)
	if err != nil {
		return f, err
	}
	f.CategoryID = int64(categoryID)
	return f, nil
}

func (h *handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	page, err := h.catalog.ListProducts(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, page)
}

func (h *handlers) searchProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	page, err := h.catalog.SearchProducts(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, page)
}

func (h *handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.catalog.Product(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !p.IsActive {
		respondError(w, r, store.ErrProductNotFound)
		return
	}
	respondJSON(w, r, http.StatusOK, p)
}

func (h *handlers) categoryTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.catalog.CategoryTree(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, tree)
}

func (h *handlers) listCategories(w http.ResponseWriter, r *http.Request) {
	var f store.CategoryFilter
	var err error
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		respondError(w, r, err)
		return
	}
	if f.PageSize, err = queryInt(r, "page_size", 20); err != nil {
		respondError(w, r, err)
		return
	}
	if r.URL.Query().Get("parent_id") != "" {
		parentID, err := queryInt(r, "parent_id", 0)
		if err != nil {
			respondError(w, r, err)
			return
		}
		id := int64(parentID)
		f.ParentID = &id
	}

	page, err := h.catalog.ListCategories(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, page)
}

func (h *handlers) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.catalog.Category(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}

type productRequest struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Images        []string        `json:"images"`
	CategoryID    int64           `json:"category_id"`
	IsActive      *bool           `json:"is_active"`
}

func (h *handlers) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	p, err := h.catalog.CreateProduct(r.Context(), models.Product{
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		Images:        req.Images,
		CategoryID:    req.CategoryID,
		IsActive:      active,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, p)
}

type productUpdateRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Images      *[]string        `json:"images"`
	CategoryID  *int64           `json:"category_id"`
	IsActive    *bool            `json:"is_active"`
}

func (req productUpdateRequest) toUpdate() *models.ProductUpdate {
	u := &models.ProductUpdate{}
	if req.Name != nil {
		u.SetName(*req.Name)
	}
	if req.Description != nil {
		u.SetDescription(*req.Description)
	}
	if req.Price != nil {
		u.SetPrice(*req.Price)
	}
	if req.Images != nil {
		u.SetImages(*req.Images)
	}
	if req.CategoryID != nil {
		u.SetCategoryID(*req.CategoryID)
	}
	if req.IsActive != nil {
		u.SetActive(*req.IsActive)
	}
	return u
}

func (h *handlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req productUpdateRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.catalog.UpdateProduct(r.Context(), id, req.toUpdate())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, p)
}

func (h *handlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	deactivated, err := h.catalog.DeleteProduct(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"id": id, "deactivated": deactivated})
}

type stockRequest struct {
	Delta int `json:"delta"`
}

func (h *handlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req stockRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.catalog.AdjustStock(r.Context(), id, req.Delta)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, p)
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ParentID    *int64 `json:"parent_id"`
}

func (h *handlers) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.catalog.CreateCategory(r.Context(), req.Name, req.Description, req.ParentID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, c)
}
