package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/styl6559/storefront/internal/catalog"
)

type ProductHandler struct {
	catalog *catalog.Provider
}

func NewProductHandler(provider *catalog.Provider) *ProductHandler {
	return &ProductHandler{catalog: provider}
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.catalog.Products())
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "product_id")
	product, ok := h.catalog.ProductByID(id)
	if !ok {
		respondError(w, http.StatusNotFound, "product_not_found", "no product with id "+id)
		return
	}
	respondJSON(w, http.StatusOK, product)
}
