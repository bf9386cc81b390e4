package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/styl6559/storefront/internal/cart"
	"github.com/styl6559/storefront/internal/domain"
)

type WishlistHandler struct {
	carts   *cart.Manager
	timeout time.Duration
}

func NewWishlistHandler(carts *cart.Manager, timeout time.Duration) *WishlistHandler {
	return &WishlistHandler{carts: carts, timeout: timeout}
}

type AddWishlistRequestDTO struct {
	ProductID string `json:"product_id"`
}

type WishlistResponseDTO struct {
	Items []domain.WishlistItem `json:"items"`
}

func (h *WishlistHandler) engine(w http.ResponseWriter, r *http.Request) (*cart.Engine, bool) {
	engine, err := h.carts.Engine(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "wishlist_unavailable", "failed to load wishlist")
		return nil, false
	}
	return engine, true
}

func (h *WishlistHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, WishlistResponseDTO{Items: engine.WishlistItems()})
}

func (h *WishlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddWishlistRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.AddToWishlist(ctx, req.ProductID); err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, WishlistResponseDTO{Items: engine.WishlistItems()})
}

func (h *WishlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")

	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.RemoveFromWishlist(ctx, productID); err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, WishlistResponseDTO{Items: engine.WishlistItems()})
}
