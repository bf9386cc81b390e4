package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/styl6559/storefront/internal/cart"
	"github.com/styl6559/storefront/internal/domain"
)

type CartHandler struct {
	carts   *cart.Manager
	timeout time.Duration
}

func NewCartHandler(carts *cart.Manager, timeout time.Duration) *CartHandler {
	return &CartHandler{carts: carts, timeout: timeout}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int    `json:"quantity"`
	Size     string `json:"size,omitempty"`
}

type CartResponseDTO struct {
	Items      []domain.CartItem `json:"items"`
	TotalItems int               `json:"total_items"`
	TotalPrice float64           `json:"total_price"`
}

type ValidateResponseDTO struct {
	ValidItems       []domain.CartItem `json:"valid_items"`
	RemovedItemNames []string          `json:"removed_item_names"`
}

func (h *CartHandler) engine(w http.ResponseWriter, r *http.Request) (*cart.Engine, bool) {
	engine, err := h.carts.Engine(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "cart_unavailable", "failed to load cart")
		return nil, false
	}
	return engine, true
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{
		Items:      engine.Items(),
		TotalItems: engine.TotalItems(),
		TotalPrice: engine.TotalPrice(),
	})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.AddToCart(ctx, req.ProductID, req.Quantity, req.Size); err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CartResponseDTO{
		Items:      engine.Items(),
		TotalItems: engine.TotalItems(),
		TotalPrice: engine.TotalPrice(),
	})
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.UpdateQuantity(ctx, productID, req.Size, req.Quantity); err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponseDTO{
		Items:      engine.Items(),
		TotalItems: engine.TotalItems(),
		TotalPrice: engine.TotalPrice(),
	})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")

	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.RemoveFromCart(ctx, productID); err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponseDTO{
		Items:      engine.Items(),
		TotalItems: engine.TotalItems(),
		TotalPrice: engine.TotalPrice(),
	})
}

// ClearCart requires an explicit confirm=true query parameter; emptying
// the whole cart is destructive and never implicit.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if r.URL.Query().Get("confirm") != "true" {
		respondError(w, http.StatusBadRequest, "confirmation_required", "pass confirm=true to empty the cart")
		return
	}

	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.ClearCart(ctx); err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponseDTO{Items: []domain.CartItem{}})
}

// ValidateCart is the dry run: it reports which lines would survive a
// stock re-check without touching the cart.
func (h *CartHandler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	valid, removed := engine.ValidateCartItems()
	respondJSON(w, http.StatusOK, ValidateResponseDTO{
		ValidItems:       valid,
		RemovedItemNames: removed,
	})
}

// MergeGuestCart folds the guest cart into the authenticated user's cart
// after login. Guests get a 401.
func (h *CartHandler) MergeGuestCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if userIDFromContext(r.Context()) == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := engine.MergeGuestCart(ctx); err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponseDTO{
		Items:      engine.Items(),
		TotalItems: engine.TotalItems(),
		TotalPrice: engine.TotalPrice(),
	})
}

func handleCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, cart.ErrOutOfStock):
		respondError(w, http.StatusConflict, "out_of_stock", err.Error())
	case errors.Is(err, cart.ErrAlreadyInWishlist):
		respondError(w, http.StatusConflict, "already_in_wishlist", err.Error())
	case errors.Is(err, cart.ErrGuestMerge):
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
