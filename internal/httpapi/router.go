package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/styl6559/storefront/internal/cart"
	"github.com/styl6559/storefront/internal/catalog"
	"github.com/styl6559/storefront/internal/checkout"
)

// NewRouter wires every handler under /api/v1 with the shared middleware
// stack.
func NewRouter(
	carts *cart.Manager,
	provider *catalog.Provider,
	checkoutService *checkout.Service,
	lookup checkout.PincodeLookup,
	requestTimeout time.Duration,
) http.Handler {
	cartHandler := NewCartHandler(carts, requestTimeout)
	wishlistHandler := NewWishlistHandler(carts, requestTimeout)
	productHandler := NewProductHandler(provider)
	checkoutHandler := NewCheckoutHandler(checkoutService, lookup, requestTimeout)
	postalHandler := NewPostalHandler(lookup)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(AuthMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/{product_id}", productHandler.GetProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			r.Post("/validate", cartHandler.ValidateCart)
			r.Post("/merge", cartHandler.MergeGuestCart)
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", wishlistHandler.GetWishlist)
			r.Post("/items", wishlistHandler.AddItem)
			r.Delete("/items/{product_id}", wishlistHandler.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkoutHandler.Begin)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", checkoutHandler.GetSession)
				r.Post("/confirm-removed", checkoutHandler.ConfirmRemovedItems)
				r.Get("/shipping", checkoutHandler.GetShippingState)
				r.Patch("/shipping", checkoutHandler.SetShippingField)
				r.Post("/submit", checkoutHandler.SubmitShipping)
				r.Post("/payment/success", checkoutHandler.PaymentSuccess)
				r.Post("/payment/failure", checkoutHandler.PaymentFailure)
				r.Post("/cancel", checkoutHandler.Cancel)
			})
		})

		r.Get("/postal/{pincode}", postalHandler.Lookup)
	})

	return r
}
