package store

import (
	"context"
	"errors"

	"github.com/styl6559/storefront/internal/domain"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrWishlistNotFound = errors.New("wishlist not found")

	// ErrCorruptedData marks a persisted document that exists but can no
	// longer be decoded. Unlike transient I/O failures, callers may treat
	// the collection as empty.
	ErrCorruptedData = errors.New("persisted collection is corrupted")
)

// CollectionStore persists whole cart and wishlist collections keyed by
// storage key ("cart-<userID>" / "guest-cart" and the wishlist
// equivalents). The cart engine is the only writer; every mutation saves
// the full collection.
type CollectionStore interface {
	LoadCart(ctx context.Context, key string) (*domain.Cart, error)
	SaveCart(ctx context.Context, key string, cart *domain.Cart) error
	DeleteCart(ctx context.Context, key string) error

	LoadWishlist(ctx context.Context, key string) (*domain.Wishlist, error)
	SaveWishlist(ctx context.Context, key string, wishlist *domain.Wishlist) error
	DeleteWishlist(ctx context.Context, key string) error
}
