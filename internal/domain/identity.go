package domain

// GuestIdentity is the identity key for unauthenticated sessions. Carts and
// wishlists are namespaced by identity key; switching identity swaps to a
// different persisted collection.
const GuestIdentity = "guest"

// IdentityFor maps a user id to a storage identity key.
func IdentityFor(userID string) string {
	if userID == "" {
		return GuestIdentity
	}
	return userID
}

// CartStorageKey returns the durable-storage key for a cart collection.
func CartStorageKey(identity string) string {
	if identity == GuestIdentity {
		return "guest-cart"
	}
	return "cart-" + identity
}

// WishlistStorageKey returns the durable-storage key for a wishlist.
func WishlistStorageKey(identity string) string {
	if identity == GuestIdentity {
		return "guest-wishlist"
	}
	return "wishlist-" + identity
}
