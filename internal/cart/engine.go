package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/styl6559/storefront/internal/cart/cache"
	"github.com/styl6559/storefront/internal/cart/store"
	"github.com/styl6559/storefront/internal/domain"
)

var (
	ErrProductNotFound   = errors.New("product is no longer available")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrAlreadyInWishlist = errors.New("product is already in wishlist")
	ErrGuestMerge        = errors.New("cannot merge guest cart into a guest identity")
)

// Catalog is the product snapshot the engine resolves against. Defined
// here by the consumer; implemented by catalog.Provider.
type Catalog interface {
	ProductByID(id string) (domain.Product, bool)
}

// Engine owns the cart and wishlist collections for one identity. All
// mutations are validated against the live catalog snapshot, applied in
// memory and persisted to durable storage as one unit. The persisted
// collection is restored before any mutation is accepted, so a freshly
// constructed engine never overwrites saved data with an empty write.
type Engine struct {
	store    store.CollectionStore
	cache    cache.CartCache
	catalog  Catalog
	notifier Notifier
	logger   *zap.Logger
	sfg      singleflight.Group // Prevents cache stampede on restore

	mu       sync.Mutex
	identity string
	cart     *domain.Cart
	wishlist *domain.Wishlist
	restored bool
}

func NewEngine(st store.CollectionStore, ca cache.CartCache, catalog Catalog, notifier Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		store:    st,
		cache:    ca,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger,
		identity: domain.GuestIdentity,
	}
}

// SwitchIdentity points the engine at the collections persisted under the
// given user's identity key and restores them. There is no automatic merge
// between identities; MergeGuestCart is the explicit opt-in.
func (e *Engine) SwitchIdentity(ctx context.Context, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	identity := domain.IdentityFor(userID)
	if e.restored && identity == e.identity {
		return nil
	}

	e.identity = identity
	return e.restoreLocked(ctx)
}

// restoreLocked loads both persisted collections. Corrupted documents
// degrade to an empty collection; a transient store failure leaves the
// engine un-restored and fails the triggering operation instead, so the
// saved collections are never overwritten by a post-outage persist.
func (e *Engine) restoreLocked(ctx context.Context) error {
	now := time.Now()

	cartKey := domain.CartStorageKey(e.identity)
	loadedCart, err := e.loadCart(ctx, cartKey)
	switch {
	case err == nil:
		e.cart = loadedCart
	case errors.Is(err, store.ErrCartNotFound):
		e.cart = &domain.Cart{IdentityKey: cartKey, CreatedAt: now, UpdatedAt: now}
	case errors.Is(err, store.ErrCorruptedData):
		e.logger.Warn("persisted cart is corrupted, starting empty", zap.String("key", cartKey), zap.Error(err))
		e.cart = &domain.Cart{IdentityKey: cartKey, CreatedAt: now, UpdatedAt: now}
	default:
		return fmt.Errorf("failed to restore cart: %w", err)
	}

	wishlistKey := domain.WishlistStorageKey(e.identity)
	loadedWishlist, err := e.store.LoadWishlist(ctx, wishlistKey)
	switch {
	case err == nil:
		e.wishlist = loadedWishlist
	case errors.Is(err, store.ErrWishlistNotFound):
		e.wishlist = &domain.Wishlist{IdentityKey: wishlistKey, CreatedAt: now, UpdatedAt: now}
	case errors.Is(err, store.ErrCorruptedData):
		e.logger.Warn("persisted wishlist is corrupted, starting empty", zap.String("key", wishlistKey), zap.Error(err))
		e.wishlist = &domain.Wishlist{IdentityKey: wishlistKey, CreatedAt: now, UpdatedAt: now}
	default:
		return fmt.Errorf("failed to restore wishlist: %w", err)
	}

	e.restored = true
	return nil
}

func (e *Engine) loadCart(ctx context.Context, key string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := e.sfg.Do(key, func() (interface{}, error) {
		loaded, err := e.cache.Get(ctx, key)
		if err == nil {
			return loaded, nil
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			e.logger.Warn("cache get error", zap.String("key", key), zap.Error(err))
		}

		loaded, errLoad := e.store.LoadCart(ctx, key)
		if errLoad != nil {
			return nil, errLoad
		}

		go func() {
			if errSet := e.cache.Set(context.Background(), key, loaded); errSet != nil {
				e.logger.Warn("cache set error", zap.String("key", key), zap.Error(errSet))
			}
		}()

		return loaded, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

func (e *Engine) ensureRestoredLocked(ctx context.Context) error {
	if e.restored {
		return nil
	}
	return e.restoreLocked(ctx)
}

// mutateCartLocked applies the mutation and persists the full collection
// as one unit. A failed persist rolls the in-memory state back so memory
// and storage never diverge.
func (e *Engine) mutateCartLocked(ctx context.Context, mutate func()) error {
	prev := make([]domain.CartItem, len(e.cart.Items))
	copy(prev, e.cart.Items)

	mutate()

	if err := e.persistCartLocked(ctx); err != nil {
		e.cart.Items = prev
		return err
	}
	return nil
}

func (e *Engine) persistCartLocked(ctx context.Context) error {
	key := domain.CartStorageKey(e.identity)
	if err := e.store.SaveCart(ctx, key, e.cart); err != nil {
		return fmt.Errorf("failed to persist cart: %w", err)
	}
	e.invalidateCache(key)
	return nil
}

func (e *Engine) persistWishlistLocked(ctx context.Context) error {
	key := domain.WishlistStorageKey(e.identity)
	if err := e.store.SaveWishlist(ctx, key, e.wishlist); err != nil {
		return fmt.Errorf("failed to persist wishlist: %w", err)
	}
	return nil
}

func (e *Engine) invalidateCache(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.cache.Delete(ctx, key); err != nil {
		e.logger.Warn("cache invalidate error", zap.String("key", key), zap.Error(err))
	}
}

// AddToCart resolves the product against the live catalog snapshot,
// rejects out-of-stock products, and either increments the existing
// (product, size) line or appends a new one.
func (e *Engine) AddToCart(ctx context.Context, productID string, quantity int, size string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureRestoredLocked(ctx); err != nil {
		return err
	}
	if quantity < 1 {
		quantity = 1
	}

	product, ok := e.catalog.ProductByID(productID)
	if !ok {
		e.notifier.Error("This product is no longer available")
		return ErrProductNotFound
	}
	if !product.InStock {
		e.notifier.Error(product.Name + " is out of stock")
		return ErrOutOfStock
	}

	if idx := e.cart.FindLine(productID, size); idx >= 0 {
		err := e.mutateCartLocked(ctx, func() {
			e.cart.Items[idx].Quantity += quantity
			e.cart.Items[idx].Product = product // refresh stored snapshot
		})
		if err != nil {
			return err
		}
		e.notifier.Success("Cart quantity updated")
		return nil
	}

	err := e.mutateCartLocked(ctx, func() {
		e.cart.Items = append(e.cart.Items, domain.CartItem{
			Product:  product,
			Quantity: quantity,
			Size:     size,
			AddedAt:  time.Now(),
		})
	})
	if err != nil {
		return err
	}
	e.notifier.Success("Added to cart")
	return nil
}

// RemoveFromCart removes every line with the given product id, any size.
// Removing an absent id is a no-op.
func (e *Engine) RemoveFromCart(ctx context.Context, productID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureRestoredLocked(ctx); err != nil {
		return err
	}

	kept := e.cart.Items[:0:0]
	for _, item := range e.cart.Items {
		if item.Product.ID != productID {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(e.cart.Items) {
		return nil
	}

	err := e.mutateCartLocked(ctx, func() {
		e.cart.Items = kept
	})
	if err != nil {
		return err
	}
	e.notifier.Success("Removed from cart")
	return nil
}

// UpdateQuantity sets the quantity on the (productID, size) line. A
// quantity of zero or below removes the line instead. Updating an absent
// line is a no-op.
func (e *Engine) UpdateQuantity(ctx context.Context, productID, size string, quantity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureRestoredLocked(ctx); err != nil {
		return err
	}

	idx := e.cart.FindLine(productID, size)
	if idx < 0 {
		return nil
	}

	return e.mutateCartLocked(ctx, func() {
		if quantity <= 0 {
			e.cart.Items = append(e.cart.Items[:idx:idx], e.cart.Items[idx+1:]...)
			return
		}
		e.cart.Items[idx].Quantity = quantity
	})
}

// ClearCart unconditionally empties the cart. Confirmation of this
// destructive action is the caller's responsibility.
func (e *Engine) ClearCart(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureRestoredLocked(ctx); err != nil {
		return err
	}

	return e.mutateCartLocked(ctx, func() {
		e.cart.Items = nil
	})
}

func (e *Engine) AddToWishlist(ctx context.Context, productID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureRestoredLocked(ctx); err != nil {
		return err
	}

	product, ok := e.catalog.ProductByID(productID)
	if !ok {
		e.notifier.Error("This product is no longer available")
		return ErrProductNotFound
	}

	if e.wishlist.Contains(productID) {
		e.notifier.Error("Already in your wishlist")
		return ErrAlreadyInWishlist
	}

	e.wishlist.Items = append(e.wishlist.Items, domain.WishlistItem{
		Product: product,
		AddedAt: time.Now(),
	})
	if err := e.persistWishlistLocked(ctx); err != nil {
		e.wishlist.Items = e.wishlist.Items[:len(e.wishlist.Items)-1]
		return err
	}
	e.notifier.Success("Added to wishlist")
	return nil
}

func (e *Engine) RemoveFromWishlist(ctx context.Context, productID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureRestoredLocked(ctx); err != nil {
		return err
	}

	kept := e.wishlist.Items[:0:0]
	for _, item := range e.wishlist.Items {
		if item.Product.ID != productID {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(e.wishlist.Items) {
		return nil
	}

	prev := e.wishlist.Items
	e.wishlist.Items = kept
	if err := e.persistWishlistLocked(ctx); err != nil {
		e.wishlist.Items = prev
		return err
	}
	e.notifier.Success("Removed from wishlist")
	return nil
}

func (e *Engine) IsInWishlist(productID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.restored {
		return false
	}
	return e.wishlist.Contains(productID)
}

// TotalPrice sums effective price times quantity over the current cart.
// Recomputed on every call.
func (e *Engine) TotalPrice() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.restored {
		return 0
	}
	return e.cart.TotalPrice()
}

// TotalItems sums quantities across all lines.
func (e *Engine) TotalItems() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.restored {
		return 0
	}
	return e.cart.TotalItems()
}

// Items returns a copy of the current cart lines.
func (e *Engine) Items() []domain.CartItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.restored {
		return nil
	}
	items := make([]domain.CartItem, len(e.cart.Items))
	copy(items, e.cart.Items)
	return items
}

// WishlistItems returns a copy of the current wishlist entries.
func (e *Engine) WishlistItems() []domain.WishlistItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.restored {
		return nil
	}
	items := make([]domain.WishlistItem, len(e.wishlist.Items))
	copy(items, e.wishlist.Items)
	return items
}

// Identity returns the identity key the engine currently serves.
func (e *Engine) Identity() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity
}

// ValidateCartItems re-resolves every line against the live catalog and
// partitions the cart into lines that are still purchasable (with
// refreshed snapshots) and the names of products that were deleted or
// went out of stock. The cart itself is not mutated; callers apply the
// result with ApplyValidation after user confirmation.
func (e *Engine) ValidateCartItems() (validItems []domain.CartItem, removedItemNames []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.restored {
		return nil, nil
	}

	for _, item := range e.cart.Items {
		product, ok := e.catalog.ProductByID(item.Product.ID)
		if !ok || !product.InStock {
			removedItemNames = append(removedItemNames, item.Product.Name)
			continue
		}
		refreshed := item
		refreshed.Product = product
		validItems = append(validItems, refreshed)
	}
	return validItems, removedItemNames
}

// ApplyValidation replaces the cart contents with the confirmed valid
// lines from a ValidateCartItems run.
func (e *Engine) ApplyValidation(ctx context.Context, validItems []domain.CartItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureRestoredLocked(ctx); err != nil {
		return err
	}

	return e.mutateCartLocked(ctx, func() {
		e.cart.Items = validItems
	})
}

// RemoveLines removes exactly the given (product, size) lines. Used after
// a successful payment to drop only the checked-out lines, leaving any
// lines added since checkout began untouched.
func (e *Engine) RemoveLines(ctx context.Context, refs []domain.LineRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureRestoredLocked(ctx); err != nil {
		return err
	}

	checkedOut := make(map[domain.LineRef]bool, len(refs))
	for _, ref := range refs {
		checkedOut[ref] = true
	}

	kept := e.cart.Items[:0:0]
	for _, item := range e.cart.Items {
		if !checkedOut[item.Ref()] {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(e.cart.Items) {
		return nil
	}

	return e.mutateCartLocked(ctx, func() {
		e.cart.Items = kept
	})
}

// MergeGuestCart unions the persisted guest cart into the current
// authenticated cart, keyed by (product, size) and summing quantities on
// conflict, then deletes the guest collection. This is an explicit
// operation; identity switches never merge on their own.
func (e *Engine) MergeGuestCart(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.identity == domain.GuestIdentity {
		return ErrGuestMerge
	}
	if err := e.ensureRestoredLocked(ctx); err != nil {
		return err
	}

	guestKey := domain.CartStorageKey(domain.GuestIdentity)
	guest, err := e.store.LoadCart(ctx, guestKey)
	if errors.Is(err, store.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load guest cart: %w", err)
	}

	err = e.mutateCartLocked(ctx, func() {
		for _, item := range guest.Items {
			if idx := e.cart.FindLine(item.Product.ID, item.Size); idx >= 0 {
				e.cart.Items[idx].Quantity += item.Quantity
				continue
			}
			e.cart.Items = append(e.cart.Items, item)
		}
	})
	if err != nil {
		return err
	}

	if errDel := e.store.DeleteCart(ctx, guestKey); errDel != nil && !errors.Is(errDel, store.ErrCartNotFound) {
		e.logger.Warn("failed to delete merged guest cart", zap.Error(errDel))
	}
	e.invalidateCache(guestKey)

	e.notifier.Success("Guest cart merged")
	return nil
}
