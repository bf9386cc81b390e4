package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/styl6559/storefront/internal/cart/cache"
	"github.com/styl6559/storefront/internal/cart/store"
	"github.com/styl6559/storefront/internal/domain"
)

type memStore struct {
	m         sync.Mutex
	carts     map[string]*domain.Cart
	wishlists map[string]*domain.Wishlist
	loadErr   error
	saveErr   error
}

func newMemStore() *memStore {
	return &memStore{
		carts:     make(map[string]*domain.Cart),
		wishlists: make(map[string]*domain.Wishlist),
	}
}

func (s *memStore) LoadCart(_ context.Context, key string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	c, ok := s.carts[key]
	if !ok {
		return nil, store.ErrCartNotFound
	}
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	return &cp, nil
}

func (s *memStore) SaveCart(_ context.Context, key string, c *domain.Cart) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	s.carts[key] = &cp
	return nil
}

func (s *memStore) DeleteCart(_ context.Context, key string) error {
	s.m.Lock()
	defer s.m.Unlock()
	if _, ok := s.carts[key]; !ok {
		return store.ErrCartNotFound
	}
	delete(s.carts, key)
	return nil
}

func (s *memStore) LoadWishlist(_ context.Context, key string) (*domain.Wishlist, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	w, ok := s.wishlists[key]
	if !ok {
		return nil, store.ErrWishlistNotFound
	}
	cp := *w
	cp.Items = append([]domain.WishlistItem(nil), w.Items...)
	return &cp, nil
}

func (s *memStore) SaveWishlist(_ context.Context, key string, w *domain.Wishlist) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *w
	cp.Items = append([]domain.WishlistItem(nil), w.Items...)
	s.wishlists[key] = &cp
	return nil
}

func (s *memStore) DeleteWishlist(_ context.Context, key string) error {
	s.m.Lock()
	defer s.m.Unlock()
	if _, ok := s.wishlists[key]; !ok {
		return store.ErrWishlistNotFound
	}
	delete(s.wishlists, key)
	return nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*domain.Cart, error) { return nil, cache.ErrCacheMiss }

func (nopCache) Set(context.Context, string, *domain.Cart) error { return nil }

func (nopCache) Delete(context.Context, string) error { return nil }

type fakeCatalog struct {
	m        sync.Mutex
	products map[string]domain.Product
}

func newFakeCatalog(products ...domain.Product) *fakeCatalog {
	c := &fakeCatalog{products: make(map[string]domain.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) ProductByID(id string) (domain.Product, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	p, ok := c.products[id]
	return p, ok
}

func (c *fakeCatalog) set(p domain.Product) {
	c.m.Lock()
	defer c.m.Unlock()
	c.products[p.ID] = p
}

func (c *fakeCatalog) remove(id string) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.products, id)
}

type recordingNotifier struct {
	m        sync.Mutex
	messages []string
}

func (n *recordingNotifier) Success(message string) { n.record(message) }

func (n *recordingNotifier) Error(message string) { n.record(message) }

func (n *recordingNotifier) record(message string) {
	n.m.Lock()
	defer n.m.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) last() string {
	n.m.Lock()
	defer n.m.Unlock()
	if len(n.messages) == 0 {
		return ""
	}
	return n.messages[len(n.messages)-1]
}

var (
	p1 = domain.Product{ID: "p1", Name: "Canvas", Price: 100, InStock: true}
	p2 = domain.Product{ID: "p2", Name: "Poster", Price: 1000, DiscountPrice: 750, InStock: true}
	p3 = domain.Product{ID: "p3", Name: "Postcards", Price: 299, InStock: true}
	p4 = domain.Product{ID: "p4", Name: "Lithograph", Price: 4999, InStock: true}
)

func newTestEngine(t *testing.T, st *memStore, products ...domain.Product) (*Engine, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	eng := NewEngine(st, nopCache{}, newFakeCatalog(products...), notifier, zap.NewNop())
	require.NoError(t, eng.SwitchIdentity(context.Background(), ""))
	return eng, notifier
}

func TestAddToCart_ThenRemove(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, newMemStore(), p1)

	require.NoError(t, eng.AddToCart(ctx, "p1", 2, ""))
	assert.Equal(t, 2, eng.TotalItems())
	assert.Equal(t, 200.0, eng.TotalPrice())

	// Adding the same line again merges, never duplicates
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, ""))
	items := eng.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 300.0, eng.TotalPrice())

	require.NoError(t, eng.RemoveFromCart(ctx, "p1"))
	assert.Empty(t, eng.Items())
}

func TestAddToCart_DistinctSizesAreDistinctLines(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, newMemStore(), p1)

	require.NoError(t, eng.AddToCart(ctx, "p1", 1, "M"))
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, "L"))
	require.NoError(t, eng.AddToCart(ctx, "p1", 2, "M"))

	items := eng.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[eng.cart.FindLine("p1", "M")].Quantity)
	assert.Equal(t, 1, items[eng.cart.FindLine("p1", "L")].Quantity)
}

func TestAddToCart_OutOfStock(t *testing.T) {
	ctx := context.Background()
	outOfStock := domain.Product{ID: "p9", Name: "Sold Out", Price: 50, InStock: false}
	eng, notifier := newTestEngine(t, newMemStore(), outOfStock)

	err := eng.AddToCart(ctx, "p9", 1, "")

	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Empty(t, eng.Items())
	assert.Contains(t, notifier.last(), "out of stock")
}

func TestAddToCart_UnknownProduct(t *testing.T) {
	eng, _ := newTestEngine(t, newMemStore(), p1)

	err := eng.AddToCart(context.Background(), "missing", 1, "")

	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestAddToCart_ResolvesAgainstLiveCatalog(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	notifier := &recordingNotifier{}
	cat := newFakeCatalog(p1)
	eng := NewEngine(st, nopCache{}, cat, notifier, zap.NewNop())
	require.NoError(t, eng.SwitchIdentity(ctx, ""))

	require.NoError(t, eng.AddToCart(ctx, "p1", 1, ""))

	// Price changes in the catalog; the second add refreshes the snapshot
	updated := p1
	updated.Price = 150
	cat.set(updated)
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, ""))

	items := eng.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 150.0, items[0].Product.Price)
	assert.Equal(t, 300.0, eng.TotalPrice())
}

func TestRemoveFromCart_AbsentIDIsNoop(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, newMemStore(), p1)
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, ""))

	require.NoError(t, eng.RemoveFromCart(ctx, "nope"))

	assert.Len(t, eng.Items(), 1)
}

func TestRemoveFromCart_RemovesAllSizes(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, newMemStore(), p1)
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, "M"))
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, "L"))

	require.NoError(t, eng.RemoveFromCart(ctx, "p1"))

	assert.Empty(t, eng.Items())
}

func TestUpdateQuantity_ZeroOrNegativeRemovesLine(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, newMemStore(), p1, p2)
	require.NoError(t, eng.AddToCart(ctx, "p1", 2, ""))
	require.NoError(t, eng.AddToCart(ctx, "p2", 1, ""))

	require.NoError(t, eng.UpdateQuantity(ctx, "p1", "", 0))
	assert.Equal(t, -1, eng.cart.FindLine("p1", ""))

	require.NoError(t, eng.UpdateQuantity(ctx, "p2", "", -1))
	assert.Empty(t, eng.Items())
}

func TestUpdateQuantity_TargetsOnlyMatchingSize(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, newMemStore(), p1)
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, "M"))
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, "L"))

	require.NoError(t, eng.UpdateQuantity(ctx, "p1", "L", 5))

	items := eng.Items()
	assert.Equal(t, 1, items[eng.cart.FindLine("p1", "M")].Quantity)
	assert.Equal(t, 5, items[eng.cart.FindLine("p1", "L")].Quantity)
}

func TestUpdateQuantity_AbsentLineIsNoop(t *testing.T) {
	eng, _ := newTestEngine(t, newMemStore(), p1)

	require.NoError(t, eng.UpdateQuantity(context.Background(), "p1", "", 4))

	assert.Empty(t, eng.Items())
}

func TestClearCart(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	eng, _ := newTestEngine(t, st, p1, p2)
	require.NoError(t, eng.AddToCart(ctx, "p1", 2, ""))
	require.NoError(t, eng.AddToCart(ctx, "p2", 1, ""))

	require.NoError(t, eng.ClearCart(ctx))

	assert.Empty(t, eng.Items())
	persisted, err := st.LoadCart(ctx, "guest-cart")
	require.NoError(t, err)
	assert.Empty(t, persisted.Items)
}

func TestDiscountMath(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, newMemStore(), p2)

	require.NoError(t, eng.AddToCart(ctx, "p2", 3, ""))

	assert.Equal(t, 2250.0, eng.TotalPrice())
}

func TestWishlist_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	eng, notifier := newTestEngine(t, newMemStore(), p1)

	require.NoError(t, eng.AddToWishlist(ctx, "p1"))
	assert.True(t, eng.IsInWishlist("p1"))

	err := eng.AddToWishlist(ctx, "p1")

	assert.ErrorIs(t, err, ErrAlreadyInWishlist)
	assert.Len(t, eng.WishlistItems(), 1)
	assert.Contains(t, notifier.last(), "Already in your wishlist")
}

func TestWishlist_RemoveAndMembership(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, newMemStore(), p1, p2)

	require.NoError(t, eng.AddToWishlist(ctx, "p1"))
	require.NoError(t, eng.AddToWishlist(ctx, "p2"))

	require.NoError(t, eng.RemoveFromWishlist(ctx, "p1"))
	assert.False(t, eng.IsInWishlist("p1"))
	assert.True(t, eng.IsInWishlist("p2"))

	// Removing an absent id is a no-op
	require.NoError(t, eng.RemoveFromWishlist(ctx, "p1"))
}

func TestValidateCartItems_PartitionsWithoutMutating(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	notifier := &recordingNotifier{}
	cat := newFakeCatalog(p3, p4)
	eng := NewEngine(st, nopCache{}, cat, notifier, zap.NewNop())
	require.NoError(t, eng.SwitchIdentity(ctx, ""))
	require.NoError(t, eng.AddToCart(ctx, "p3", 1, ""))
	require.NoError(t, eng.AddToCart(ctx, "p4", 2, ""))

	// p4 disappears from the catalog
	cat.remove("p4")

	valid, removed := eng.ValidateCartItems()

	require.Len(t, valid, 1)
	assert.Equal(t, "p3", valid[0].Product.ID)
	assert.Equal(t, []string{"Lithograph"}, removed)
	// Dry run only: the live cart still holds both lines
	assert.Len(t, eng.Items(), 2)

	// Applying the result commits the removal
	require.NoError(t, eng.ApplyValidation(ctx, valid))
	assert.Len(t, eng.Items(), 1)
}

func TestValidateCartItems_OutOfStockCountsAsRemoved(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	cat := newFakeCatalog(p3, p4)
	eng := NewEngine(st, nopCache{}, cat, &recordingNotifier{}, zap.NewNop())
	require.NoError(t, eng.SwitchIdentity(ctx, ""))
	require.NoError(t, eng.AddToCart(ctx, "p4", 1, ""))

	soldOut := p4
	soldOut.InStock = false
	cat.set(soldOut)

	valid, removed := eng.ValidateCartItems()

	assert.Empty(t, valid)
	assert.Equal(t, []string{"Lithograph"}, removed)
}

func TestRemoveLines_LeavesOtherLines(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, newMemStore(), p1, p2)
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, "M"))
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, "L"))
	require.NoError(t, eng.AddToCart(ctx, "p2", 2, ""))

	refs := []domain.LineRef{
		{ProductID: "p1", Size: "M"},
		{ProductID: "p2"},
	}
	require.NoError(t, eng.RemoveLines(ctx, refs))

	items := eng.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].Product.ID)
	assert.Equal(t, "L", items[0].Size)
}

func TestIdentitySwitch_NoAutomaticMerge(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	eng, _ := newTestEngine(t, st, p1)

	require.NoError(t, eng.AddToCart(ctx, "p1", 2, ""))

	// Login: the guest cart is not visible under the user identity
	require.NoError(t, eng.SwitchIdentity(ctx, "user42"))
	assert.Empty(t, eng.Items())

	// Logout: the guest cart is intact
	require.NoError(t, eng.SwitchIdentity(ctx, ""))
	assert.Equal(t, 2, eng.TotalItems())
}

func TestMergeGuestCart(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	eng, _ := newTestEngine(t, st, p1, p2)

	require.NoError(t, eng.AddToCart(ctx, "p1", 2, "M"))
	require.NoError(t, eng.AddToCart(ctx, "p2", 1, ""))

	require.NoError(t, eng.SwitchIdentity(ctx, "user42"))
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, "M"))

	require.NoError(t, eng.MergeGuestCart(ctx))

	items := eng.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[eng.cart.FindLine("p1", "M")].Quantity)
	assert.Equal(t, 1, items[eng.cart.FindLine("p2", "")].Quantity)

	// The guest collection is gone after the merge
	_, err := st.LoadCart(ctx, "guest-cart")
	assert.ErrorIs(t, err, store.ErrCartNotFound)
}

func TestMergeGuestCart_RejectedForGuest(t *testing.T) {
	eng, _ := newTestEngine(t, newMemStore(), p1)

	assert.ErrorIs(t, eng.MergeGuestCart(context.Background()), ErrGuestMerge)
}

func TestRestoreBeforePersist(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()

	// A previous session saved a cart under the guest key
	require.NoError(t, st.SaveCart(ctx, "guest-cart", &domain.Cart{
		Items: []domain.CartItem{{Product: p1, Quantity: 2}},
	}))

	// A fresh engine mutates without an explicit SwitchIdentity: the
	// persisted collection must be restored first, not clobbered.
	eng := NewEngine(st, nopCache{}, newFakeCatalog(p1, p2), &recordingNotifier{}, zap.NewNop())
	require.NoError(t, eng.AddToCart(ctx, "p2", 1, ""))

	persisted, err := st.LoadCart(ctx, "guest-cart")
	require.NoError(t, err)
	assert.Len(t, persisted.Items, 2)
}

func TestRestore_TransientStoreFailureDoesNotClobberSavedCart(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	require.NoError(t, st.SaveCart(ctx, "guest-cart", &domain.Cart{
		Items: []domain.CartItem{{Product: p1, Quantity: 5}},
	}))

	// The store is briefly unreachable: the mutation must fail rather
	// than restore into an empty cart and persist over the saved one.
	st.loadErr = errors.New("connection refused")
	eng := NewEngine(st, nopCache{}, newFakeCatalog(p1, p2), &recordingNotifier{}, zap.NewNop())
	require.Error(t, eng.AddToCart(ctx, "p2", 1, ""))

	st.loadErr = nil
	require.NoError(t, eng.AddToCart(ctx, "p2", 1, ""))

	persisted, err := st.LoadCart(ctx, "guest-cart")
	require.NoError(t, err)
	require.Len(t, persisted.Items, 2)
	assert.Equal(t, 5, persisted.Items[0].Quantity)
}

func TestRestore_CorruptedDataDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.loadErr = store.ErrCorruptedData

	eng := NewEngine(st, nopCache{}, newFakeCatalog(p1), &recordingNotifier{}, zap.NewNop())
	require.NoError(t, eng.SwitchIdentity(ctx, ""))

	assert.Empty(t, eng.Items())

	// The engine stays usable after the degraded restore
	st.loadErr = nil
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, ""))
	assert.Equal(t, 1, eng.TotalItems())
}

func TestMutationRollbackOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	eng, _ := newTestEngine(t, st, p1)
	require.NoError(t, eng.AddToCart(ctx, "p1", 1, ""))

	st.saveErr = errors.New("mongo down")
	err := eng.AddToCart(ctx, "p1", 5, "")

	assert.Error(t, err)
	items := eng.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestManager_SeparateEnginesPerIdentity(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	manager := NewManager(st, nopCache{}, newFakeCatalog(p1), &recordingNotifier{}, zap.NewNop())

	guest, err := manager.Engine(ctx, "")
	require.NoError(t, err)
	require.NoError(t, guest.AddToCart(ctx, "p1", 2, ""))

	user, err := manager.Engine(ctx, "user42")
	require.NoError(t, err)
	assert.Empty(t, user.Items())

	again, err := manager.Engine(ctx, "")
	require.NoError(t, err)
	assert.Same(t, guest, again)
	assert.Equal(t, 2, again.TotalItems())
}
