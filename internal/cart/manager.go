package cart

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/styl6559/storefront/internal/cart/cache"
	"github.com/styl6559/storefront/internal/cart/store"
	"github.com/styl6559/storefront/internal/domain"
)

// Manager hands out one engine per identity. Engines are created lazily
// and restored before they are returned, so callers always see the
// persisted collection for their identity.
type Manager struct {
	store    store.CollectionStore
	cache    cache.CartCache
	catalog  Catalog
	notifier Notifier
	logger   *zap.Logger

	mu      sync.Mutex
	engines map[string]*Engine
}

func NewManager(st store.CollectionStore, ca cache.CartCache, catalog Catalog, notifier Notifier, logger *zap.Logger) *Manager {
	return &Manager{
		store:    st,
		cache:    ca,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger,
		engines:  make(map[string]*Engine),
	}
}

// Engine returns the engine serving the given user (guest when empty),
// restoring its collections on first use.
func (m *Manager) Engine(ctx context.Context, userID string) (*Engine, error) {
	identity := domain.IdentityFor(userID)

	m.mu.Lock()
	eng, ok := m.engines[identity]
	if !ok {
		eng = NewEngine(m.store, m.cache, m.catalog, m.notifier, m.logger)
		m.engines[identity] = eng
	}
	m.mu.Unlock()

	if err := eng.SwitchIdentity(ctx, userID); err != nil {
		return nil, err
	}
	return eng, nil
}
