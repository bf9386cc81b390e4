package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/styl6559/storefront/internal/domain"
)

// Provider holds the current in-memory product snapshot. The cart engine
// resolves prices and stock against this snapshot, never against data the
// caller passed in. The snapshot is refreshed from the repository on a
// ticker and is read-only for consumers.
type Provider struct {
	repo   RepoInterface
	logger *zap.Logger

	refreshEvery time.Duration

	mu       sync.RWMutex
	byID     map[string]domain.Product
	products []domain.Product

	stopRefresh chan struct{}
	wg          sync.WaitGroup
}

func NewProvider(repo RepoInterface, logger *zap.Logger, refreshEvery time.Duration) *Provider {
	return &Provider{
		repo:         repo,
		logger:       logger,
		refreshEvery: refreshEvery,
		byID:         make(map[string]domain.Product),
		stopRefresh:  make(chan struct{}),
	}
}

// Refresh replaces the snapshot with the repository's current contents.
func (p *Provider) Refresh(ctx context.Context) error {
	products, err := p.repo.GetAllProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh catalog: %w", err)
	}

	byID := make(map[string]domain.Product, len(products))
	snapshot := make([]domain.Product, 0, len(products))
	for _, product := range products {
		byID[product.ID] = *product
		snapshot = append(snapshot, *product)
	}

	p.mu.Lock()
	p.byID = byID
	p.products = snapshot
	p.mu.Unlock()

	return nil
}

// Start launches the background refresh goroutine.
func (p *Provider) Start() {
	p.wg.Add(1)
	go p.refreshLoop()
}

func (p *Provider) refreshLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.Refresh(ctx); err != nil {
				p.logger.Warn("catalog refresh failed", zap.Error(err))
			}
			cancel()
		case <-p.stopRefresh:
			return
		}
	}
}

// Stop terminates the refresh goroutine and waits for it to exit.
func (p *Provider) Stop() {
	close(p.stopRefresh)
	p.wg.Wait()
}

// ProductByID returns the product from the current snapshot, if present.
func (p *Provider) ProductByID(id string) (domain.Product, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	product, ok := p.byID[id]
	return product, ok
}

// Products returns a copy of the current snapshot.
func (p *Provider) Products() []domain.Product {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snapshot := make([]domain.Product, len(p.products))
	copy(snapshot, p.products)
	return snapshot
}
