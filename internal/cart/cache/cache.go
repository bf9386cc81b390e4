package cache

import (
	"context"
	"errors"

	"github.com/styl6559/storefront/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, key string) (*domain.Cart, error)
	Set(ctx context.Context, key string, cart *domain.Cart) error
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")
