package cache

import (
	"context"
	"time"

	"salepoint/internal/domain"
)

// ProductCache holds the product list the register terminals load at start.
// Entries are invalidated whenever a sale or stock adjustment changes
// quantities.
type ProductCache interface {
	Get(ctx context.Context, key string) ([]domain.Product, bool, error)
	Set(ctx context.Context, key string, products []domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ string, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopProductCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
