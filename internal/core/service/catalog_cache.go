package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/catalog-service/internal/core/cache"
	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

// CatalogCache is the variant-detail read path shared by search hydration
// and the variant lookup endpoint.
type CatalogCache struct {
	repo  port.CatalogRepository
	cache *cache.ReadThrough[*domain.VariantDetail]
}

func NewCatalogCache(repo port.CatalogRepository, store port.CacheStore, namespace string, ttl time.Duration, log *zap.Logger) *CatalogCache {
	return &CatalogCache{
		repo:  repo,
		cache: cache.New[*domain.VariantDetail](store, namespace, ttl, log),
	}
}

// Get returns the variant detail, active or not. The caller filters on
// Variant.Active.
func (c *CatalogCache) Get(ctx context.Context, variantID uint64) (*domain.VariantDetail, error) {
	return c.cache.Get(ctx, variantID, func(ctx context.Context) (*domain.VariantDetail, error) {
		return c.repo.GetVariantDetail(ctx, variantID)
	})
}

func (c *CatalogCache) Invalidate(ctx context.Context, variantID uint64) error {
	return c.cache.Invalidate(ctx, variantID)
}
