// Package cache implements the cache-aside read path: check the cache,
// fall back to the loader on miss, populate, and invalidate on demand.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

// Loader fetches the authoritative value. It returns domain.ErrNotFound
// for a missing record.
type Loader[T any] func(ctx context.Context) (T, error)

type ReadThrough[T any] struct {
	store     port.CacheStore
	namespace string
	ttl       time.Duration
	log       *zap.Logger
	group     singleflight.Group
}

// New builds a cache for one entity type. A ttl of zero stores entries
// until they are invalidated.
func New[T any](store port.CacheStore, namespace string, ttl time.Duration, log *zap.Logger) *ReadThrough[T] {
	return &ReadThrough[T]{
		store:     store,
		namespace: namespace,
		ttl:       ttl,
		log:       log.Named("cache").With(zap.String("namespace", namespace)),
	}
}

// Key returns the store key for id, e.g. variantDetails::42.
func (c *ReadThrough[T]) Key(id any) string {
	return fmt.Sprintf("%s::%v", c.namespace, id)
}

// Get returns the cached value for id or loads it. Store failures fall back
// to the loader; a not-found load is returned without populating the cache.
func (c *ReadThrough[T]) Get(ctx context.Context, id any, load Loader[T]) (T, error) {
	key := c.Key(id)

	if v, ok := c.lookup(ctx, key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// The load is shared by every waiter on key, so it must not end
		// with the first caller's cancellation.
		lctx := context.WithoutCancel(ctx)
		v, err := load(lctx)
		if err != nil {
			return v, err
		}
		c.populate(lctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		if errors.Is(err, domain.ErrNotFound) {
			return zero, err
		}
		return zero, fmt.Errorf("load %s: %w", key, err)
	}
	return res.(T), nil
}

// Invalidate removes the entry for id whether or not it is cached.
func (c *ReadThrough[T]) Invalidate(ctx context.Context, id any) error {
	key := c.Key(id)
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

func (c *ReadThrough[T]) lookup(ctx context.Context, key string) (T, bool) {
	var v T
	data, err := c.store.Get(ctx, key)
	if errors.Is(err, port.ErrCacheMiss) {
		return v, false
	}
	if err != nil {
		c.log.Warn("cache read failed, loading from source", zap.String("key", key), zap.Error(err))
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.log.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.store.Delete(ctx, key)
		return v, false
	}
	return v, true
}

func (c *ReadThrough[T]) populate(ctx context.Context, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
