// Package lock implements short-lived, owner-tagged leases on a shared
// key-value store.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

const keyPrefix = "lock:"

// Lease is a held lock. Token identifies the holder.
type Lease struct {
	Key        string
	Token      string
	TTL        time.Duration
	AcquiredAt time.Time
}

// ExpiresAt is when the store drops the lease regardless of release.
func (l Lease) ExpiresAt() time.Time { return l.AcquiredAt.Add(l.TTL) }

type Locker struct {
	store port.LeaseStore
	log   *zap.Logger
}

func New(store port.LeaseStore, log *zap.Logger) *Locker {
	return &Locker{store: store, log: log.Named("lock")}
}

// Key builds the lease key for one resource, e.g. lock:inventory:42.
func Key(class string, id any) string {
	return fmt.Sprintf("%s%s:%v", keyPrefix, class, id)
}

// Acquire attempts the lease once. A held key returns ok=false with a nil
// error; busy is an expected outcome.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		return Lease{}, false, fmt.Errorf("lease ttl must be positive, got %s", ttl)
	}

	lease := Lease{
		Key:        key,
		Token:      uuid.NewString(),
		TTL:        ttl,
		AcquiredAt: time.Now(),
	}

	ok, err := l.store.SetNX(ctx, key, lease.Token, ttl)
	if err != nil {
		return Lease{}, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return Lease{}, false, nil
	}
	return lease, true, nil
}

// Release deletes the lease only if it still carries this holder's token.
// A mismatch means the lease expired and possibly passed to someone else;
// it is logged and otherwise ignored.
func (l *Locker) Release(ctx context.Context, lease Lease) (bool, error) {
	ok, err := l.store.CompareAndDelete(ctx, lease.Key, lease.Token)
	if err != nil {
		return false, fmt.Errorf("release %s: %w", lease.Key, err)
	}
	if !ok {
		l.log.Warn("lease not owned on release",
			zap.String("key", lease.Key),
			zap.Time("expired_at", lease.ExpiresAt()),
			zap.Error(domain.ErrNotOwner),
		)
	}
	return ok, nil
}
