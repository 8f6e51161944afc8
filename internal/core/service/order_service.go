package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/core/lock"
	"github.com/rl1809/catalog-service/internal/port"
)

// InventoryLockClass prefixes the per-variant stock lease key.
const InventoryLockClass = "inventory"

const (
	invalidateAttempts = 3
	invalidateBackoff  = 50 * time.Millisecond
)

// OrderState is the step an order run has reached.
type OrderState string

const (
	StateIdle              OrderState = "idle"
	StateLockAcquiring     OrderState = "lock_acquiring"
	StateValidatingStock   OrderState = "validating_stock"
	StateDecrementing      OrderState = "decrementing"
	StatePersistingOrder   OrderState = "persisting_order"
	StateCacheInvalidating OrderState = "cache_invalidating"
	StateIndexSyncing      OrderState = "index_syncing"
	StateDone              OrderState = "done"
	StateFailed            OrderState = "failed"
)

type OrderRequest struct {
	UserID    uint64
	VariantID uint64
	Quantity  int
	Address   string
}

func (r OrderRequest) validate() error {
	switch {
	case r.UserID == 0:
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	case r.VariantID == 0:
		return fmt.Errorf("%w: variant id is required", domain.ErrInvalidInput)
	case r.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	case strings.TrimSpace(r.Address) == "":
		return fmt.Errorf("%w: address is required", domain.ErrInvalidInput)
	}
	return nil
}

type leaser interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, bool, error)
	Release(ctx context.Context, lease lock.Lease) (bool, error)
}

type idGenerator interface {
	NextID() (uint64, error)
}

type variantInvalidator interface {
	Invalidate(ctx context.Context, variantID uint64) error
}

type OrderService struct {
	uow     port.UnitOfWork
	locker  leaser
	ids     idGenerator
	cache   variantInvalidator
	sync    SyncRequester
	lockTTL time.Duration
	log     *zap.Logger

	invalidateBackoff time.Duration
}

func NewOrderService(
	uow port.UnitOfWork,
	locker leaser,
	ids idGenerator,
	cache variantInvalidator,
	sync SyncRequester,
	lockTTL time.Duration,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		uow:     uow,
		locker:  locker,
		ids:     ids,
		cache:   cache,
		sync:    sync,
		lockTTL: lockTTL,
		log:     log.Named("order"),

		invalidateBackoff: invalidateBackoff,
	}
}

// CreateOrder places a single-item order under the variant's inventory
// lease. Stock and order are committed together or not at all. Cache and
// index refreshes after commit are best effort and never fail the order.
func (s *OrderService) CreateOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	log := s.log.With(
		zap.Uint64("user_id", req.UserID),
		zap.Uint64("variant_id", req.VariantID),
		zap.Int("quantity", req.Quantity),
	)

	state := StateLockAcquiring
	lease, ok, err := s.locker.Acquire(ctx, lock.Key(InventoryLockClass, req.VariantID), s.lockTTL)
	if err != nil {
		log.Error("order failed", zap.String("state", string(state)), zap.Error(err))
		return nil, err
	}
	if !ok {
		log.Debug("inventory lease busy")
		return nil, domain.ErrBusy
	}
	defer func() {
		// The caller's context may already be done; the lease must still go.
		if _, err := s.locker.Release(context.Background(), lease); err != nil {
			log.Warn("lease release failed", zap.String("key", lease.Key), zap.Error(err))
		}
	}()

	var order domain.Order
	err = s.uow.Do(ctx, func(tx port.TxRepository) error {
		state = StateValidatingStock
		stock, err := tx.GetStockForUpdate(ctx, req.VariantID)
		if err != nil {
			return err
		}
		if stock.Quantity < req.Quantity {
			return domain.ErrInsufficientStock
		}

		state = StateDecrementing
		if err := tx.DecrementStock(ctx, req.VariantID, req.Quantity); err != nil {
			return err
		}

		state = StatePersistingOrder
		exists, err := tx.UserExists(ctx, req.UserID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("user %d: %w", req.UserID, domain.ErrNotFound)
		}

		id, err := s.ids.NextID()
		if err != nil {
			return fmt.Errorf("allocate order id: %w", err)
		}
		order = domain.Order{
			ID:        id,
			UserID:    req.UserID,
			Address:   req.Address,
			Items:     []domain.OrderItem{{VariantID: req.VariantID, Quantity: req.Quantity}},
			CreatedAt: time.Now(),
		}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		fields := []zap.Field{zap.String("state", string(state)), zap.Error(err)}
		if isExpectedOrderError(err) {
			log.Info("order rejected", fields...)
		} else {
			log.Error("order failed", fields...)
		}
		return nil, err
	}

	// The order is committed; a caller that went away must not skip the
	// refreshes.
	postCtx := context.WithoutCancel(ctx)

	state = StateCacheInvalidating
	if err := s.invalidateWithRetry(postCtx, req.VariantID); err != nil {
		log.Warn("post-commit step failed",
			zap.String("state", string(state)),
			zap.Int("attempts", invalidateAttempts),
			zap.Error(fmt.Errorf("%w: %w", domain.ErrSyncFailure, err)),
		)
	}

	state = StateIndexSyncing
	if err := s.sync.RequestSync(postCtx, req.VariantID); err != nil {
		log.Warn("post-commit step failed", zap.String("state", string(state)), zap.Error(err))
	}

	log.Info("order created", zap.Uint64("order_id", order.ID), zap.String("state", string(StateDone)))
	return &order, nil
}

func (s *OrderService) invalidateWithRetry(ctx context.Context, variantID uint64) error {
	var err error
	for attempt := 1; attempt <= invalidateAttempts; attempt++ {
		if err = s.cache.Invalidate(ctx, variantID); err == nil {
			return nil
		}
		if attempt < invalidateAttempts {
			time.Sleep(s.invalidateBackoff * time.Duration(attempt))
		}
	}
	return err
}

func isExpectedOrderError(err error) bool {
	return errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrNotFound)
}
