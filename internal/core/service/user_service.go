package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/catalog-service/internal/core/cache"
	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

// UserUpdate replaces the sub-records that are set and leaves the rest alone.
type UserUpdate struct {
	Profile *domain.UserProfile    `json:"profile,omitempty"`
	Diet    *domain.DietPreference `json:"diet,omitempty"`
	Goal    *domain.HealthGoal     `json:"goal,omitempty"`
}

func (u UserUpdate) empty() bool {
	return u.Profile == nil && u.Diet == nil && u.Goal == nil
}

type UserService struct {
	repo  port.UserRepository
	uow   port.UnitOfWork
	cache *cache.ReadThrough[*domain.UserDetail]
	log   *zap.Logger
}

func NewUserService(repo port.UserRepository, uow port.UnitOfWork, store port.CacheStore, namespace string, ttl time.Duration, log *zap.Logger) *UserService {
	return &UserService{
		repo:  repo,
		uow:   uow,
		cache: cache.New[*domain.UserDetail](store, namespace, ttl, log),
		log:   log.Named("user"),
	}
}

func (s *UserService) GetUserDetails(ctx context.Context, userID uint64) (*domain.UserDetail, error) {
	return s.cache.Get(ctx, userID, func(ctx context.Context) (*domain.UserDetail, error) {
		return s.repo.GetUserDetail(ctx, userID)
	})
}

// UpdateUserDetails writes the supplied sub-records in one transaction,
// drops the cached aggregate and returns the fresh one.
func (s *UserService) UpdateUserDetails(ctx context.Context, userID uint64, update UserUpdate) (*domain.UserDetail, error) {
	if update.empty() {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}

	err := s.uow.Do(ctx, func(tx port.TxRepository) error {
		exists, err := tx.UserExists(ctx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
		}

		if update.Profile != nil {
			if err := tx.UpsertUserProfile(ctx, userID, *update.Profile); err != nil {
				return err
			}
		}
		if update.Diet != nil {
			if err := tx.UpsertDietPreference(ctx, userID, *update.Diet); err != nil {
				return err
			}
		}
		if update.Goal != nil {
			if err := tx.UpsertHealthGoal(ctx, userID, *update.Goal); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("user cache invalidation failed",
			zap.Uint64("user_id", userID),
			zap.Error(fmt.Errorf("%w: %w", domain.ErrSyncFailure, err)),
		)
	}
	return s.repo.GetUserDetail(ctx, userID)
}
