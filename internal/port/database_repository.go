package port

import (
	"context"

	"github.com/rl1809/catalog-service/internal/core/domain"
)

// CatalogRepository is the read side of the system of record.
type CatalogRepository interface {
	// GetVariantDetail returns the variant joined with product and stock,
	// active or not. Missing variants return domain.ErrNotFound.
	GetVariantDetail(ctx context.Context, variantID uint64) (*domain.VariantDetail, error)

	// GetActiveVariantDetail is GetVariantDetail restricted to active variants.
	GetActiveVariantDetail(ctx context.Context, variantID uint64) (*domain.VariantDetail, error)

	// ListActiveVariantDetails returns every active variant with its stock.
	ListActiveVariantDetails(ctx context.Context) ([]domain.VariantDetail, error)
}

// UserRepository reads the user aggregate in one joined query.
type UserRepository interface {
	GetUserDetail(ctx context.Context, userID uint64) (*domain.UserDetail, error)
}

// TxRepository exposes the writes allowed inside a unit of work.
type TxRepository interface {
	// GetStockForUpdate reads and row-locks the stock record.
	GetStockForUpdate(ctx context.Context, variantID uint64) (*domain.Stock, error)

	// DecrementStock subtracts quantity, failing with
	// domain.ErrInsufficientStock rather than going negative.
	DecrementStock(ctx context.Context, variantID uint64, quantity int) error

	UserExists(ctx context.Context, userID uint64) (bool, error)

	// InsertOrder persists the order header and its items.
	InsertOrder(ctx context.Context, order domain.Order) error

	UpsertUserProfile(ctx context.Context, userID uint64, profile domain.UserProfile) error
	UpsertDietPreference(ctx context.Context, userID uint64, diet domain.DietPreference) error
	UpsertHealthGoal(ctx context.Context, userID uint64, goal domain.HealthGoal) error
}

// UnitOfWork runs fn in one transaction: commit if fn returns nil,
// roll back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx TxRepository) error) error
}
