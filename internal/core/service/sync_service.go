package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

const DefaultBulkSize = 500

// DocumentID is the index identifier of a variant.
func DocumentID(variantID uint64) string {
	return strconv.FormatUint(variantID, 10)
}

// VariantToDocument projects a variant detail into its search document.
func VariantToDocument(detail domain.VariantDetail, tagger Tagger) domain.SearchDocument {
	return domain.SearchDocument{
		ID:            DocumentID(detail.Variant.ID),
		VariantID:     detail.Variant.ID,
		ProductID:     detail.Product.ID,
		ProductName:   detail.Product.Name,
		ProductDesc:   detail.Product.Description,
		SizeLabel:     detail.Variant.SizeLabel,
		Price:         detail.Variant.Price.InexactFloat64(),
		StockQuantity: detail.Stock.Quantity,
		Tags:          tagger.Tags(detail),
	}
}

// SyncService copies catalog state from the system of record into the
// search index. It never writes to the system of record.
type SyncService struct {
	repo     port.CatalogRepository
	index    port.SearchIndex
	tagger   Tagger
	bulkSize int
	log      *zap.Logger
}

func NewSyncService(repo port.CatalogRepository, index port.SearchIndex, tagger Tagger, bulkSize int, log *zap.Logger) *SyncService {
	if bulkSize <= 0 {
		bulkSize = DefaultBulkSize
	}
	return &SyncService{
		repo:     repo,
		index:    index,
		tagger:   tagger,
		bulkSize: bulkSize,
		log:      log.Named("sync"),
	}
}

// SyncAll upserts every active variant. Running it twice on unchanged data
// leaves the index unchanged.
func (s *SyncService) SyncAll(ctx context.Context) (int, error) {
	start := time.Now()

	details, err := s.repo.ListActiveVariantDetails(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active variants: %w", err)
	}

	synced := 0
	for lo := 0; lo < len(details); lo += s.bulkSize {
		hi := min(lo+s.bulkSize, len(details))

		docs := make([]domain.SearchDocument, 0, hi-lo)
		for _, d := range details[lo:hi] {
			docs = append(docs, VariantToDocument(d, s.tagger))
		}
		if err := s.index.BulkUpsert(ctx, docs); err != nil {
			return synced, fmt.Errorf("%w: bulk upsert at offset %d: %w", domain.ErrSyncFailure, lo, err)
		}
		synced += len(docs)
	}

	s.log.Info("batch sync complete",
		zap.Int("documents", synced),
		zap.Duration("elapsed", time.Since(start)),
	)
	return synced, nil
}

// SyncVariant refreshes one document. Inactive or missing variants are
// removed from the index.
func (s *SyncService) SyncVariant(ctx context.Context, variantID uint64) error {
	detail, err := s.repo.GetActiveVariantDetail(ctx, variantID)
	if errors.Is(err, domain.ErrNotFound) {
		if err := s.index.Delete(ctx, DocumentID(variantID)); err != nil {
			return fmt.Errorf("%w: delete %d: %w", domain.ErrSyncFailure, variantID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load variant %d: %w", variantID, err)
	}

	if err := s.index.Upsert(ctx, VariantToDocument(*detail, s.tagger)); err != nil {
		return fmt.Errorf("%w: upsert %d: %w", domain.ErrSyncFailure, variantID, err)
	}
	return nil
}
