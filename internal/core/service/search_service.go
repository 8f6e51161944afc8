package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

const (
	DefaultPageSize           = 20
	DefaultMaxPageSize        = 100
	DefaultHydrateConcurrency = 8

	// MaxResultWindow is the deepest hit the index pages to (from + size).
	MaxResultWindow = 10000
)

type SearchQuery struct {
	Text string
	Tags []string
	// MinTagMatch of zero or less requires every supplied tag.
	MinTagMatch int
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	Page        int
	Size        int
}

// SearchResult carries hydrated items in rank order. Total is the index's
// recall count and can exceed what hydration kept.
type SearchResult struct {
	Items              []domain.VariantDetail `json:"items"`
	Total              int64                  `json:"total"`
	TotalIsApproximate bool                   `json:"total_is_approximate"`
	Page               int                    `json:"page"`
	Size               int                    `json:"size"`
}

// Ranker orders hydrated results. Implementations must not drop items.
type Ranker interface {
	Rank(q SearchQuery, items []domain.VariantDetail) []domain.VariantDetail
}

// RecallOrder keeps the index's order.
type RecallOrder struct{}

func (RecallOrder) Rank(_ SearchQuery, items []domain.VariantDetail) []domain.VariantDetail {
	return items
}

type variantReader interface {
	Get(ctx context.Context, variantID uint64) (*domain.VariantDetail, error)
}

type SearchConfig struct {
	DefaultPageSize    int
	MaxPageSize        int
	HydrateConcurrency int
}

type SearchService struct {
	index   port.SearchIndex
	details variantReader
	ranker  Ranker
	cfg     SearchConfig
	log     *zap.Logger
}

func NewSearchService(index port.SearchIndex, details variantReader, ranker Ranker, cfg SearchConfig, log *zap.Logger) *SearchService {
	if ranker == nil {
		ranker = RecallOrder{}
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}
	if cfg.HydrateConcurrency <= 0 {
		cfg.HydrateConcurrency = DefaultHydrateConcurrency
	}
	return &SearchService{
		index:   index,
		details: details,
		ranker:  ranker,
		cfg:     cfg,
		log:     log.Named("search"),
	}
}

// Search recalls candidate ids from the index, then reads each through the
// cache so price and stock come from the system of record. Candidates that
// are gone, inactive or fail to load are dropped.
func (s *SearchService) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	q, err := s.normalize(q)
	if err != nil {
		return nil, err
	}

	recall, err := s.index.Search(ctx, s.recallQuery(q))
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}

	items, err := s.hydrate(ctx, recall.IDs)
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Items:              s.ranker.Rank(q, items),
		Total:              recall.Total,
		TotalIsApproximate: true,
		Page:               q.Page,
		Size:               q.Size,
	}, nil
}

func (s *SearchService) normalize(q SearchQuery) (SearchQuery, error) {
	if q.Page < 0 {
		return q, fmt.Errorf("%w: page must not be negative", domain.ErrInvalidInput)
	}
	if q.Size < 0 {
		return q, fmt.Errorf("%w: size must not be negative", domain.ErrInvalidInput)
	}
	if q.Size == 0 {
		q.Size = s.cfg.DefaultPageSize
	}
	q.Size = min(q.Size, s.cfg.MaxPageSize, MaxResultWindow)
	if q.Page >= MaxResultWindow/q.Size {
		return q, fmt.Errorf("%w: page %d is past the last %d results", domain.ErrInvalidInput, q.Page, MaxResultWindow)
	}

	if q.MinPrice != nil && q.MinPrice.IsNegative() {
		return q, fmt.Errorf("%w: min price must not be negative", domain.ErrInvalidInput)
	}
	if q.MinPrice != nil && q.MaxPrice != nil && q.MaxPrice.LessThan(*q.MinPrice) {
		return q, fmt.Errorf("%w: max price below min price", domain.ErrInvalidInput)
	}

	if len(q.Tags) > 0 && (q.MinTagMatch <= 0 || q.MinTagMatch > len(q.Tags)) {
		q.MinTagMatch = len(q.Tags)
	}
	return q, nil
}

func (s *SearchService) recallQuery(q SearchQuery) port.RecallQuery {
	rq := port.RecallQuery{
		Text:        q.Text,
		Tags:        q.Tags,
		MinTagMatch: q.MinTagMatch,
		From:        q.Page * q.Size,
		Size:        q.Size,
	}
	if q.MinPrice != nil {
		rq.MinPrice = q.MinPrice.InexactFloat64()
	}
	if q.MaxPrice != nil {
		v := q.MaxPrice.InexactFloat64()
		rq.MaxPrice = &v
	}
	return rq
}

func (s *SearchService) hydrate(ctx context.Context, ids []string) ([]domain.VariantDetail, error) {
	slots := make([]*domain.VariantDetail, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.HydrateConcurrency)
	for i, raw := range ids {
		g.Go(func() error {
			variantID, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				s.log.Warn("dropping candidate with malformed id", zap.String("id", raw))
				return nil
			}

			detail, err := s.details.Get(gctx, variantID)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				return nil
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("dropping candidate after load failure", zap.Uint64("variant_id", variantID), zap.Error(err))
				return nil
			case !detail.Variant.Active:
				return nil
			}
			slots[i] = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hydrate: %w", err)
	}

	items := make([]domain.VariantDetail, 0, len(ids))
	for _, d := range slots {
		if d != nil {
			items = append(items, *d)
		}
	}
	return items, nil
}
