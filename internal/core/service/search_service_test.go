package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

type searchFixture struct {
	svc   *SearchService
	db    *fakeDB
	index *fakeIndex
}

func newSearchFixture(t *testing.T, ranker Ranker) *searchFixture {
	t.Helper()
	_, rds := newTestRedis(t)
	db := newFakeDB()
	index := newFakeIndex()
	catalog := NewCatalogCache(db, rds, "variantDetails", 0, zap.NewNop())
	svc := NewSearchService(index, catalog, ranker, SearchConfig{MaxPageSize: 50, HydrateConcurrency: 4}, zap.NewNop())
	return &searchFixture{svc: svc, db: db, index: index}
}

func TestSearch_HydratesLiveStock(t *testing.T) {
	f := newSearchFixture(t, nil)
	f.db.addVariant(variantFixture(1, "Chicken Breast", "12.50", 165, 0, true))
	f.index.docs["1"] = domain.SearchDocument{ID: "1", StockQuantity: 7}
	f.index.recall = &port.RecallResult{Total: 1, IDs: []string{"1"}}

	res, err := f.svc.Search(context.Background(), SearchQuery{Text: "chicken"})
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, 0, res.Items[0].Stock.Quantity, "stock must come from the system of record")
	assert.True(t, res.Items[0].Variant.Price.Equal(decimal.RequireFromString("12.50")))
}

func TestSearch_DropsStaleCandidatesAndKeepsOrder(t *testing.T) {
	f := newSearchFixture(t, nil)
	f.db.addVariant(variantFixture(3, "C", "1.00", 300, 1, true))
	f.db.addVariant(variantFixture(1, "A", "1.00", 300, 1, true))
	f.db.addVariant(variantFixture(2, "Retired", "1.00", 300, 1, false))
	f.index.recall = &port.RecallResult{Total: 6, IDs: []string{"3", "2", "99", "bogus", "1"}}

	res, err := f.svc.Search(context.Background(), SearchQuery{Text: "x"})
	require.NoError(t, err)

	ids := make([]uint64, 0, len(res.Items))
	for _, it := range res.Items {
		ids = append(ids, it.Variant.ID)
	}
	assert.Equal(t, []uint64{3, 1}, ids)
	assert.Equal(t, int64(6), res.Total)
	assert.True(t, res.TotalIsApproximate)
}

func TestSearch_LoadErrorsDropCandidates(t *testing.T) {
	f := newSearchFixture(t, nil)
	f.db.addVariant(variantFixture(1, "A", "1.00", 300, 1, true))
	f.db.detailErr = errors.New("too many connections")
	f.index.recall = &port.RecallResult{Total: 1, IDs: []string{"1"}}

	res, err := f.svc.Search(context.Background(), SearchQuery{Text: "a"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestSearch_HydrationUsesCache(t *testing.T) {
	f := newSearchFixture(t, nil)
	f.db.addVariant(variantFixture(1, "A", "1.00", 300, 1, true))
	f.index.recall = &port.RecallResult{Total: 1, IDs: []string{"1"}}

	for i := 0; i < 3; i++ {
		_, err := f.svc.Search(context.Background(), SearchQuery{Text: "a"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.db.hits(1))
}

func TestSearch_BuildsRecallQuery(t *testing.T) {
	minPrice := decimal.RequireFromString("5.5")
	maxPrice := decimal.NewFromInt(30)

	tests := []struct {
		name  string
		query SearchQuery
		want  port.RecallQuery
	}{
		{
			name:  "defaults",
			query: SearchQuery{Text: "rice"},
			want:  port.RecallQuery{Text: "rice", From: 0, Size: DefaultPageSize},
		},
		{
			name:  "pagination and size cap",
			query: SearchQuery{Text: "rice", Page: 3, Size: 500},
			want:  port.RecallQuery{Text: "rice", From: 150, Size: 50},
		},
		{
			name:  "last page inside result window",
			query: SearchQuery{Text: "rice", Page: 199, Size: 50},
			want:  port.RecallQuery{Text: "rice", From: 9950, Size: 50},
		},
		{
			name:  "zero min tag match requires all tags",
			query: SearchQuery{Text: "x", Tags: []string{"a", "b", "c"}},
			want:  port.RecallQuery{Text: "x", Tags: []string{"a", "b", "c"}, MinTagMatch: 3, Size: DefaultPageSize},
		},
		{
			name:  "min tag match clamped to tag count",
			query: SearchQuery{Text: "x", Tags: []string{"a", "b"}, MinTagMatch: 5},
			want:  port.RecallQuery{Text: "x", Tags: []string{"a", "b"}, MinTagMatch: 2, Size: DefaultPageSize},
		},
		{
			name:  "partial tag match",
			query: SearchQuery{Text: "x", Tags: []string{"a", "b", "c"}, MinTagMatch: 1},
			want:  port.RecallQuery{Text: "x", Tags: []string{"a", "b", "c"}, MinTagMatch: 1, Size: DefaultPageSize},
		},
		{
			name:  "price bounds",
			query: SearchQuery{Text: "x", MinPrice: &minPrice, MaxPrice: &maxPrice},
			want:  port.RecallQuery{Text: "x", MinPrice: 5.5, MaxPrice: ptr(30.0), Size: DefaultPageSize},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSearchFixture(t, nil)
			f.index.recall = &port.RecallResult{}

			_, err := f.svc.Search(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.index.lastQuery)
		})
	}
}

func TestSearch_InvalidQueries(t *testing.T) {
	low := decimal.NewFromInt(10)
	high := decimal.NewFromInt(5)
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name  string
		query SearchQuery
	}{
		{"negative page", SearchQuery{Page: -1}},
		{"negative size", SearchQuery{Size: -5}},
		{"negative min price", SearchQuery{MinPrice: &negative}},
		{"inverted price range", SearchQuery{MinPrice: &low, MaxPrice: &high}},
		{"page past result window", SearchQuery{Page: 200, Size: 50}},
		{"page that would overflow offset", SearchQuery{Page: math.MaxInt / 2, Size: 50}},
	}

	f := newSearchFixture(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Search(context.Background(), tt.query)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSearch_RecallFailure(t *testing.T) {
	f := newSearchFixture(t, nil)
	f.index.recallErr = errors.New("cluster red")

	_, err := f.svc.Search(context.Background(), SearchQuery{Text: "x"})
	assert.ErrorIs(t, err, f.index.recallErr)
}

type reverseRanker struct{}

func (reverseRanker) Rank(_ SearchQuery, items []domain.VariantDetail) []domain.VariantDetail {
	out := make([]domain.VariantDetail, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return out
}

func TestSearch_CustomRanker(t *testing.T) {
	f := newSearchFixture(t, reverseRanker{})
	f.db.addVariant(variantFixture(1, "A", "1.00", 300, 1, true))
	f.db.addVariant(variantFixture(2, "B", "1.00", 300, 1, true))
	f.index.recall = &port.RecallResult{Total: 2, IDs: []string{"1", "2"}}

	res, err := f.svc.Search(context.Background(), SearchQuery{Text: "x"})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, uint64(2), res.Items[0].Variant.ID)
}
