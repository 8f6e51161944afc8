package port

import (
	"context"

	"github.com/rl1809/catalog-service/internal/core/domain"
)

// RecallQuery is the compound query issued against the search index.
type RecallQuery struct {
	Text        string
	Tags        []string
	MinTagMatch int
	MinPrice    float64
	// MaxPrice of nil leaves the upper bound open.
	MaxPrice *float64
	From     int
	Size     int
}

type RecallResult struct {
	Total int64
	IDs   []string
}

type SearchIndex interface {
	Upsert(ctx context.Context, doc domain.SearchDocument) error
	// Delete succeeds when the document is already absent.
	Delete(ctx context.Context, id string) error
	BulkUpsert(ctx context.Context, docs []domain.SearchDocument) error
	Search(ctx context.Context, q RecallQuery) (*RecallResult, error)
}
