package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

var _ port.SearchIndex = (*ElasticsearchAdapter)(nil)

const indexMapping = `{
  "mappings": {
    "properties": {
      "variantId":     {"type": "long"},
      "productId":     {"type": "long"},
      "productName":   {"type": "text"},
      "productDesc":   {"type": "text"},
      "sizeLabel":     {"type": "keyword"},
      "price":         {"type": "double"},
      "stockQuantity": {"type": "integer"},
      "tags":          {"type": "keyword"}
    }
  }
}`

// minTagMatchScript caps the required overlap at the number of supplied tags.
const minTagMatchScript = "Math.min(params.num_terms, params.min_match)"

type ElasticsearchAdapter struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchAdapter(client *elasticsearch.Client, index string) *ElasticsearchAdapter {
	return &ElasticsearchAdapter{client: client, index: index}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (e *ElasticsearchAdapter) EnsureIndex(ctx context.Context) (bool, error) {
	res, err := esapi.IndicesExistsRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return false, nil
	}
	if res.StatusCode != http.StatusNotFound {
		return false, fmt.Errorf("check index: %s", res.Status())
	}

	res, err = esapi.IndicesCreateRequest{
		Index: e.index,
		Body:  strings.NewReader(indexMapping),
	}.Do(ctx, e.client)
	if err != nil {
		return false, fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return false, fmt.Errorf("create index: %s", res.String())
	}
	return true, nil
}

func (e *ElasticsearchAdapter) Ping(ctx context.Context) error {
	res, err := esapi.PingRequest{}.Do(ctx, e.client)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping: %s", res.Status())
	}
	return nil
}

func (e *ElasticsearchAdapter) Upsert(ctx context.Context, doc domain.SearchDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}

	res, err := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index document %s: %s", doc.ID, res.String())
	}
	return nil
}

func (e *ElasticsearchAdapter) Delete(ctx context.Context, id string) error {
	res, err := esapi.DeleteRequest{Index: e.index, DocumentID: id}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("delete document %s: %s", id, res.String())
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string          `json:"_id"`
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error"`
	} `json:"items"`
}

func (e *ElasticsearchAdapter) BulkUpsert(ctx context.Context, docs []domain.SearchDocument) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]map[string]string{"index": {"_id": doc.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("encode bulk meta %s: %w", doc.ID, err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode bulk document %s: %w", doc.ID, err)
		}
	}

	res, err := esapi.BulkRequest{Index: e.index, Body: &buf}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk: %s", res.String())
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !br.Errors {
		return nil
	}

	var failed []string
	for _, item := range br.Items {
		for _, r := range item {
			if r.Status > 299 {
				failed = append(failed, r.ID)
			}
		}
	}
	return fmt.Errorf("bulk: %d of %d documents failed: %s", len(failed), len(docs), strings.Join(failed, ","))
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticsearchAdapter) Search(ctx context.Context, q port.RecallQuery) (*port.RecallResult, error) {
	body, err := json.Marshal(buildRecallQuery(q))
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &port.RecallResult{Total: sr.Hits.Total.Value, IDs: make([]string, 0, len(sr.Hits.Hits))}
	for _, h := range sr.Hits.Hits {
		out.IDs = append(out.IDs, h.ID)
	}
	return out, nil
}

func buildRecallQuery(q port.RecallQuery) map[string]any {
	var must any = map[string]any{"match_all": map[string]any{}}
	if strings.TrimSpace(q.Text) != "" {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": []string{"productName", "productDesc"},
			},
		}
	}

	priceRange := map[string]any{"gte": q.MinPrice}
	if q.MaxPrice != nil {
		priceRange["lte"] = *q.MaxPrice
	}
	filter := []any{
		map[string]any{"range": map[string]any{"price": priceRange}},
	}

	if len(q.Tags) > 0 {
		filter = append(filter, map[string]any{
			"terms_set": map[string]any{
				"tags": map[string]any{
					"terms": q.Tags,
					"minimum_should_match_script": map[string]any{
						"source": minTagMatchScript,
						"params": map[string]any{"min_match": q.MinTagMatch},
					},
				},
			},
		})
	}

	return map[string]any{
		"from":             q.From,
		"size":             q.Size,
		"track_total_hits": true,
		"_source":          false,
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []any{must},
				"filter": filter,
			},
		},
	}
}
