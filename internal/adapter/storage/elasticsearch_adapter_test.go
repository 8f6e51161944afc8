package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type fakeES struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request, body string)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	f.handler(w, r, string(body))
}

func (f *fakeES) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestES(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body string)) (*ElasticsearchAdapter, *fakeES) {
	t.Helper()
	fake := &fakeES{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewElasticsearchAdapter(client, "variants"), fake
}

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	adapter, fake := newTestES(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"acknowledged":true}`)
	})

	created, err := adapter.EnsureIndex(context.Background())
	require.NoError(t, err)
	assert.True(t, created)

	req := fake.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/variants", req.Path)
	assert.Contains(t, req.Body, `"tags":          {"type": "keyword"}`)
}

func TestEnsureIndex_ExistingIndexLeftAlone(t *testing.T) {
	adapter, fake := newTestES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(http.StatusOK)
	})

	created, err := adapter.EnsureIndex(context.Background())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, fake.requests, 1)
}

func TestUpsert_IndexesByDocumentID(t *testing.T) {
	adapter, fake := newTestES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		io.WriteString(w, `{"result":"created"}`)
	})

	err := adapter.Upsert(context.Background(), domain.SearchDocument{
		ID: "42", VariantID: 42, ProductName: "Chicken Breast", Price: 12.5, Tags: []string{"high-protein"},
	})
	require.NoError(t, err)

	req := fake.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/variants/_doc/42", req.Path)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &doc))
	assert.Equal(t, "Chicken Breast", doc["productName"])
	assert.NotContains(t, doc, "ID")
}

func TestUpsert_ServerErrorSurfaces(t *testing.T) {
	adapter, _ := newTestES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"mapper_parsing_exception"}`)
	})

	err := adapter.Upsert(context.Background(), domain.SearchDocument{ID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestDelete_MissingDocumentIsSuccess(t *testing.T) {
	adapter, fake := newTestES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"result":"not_found"}`)
	})

	require.NoError(t, adapter.Delete(context.Background(), "7"))
	assert.Equal(t, http.MethodDelete, fake.last().Method)
	assert.Equal(t, "/variants/_doc/7", fake.last().Path)
}

func TestBulkUpsert_WritesNDJSON(t *testing.T) {
	adapter, fake := newTestES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		io.WriteString(w, `{"errors":false,"items":[]}`)
	})

	docs := []domain.SearchDocument{
		{ID: "1", VariantID: 1, ProductName: "A"},
		{ID: "2", VariantID: 2, ProductName: "B"},
	}
	require.NoError(t, adapter.BulkUpsert(context.Background(), docs))

	req := fake.last()
	assert.Equal(t, "/variants/_bulk", req.Path)

	var lines []string
	sc := bufio.NewScanner(strings.NewReader(req.Body))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_id":"1"}}`, lines[0])
	assert.JSONEq(t, `{"index":{"_id":"2"}}`, lines[2])
	assert.Contains(t, lines[3], `"productName":"B"`)
}

func TestBulkUpsert_ReportsFailedItems(t *testing.T) {
	adapter, _ := newTestES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		io.WriteString(w, `{"errors":true,"items":[
			{"index":{"_id":"1","status":201}},
			{"index":{"_id":"2","status":400,"error":{"type":"mapper_parsing_exception"}}}
		]}`)
	})

	err := adapter.BulkUpsert(context.Background(), []domain.SearchDocument{{ID: "1"}, {ID: "2"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, err.Error(), "2")
}

func TestBulkUpsert_EmptyIsNoop(t *testing.T) {
	adapter, fake := newTestES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {})
	require.NoError(t, adapter.BulkUpsert(context.Background(), nil))
	assert.Empty(t, fake.requests)
}

func TestSearch_ParsesRecall(t *testing.T) {
	adapter, fake := newTestES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		io.WriteString(w, `{"hits":{"total":{"value":57,"relation":"eq"},"hits":[{"_id":"9"},{"_id":"3"}]}}`)
	})

	maxPrice := 30.0
	res, err := adapter.Search(context.Background(), port.RecallQuery{
		Text: "chicken", Tags: []string{"high-protein", "low-fat"}, MinTagMatch: 1,
		MinPrice: 5, MaxPrice: &maxPrice, From: 20, Size: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(57), res.Total)
	assert.Equal(t, []string{"9", "3"}, res.IDs)
	assert.Equal(t, "/variants/_search", fake.last().Path)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.last().Body), &body))
	assert.EqualValues(t, 20, body["from"])
	assert.EqualValues(t, 10, body["size"])
}

func TestBuildRecallQuery(t *testing.T) {
	tests := []struct {
		name  string
		query port.RecallQuery
		check func(t *testing.T, q map[string]any)
	}{
		{
			name:  "full text over name and description",
			query: port.RecallQuery{Text: "brown rice", Size: 20},
			check: func(t *testing.T, q map[string]any) {
				must := boolClause(q, "must")
				mm := must[0].(map[string]any)["multi_match"].(map[string]any)
				assert.Equal(t, "brown rice", mm["query"])
				assert.Equal(t, []string{"productName", "productDesc"}, mm["fields"])
			},
		},
		{
			name:  "blank text matches all",
			query: port.RecallQuery{Text: "  ", Size: 20},
			check: func(t *testing.T, q map[string]any) {
				must := boolClause(q, "must")
				assert.Contains(t, must[0], "match_all")
			},
		},
		{
			name:  "open upper price bound",
			query: port.RecallQuery{Text: "x", Size: 20},
			check: func(t *testing.T, q map[string]any) {
				filter := boolClause(q, "filter")
				require.Len(t, filter, 1)
				price := filter[0].(map[string]any)["range"].(map[string]any)["price"].(map[string]any)
				assert.Equal(t, 0.0, price["gte"])
				assert.NotContains(t, price, "lte")
			},
		},
		{
			name:  "tags use terms_set with capped minimum",
			query: port.RecallQuery{Text: "x", Tags: []string{"a", "b", "c"}, MinTagMatch: 2, Size: 20},
			check: func(t *testing.T, q map[string]any) {
				filter := boolClause(q, "filter")
				require.Len(t, filter, 2)
				ts := filter[1].(map[string]any)["terms_set"].(map[string]any)["tags"].(map[string]any)
				assert.Equal(t, []string{"a", "b", "c"}, ts["terms"])
				script := ts["minimum_should_match_script"].(map[string]any)
				assert.Equal(t, minTagMatchScript, script["source"])
				assert.Equal(t, 2, script["params"].(map[string]any)["min_match"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, buildRecallQuery(tt.query))
		})
	}
}

func boolClause(q map[string]any, name string) []any {
	return q["query"].(map[string]any)["bool"].(map[string]any)[name].([]any)
}
