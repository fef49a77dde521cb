package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/catalog-sync/internal/catalog"
)

type fakeTransport struct {
	requests []*http.Request
	bodies   []string
	respond  func(req *http.Request) (int, string)
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	var body string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}
	f.bodies = append(f.bodies, body)

	status, payload := f.respond(req)
	header := http.Header{}
	header.Set("X-Elastic-Product", "Elasticsearch")
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(payload)),
		Request:    req,
	}, nil
}

func newTestIndexer(t *testing.T, ft *fakeTransport, cfg Config) *Indexer {
	t.Helper()
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://elastic.test:9200"},
		Transport: ft,
	})
	require.NoError(t, err)
	cfg.Index = "products"
	return NewIndexerWithClient(es, cfg)
}

func TestIndexPartialFailureIsolation(t *testing.T) {
	// 5 documents, document 3 malformed: 4 succeed, 1 failed item, no error.
	ft := &fakeTransport{respond: func(req *http.Request) (int, string) {
		return 200, `{
			"errors": true,
			"items": [
				{"index": {"_id": "A1", "status": 201}},
				{"index": {"_id": "A2", "status": 200}},
				{"index": {"_id": "A3", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "failed to parse field [price]"}}},
				{"index": {"_id": "A4", "status": 201}},
				{"index": {"_id": "A5", "status": 201}}
			]
		}`
	}}
	idx := newTestIndexer(t, ft, Config{})

	records := []catalog.Record{
		{"sku": "A1"}, {"sku": "A2"}, {"sku": "A3", "price": "not a number"},
		{"sku": "A4"}, {"sku": "A5"},
	}
	success, failed, err := idx.Index(context.Background(), catalog.KindProduct, records)
	require.NoError(t, err)
	assert.Equal(t, 4, success)
	require.Len(t, failed, 1)
	assert.Equal(t, "A3", failed[0].Key)
	assert.Equal(t, 400, failed[0].Status)
	assert.Contains(t, failed[0].Reason, "failed to parse")
}

func TestIndexUsesIdentityKeyAsDocumentID(t *testing.T) {
	ft := &fakeTransport{respond: func(req *http.Request) (int, string) {
		return 200, `{"errors": false, "items": [{"index": {"_id": "A1", "status": 201}}]}`
	}}
	idx := newTestIndexer(t, ft, Config{})

	_, _, err := idx.Index(context.Background(), catalog.KindProduct, []catalog.Record{{"sku": "A1"}})
	require.NoError(t, err)

	require.Len(t, ft.bodies, 1)
	assert.Contains(t, ft.bodies[0], `"_id":"A1"`)
}

func TestIndexFlattensNestedValues(t *testing.T) {
	ft := &fakeTransport{respond: func(req *http.Request) (int, string) {
		return 200, `{"errors": false, "items": [{"index": {"_id": "A1", "status": 201}}]}`
	}}
	idx := newTestIndexer(t, ft, Config{})

	_, _, err := idx.Index(context.Background(), catalog.KindProduct, []catalog.Record{{
		"sku":        "A1",
		"attributes": map[string]any{"Power": "20W"},
		"images":     []any{"a.jpg"},
	}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(ft.bodies[0]), "\n")
	require.Len(t, lines, 2)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.JSONEq(t, `{"Power":"20W"}`, doc["attributes"].(string))
	assert.JSONEq(t, `["a.jpg"]`, doc["images"].(string))
}

func TestIndexEmptyBatchIsNoop(t *testing.T) {
	ft := &fakeTransport{respond: func(req *http.Request) (int, string) {
		t.Fatal("no request expected")
		return 500, ""
	}}
	idx := newTestIndexer(t, ft, Config{})

	success, failed, err := idx.Index(context.Background(), catalog.KindProduct, nil)
	require.NoError(t, err)
	assert.Zero(t, success)
	assert.Empty(t, failed)
}

func TestEnsureIndexCreatesWhenMissing(t *testing.T) {
	ft := &fakeTransport{respond: func(req *http.Request) (int, string) {
		if req.Method == http.MethodHead {
			return 404, ""
		}
		return 200, `{"acknowledged": true}`
	}}
	idx := newTestIndexer(t, ft, Config{Fields: []Field{{Name: "sku", Type: "keyword"}}})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	require.Len(t, ft.requests, 2)
	assert.Equal(t, http.MethodPut, ft.requests[1].Method)
	assert.Contains(t, ft.bodies[1], `"sku":{"type":"keyword"}`)
}

func TestEnsureIndexSkipsWhenPresent(t *testing.T) {
	ft := &fakeTransport{respond: func(req *http.Request) (int, string) {
		return 200, ""
	}}
	idx := newTestIndexer(t, ft, Config{})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Len(t, ft.requests, 1)
}

func TestEnsureIndexRecreates(t *testing.T) {
	ft := &fakeTransport{respond: func(req *http.Request) (int, string) {
		return 200, `{"acknowledged": true}`
	}}
	idx := newTestIndexer(t, ft, Config{Recreate: true, Fields: ProductFields})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	// exists, delete, create
	require.Len(t, ft.requests, 3)
	assert.Equal(t, http.MethodDelete, ft.requests[1].Method)
	assert.Equal(t, http.MethodPut, ft.requests[2].Method)
}

func TestDeleteByKeyIgnoresMissing(t *testing.T) {
	ft := &fakeTransport{respond: func(req *http.Request) (int, string) {
		return 404, `{"result": "not_found"}`
	}}
	idx := newTestIndexer(t, ft, Config{})

	assert.NoError(t, idx.DeleteByKey(context.Background(), "GONE"))
}

func TestSQLQueryParsesRows(t *testing.T) {
	ft := &fakeTransport{respond: func(req *http.Request) (int, string) {
		return 200, `{
			"columns": [{"name": "name", "type": "text"}, {"name": "price", "type": "float"}],
			"rows": [["Solar lamp", 150000], ["Pan", null]]
		}`
	}}
	idx := newTestIndexer(t, ft, Config{})

	res, err := idx.SQLQuery(context.Background(), "SELECT name, price FROM products")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "price"}, res.Columns)
	require.Len(t, res.Rows, 2)

	text := res.Format()
	assert.Contains(t, text, "Item 1:")
	assert.Contains(t, text, "name: Solar lamp")
	assert.Contains(t, text, "Item 2:")
	// null cells are omitted
	assert.NotContains(t, strings.Split(text, "Item 2:")[1], "price:")
}

func TestSQLQuerySurfacesExecutionError(t *testing.T) {
	ft := &fakeTransport{respond: func(req *http.Request) (int, string) {
		return 400, `{"error": {"type": "parsing_exception", "reason": "line 1:8: unknown column [nope]"}}`
	}}
	idx := newTestIndexer(t, ft, Config{})

	_, err := idx.SQLQuery(context.Background(), "SELECT nope FROM products")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")
}
