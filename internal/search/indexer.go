// Package search writes catalog records into the Elasticsearch index and
// runs structured SQL queries against it. The index is derived data: it may
// lag the system of record and is rebuilt by replaying change events.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/yourorg/catalog-sync/internal/catalog"
)

// Field declares one index mapping entry.
type Field struct {
	Name   string
	Type   string
	Format string // date fields only
}

// Config describes the target index.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	Fields    []Field
	// Recreate drops an existing index before creating it fresh.
	Recreate bool
}

// FailedItem reports one document the bulk write rejected.
type FailedItem struct {
	Key    string
	Status int
	Reason string
}

// Indexer is the search-index writer. Safe for reuse across batches within
// one process.
type Indexer struct {
	es     *elasticsearch.Client
	cfg    Config
	logger *slog.Logger
}

// NewIndexer builds the client with bounded retries on the transport.
func NewIndexer(cfg Config) (*Indexer, error) {
	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 900 * time.Millisecond
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = nil

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &retryablehttp.RoundTripper{Client: rc},
	})
	if err != nil {
		return nil, fmt.Errorf("search: new client: %w", err)
	}
	return &Indexer{
		es:     es,
		cfg:    cfg,
		logger: slog.Default().With("component", "search", "index", cfg.Index),
	}, nil
}

// NewIndexerWithClient is for tests that inject a fake transport.
func NewIndexerWithClient(es *elasticsearch.Client, cfg Config) *Indexer {
	return &Indexer{
		es:     es,
		cfg:    cfg,
		logger: slog.Default().With("component", "search", "index", cfg.Index),
	}
}

// EnsureIndex creates the index from the declarative field list if it does
// not exist, or recreates it when the recreate flag is set.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := i.es.Indices.Exists([]string{i.cfg.Index},
		i.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: index exists check: %w", err)
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
	exists := res.StatusCode == 200

	if exists && !i.cfg.Recreate {
		return nil
	}
	if exists {
		del, err := i.es.Indices.Delete([]string{i.cfg.Index},
			i.es.Indices.Delete.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("search: delete index: %w", err)
		}
		del.Body.Close()
		if del.IsError() {
			return fmt.Errorf("search: delete index: status %d", del.StatusCode)
		}
	}

	properties := make(map[string]any, len(i.cfg.Fields))
	for _, f := range i.cfg.Fields {
		prop := map[string]any{"type": f.Type}
		if f.Type == "date" && f.Format != "" {
			prop["format"] = f.Format
		}
		properties[f.Name] = prop
	}
	mapping := map[string]any{"mappings": map[string]any{"properties": properties}}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	create, err := i.es.Indices.Create(i.cfg.Index,
		i.es.Indices.Create.WithBody(bytes.NewReader(body)),
		i.es.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: create index: %w", err)
	}
	create.Body.Close()
	if create.IsError() {
		return fmt.Errorf("search: create index: status %d", create.StatusCode)
	}
	i.logger.Info("index created")
	return nil
}

// Index bulk-writes the batch. Per-document errors never abort the batch:
// the successes are counted and the failures reported with the store's
// error detail. The identity key is used as the document id so a rewrite
// replaces the previous document.
func (i *Indexer) Index(ctx context.Context, kind catalog.Kind, records []catalog.Record) (int, []FailedItem, error) {
	if len(records) == 0 {
		return 0, nil, nil
	}

	var buf bytes.Buffer
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		key := rec.Key(kind)
		keys = append(keys, key)
		meta := map[string]any{"index": map[string]any{"_id": key}}
		metaLine, err := json.Marshal(meta)
		if err != nil {
			return 0, nil, err
		}
		docLine, err := json.Marshal(flatten(rec))
		if err != nil {
			return 0, nil, err
		}
		buf.Write(metaLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	res, err := i.es.Bulk(bytes.NewReader(buf.Bytes()),
		i.es.Bulk.WithIndex(i.cfg.Index),
		i.es.Bulk.WithContext(ctx))
	if err != nil {
		return 0, nil, fmt.Errorf("search: bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("search: bulk: status %d", res.StatusCode)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, nil, fmt.Errorf("search: decode bulk response: %w", err)
	}

	success := 0
	var failed []FailedItem
	for n, item := range parsed.Items {
		op := item.Index
		if op == nil {
			op = item.Create
		}
		if op == nil {
			continue
		}
		if op.Status < 300 {
			success++
			continue
		}
		key := op.ID
		if key == "" && n < len(keys) {
			key = keys[n]
		}
		failed = append(failed, FailedItem{
			Key:    key,
			Status: op.Status,
			Reason: op.Error.Reason,
		})
	}

	i.logger.Info("bulk indexed", "success", success, "failed", len(failed))
	for _, f := range failed {
		i.logger.Error("document rejected", "key", f.Key, "status", f.Status, "reason", f.Reason)
	}
	return success, failed, nil
}

// DeleteByKey removes the document for an identity key. A missing document
// is a no-op.
func (i *Indexer) DeleteByKey(ctx context.Context, key string) error {
	res, err := i.es.Delete(i.cfg.Index, key, i.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: delete %s: %w", key, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("search: delete %s: status %d", key, res.StatusCode)
	}
	return nil
}

// flatten serializes nested values to their JSON string form: the index's
// field types are flat scalars and text.
func flatten(rec catalog.Record) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		switch v.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(v)
			if err != nil {
				out[k] = fmt.Sprint(v)
				continue
			}
			out[k] = string(b)
		default:
			out[k] = v
		}
	}
	return out
}

type bulkResponse struct {
	Errors bool       `json:"errors"`
	Items  []bulkItem `json:"items"`
}

type bulkItem struct {
	Index  *bulkOp `json:"index"`
	Create *bulkOp `json:"create"`
}

type bulkOp struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}
