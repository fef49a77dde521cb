package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// SQLResult is one executed Elasticsearch SQL response.
type SQLResult struct {
	Columns []string
	Rows    [][]any
}

// SQLQuery runs one statement through the SQL endpoint. An execution
// failure returns the store's error detail so a caller can feed it back to
// the query generator.
func (i *Indexer) SQLQuery(ctx context.Context, query string) (*SQLResult, error) {
	body, err := json.Marshal(map[string]any{
		"query":      query,
		"fetch_size": 10,
	})
	if err != nil {
		return nil, err
	}
	res, err := i.es.SQL.Query(bytes.NewReader(body),
		i.es.SQL.Query.WithContext(ctx),
		i.es.SQL.Query.WithFormat("json"))
	if err != nil {
		return nil, fmt.Errorf("search: sql query: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("search: sql response: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("search: sql execution failed: %s", sqlErrorReason(raw, res.StatusCode))
	}

	var parsed struct {
		Columns []struct {
			Name string `json:"name"`
		} `json:"columns"`
		Rows [][]any `json:"rows"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("search: decode sql response: %w", err)
	}

	out := &SQLResult{Rows: parsed.Rows}
	for _, c := range parsed.Columns {
		out.Columns = append(out.Columns, c.Name)
	}
	return out, nil
}

// Format renders rows as the numbered listing returned to retrieval
// clients. Null cells are omitted.
func (r *SQLResult) Format() string {
	var b strings.Builder
	b.WriteString("Results retrieved from the catalog:\n")
	for idx, row := range r.Rows {
		fmt.Fprintf(&b, "\nItem %d:\n", idx+1)
		for c, col := range r.Columns {
			if c >= len(row) || row[c] == nil {
				continue
			}
			fmt.Fprintf(&b, "%s: %v\n", col, row[c])
		}
	}
	return b.String()
}

func sqlErrorReason(raw []byte, status int) string {
	var parsed struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Reason != "" {
		return fmt.Sprintf("%s: %s", parsed.Error.Type, parsed.Error.Reason)
	}
	return fmt.Sprintf("status %d", status)
}
