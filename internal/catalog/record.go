package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind selects the entity family a record belongs to. Products are keyed by
// sku, services by id; the key joins a logical entity across Postgres,
// Elasticsearch and Milvus.
type Kind string

const (
	KindProduct Kind = "product"
	KindService Kind = "service"
)

// KeyField returns the identity-key field name for the kind.
func (k Kind) KeyField() string {
	if k == KindService {
		return "id"
	}
	return "sku"
}

// WatchedFields returns the per-kind field list compared during change
// detection. Fields outside this list may drift without triggering a
// reindex.
func (k Kind) WatchedFields() []string {
	if k == KindService {
		return []string{
			"id", "created_at", "updated_at", "code", "description",
			"menu_code", "name", "order", "price", "type", "status",
			"unit", "value_type", "vat",
		}
	}
	return []string{
		"id", "name", "price", "thumbnail", "images", "weight",
		"short_description", "description", "salient_features", "attributes",
	}
}

// Record is one catalog entity as delivered on the queue: a loose field
// mapping decoded from JSON.
type Record map[string]any

// Key returns the record's identity key in canonical string form, or ""
// when the record carries none.
func (r Record) Key(kind Kind) string {
	return Canonical(r[kind.KeyField()])
}

// Deleted reports whether the record is an explicit tombstone event.
func (r Record) Deleted() bool {
	switch v := r["deleted"].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	default:
		return false
	}
}

// Title returns the human-readable name of the record, used as the retrieval
// result title.
func (r Record) Title() string {
	if s, ok := r["name"].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// JSON returns the record serialized with deterministic key order. This is
// the canonical text form written to the vector store.
func (r Record) JSON() ([]byte, error) {
	return json.Marshal(map[string]any(r))
}

// Canonical converts a field value to the string form used for change
// comparison. The comparison is deliberately coarse: two representations of
// the same value ("2" vs 2.0) compare unequal, matching the upstream
// policy of str()-equality.
func Canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return canonicalFloat(strconv.FormatFloat(t, 'f', -1, 64))
	case float32:
		return canonicalFloat(strconv.FormatFloat(float64(t), 'f', -1, 32))
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05.000")
	case json.Number:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// canonicalFloat keeps the fractional marker on integral floats so that the
// number 2.0 stays distinct from the string "2". Decoded payloads carry
// json.Number and keep the producer's text; this covers values that arrive
// as native floats, such as scanned store columns.
func canonicalFloat(s string) string {
	if !strings.ContainsAny(s, ".eE") {
		return s + ".0"
	}
	return s
}

// Fields returns the record's field names sorted, mostly for logging.
func (r Record) Fields() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
