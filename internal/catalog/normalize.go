package catalog

import (
	"encoding/json"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// Normalizer rewrites raw queue payload fields into the flat form the
// derived stores expect: HTML fields become markdown text, attribute lists
// become name→value maps, stringified JSON lists become real lists and
// datetime fields get one canonical layout.
type Normalizer struct {
	conv *md.Converter
}

func NewNormalizer() *Normalizer {
	conv := md.NewConverter("", true, nil)
	return &Normalizer{conv: conv}
}

// NormalizeOptions names the fields each rule applies to.
type NormalizeOptions struct {
	HTMLFields      []string
	AttributeFields []string
	ListFields      []string
	DatetimeFields  []string
	DropFields      []string
}

// ProductOptions mirrors the upstream product preprocessing.
func ProductOptions() NormalizeOptions {
	return NormalizeOptions{
		HTMLFields:      []string{"description", "salient_features", "short_description"},
		AttributeFields: []string{"attributes"},
		ListFields:      []string{"images", "category_id"},
		DropFields:      []string{"services"},
	}
}

// ServiceOptions mirrors the upstream service preprocessing.
func ServiceOptions() NormalizeOptions {
	return NormalizeOptions{
		HTMLFields:     []string{"description"},
		DatetimeFields: []string{"created_at", "updated_at"},
	}
}

// Normalize returns a normalized copy; the input record is not mutated.
// Per-field conversion failures fall back to the raw value rather than
// failing the record.
func (n *Normalizer) Normalize(rec Record, opts NormalizeOptions) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, f := range opts.DropFields {
		delete(out, f)
	}
	for _, f := range opts.HTMLFields {
		if s, ok := out[f].(string); ok {
			out[f] = n.htmlToText(s)
		}
	}
	for _, f := range opts.AttributeFields {
		if v, ok := out[f]; ok {
			out[f] = attributeMap(v)
		}
	}
	for _, f := range opts.ListFields {
		if v, ok := out[f]; ok {
			out[f] = parseList(v)
		}
	}
	for _, f := range opts.DatetimeFields {
		if s, ok := out[f].(string); ok {
			out[f] = normalizeDatetime(s)
		}
	}
	return out
}

func (n *Normalizer) htmlToText(html string) string {
	if html == "" {
		return "NULL"
	}
	text, err := n.conv.ConvertString(html)
	if err != nil || text == "" {
		return html
	}
	return text
}

// attributeMap collapses a list of {name, value} objects into one flat map.
// Strings are decoded first; anything unrecognized becomes an empty map.
func attributeMap(v any) map[string]any {
	if s, ok := v.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return map[string]any{}
		}
		v = decoded
	}
	list, ok := v.([]any)
	if !ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
		return map[string]any{}
	}
	out := make(map[string]any, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, ok := m["name"].(string)
		if !ok {
			continue
		}
		if val, ok := m["value"]; ok {
			out[name] = val
		}
	}
	return out
}

func parseList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case string:
		var out []any
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return []any{}
		}
		return out
	default:
		return []any{}
	}
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func normalizeDatetime(s string) string {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02 15:04:05.000")
		}
	}
	return s
}
