package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yourorg/catalog-sync/internal/catalog"
)

var (
	ErrEmptyPayload   = errors.New("ingest: empty payload")
	ErrInvalidPayload = errors.New("ingest: payload is not an object, list or JSON string")
)

// DecodePayloads decodes one queue message value into zero or more records.
// Producers are sloppy about the envelope, so three shapes are accepted:
// a single object (optionally wrapping the payload under a "data" key),
// a list of objects, or a JSON-encoded string of either. Numbers decode as
// json.Number so change comparison sees the producer's exact text and
// "2" versus 2.0 stays a difference.
func DecodePayloads(value []byte) ([]catalog.Record, error) {
	if len(value) == 0 {
		return nil, ErrEmptyPayload
	}
	decoded, err := decodeNumeric(value)
	if err != nil {
		return nil, fmt.Errorf("ingest: decode envelope: %w", err)
	}
	return payloadsFrom(decoded, true)
}

func decodeNumeric(value []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func payloadsFrom(decoded any, allowString bool) ([]catalog.Record, error) {
	switch v := decoded.(type) {
	case map[string]any:
		if inner, ok := v["data"]; ok {
			return payloadsFrom(inner, true)
		}
		return []catalog.Record{catalog.Record(v)}, nil
	case []any:
		records := make([]catalog.Record, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: list element is %T", ErrInvalidPayload, item)
			}
			records = append(records, catalog.Record(m))
		}
		return records, nil
	case string:
		// String-encoded JSON gets exactly one further decode.
		if !allowString {
			return nil, ErrInvalidPayload
		}
		inner, err := decodeNumeric([]byte(v))
		if err != nil {
			return nil, fmt.Errorf("ingest: decode string payload: %w", err)
		}
		return payloadsFrom(inner, false)
	case nil:
		return nil, ErrEmptyPayload
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidPayload, decoded)
	}
}
