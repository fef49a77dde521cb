package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/catalog-sync/internal/backoff"
	"github.com/yourorg/catalog-sync/internal/catalog"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	// respond inspects the prompt and returns the completion
	respond func(prompt string) (string, error)
}

func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.respond(prompt)
}

func newEnricher(t *testing.T, gen *fakeGenerator) *Enricher {
	t.Helper()
	e, err := New(gen, Config{Workers: 2, Retry: backoff.Policy{Attempts: 1}})
	require.NoError(t, err)
	t.Cleanup(e.Release)
	return e
}

func TestEnrichMergesDerivedKeys(t *testing.T) {
	gen := &fakeGenerator{respond: func(string) (string, error) {
		return `{"power": 2250, "warranty": 24}`, nil
	}}
	e := newEnricher(t, gen)

	out := e.Enrich(context.Background(), []catalog.Record{
		{"sku": "A1", "name": "Dryer"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, float64(2250), out[0]["power"])
	assert.Equal(t, float64(24), out[0]["warranty"])
	assert.Equal(t, "Dryer", out[0]["name"])
}

func TestEnrichIgnoresUnknownKeys(t *testing.T) {
	gen := &fakeGenerator{respond: func(string) (string, error) {
		return `{"power": 100, "name": "evil override", "sku": "HACKED"}`, nil
	}}
	e := newEnricher(t, gen)

	out := e.Enrich(context.Background(), []catalog.Record{
		{"sku": "A1", "name": "Lamp"},
	})
	assert.Equal(t, "Lamp", out[0]["name"])
	assert.Equal(t, "A1", out[0]["sku"])
	assert.Equal(t, float64(100), out[0]["power"])
}

func TestEnrichSentinelKeepsRecord(t *testing.T) {
	gen := &fakeGenerator{respond: func(string) (string, error) {
		return "None", nil
	}}
	e := newEnricher(t, gen)

	rec := catalog.Record{"sku": "A1", "name": "Lamp"}
	out := e.Enrich(context.Background(), []catalog.Record{rec})
	assert.Equal(t, rec, out[0])
}

func TestEnrichParseFailureKeepsRecord(t *testing.T) {
	gen := &fakeGenerator{respond: func(string) (string, error) {
		return "sorry, I cannot help with that", nil
	}}
	e := newEnricher(t, gen)

	rec := catalog.Record{"sku": "A1"}
	out := e.Enrich(context.Background(), []catalog.Record{rec})
	assert.Equal(t, rec, out[0])
}

func TestEnrichCallFailureIsIsolated(t *testing.T) {
	gen := &fakeGenerator{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, `"A2"`) {
			return "", errors.New("capability down")
		}
		return `{"power": 5}`, nil
	}}
	e := newEnricher(t, gen)

	out := e.Enrich(context.Background(), []catalog.Record{
		{"sku": "A1"}, {"sku": "A2"}, {"sku": "A3"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, float64(5), out[0]["power"])
	assert.NotContains(t, out[1], "power")
	assert.Equal(t, float64(5), out[2]["power"])
}

func TestEnrichPreservesOrder(t *testing.T) {
	gen := &fakeGenerator{respond: func(string) (string, error) {
		return "None", nil
	}}
	e := newEnricher(t, gen)

	batch := []catalog.Record{
		{"sku": "A1"}, {"sku": "A2"}, {"sku": "A3"}, {"sku": "A4"}, {"sku": "A5"},
	}
	out := e.Enrich(context.Background(), batch)
	require.Len(t, out, 5)
	for i, rec := range batch {
		assert.Equal(t, rec["sku"], out[i]["sku"])
	}
}

func TestParseDerivedStripsCodeFences(t *testing.T) {
	derived, ok := parseDerived("```json\n{\"power\": 10}\n```")
	require.True(t, ok)
	assert.Equal(t, float64(10), derived["power"])

	_, ok = parseDerived("```json\nNone\n```")
	assert.False(t, ok)

	_, ok = parseDerived(`"None"`)
	assert.False(t, ok)
}
