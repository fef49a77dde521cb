package sync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/catalog-sync/internal/catalog"
	"github.com/yourorg/catalog-sync/internal/search"
)

// fakeStore keeps rows in memory and records every call in order.
type fakeStore struct {
	kind  catalog.Kind
	rows  map[string]catalog.Record
	calls []string
	err   error
}

func newFakeStore(kind catalog.Kind) *fakeStore {
	return &fakeStore{kind: kind, rows: map[string]catalog.Record{}}
}

func (f *fakeStore) Find(_ context.Context, key string) (catalog.Record, bool, error) {
	rec, ok := f.rows[key]
	return rec, ok, f.err
}

func (f *fakeStore) Upsert(_ context.Context, records []catalog.Record) error {
	if f.err != nil {
		return f.err
	}
	for _, rec := range records {
		f.calls = append(f.calls, "upsert:"+rec.Key(f.kind))
		f.rows[rec.Key(f.kind)] = rec
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.calls = append(f.calls, "delete:"+key)
	delete(f.rows, key)
	return f.err
}

// fakeDerived records search and vector operations into a shared trace so
// tests can assert cross-store ordering.
type fakeDerived struct {
	trace *[]string
	name  string
	err   error
}

func (f *fakeDerived) Index(_ context.Context, kind catalog.Kind, records []catalog.Record) (int, []search.FailedItem, error) {
	for _, rec := range records {
		*f.trace = append(*f.trace, f.name+".index:"+rec.Key(kind))
	}
	return len(records), nil, f.err
}

func (f *fakeDerived) Upsert(_ context.Context, kind catalog.Kind, records []catalog.Record) error {
	for _, rec := range records {
		*f.trace = append(*f.trace, f.name+".upsert:"+rec.Key(kind))
	}
	return f.err
}

func (f *fakeDerived) DeleteByKey(_ context.Context, key string) error {
	*f.trace = append(*f.trace, f.name+".delete:"+key)
	return f.err
}

type passthroughEnricher struct{ calls int }

func (p *passthroughEnricher) Enrich(_ context.Context, records []catalog.Record) []catalog.Record {
	p.calls++
	return records
}

func productCoordinator() (*Coordinator, *fakeStore, *[]string, *passthroughEnricher) {
	trace := &[]string{}
	st := newFakeStore(catalog.KindProduct)
	enr := &passthroughEnricher{}
	c := NewCoordinator(catalog.KindProduct, CoordinatorOptions{
		Store:    st,
		Searcher: &fakeDerived{trace: trace, name: "search"},
		Vectors:  &fakeDerived{trace: trace, name: "vector"},
		Enricher: enr,
	})
	return c, st, trace, enr
}

func TestHandleBatchNewRecord(t *testing.T) {
	c, st, trace, enr := productCoordinator()

	err := c.HandleBatch(context.Background(), []catalog.Record{
		{"sku": "A1", "name": "Fan", "price": 100.0},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"upsert:A1"}, st.calls)
	assert.Equal(t, []string{"search.index:A1", "vector.upsert:A1"}, *trace)
	assert.Equal(t, 1, enr.calls)
}

func TestHandleBatchIdempotentReplay(t *testing.T) {
	c, st, trace, _ := productCoordinator()
	batch := []catalog.Record{{"sku": "A1", "name": "Fan", "price": 100.0}}

	require.NoError(t, c.HandleBatch(context.Background(), batch))
	require.NoError(t, c.HandleBatch(context.Background(), batch))

	// Replay classifies UNCHANGED: one upsert, no second derived write.
	assert.Equal(t, []string{"upsert:A1"}, st.calls)
	assert.Equal(t, []string{"search.index:A1", "vector.upsert:A1"}, *trace)
	assert.Len(t, st.rows, 1)
}

func TestHandleBatchChangedDeletesBeforeReinsert(t *testing.T) {
	c, st, trace, _ := productCoordinator()
	st.rows["A1"] = catalog.Record{"sku": "A1", "name": "Fan", "price": 100.0}

	err := c.HandleBatch(context.Background(), []catalog.Record{
		{"sku": "A1", "name": "Fan", "price": 150.0},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"search.delete:A1",
		"vector.delete:A1",
		"search.index:A1",
		"vector.upsert:A1",
	}, *trace)
	assert.Equal(t, 150.0, st.rows["A1"]["price"])
}

func TestHandleBatchDeleteTombstone(t *testing.T) {
	c, st, trace, _ := productCoordinator()
	st.rows["A1"] = catalog.Record{"sku": "A1", "name": "Fan"}

	err := c.HandleBatch(context.Background(), []catalog.Record{
		{"sku": "A1", "deleted": true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"delete:A1"}, st.calls)
	assert.Equal(t, []string{"search.delete:A1", "vector.delete:A1"}, *trace)
	assert.Empty(t, st.rows)
}

func TestHandleBatchLastOccurrenceWins(t *testing.T) {
	c, st, _, _ := productCoordinator()

	err := c.HandleBatch(context.Background(), []catalog.Record{
		{"sku": "A1", "name": "Fan", "price": 100.0},
		{"sku": "B2", "name": "Pot", "price": 50.0},
		{"sku": "A1", "name": "Fan", "price": 200.0},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"upsert:B2", "upsert:A1"}, st.calls)
	assert.Equal(t, 200.0, st.rows["A1"]["price"])
}

func TestHandleBatchSkipsKeylessRecords(t *testing.T) {
	c, st, _, _ := productCoordinator()

	err := c.HandleBatch(context.Background(), []catalog.Record{
		{"name": "no key"},
		{"sku": "A1", "name": "Fan"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"upsert:A1"}, st.calls)
}

func TestHandleBatchStoreErrorIsFatal(t *testing.T) {
	c, st, trace, _ := productCoordinator()
	st.err = errors.New("connection refused")

	err := c.HandleBatch(context.Background(), []catalog.Record{
		{"sku": "A1", "name": "Fan"},
	})
	require.Error(t, err)
	assert.Empty(t, *trace)
}

func TestServiceCoordinatorSkipsSearchAndEnrichment(t *testing.T) {
	trace := &[]string{}
	st := newFakeStore(catalog.KindService)
	c := NewCoordinator(catalog.KindService, CoordinatorOptions{
		Store:   st,
		Vectors: &fakeDerived{trace: trace, name: "vector"},
	})

	err := c.HandleBatch(context.Background(), []catalog.Record{
		{"id": json.Number("7"), "name": "Install", "price": json.Number("10")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"upsert:7"}, st.calls)
	assert.Equal(t, []string{"vector.upsert:7"}, *trace)
}
