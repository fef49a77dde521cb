package ingest

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/catalog-sync/internal/catalog"
)

type fakeSource struct {
	msgs      []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (f *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(f.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeSource) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeHandler struct {
	batches [][]catalog.Record
	err     error
}

func (f *fakeHandler) HandleBatch(ctx context.Context, records []catalog.Record) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, records)
	return nil
}

func msg(topic, value string) kafka.Message {
	return kafka.Message{Topic: topic, Value: []byte(value)}
}

func TestConsumerFlushesAtThreshold(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		msg("products", `{"sku":"A1"}`),
		msg("products", `{"sku":"A2"}`),
		msg("products", `{"sku":"A3"}`),
	}}
	h := &fakeHandler{}
	c := NewConsumer(src, map[string]BatchHandler{"products": h}, ConsumerConfig{BatchSize: 2})

	require.NoError(t, c.Run(context.Background()))

	// One flush at the threshold, one on stream-end drain.
	require.Len(t, h.batches, 2)
	assert.Len(t, h.batches[0], 2)
	assert.Len(t, h.batches[1], 1)
	assert.True(t, src.closed)
	assert.Len(t, src.committed, 3)
}

func TestConsumerDrainsOnCancel(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		msg("products", `{"sku":"A1"}`),
	}}
	h := &fakeHandler{}
	c := NewConsumer(src, map[string]BatchHandler{"products": h}, ConsumerConfig{BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	require.Len(t, h.batches, 1)
	assert.Len(t, h.batches[0], 1)
}

func TestConsumerSkipsUndecodableMessage(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		msg("products", `not json at all`),
		msg("products", `{"sku":"A1"}`),
	}}
	h := &fakeHandler{}
	c := NewConsumer(src, map[string]BatchHandler{"products": h}, ConsumerConfig{BatchSize: 10})

	require.NoError(t, c.Run(context.Background()))
	require.Len(t, h.batches, 1)
	assert.Equal(t, "A1", h.batches[0][0]["sku"])
	// the bad message is committed so it is not redelivered
	assert.Len(t, src.committed, 2)
}

func TestConsumerSkipsUnmappedTopic(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		msg("unknown", `{"sku":"A1"}`),
	}}
	h := &fakeHandler{}
	c := NewConsumer(src, map[string]BatchHandler{"products": h}, ConsumerConfig{BatchSize: 10})

	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, h.batches)
	assert.Len(t, src.committed, 1)
}

func TestConsumerPreservesArrivalOrder(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		msg("products", `{"sku":"A1","v":1}`),
		msg("products", `{"sku":"A1","v":2}`),
	}}
	h := &fakeHandler{}
	c := NewConsumer(src, map[string]BatchHandler{"products": h}, ConsumerConfig{BatchSize: 2})

	require.NoError(t, c.Run(context.Background()))
	require.Len(t, h.batches, 1)
	// duplicates are forwarded, not collapsed, in arrival order
	require.Len(t, h.batches[0], 2)
	assert.Equal(t, json.Number("1"), h.batches[0][0]["v"])
	assert.Equal(t, json.Number("2"), h.batches[0][1]["v"])
}

func TestConsumerStopsOnHandlerError(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		msg("products", `{"sku":"A1"}`),
		msg("products", `{"sku":"A2"}`),
	}}
	h := &fakeHandler{err: assert.AnError}
	c := NewConsumer(src, map[string]BatchHandler{"products": h}, ConsumerConfig{BatchSize: 2})

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	// nothing committed: the whole batch is redelivered
	assert.Empty(t, src.committed)
}
