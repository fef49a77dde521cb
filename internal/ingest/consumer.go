package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/yourorg/catalog-sync/internal/catalog"
)

// BatchHandler receives one flushed batch for a topic. Implementations own
// per-record error isolation; a returned error is treated as fatal for the
// batch and stops consumption so the group can redeliver.
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []catalog.Record) error
}

// MessageSource is the subset of kafka.Reader the consumer uses. Offsets
// are committed only after the covering batch has been handled, keeping
// delivery at-least-once.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig wires topics to their handlers.
type ConsumerConfig struct {
	BatchSize    int           // flush threshold per topic, default 10
	DrainTimeout time.Duration // budget for flushing batches on shutdown
}

// Consumer subscribes to the catalog change topics, decodes envelopes and
// accumulates one in-memory batch per topic. Order within a partition is
// preserved as delivered; batches are not deduplicated here.
type Consumer struct {
	source   MessageSource
	handlers map[string]BatchHandler
	cfg      ConsumerConfig
	logger   *slog.Logger

	batches map[string][]catalog.Record
	pending map[string][]kafka.Message
}

// NewReader builds the kafka consumer-group reader for the given topics.
func NewReader(brokers []string, group string, topics []string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		GroupTopics: topics,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})
}

func NewConsumer(source MessageSource, handlers map[string]BatchHandler, cfg ConsumerConfig) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &Consumer{
		source:   source,
		handlers: handlers,
		cfg:      cfg,
		logger:   slog.Default().With("component", "ingest"),
		batches:  make(map[string][]catalog.Record),
		pending:  make(map[string][]kafka.Message),
	}
}

// Run consumes until ctx is cancelled or the stream ends. On shutdown all
// non-empty batches are flushed before the source is closed.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.source.Close()
	for {
		msg, err := c.source.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return c.drain()
			}
			return fmt.Errorf("ingest: fetch: %w", err)
		}

		handler, ok := c.handlers[msg.Topic]
		if !ok {
			c.logger.Warn("message on unmapped topic, skipping", "topic", msg.Topic)
			c.commit(ctx, msg)
			continue
		}

		records, err := DecodePayloads(msg.Value)
		if err != nil {
			// Malformed payloads are non-fatal: skip the single message.
			c.logger.Warn("undecodable message, skipping",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
			c.commit(ctx, msg)
			continue
		}

		c.batches[msg.Topic] = append(c.batches[msg.Topic], records...)
		c.pending[msg.Topic] = append(c.pending[msg.Topic], msg)

		if len(c.batches[msg.Topic]) >= c.cfg.BatchSize {
			if err := c.flush(ctx, msg.Topic, handler); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) flush(ctx context.Context, topic string, handler BatchHandler) error {
	batch := c.batches[topic]
	if len(batch) == 0 {
		return nil
	}
	c.logger.Info("flushing batch", "topic", topic, "records", len(batch))
	if err := handler.HandleBatch(ctx, batch); err != nil {
		return fmt.Errorf("ingest: handle batch for %s: %w", topic, err)
	}
	c.commit(ctx, c.pending[topic]...)
	c.batches[topic] = nil
	c.pending[topic] = nil
	return nil
}

// drain flushes every non-empty batch under a fresh context so cancellation
// of the run context does not discard buffered records.
func (c *Consumer) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
	defer cancel()
	var joined error
	for topic, handler := range c.handlers {
		if err := c.flush(ctx, topic, handler); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	if joined != nil {
		return fmt.Errorf("ingest: drain: %w", joined)
	}
	c.logger.Info("consumer drained")
	return nil
}

func (c *Consumer) commit(ctx context.Context, msgs ...kafka.Message) {
	if len(msgs) == 0 {
		return
	}
	if err := c.source.CommitMessages(ctx, msgs...); err != nil {
		// Failed commits only widen the redelivery window; the upserts
		// downstream are idempotent.
		c.logger.Warn("offset commit failed", "err", err)
	}
}
