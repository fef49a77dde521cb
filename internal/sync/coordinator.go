package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yourorg/catalog-sync/internal/catalog"
	"github.com/yourorg/catalog-sync/internal/search"
)

// RecordStore is the system of record for one entity kind.
type RecordStore interface {
	Find(ctx context.Context, key string) (catalog.Record, bool, error)
	Upsert(ctx context.Context, records []catalog.Record) error
	Delete(ctx context.Context, key string) error
}

// SearchWriter is the derived search index for one entity kind.
type SearchWriter interface {
	Index(ctx context.Context, kind catalog.Kind, records []catalog.Record) (int, []search.FailedItem, error)
	DeleteByKey(ctx context.Context, key string) error
}

// VectorWriter is the derived vector index for one entity kind.
type VectorWriter interface {
	Upsert(ctx context.Context, kind catalog.Kind, records []catalog.Record) error
	DeleteByKey(ctx context.Context, key string) error
}

// Enricher derives additional fields for a batch. Per-record failures keep
// the original record, so the output always pairs with the input.
type Enricher interface {
	Enrich(ctx context.Context, records []catalog.Record) []catalog.Record
}

// Coordinator runs the pipeline stages for one entity kind. It satisfies
// ingest.BatchHandler. Stages run strictly in order for each batch; a
// returned error leaves the batch uncommitted so the queue redelivers it.
type Coordinator struct {
	kind       catalog.Kind
	store      RecordStore
	searcher   SearchWriter
	vectors    VectorWriter
	enricher   Enricher
	normalizer *catalog.Normalizer
	normOpts   catalog.NormalizeOptions
	logger     *slog.Logger
}

// CoordinatorOptions wires the per-kind collaborators. Searcher and Enricher
// are optional: services carry no search index and no derived fields.
type CoordinatorOptions struct {
	Store    RecordStore
	Searcher SearchWriter
	Vectors  VectorWriter
	Enricher Enricher
}

func NewCoordinator(kind catalog.Kind, opts CoordinatorOptions) *Coordinator {
	normOpts := catalog.ProductOptions()
	if kind == catalog.KindService {
		normOpts = catalog.ServiceOptions()
	}
	return &Coordinator{
		kind:       kind,
		store:      opts.Store,
		searcher:   opts.Searcher,
		vectors:    opts.Vectors,
		enricher:   opts.Enricher,
		normalizer: catalog.NewNormalizer(),
		normOpts:   normOpts,
		logger:     slog.Default().With("component", "sync", "kind", string(kind)),
	}
}

// HandleBatch applies one flushed batch. Records sharing an identity key are
// collapsed to the last occurrence before classification, since the queue is
// ordered per key and the last event carries the newest state.
func (c *Coordinator) HandleBatch(ctx context.Context, records []catalog.Record) error {
	if len(records) == 0 {
		return nil
	}
	logger := c.logger.With("batch", uuid.NewString())
	logger.Info("batch received", "count", len(records))

	deduped := c.dedupe(records, logger)

	var upserts []catalog.Record
	for _, rec := range deduped {
		key := rec.Key(c.kind)
		stored, found, err := c.store.Find(ctx, key)
		if err != nil {
			return fmt.Errorf("sync: lookup %s: %w", key, err)
		}

		switch change := Classify(c.kind, rec, stored, found); change {
		case ChangeDeleted:
			logger.Info("record deleted", "key", key, "title", rec.Title())
			if err := c.store.Delete(ctx, key); err != nil {
				return fmt.Errorf("sync: delete %s: %w", key, err)
			}
			if err := c.deleteDerived(ctx, key); err != nil {
				return err
			}
		case ChangeUnchanged:
			logger.Debug("record unchanged", "key", key)
		case ChangeChanged:
			// Derived stores are cleared before the reinsert so a crash in
			// between leaves them stale rather than holding both versions.
			logger.Info("record changed", "key", key, "title", rec.Title())
			if err := c.deleteDerived(ctx, key); err != nil {
				return err
			}
			upserts = append(upserts, rec)
		case ChangeNew:
			logger.Info("record new", "key", key, "title", rec.Title())
			upserts = append(upserts, rec)
		}
	}

	if len(upserts) == 0 {
		logger.Info("batch applied", "upserts", 0)
		return nil
	}
	if err := c.store.Upsert(ctx, upserts); err != nil {
		return fmt.Errorf("sync: upsert %d records: %w", len(upserts), err)
	}

	docs := make([]catalog.Record, len(upserts))
	for i, rec := range upserts {
		docs[i] = c.normalizer.Normalize(rec, c.normOpts)
	}
	if c.enricher != nil {
		docs = c.enricher.Enrich(ctx, docs)
	}

	if c.searcher != nil {
		ok, failed, err := c.searcher.Index(ctx, c.kind, docs)
		if err != nil {
			return fmt.Errorf("sync: search index: %w", err)
		}
		for _, item := range failed {
			logger.Warn("document rejected by search index",
				"key", item.Key, "status", item.Status, "reason", item.Reason)
		}
		logger.Info("search index updated", "indexed", ok, "failed", len(failed))
	}

	if err := c.vectors.Upsert(ctx, c.kind, docs); err != nil {
		return fmt.Errorf("sync: vector index: %w", err)
	}
	logger.Info("batch applied", "upserts", len(upserts))
	return nil
}

// dedupe keeps the last occurrence per identity key, preserving the relative
// order of the survivors. Keyless records are dropped.
func (c *Coordinator) dedupe(records []catalog.Record, logger *slog.Logger) []catalog.Record {
	last := make(map[string]int, len(records))
	for i, rec := range records {
		key := rec.Key(c.kind)
		if key == "" {
			logger.Warn("record without identity key, skipping", "title", rec.Title())
			continue
		}
		last[key] = i
	}
	out := make([]catalog.Record, 0, len(last))
	for i, rec := range records {
		if key := rec.Key(c.kind); key != "" && last[key] == i {
			out = append(out, rec)
		}
	}
	return out
}

func (c *Coordinator) deleteDerived(ctx context.Context, key string) error {
	if c.searcher != nil {
		if err := c.searcher.DeleteByKey(ctx, key); err != nil {
			return fmt.Errorf("sync: search delete %s: %w", key, err)
		}
	}
	if err := c.vectors.DeleteByKey(ctx, key); err != nil {
		return fmt.Errorf("sync: vector delete %s: %w", key, err)
	}
	return nil
}
