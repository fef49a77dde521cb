// Package vector writes catalog records into the Milvus hybrid collection
// and serves combined dense+lexical retrieval. Records are stored as their
// canonical JSON text, keyed by identity key; the dense embedding comes from
// the external embedding capability and the sparse representation is
// computed server-side with BM25 over the same text.
package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/yourorg/catalog-sync/internal/ai"
	"github.com/yourorg/catalog-sync/internal/catalog"
)

// Config describes one collection.
type Config struct {
	URI        string
	Username   string
	Password   string
	Collection string
	Dimensions int
	// Recreate drops an existing collection before creating it fresh.
	Recreate bool
}

// Match is one retrieval hit.
type Match struct {
	Key     string
	Content string
	Score   float32
}

// Store is the vector-index writer and retriever for one collection.
// Safe for reuse across batches within one process.
type Store struct {
	client   *milvusclient.Client
	embedder ai.Embedder
	cfg      Config
	logger   *slog.Logger
}

func NewStore(ctx context.Context, cfg Config, embedder ai.Embedder) (*Store, error) {
	cli, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.URI,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: connect %s: %w", cfg.URI, err)
	}
	return &Store{
		client:   cli,
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default().With("component", "vector", "collection", cfg.Collection),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// EnsureCollection creates the hybrid schema if needed and loads the
// collection for search.
func (s *Store) EnsureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.cfg.Collection))
	if err != nil {
		return fmt.Errorf("vector: has collection: %w", err)
	}

	if has && s.cfg.Recreate {
		if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(s.cfg.Collection)); err != nil {
			return fmt.Errorf("vector: drop collection: %w", err)
		}
		has = false
	}

	if !has {
		schema := entity.NewSchema().
			WithName(s.cfg.Collection).
			WithField(entity.NewField().
				WithName("pk").
				WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).
				WithMaxLength(128)).
			WithField(entity.NewField().
				WithName("text").
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(32768).
				WithEnableAnalyzer(true)).
			WithField(entity.NewField().
				WithName("dense").
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(s.cfg.Dimensions))).
			WithField(entity.NewField().
				WithName("sparse").
				WithDataType(entity.FieldTypeSparseVector)).
			WithFunction(entity.NewFunction().
				WithName("text_bm25_emb").
				WithInputFields("text").
				WithOutputFields("sparse").
				WithType(entity.FunctionTypeBM25))

		err = s.client.CreateCollection(ctx,
			milvusclient.NewCreateCollectionOption(s.cfg.Collection, schema).
				WithIndexOptions(
					milvusclient.NewCreateIndexOption(s.cfg.Collection, "dense",
						index.NewAutoIndex(entity.COSINE)),
					milvusclient.NewCreateIndexOption(s.cfg.Collection, "sparse",
						index.NewSparseInvertedIndex(entity.BM25, 0.2)),
				))
		if err != nil {
			return fmt.Errorf("vector: create collection: %w", err)
		}
		s.logger.Info("collection created")
	}

	task, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.cfg.Collection))
	if err != nil {
		return fmt.Errorf("vector: load collection: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("vector: await load: %w", err)
	}
	return nil
}

// Upsert writes the batch keyed by identity key. Records without a key are
// skipped; records that fail JSON serialization are skipped. The whole call
// fails only when the store write itself fails.
func (s *Store) Upsert(ctx context.Context, kind catalog.Kind, records []catalog.Record) error {
	keys := make([]string, 0, len(records))
	texts := make([]string, 0, len(records))
	for _, rec := range records {
		key := rec.Key(kind)
		if key == "" {
			continue
		}
		text, err := rec.JSON()
		if err != nil {
			s.logger.Warn("record not serializable, skipping", "key", key, "err", err)
			continue
		}
		keys = append(keys, key)
		texts = append(texts, string(text))
	}
	if len(keys) == 0 {
		return nil
	}

	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("vector: embed batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("vector: embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	_, err = s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(s.cfg.Collection).
		WithVarcharColumn("pk", keys).
		WithVarcharColumn("text", texts).
		WithFloatVectorColumn("dense", s.cfg.Dimensions, vectors))
	if err != nil {
		return fmt.Errorf("vector: upsert %d records: %w", len(keys), err)
	}
	s.logger.Info("upserted records", "count", len(keys))
	return nil
}

// DeleteByKey removes the entry for an identity key. Deleting an absent key
// is a no-op, which delete-then-reinsert relies on.
func (s *Store) DeleteByKey(ctx context.Context, key string) error {
	_, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.cfg.Collection).
		WithStringIDs("pk", []string{key}))
	if err != nil {
		return fmt.Errorf("vector: delete %s: %w", key, err)
	}
	return nil
}

// Search runs hybrid retrieval: dense similarity on the embedded query plus
// BM25 lexical relevance, fused by reciprocal-rank. An empty result set is
// not an error.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	queryVec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}

	denseReq := milvusclient.NewAnnRequest("dense", topK, entity.FloatVector(queryVec))
	sparseReq := milvusclient.NewAnnRequest("sparse", topK, entity.Text(query))

	resultSets, err := s.client.HybridSearch(ctx,
		milvusclient.NewHybridSearchOption(s.cfg.Collection, topK, denseReq, sparseReq).
			WithReranker(milvusclient.NewRRFReranker()).
			WithOutputFields("text"))
	if err != nil {
		return nil, fmt.Errorf("vector: hybrid search: %w", err)
	}

	var matches []Match
	for _, rs := range resultSets {
		textCol := rs.GetColumn("text")
		for i := 0; i < rs.ResultCount; i++ {
			m := Match{Score: rs.Scores[i]}
			if rs.IDs != nil {
				if id, err := rs.IDs.Get(i); err == nil {
					m.Key = fmt.Sprint(id)
				}
			}
			if textCol != nil {
				if v, err := textCol.Get(i); err == nil {
					if text, ok := v.(string); ok {
						m.Content = text
					}
				}
			}
			matches = append(matches, m)
		}
	}
	return matches, nil
}
