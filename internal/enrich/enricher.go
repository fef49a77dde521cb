// Package enrich augments product records with LLM-derived numeric
// attributes. Enrichment is best-effort: a record that cannot be enriched
// passes through unchanged and never fails its batch.
package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/yourorg/catalog-sync/internal/ai"
	"github.com/yourorg/catalog-sync/internal/backoff"
	"github.com/yourorg/catalog-sync/internal/catalog"
)

// Config bounds the enrichment fan-out.
type Config struct {
	// Workers is the pool size for concurrent capability calls. Default 4.
	Workers int

	// RequestsPerSecond throttles capability calls across workers.
	// 0 disables throttling.
	RequestsPerSecond float64

	// Retry is the per-call bounded retry policy.
	Retry backoff.Policy
}

// Enricher runs one capability call per record through a fixed-size worker
// pool with a shared rate limiter.
type Enricher struct {
	gen     ai.TextGenerator
	pool    *ants.Pool
	limiter *rate.Limiter
	retry   backoff.Policy
	logger  *slog.Logger
}

func New(gen ai.TextGenerator, cfg Config) (*Enricher, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), workers)
	}
	retry := cfg.Retry
	if retry.Attempts <= 0 {
		retry = backoff.DefaultPolicy()
	}
	return &Enricher{
		gen:     gen,
		pool:    pool,
		limiter: limiter,
		retry:   retry,
		logger:  slog.Default().With("component", "enrich"),
	}, nil
}

// Release returns the worker pool's resources.
func (e *Enricher) Release() { e.pool.Release() }

// Enrich returns the batch in input order with derived attributes merged in.
// Failures are isolated per record.
func (e *Enricher) Enrich(ctx context.Context, records []catalog.Record) []catalog.Record {
	out := make([]catalog.Record, len(records))
	var wg sync.WaitGroup
	for i, rec := range records {
		i, rec := i, rec
		wg.Add(1)
		if err := e.pool.Submit(func() {
			defer wg.Done()
			out[i] = e.enrichOne(ctx, rec)
		}); err != nil {
			// Pool rejected the task (released or overloaded); keep the
			// record as-is.
			wg.Done()
			out[i] = rec
			e.logger.Warn("enrichment task not scheduled", "err", err)
		}
	}
	wg.Wait()
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, rec catalog.Record) catalog.Record {
	key := rec.Key(catalog.KindProduct)

	raw, err := rec.JSON()
	if err != nil {
		e.logger.Warn("record not serializable, skipping enrichment", "sku", key, "err", err)
		return rec
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return rec
		}
	}

	var completion string
	err = e.retry.Do(ctx, func(ctx context.Context) error {
		var genErr error
		completion, genErr = e.gen.GenerateText(ctx, buildPrompt(raw))
		return genErr
	})
	if err != nil {
		e.logger.Warn("enrichment call failed, keeping record unmodified", "sku", key, "err", err)
		return rec
	}

	derived, ok := parseDerived(completion)
	if !ok {
		e.logger.Info("no derivable attributes", "sku", key)
		return rec
	}

	merged := make(catalog.Record, len(rec)+len(derived))
	for k, v := range rec {
		merged[k] = v
	}
	for k, v := range derived {
		if DerivedKeys[k] {
			merged[k] = v
		}
	}
	return merged
}

// parseDerived interprets the completion: the sentinel or anything that does
// not parse as a JSON object yields (nil, false).
func parseDerived(completion string) (map[string]any, bool) {
	text := strings.TrimSpace(completion)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == Sentinel || text == `"`+Sentinel+`"` {
		return nil, false
	}
	var derived map[string]any
	if err := json.Unmarshal([]byte(text), &derived); err != nil {
		return nil, false
	}
	return derived, true
}
