// Package httpapi exposes the retrieval endpoints consumed by the chat
// platform: hybrid vector retrieval per entity kind and natural-language SQL
// retrieval over the product index.
package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/catalog-sync/internal/redisx"
	"github.com/yourorg/catalog-sync/internal/vector"
)

// VectorSearcher runs hybrid retrieval against one collection.
// *vector.Store satisfies it.
type VectorSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]vector.Match, error)
}

type RetrievalDeps struct {
	Products VectorSearcher
	Services VectorSearcher
	Cache    *redisx.Client
	CacheTTL time.Duration
}

type RetrievalSetting struct {
	TopK           int     `json:"top_k"`
	ScoreThreshold float64 `json:"score_threshold"`
}

type RetrievalRequest struct {
	KnowledgeID string           `json:"knowledge_id,omitempty"`
	Query       string           `json:"query"`
	Setting     RetrievalSetting `json:"retrieval_setting"`
}

type RetrievalRecord struct {
	Content  string         `json:"content"`
	Title    string         `json:"title"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

type RetrievalResponse struct {
	Records []RetrievalRecord `json:"records"`
}

func RegisterRetrieval(r chi.Router, d RetrievalDeps) {
	r.Post("/product_vector_retrieval", func(w http.ResponseWriter, req *http.Request) {
		handleRetrieval(w, req, d.Products, d, "product")
	})
	r.Post("/service_vector_retrieval", func(w http.ResponseWriter, req *http.Request) {
		handleRetrieval(w, req, d.Services, d, "service")
	})
}

func handleRetrieval(w http.ResponseWriter, req *http.Request, searcher VectorSearcher, d RetrievalDeps, kind string) {
	var body RetrievalRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		render.Status(req, http.StatusBadRequest)
		render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
		return
	}
	if body.Query == "" {
		render.Status(req, http.StatusBadRequest)
		render.JSON(w, req, map[string]any{"error": "query_required", "detail": "query is required"})
		return
	}
	if body.Setting.TopK <= 0 {
		body.Setting.TopK = 5
	}
	ctx := req.Context()

	cacheKey := retrievalCacheKey(kind, body)
	if d.Cache != nil {
		var cached RetrievalResponse
		if hit, _ := d.Cache.GetJSON(ctx, cacheKey, &cached); hit {
			render.JSON(w, req, cached)
			return
		}
	}

	matches, err := searcher.Search(ctx, body.Query, body.Setting.TopK)
	if err != nil {
		slog.Warn("retrieval failed", "kind", kind, "err", err)
		render.Status(req, http.StatusInternalServerError)
		render.JSON(w, req, map[string]any{"error": "retrieval_error"})
		return
	}

	resp := RetrievalResponse{Records: []RetrievalRecord{}}
	for _, m := range matches {
		if body.Setting.ScoreThreshold > 0 && float64(m.Score) < body.Setting.ScoreThreshold {
			continue
		}
		resp.Records = append(resp.Records, RetrievalRecord{
			Content:  m.Content,
			Title:    titleFromContent(m.Content),
			Score:    float64(m.Score),
			Metadata: map[string]any{},
		})
	}

	if d.Cache != nil {
		_ = d.Cache.SetJSON(ctx, cacheKey, resp, d.CacheTTL)
	}
	render.JSON(w, req, resp)
}

// titleFromContent pulls the record name out of the stored JSON text.
func titleFromContent(content string) string {
	var doc map[string]any
	if err := json.Unmarshal([]byte(content), &doc); err == nil {
		if name, ok := doc["name"].(string); ok && name != "" {
			return name
		}
	}
	return "unknown"
}

// retrievalCacheKey folds the query and its settings into the key so
// different top_k or threshold values never share an entry.
func retrievalCacheKey(kind string, body RetrievalRequest) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%g", body.Query, body.Setting.TopK, body.Setting.ScoreThreshold))
	return "retrieval:" + kind + ":" + hex.EncodeToString(sum[:8])
}
