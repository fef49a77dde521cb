package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	httpapi "github.com/yourorg/catalog-sync/http"
	"github.com/yourorg/catalog-sync/internal/ai"
	"github.com/yourorg/catalog-sync/internal/env"
	"github.com/yourorg/catalog-sync/internal/nlsql"
	"github.com/yourorg/catalog-sync/internal/redisx"
	"github.com/yourorg/catalog-sync/internal/search"
	"github.com/yourorg/catalog-sync/internal/vector"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	port := env.GetInt("PORT", 8004)
	apiKey := env.Get("RETRIEVAL_API_KEY", "")

	aiCfg := &ai.Config{
		Host:                env.Get("OPENAI_HOST", "https://api.openai.com/v1"),
		APIKey:              env.Must("OPENAI_API_KEY"),
		ChatModel:           env.Get("CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel:      env.Get("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: env.GetInt("EMBEDDING_DIMENSIONS", 768),
	}
	generator, err := ai.NewOpenAIGenerator(aiCfg)
	if err != nil {
		slog.Error("text generator init failed", "err", err)
		os.Exit(1)
	}
	embedder, err := ai.NewOpenAIEmbedder(aiCfg)
	if err != nil {
		slog.Error("embedder init failed", "err", err)
		os.Exit(1)
	}

	products, err := vector.NewStore(ctx, vector.Config{
		URI:        env.Must("MILVUS_URI"),
		Username:   env.Get("MILVUS_USERNAME", ""),
		Password:   env.Get("MILVUS_PASSWORD", ""),
		Collection: env.Get("PRODUCT_COLLECTION", "products"),
		Dimensions: aiCfg.EmbeddingDimensions,
	}, embedder)
	if err != nil {
		slog.Error("product vector store init failed", "err", err)
		os.Exit(1)
	}
	services, err := vector.NewStore(ctx, vector.Config{
		URI:        env.Must("MILVUS_URI"),
		Username:   env.Get("MILVUS_USERNAME", ""),
		Password:   env.Get("MILVUS_PASSWORD", ""),
		Collection: env.Get("SERVICE_COLLECTION", "services"),
		Dimensions: aiCfg.EmbeddingDimensions,
	}, embedder)
	if err != nil {
		slog.Error("service vector store init failed", "err", err)
		os.Exit(1)
	}

	esIndex := env.Get("ES_INDEX", "products")
	indexer, err := search.NewIndexer(search.Config{
		Addresses: strings.Split(env.Must("ES_ADDRESSES"), ","),
		Username:  env.Get("ES_USERNAME", ""),
		Password:  env.Get("ES_PASSWORD", ""),
		Index:     esIndex,
		Fields:    search.ProductFields,
	})
	if err != nil {
		slog.Error("search client init failed", "err", err)
		os.Exit(1)
	}
	sqlRetriever := nlsql.NewRetriever(generator, indexer, nlsql.ProductSchema(esIndex))

	var cache *redisx.Client
	if addr := env.Get("REDIS_ADDR", ""); addr != "" {
		cache = redisx.New(addr, env.Get("REDIS_PASSWORD", ""), env.GetInt("REDIS_DB", 0))
		if err := cache.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, caching disabled", "err", err)
			cache = nil
		}
	}

	router := BuildRouter(apiKey,
		httpapi.RetrievalDeps{
			Products: products,
			Services: services,
			Cache:    cache,
			CacheTTL: env.GetDuration("RETRIEVAL_CACHE_TTL", 10*time.Minute),
		},
		httpapi.SQLDeps{Retriever: sqlRetriever},
	)

	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("retrieval api listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
