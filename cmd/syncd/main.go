// Command syncd consumes catalog change events from the queue and applies
// them to the system of record, the search index, and the vector index.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/yourorg/catalog-sync/internal/ai"
	"github.com/yourorg/catalog-sync/internal/backoff"
	"github.com/yourorg/catalog-sync/internal/catalog"
	"github.com/yourorg/catalog-sync/internal/enrich"
	"github.com/yourorg/catalog-sync/internal/ingest"
	"github.com/yourorg/catalog-sync/internal/search"
	"github.com/yourorg/catalog-sync/internal/store"
	syncpkg "github.com/yourorg/catalog-sync/internal/sync"
	"github.com/yourorg/catalog-sync/internal/vector"
)

func main() {
	app := &cli.App{
		Name:   "syncd",
		Usage:  "Catalog change-event sync worker",
		Action: runCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:     "brokers",
				Usage:    "Comma-separated Kafka broker addresses",
				EnvVars:  []string{"KAFKA_BROKERS"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "group",
				Usage:   "Kafka consumer group",
				EnvVars: []string{"KAFKA_GROUP"},
				Value:   "catalog_sync_group",
			},
			&cli.StringFlag{
				Name:    "product-topic",
				Usage:   "Product change-event topic",
				EnvVars: []string{"PRODUCT_TOPIC"},
				Value:   "catalog-sync-product",
			},
			&cli.StringFlag{
				Name:    "service-topic",
				Usage:   "Service change-event topic",
				EnvVars: []string{"SERVICE_TOPIC"},
				Value:   "catalog-sync-service",
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Events buffered per topic before a flush",
				EnvVars: []string{"BATCH_SIZE"},
				Value:   10,
			},
			&cli.StringFlag{
				Name:     "postgres-dsn",
				Usage:    "Postgres connection string",
				EnvVars:  []string{"POSTGRES_DSN"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "es-addresses",
				Usage:    "Comma-separated Elasticsearch addresses",
				EnvVars:  []string{"ES_ADDRESSES"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "es-username",
				EnvVars: []string{"ES_USERNAME"},
			},
			&cli.StringFlag{
				Name:    "es-password",
				EnvVars: []string{"ES_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "es-index",
				Usage:   "Product search index name",
				EnvVars: []string{"ES_INDEX"},
				Value:   "products",
			},
			&cli.StringFlag{
				Name:     "milvus-uri",
				Usage:    "Milvus server address",
				EnvVars:  []string{"MILVUS_URI"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "milvus-username",
				EnvVars: []string{"MILVUS_USERNAME"},
			},
			&cli.StringFlag{
				Name:    "milvus-password",
				EnvVars: []string{"MILVUS_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "product-collection",
				EnvVars: []string{"PRODUCT_COLLECTION"},
				Value:   "products",
			},
			&cli.StringFlag{
				Name:    "service-collection",
				EnvVars: []string{"SERVICE_COLLECTION"},
				Value:   "services",
			},
			&cli.BoolFlag{
				Name:    "recreate-indexes",
				Usage:   "Drop and recreate the search index and vector collections at startup",
				EnvVars: []string{"RECREATE_INDEXES"},
			},
			&cli.StringFlag{
				Name:    "openai-host",
				Usage:   "OpenAI-compatible API base URL",
				EnvVars: []string{"OPENAI_HOST"},
				Value:   "https://api.openai.com/v1",
			},
			&cli.StringFlag{
				Name:     "openai-api-key",
				EnvVars:  []string{"OPENAI_API_KEY"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "chat-model",
				EnvVars: []string{"CHAT_MODEL"},
				Value:   "gpt-4o-mini",
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				EnvVars: []string{"EMBEDDING_MODEL"},
				Value:   "text-embedding-3-small",
			},
			&cli.IntFlag{
				Name:    "embedding-dimensions",
				EnvVars: []string{"EMBEDDING_DIMENSIONS"},
				Value:   768,
			},
			&cli.IntFlag{
				Name:    "enrich-workers",
				Usage:   "Concurrent enrichment calls per batch",
				EnvVars: []string{"ENRICH_WORKERS"},
				Value:   4,
			},
			&cli.Float64Flag{
				Name:    "enrich-rps",
				Usage:   "Enrichment requests per second (0 disables throttling)",
				EnvVars: []string{"ENRICH_RPS"},
			},
		},
		Before: setupLogger,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(c.String("postgres-dsn"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	aiCfg := &ai.Config{
		Host:                c.String("openai-host"),
		APIKey:              c.String("openai-api-key"),
		ChatModel:           c.String("chat-model"),
		EmbeddingModel:      c.String("embedding-model"),
		EmbeddingDimensions: c.Int("embedding-dimensions"),
	}
	generator, err := ai.NewOpenAIGenerator(aiCfg)
	if err != nil {
		return fmt.Errorf("text generator: %w", err)
	}
	embedder, err := ai.NewOpenAIEmbedder(aiCfg)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}

	enricher, err := enrich.New(generator, enrich.Config{
		Workers:           c.Int("enrich-workers"),
		RequestsPerSecond: c.Float64("enrich-rps"),
		Retry:             backoff.DefaultPolicy(),
	})
	if err != nil {
		return fmt.Errorf("enricher: %w", err)
	}
	defer enricher.Release()

	recreate := c.Bool("recreate-indexes")
	indexer, err := search.NewIndexer(search.Config{
		Addresses: strings.Split(c.String("es-addresses"), ","),
		Username:  c.String("es-username"),
		Password:  c.String("es-password"),
		Index:     c.String("es-index"),
		Fields:    search.ProductFields,
		Recreate:  recreate,
	})
	if err != nil {
		return fmt.Errorf("search client: %w", err)
	}
	if err := indexer.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure search index: %w", err)
	}

	products, err := vector.NewStore(ctx, vector.Config{
		URI:        c.String("milvus-uri"),
		Username:   c.String("milvus-username"),
		Password:   c.String("milvus-password"),
		Collection: c.String("product-collection"),
		Dimensions: aiCfg.EmbeddingDimensions,
		Recreate:   recreate,
	}, embedder)
	if err != nil {
		return fmt.Errorf("product vector store: %w", err)
	}
	defer products.Close(context.Background())
	if err := products.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure product collection: %w", err)
	}

	services, err := vector.NewStore(ctx, vector.Config{
		URI:        c.String("milvus-uri"),
		Username:   c.String("milvus-username"),
		Password:   c.String("milvus-password"),
		Collection: c.String("service-collection"),
		Dimensions: aiCfg.EmbeddingDimensions,
		Recreate:   recreate,
	}, embedder)
	if err != nil {
		return fmt.Errorf("service vector store: %w", err)
	}
	defer services.Close(context.Background())
	if err := services.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure service collection: %w", err)
	}

	productTopic := c.String("product-topic")
	serviceTopic := c.String("service-topic")
	handlers := map[string]ingest.BatchHandler{
		productTopic: syncpkg.NewCoordinator(catalog.KindProduct, syncpkg.CoordinatorOptions{
			Store:    store.ProductStore{Store: db},
			Searcher: indexer,
			Vectors:  products,
			Enricher: enricher,
		}),
		serviceTopic: syncpkg.NewCoordinator(catalog.KindService, syncpkg.CoordinatorOptions{
			Store:   store.ServiceStore{Store: db},
			Vectors: services,
		}),
	}

	brokers := strings.Split(c.String("brokers"), ",")
	reader := ingest.NewReader(brokers, c.String("group"), []string{productTopic, serviceTopic})
	consumer := ingest.NewConsumer(reader, handlers, ingest.ConsumerConfig{
		BatchSize: c.Int("batch-size"),
	})

	slog.Info("syncd consuming",
		"brokers", brokers, "group", c.String("group"),
		"topics", []string{productTopic, serviceTopic})
	return consumer.Run(ctx)
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", c.String("log-level"))
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}
