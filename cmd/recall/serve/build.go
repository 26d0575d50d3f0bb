package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/credentials"
	embeddingutils "github.com/papercomputeco/recall/pkg/embeddings/utils"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/kafka"
	"github.com/papercomputeco/recall/pkg/eventstream/nop"
	"github.com/papercomputeco/recall/pkg/extract"
	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/llm/backend"
	"github.com/papercomputeco/recall/pkg/llm/backend/anthropic"
	"github.com/papercomputeco/recall/pkg/llm/backend/openai"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/memory/local"
	"github.com/papercomputeco/recall/pkg/memory/semantic"
	"github.com/papercomputeco/recall/pkg/metrics"
	"github.com/papercomputeco/recall/pkg/processor"
	"github.com/papercomputeco/recall/pkg/query"
	"github.com/papercomputeco/recall/pkg/router"
	"github.com/papercomputeco/recall/pkg/storage"
	storageutils "github.com/papercomputeco/recall/pkg/storage/utils"
	vectorutils "github.com/papercomputeco/recall/pkg/vector/utils"
	"github.com/papercomputeco/recall/pkg/worker"
)

// pipeline holds every long-lived component built from a Config.
type pipeline struct {
	backends  []backend.Backend
	router    *router.Router
	memory    memory.Driver
	storage   storage.Driver
	publisher eventstream.Publisher
	pool      *worker.Pool
	metrics   *metrics.Collector
	processor *processor.Processor

	closers []func() error
}

// Close releases components in reverse construction order.
func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildPipeline assembles the processor and its dependencies. On error,
// anything already built is closed.
func buildPipeline(ctx context.Context, cfg *config.Config, resolver *credentials.Resolver, logger *slog.Logger) (_ *pipeline, err error) {
	p := &pipeline{metrics: metrics.NewCollector()}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	p.backends, err = newBackends(ctx, cfg.Backends, resolver, logger)
	if err != nil {
		return nil, err
	}
	p.router, err = router.New(routerTable(cfg.Router, p.backends, logger), p.backends...)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}

	p.memory, err = newMemoryDriver(ctx, cfg, resolver, logger)
	if err != nil {
		return nil, err
	}
	if p.memory != nil {
		p.closers = append(p.closers, p.memory.Close)
	}

	p.storage, err = storageutils.NewStorageDriver(ctx, &storageutils.NewStorageDriverOpts{
		DriverType:    cfg.Storage.Driver,
		SQLitePath:    cfg.Storage.SQLitePath,
		PostgresDSN:   cfg.Storage.PostgresDSN,
		DynamoDBTable: cfg.Storage.DynamoDBTable,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, p.storage.Close)

	p.publisher, err = newPublisher(cfg.Events, logger)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, p.publisher.Close)

	var extractor worker.FactExtractor
	if p.memory != nil {
		extractor = extract.NewExtractor(p.router, 0, logger.With("component", "extract"))
	}
	p.pool, err = worker.NewPool(&worker.Config{
		Extractor:  extractor,
		Memory:     p.memory,
		Publisher:  p.publisher,
		NumWorkers: uint(max(cfg.Worker.Workers, 0)),
		QueueSize:  uint(max(cfg.Worker.QueueSize, 0)),
		Logger:     logger.With("component", "worker"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	// The pool drains before the publisher and memory driver close.
	p.closers = append(p.closers, func() error {
		p.pool.Close()
		return nil
	})

	var temperature *float64
	if cfg.Pipeline.Temperature > 0 {
		temperature = llm.Float(cfg.Pipeline.Temperature)
	}

	handler := query.NewHandler(query.Config{
		Retriever:    memory.NewRetriever(p.memory, cfg.Pipeline.MemoryLimit, logger.With("component", "memory")),
		Router:       p.router,
		SystemPrompt: cfg.Pipeline.SystemPrompt,
		Temperature:  temperature,
		MaxTokens:    cfg.Pipeline.MaxTokens,
		Logger:       logger.With("component", "query"),
	})

	maxRetries := cfg.Pipeline.MaxRetries
	p.processor, err = processor.New(processor.Config{
		Handler:       handler,
		Router:        p.router,
		Metrics:       p.metrics,
		Storage:       p.storage,
		Pool:          p.pool,
		MaxRetries:    &maxRetries,
		RefetchMemory: cfg.Pipeline.RefetchMemory,
		Diagnostics:   cfg.Pipeline.Diagnostics,
		Logger:        logger.With("component", "processor"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	return p, nil
}

// reload swaps the router chains for those in cfg. Other settings need a
// restart.
func (p *pipeline) reload(cfg *config.Config, logger *slog.Logger) error {
	table := routerTable(cfg.Router, p.backends, logger)
	if err := p.router.Swap(table); err != nil {
		return err
	}
	logger.Info("router chains reloaded",
		"query", p.router.Names(llm.TaskQuery),
		"extract", p.router.Names(llm.TaskExtract),
	)
	return nil
}

// routerTable converts the configured chains into a router table, dropping
// backends that are not enabled.
func routerTable(c config.RouterConfig, backends []backend.Backend, logger *slog.Logger) router.Table {
	enabled := make(map[string]bool, len(backends))
	for _, b := range backends {
		enabled[b.Name()] = true
	}

	filter := func(task llm.Task, names []string) []string {
		chain := make([]string, 0, len(names))
		for _, name := range names {
			if !enabled[name] {
				logger.Warn("dropping disabled backend from chain", "task", task, "backend", name)
				continue
			}
			chain = append(chain, name)
		}
		return chain
	}

	return router.Table{
		llm.TaskQuery:   filter(llm.TaskQuery, c.Query),
		llm.TaskExtract: filter(llm.TaskExtract, c.Extract),
	}
}

// newBackends builds every enabled generation backend. A missing
// credential for an enabled backend is fatal.
func newBackends(ctx context.Context, c config.BackendsConfig, resolver *credentials.Resolver, logger *slog.Logger) ([]backend.Backend, error) {
	var backends []backend.Backend

	if c.OpenAI.Enabled {
		key, err := resolver.Resolve(ctx, openai.Name, c.OpenAI.APIKey)
		if err != nil {
			return nil, fmt.Errorf("openai backend: %w", err)
		}
		b, err := openai.New(openai.Config{
			APIKey:  key,
			BaseURL: c.OpenAI.BaseURL,
			Model:   c.OpenAI.Model,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("generation backend enabled", "backend", b.Name(), "model", c.OpenAI.Model)
		backends = append(backends, b)
	}

	if c.Anthropic.Enabled {
		key, err := resolver.Resolve(ctx, anthropic.Name, c.Anthropic.APIKey)
		if err != nil {
			return nil, fmt.Errorf("anthropic backend: %w", err)
		}
		b, err := anthropic.New(anthropic.Config{
			APIKey:  key,
			BaseURL: c.Anthropic.BaseURL,
			Model:   c.Anthropic.Model,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("generation backend enabled", "backend", b.Name(), "model", c.Anthropic.Model)
		backends = append(backends, b)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no generation backend enabled: %w", router.ErrNoBackend)
	}
	return backends, nil
}

// newMemoryDriver returns nil when memory is disabled.
func newMemoryDriver(ctx context.Context, cfg *config.Config, resolver *credentials.Resolver, logger *slog.Logger) (memory.Driver, error) {
	if !cfg.Memory.Enabled {
		logger.Info("memory disabled")
		return nil, nil
	}

	switch cfg.Memory.Provider {
	case "", "local":
		logger.Info("using local memory")
		return local.NewDriver(local.Config{Enabled: true}), nil
	case "semantic":
		return newSemanticMemory(ctx, cfg, resolver, logger)
	default:
		return nil, fmt.Errorf("unsupported memory provider: %s", cfg.Memory.Provider)
	}
}

func newSemanticMemory(ctx context.Context, cfg *config.Config, resolver *credentials.Resolver, logger *slog.Logger) (memory.Driver, error) {
	var apiKey string
	if cfg.Embedding.Provider == "openai" {
		var err error
		apiKey, err = resolver.Resolve(ctx, "openai", "")
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
		APIKey:       apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	vectors, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		TargetURL:    cfg.VectorStore.Target,
		Collection:   cfg.VectorStore.Collection,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       logger.With("component", "vector"),
	})
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	driver, err := semantic.NewDriver(semantic.Config{
		Embedder: embedder,
		Vectors:  vectors,
		Logger:   logger.With("component", "memory"),
	})
	if err != nil {
		_ = embedder.Close()
		_ = vectors.Close()
		return nil, err
	}

	logger.Info("using semantic memory",
		"embedding_provider", cfg.Embedding.Provider,
		"embedding_model", cfg.Embedding.Model,
		"vector_store", cfg.VectorStore.Provider,
	)
	return driver, nil
}

func newPublisher(c config.EventsConfig, logger *slog.Logger) (eventstream.Publisher, error) {
	switch c.Provider {
	case "", "none":
		return nop.NewPublisher(), nil
	case "kafka":
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers:      c.Brokers,
			Topic:        c.Topic,
			WriteTimeout: 10 * time.Second,
		}, logger.With("component", "events"))
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		logger.Info("publishing processed messages to kafka", "topic", c.Topic, "brokers", c.Brokers)
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", c.Provider)
	}
}
