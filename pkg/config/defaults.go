package config

const (
	defaultAPIListen       = ":8081"
	defaultRequestTimeout  = "120s"
	defaultClientAPITarget = "http://localhost:8081"

	defaultMaxRetries  = 2
	defaultMemoryLimit = 5
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"

	defaultStorageDriver = "sqlite"
	defaultSQLitePath    = "recall.db"

	defaultMemoryProvider = "local"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "recall_memories"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultEventsProvider = "none"
	defaultEventsTopic    = "recall.messages"

	defaultWorkers   = 3
	defaultQueueSize = 256

	defaultReportSchedule = "@every 15m"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen:         defaultAPIListen,
			RequestTimeout: defaultRequestTimeout,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Pipeline: PipelineConfig{
			MaxRetries:  defaultMaxRetries,
			MemoryLimit: defaultMemoryLimit,
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
		},
		Router: RouterConfig{
			Query:   []string{"openai", "anthropic"},
			Extract: []string{"openai", "anthropic"},
		},
		Backends: BackendsConfig{
			OpenAI: BackendConfig{
				Enabled: true,
				Model:   defaultOpenAIModel,
			},
			Anthropic: BackendConfig{
				Enabled: true,
				Model:   defaultAnthropicModel,
			},
		},
		Storage: StorageConfig{
			Driver:     defaultStorageDriver,
			SQLitePath: defaultSQLitePath,
		},
		Memory: MemoryConfig{
			Provider: defaultMemoryProvider,
			Enabled:  true,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Worker: WorkerConfig{
			Workers:   defaultWorkers,
			QueueSize: defaultQueueSize,
		},
		Metrics: MetricsConfig{
			ReportSchedule: defaultReportSchedule,
		},
	}
}
