package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent recall configuration stored as config.toml
// in the .recall/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Router      RouterConfig      `toml:"router"`
	Backends    BackendsConfig    `toml:"backends"`
	Storage     StorageConfig     `toml:"storage"`
	Memory      MemoryConfig      `toml:"memory"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Events      EventsConfig      `toml:"events"`
	Worker      WorkerConfig      `toml:"worker"`
	Metrics     MetricsConfig     `toml:"metrics"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`

	// RequestTimeout is a Go duration string ("60s") bounding each request.
	RequestTimeout string `toml:"request_timeout,omitempty"`
}

// Timeout parses RequestTimeout. An empty value means no timeout.
func (a APIConfig) Timeout() (time.Duration, error) {
	if a.RequestTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid api.request_timeout: %w", err)
	}
	return d, nil
}

// ClientConfig holds settings for CLI commands that connect to a running
// recall server (e.g. recall ask, recall metrics).
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// PipelineConfig tunes the message processor and query handler.
type PipelineConfig struct {
	MaxRetries    int     `toml:"max_retries"`
	MemoryLimit   int     `toml:"memory_limit"`
	SystemPrompt  string  `toml:"system_prompt,omitempty"`
	Temperature   float64 `toml:"temperature"`
	MaxTokens     int     `toml:"max_tokens"`
	RefetchMemory bool    `toml:"refetch_memory"`
	Diagnostics   bool    `toml:"diagnostics"`
}

// RouterConfig holds the ordered backend chains per task.
type RouterConfig struct {
	Query   []string `toml:"query,omitempty"`
	Extract []string `toml:"extract,omitempty"`
}

// BackendsConfig holds the generation backend settings keyed by provider.
type BackendsConfig struct {
	OpenAI    BackendConfig `toml:"openai"`
	Anthropic BackendConfig `toml:"anthropic"`
}

// BackendConfig holds the settings for a single generation backend.
type BackendConfig struct {
	Enabled bool `toml:"enabled"`

	// APIKey may be a literal key or "ssm:<parameter name>".
	APIKey  string `toml:"api_key,omitempty"`
	BaseURL string `toml:"base_url,omitempty"`
	Model   string `toml:"model,omitempty"`
}

// StorageConfig holds audit log settings.
type StorageConfig struct {
	Driver        string `toml:"driver,omitempty"`
	SQLitePath    string `toml:"sqlite_path,omitempty"`
	PostgresDSN   string `toml:"postgres_dsn,omitempty"`
	DynamoDBTable string `toml:"dynamodb_table,omitempty"`
}

// MemoryConfig holds memory layer settings.
type MemoryConfig struct {
	Provider string `toml:"provider,omitempty"`
	Enabled  bool   `toml:"enabled"`
}

// VectorStoreConfig holds vector store settings for the semantic memory provider.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// EventsConfig holds processed-message event stream settings.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// WorkerConfig sizes the background write-back pool.
type WorkerConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// MetricsConfig holds metrics reporting settings.
type MetricsConfig struct {
	// ReportSchedule is a cron spec ("@every 15m"). Empty disables reporting.
	ReportSchedule string `toml:"report_schedule,omitempty"`
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error

	// list marks keys whose value is a comma-separated list.
	list bool
}

// orderedKeys lists every supported key in TOML section order.
var orderedKeys = []string{
	"api.listen",
	"api.request_timeout",
	"client.api_target",
	"pipeline.max_retries",
	"pipeline.memory_limit",
	"pipeline.system_prompt",
	"pipeline.temperature",
	"pipeline.max_tokens",
	"pipeline.refetch_memory",
	"pipeline.diagnostics",
	"router.query",
	"router.extract",
	"backends.openai.enabled",
	"backends.openai.api_key",
	"backends.openai.base_url",
	"backends.openai.model",
	"backends.anthropic.enabled",
	"backends.anthropic.api_key",
	"backends.anthropic.base_url",
	"backends.anthropic.model",
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"storage.dynamodb_table",
	"memory.provider",
	"memory.enabled",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"events.provider",
	"events.brokers",
	"events.topic",
	"worker.workers",
	"worker.queue_size",
	"metrics.report_schedule",
	"telemetry.otlp_endpoint",
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"api.listen":          stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.request_timeout": durationKey("api.request_timeout", func(c *Config) *string { return &c.API.RequestTimeout }),
	"client.api_target":   stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"pipeline.max_retries":    intKey("pipeline.max_retries", func(c *Config) *int { return &c.Pipeline.MaxRetries }),
	"pipeline.memory_limit":   intKey("pipeline.memory_limit", func(c *Config) *int { return &c.Pipeline.MemoryLimit }),
	"pipeline.system_prompt":  stringKey(func(c *Config) *string { return &c.Pipeline.SystemPrompt }),
	"pipeline.temperature":    floatKey("pipeline.temperature", func(c *Config) *float64 { return &c.Pipeline.Temperature }),
	"pipeline.max_tokens":     intKey("pipeline.max_tokens", func(c *Config) *int { return &c.Pipeline.MaxTokens }),
	"pipeline.refetch_memory": boolKey("pipeline.refetch_memory", func(c *Config) *bool { return &c.Pipeline.RefetchMemory }),
	"pipeline.diagnostics":    boolKey("pipeline.diagnostics", func(c *Config) *bool { return &c.Pipeline.Diagnostics }),

	"router.query":   listKey(func(c *Config) *[]string { return &c.Router.Query }),
	"router.extract": listKey(func(c *Config) *[]string { return &c.Router.Extract }),

	"backends.openai.enabled":     boolKey("backends.openai.enabled", func(c *Config) *bool { return &c.Backends.OpenAI.Enabled }),
	"backends.openai.api_key":     stringKey(func(c *Config) *string { return &c.Backends.OpenAI.APIKey }),
	"backends.openai.base_url":    stringKey(func(c *Config) *string { return &c.Backends.OpenAI.BaseURL }),
	"backends.openai.model":       stringKey(func(c *Config) *string { return &c.Backends.OpenAI.Model }),
	"backends.anthropic.enabled":  boolKey("backends.anthropic.enabled", func(c *Config) *bool { return &c.Backends.Anthropic.Enabled }),
	"backends.anthropic.api_key":  stringKey(func(c *Config) *string { return &c.Backends.Anthropic.APIKey }),
	"backends.anthropic.base_url": stringKey(func(c *Config) *string { return &c.Backends.Anthropic.BaseURL }),
	"backends.anthropic.model":    stringKey(func(c *Config) *string { return &c.Backends.Anthropic.Model }),

	"storage.driver":         stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":    stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn":   stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"storage.dynamodb_table": stringKey(func(c *Config) *string { return &c.Storage.DynamoDBTable }),

	"memory.provider": stringKey(func(c *Config) *string { return &c.Memory.Provider }),
	"memory.enabled":  boolKey("memory.enabled", func(c *Config) *bool { return &c.Memory.Enabled }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			if v == "" {
				c.Embedding.Dimensions = 0
				return nil
			}
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  listKey(func(c *Config) *[]string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),

	"worker.workers":    intKey("worker.workers", func(c *Config) *int { return &c.Worker.Workers }),
	"worker.queue_size": intKey("worker.queue_size", func(c *Config) *int { return &c.Worker.QueueSize }),

	"metrics.report_schedule": stringKey(func(c *Config) *string { return &c.Metrics.ReportSchedule }),
	"telemetry.otlp_endpoint": stringKey(func(c *Config) *string { return &c.Telemetry.OTLPEndpoint }),
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if v != "" {
				if _, err := time.ParseDuration(v); err != nil {
					return fmt.Errorf("invalid value for %s: %w", name, err)
				}
			}
			*field(c) = v
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			if v == "" {
				*field(c) = 0
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'f', -1, 64) },
		set: func(c *Config, v string) error {
			if v == "" {
				*field(c) = 0
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			if v == "" {
				*field(c) = false
				return nil
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func listKey(field func(c *Config) *[]string) configKeyInfo {
	return configKeyInfo{
		list: true,
		get:  func(c *Config) string { return strings.Join(*field(c), ",") },
		set: func(c *Config, v string) error {
			*field(c) = splitList(v)
			return nil
		},
	}
}

// splitList splits a comma-separated value, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
