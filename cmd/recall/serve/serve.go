// Package servecmder provides the serve command for running the recall
// API server and its background workers.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/credentials"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/metrics"
	"github.com/papercomputeco/recall/pkg/telemetry"
	"github.com/papercomputeco/recall/pkg/utils"
)

const shutdownTimeout = 30 * time.Second

// serveFlags are the config-backed flags of the serve command.
var serveFlags = config.FlagSet{
	config.FlagListen:          {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for API server to listen on"},
	config.FlagMaxRetries:      {Name: "max-retries", ViperKey: "pipeline.max_retries", Description: "Fallback attempts after the first backend fails"},
	config.FlagMemoryLimit:     {Name: "memory-limit", ViperKey: "pipeline.memory_limit", Description: "Maximum memories retrieved per message"},
	config.FlagStorageDriver:   {Name: "storage-driver", ViperKey: "storage.driver", Description: "Audit log driver (memory, sqlite, postgres, dynamodb)"},
	config.FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database"},
	config.FlagPostgresDSN:     {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	config.FlagDynamoDBTable:   {Name: "dynamodb-table", ViperKey: "storage.dynamodb_table", Description: "DynamoDB table name"},
	config.FlagMemoryProvider:  {Name: "memory-provider", ViperKey: "memory.provider", Description: "Memory provider (local, semantic)"},
	config.FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (sqlite, qdrant, chroma)"},
	config.FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store path or address"},
	config.FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, openai)"},
	config.FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	config.FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	config.FlagEmbeddingDims:   {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding dimensions"},
	config.FlagEventsProvider:  {Name: "events-provider", ViperKey: "events.provider", Description: "Processed message events (none, kafka)"},
	config.FlagOTLPEndpoint:    {Name: "otlp-endpoint", ViperKey: "telemetry.otlp_endpoint", Description: "OTLP/HTTP trace collector"},
}

var stringFlags = []string{
	config.FlagListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagDynamoDBTable,
	config.FlagMemoryProvider,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEventsProvider,
	config.FlagOTLPEndpoint,
}

type serveCommander struct {
	configDir  string
	debug      bool
	jsonLogs   bool
	logFile    string
	watch      bool
	disableMCP bool

	// flag targets; viper reads the bound flags, not these fields.
	strs        map[string]*string
	maxRetries  int
	memoryLimit int
	dimensions  uint

	logger *slog.Logger
}

const serveLongDesc string = `Run the recall API server.

Configuration is layered: CLI flags take precedence over RECALL_*
environment variables, which take precedence over config.toml in the
.recall/ directory, which takes precedence over built-in defaults.

Enabled backends need an API key from config, "recall auth", or the
provider's environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY).
Keys of the form "ssm:<parameter>" are read from AWS SSM.

With --watch, edits to config.toml swap the router's backend chains
without a restart.

Examples:
  recall serve
  recall serve --listen :9000 --sqlite ./recall.db
  recall serve --memory-provider semantic --vector-store-provider qdrant --vector-store-target localhost:6334
  RECALL_PIPELINE_MAX_RETRIES=1 recall serve --watch`

const serveShortDesc string = "Run the recall API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{strs: make(map[string]*string, len(stringFlags))}

	var v *viper.Viper

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err = config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			bindFlags(v, cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cfg, err := config.FromViper(v)
			if err != nil {
				return fmt.Errorf("resolving config: %w", err)
			}

			return cmder.run(cmd, cfg)
		},
	}

	for _, key := range stringFlags {
		cmder.strs[key] = new(string)
		config.AddStringFlag(cmd, serveFlags, key, cmder.strs[key])
	}
	config.AddIntFlag(cmd, serveFlags, config.FlagMaxRetries, &cmder.maxRetries)
	config.AddIntFlag(cmd, serveFlags, config.FlagMemoryLimit, &cmder.memoryLimit)
	config.AddUintFlag(cmd, serveFlags, config.FlagEmbeddingDims, &cmder.dimensions)

	cmd.Flags().BoolVar(&cmder.watch, "watch", false, "Reload router chains when config.toml changes")
	cmd.Flags().BoolVar(&cmder.disableMCP, "no-mcp", false, "Do not mount the MCP endpoint")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "log-json", false, "Emit JSON logs")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

// bindFlags connects every registered flag to viper.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	keys := make([]string, 0, len(serveFlags))
	for key := range serveFlags {
		keys = append(keys, key)
	}
	config.BindRegisteredFlags(v, cmd, serveFlags, keys)
}

func (c *serveCommander) run(cmd *cobra.Command, cfg *config.Config) error {
	closeLog, err := c.setupLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint: cfg.Telemetry.OTLPEndpoint,
		Version:  utils.Version,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			c.logger.Warn("flushing traces", "error", err)
		}
	}()

	store, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	resolver := credentials.NewResolver(store, credentials.WithLogger(c.logger))

	p, err := buildPipeline(ctx, cfg, resolver, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			c.logger.Warn("closing pipeline", "error", err)
		}
	}()

	timeout, err := cfg.API.Timeout()
	if err != nil {
		return err
	}

	server, err := api.NewServer(api.Config{
		ListenAddr:     cfg.API.Listen,
		RequestTimeout: timeout,
		MemoryDriver:   p.memory,
		Storage:        p.storage,
		DisableMCP:     c.disableMCP,
	}, p.processor, c.logger.With("component", "api"))
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if cfg.Metrics.ReportSchedule != "" {
		reporter, err := metrics.NewReporter(p.metrics, cfg.Metrics.ReportSchedule, c.logger.With("component", "metrics"))
		if err != nil {
			return err
		}
		reporter.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			reporter.Stop(stopCtx)
		}()
	}

	if c.watch {
		w, err := newConfigWatcher(cmd, c.configDir, p, c.logger.With("component", "watch"))
		if err != nil {
			return err
		}
		defer w.Close()
		go w.Run(ctx)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// setupLogger builds the terminal logger and, with --log-file, fans records
// out to a JSON file as well.
func (c *serveCommander) setupLogger() (func(), error) {
	terminal := logger.New(
		logger.WithWriter(os.Stderr),
		logger.WithDebug(c.debug),
		logger.WithJSON(c.jsonLogs),
		logger.WithPretty(!c.jsonLogs),
	)

	if c.logFile == "" {
		c.logger = terminal
		return func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	c.logger = logger.Multi(terminal, logger.New(
		logger.WithWriter(f),
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatJSON),
	))
	return func() { _ = f.Close() }, nil
}
