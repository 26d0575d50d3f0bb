package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/api/mcp"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/processor"
)

// Server is the recall API server.
type Server struct {
	config    Config
	processor *processor.Processor
	retriever *memory.Retriever
	logger    *slog.Logger
	app       *fiber.App
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new API server around a configured processor.
func NewServer(config Config, proc *processor.Processor, logger *slog.Logger) (*Server, error) {
	if proc == nil {
		return nil, errors.New("processor is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		processor: proc,
		retriever: memory.NewRetriever(config.MemoryDriver, 0, logger),
		logger:    logger,
		app:       app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Post("/messages", s.handleMessage)
	v1.Get("/messages", s.handleListMessages)
	v1.Get("/messages/:platform/:id", s.handleGetMessage)
	v1.Post("/chat", s.handleChat)
	v1.Post("/chat/stream", s.handleChatStream)
	v1.Get("/metrics", s.handleMetrics)
	v1.Post("/metrics/reset", s.handleMetricsReset)
	v1.Get("/memories", s.handleListMemories)

	if !config.DisableMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Retriever: s.retriever,
			Metrics:   proc.Metrics(),
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server, waiting for in-flight
// requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// requestContext derives the context for a processing request. It is
// detached from fasthttp's RequestCtx, which is recycled once the handler
// returns, and bounded by the configured request timeout.
func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(c.UserContext())
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.config.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}
