// Package processor is the orchestration entry point of the pipeline. It
// wraps the query handler with retry-as-fallback across the router's chain,
// records outcome metrics, and hands successful exchanges to the audit log
// and the write-back worker pool.
//
// Each message moves through
//
//	received -> retrieving-memory -> generating -> success
//	                                   |  ^
//	                                   v  |
//	                                   retry -> ... -> exhausted-failure
//
// Retries are strictly sequential and each one advances to the next backend
// in the chain; there is no same-backend repetition.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/llm/backend"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/metrics"
	"github.com/papercomputeco/recall/pkg/query"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/worker"
)

// DefaultMaxRetries is the number of fallback attempts after the first.
const DefaultMaxRetries = 2

var tracer = otel.Tracer("github.com/papercomputeco/recall/pkg/processor")

// Chainer yields the ordered backends for a task. *router.Router satisfies it.
type Chainer interface {
	FallbackChain(task llm.Task) ([]backend.Backend, error)
}

// Enqueuer accepts write-back jobs. *worker.Pool satisfies it.
type Enqueuer interface {
	Enqueue(job worker.Job) bool
}

// Config configures a Processor.
type Config struct {
	Handler *query.Handler
	Router  Chainer
	Metrics *metrics.Collector

	// Storage is the audit log. Optional.
	Storage storage.Driver

	// Pool receives write-back jobs for successful messages. Optional.
	Pool Enqueuer

	// MaxRetries bounds fallback attempts after the first; nil means
	// DefaultMaxRetries. The chain length bounds them as well.
	MaxRetries *int

	// RefetchMemory fetches memory again before each retry instead of
	// reusing the first fetch.
	RefetchMemory bool

	// Diagnostics includes provider error detail in failure reasons.
	Diagnostics bool

	Logger *slog.Logger
}

// Processor answers inbound messages.
type Processor struct {
	handler       *query.Handler
	router        Chainer
	metrics       *metrics.Collector
	storage       storage.Driver
	pool          Enqueuer
	maxRetries    int
	refetchMemory bool
	diagnostics   bool
	logger        *slog.Logger
}

// New creates a processor. Handler, Router and Metrics are required.
func New(c Config) (*Processor, error) {
	if c.Handler == nil || c.Router == nil || c.Metrics == nil {
		return nil, fmt.Errorf("processor requires a query handler, router and metrics collector")
	}

	maxRetries := DefaultMaxRetries
	if c.MaxRetries != nil {
		maxRetries = max(*c.MaxRetries, 0)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Processor{
		handler:       c.Handler,
		router:        c.Router,
		metrics:       c.Metrics,
		storage:       c.Storage,
		pool:          c.Pool,
		maxRetries:    maxRetries,
		refetchMemory: c.RefetchMemory,
		diagnostics:   c.Diagnostics,
		logger:        logger,
	}, nil
}

// Metrics returns the collector the processor records into.
func (p *Processor) Metrics() *metrics.Collector {
	return p.metrics
}

// Process answers one inbound message. It never returns provider errors:
// the outcome is either a success with the generated text and answering
// model, or a failure with a generic reason.
func (p *Processor) Process(ctx context.Context, msg InboundMessage) Outcome {
	return p.process(ctx, msg)
}

// ProcessChat answers a web-chat request. The last user-role message is the
// query and the last system-role message, if any, overrides the system
// prompt. A request without a user message fails with ErrNoUserMessage
// before any memory lookup or metrics update.
func (p *Processor) ProcessChat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	msg, opts, err := chatMessage(req)
	if err != nil {
		return nil, err
	}

	out := p.process(ctx, msg, opts...)
	switch {
	case out.OK():
		return &ChatResult{Text: out.Text, Model: out.Model}, nil
	case out.Cancelled:
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, context.Cause(ctx))
	case p.diagnostics && out.Err != nil:
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, out.Err)
	default:
		return nil, ErrGenerationFailed
	}
}

// StreamChat opens a streaming answer for a web-chat request on the first
// backend in the chain that accepts it. Only failures to open a stream fall
// back; once a stream is returned its errors belong to the consumer. The
// returned string names the answering backend.
//
// A drained stream counts as processed and is persisted; a stream that
// fails mid-way counts as failed; an abandoned or cancelled stream counts
// nothing.
func (p *Processor) StreamChat(ctx context.Context, req ChatRequest) (*llm.Stream, string, error) {
	msg, opts, err := chatMessage(req)
	if err != nil {
		return nil, "", err
	}

	started := time.Now()
	log := p.logger.With("message", msg.Key())
	log.Debug("message received", "state", "received", "stream", true)

	chain, err := p.router.FallbackChain(llm.TaskQuery)
	if err != nil {
		p.metrics.IncFailed()
		return nil, "", p.chatFailure(err)
	}

	log.Debug("retrieving memory", "state", "retrieving-memory")
	prepared := p.handler.Prepare(ctx, msg.UserID, msg.GroupID, msg.Content, opts...)

	var lastErr error
	for i := range p.attempts(chain) {
		b := chain[i]
		if i > 0 {
			p.metrics.IncRetries()
			log.Debug("retrying with next backend", "state", "retry", "backend", b.Name(), "attempt", i+1)
		}

		log.Debug("opening stream", "state", "generating", "backend", b.Name())
		inner, err := p.handler.Stream(ctx, prepared, b)
		if ctx.Err() != nil {
			if inner != nil {
				inner.Close()
			}
			log.Debug("message cancelled", "state", "cancelled")
			return nil, "", fmt.Errorf("%w: %w", ErrGenerationFailed, context.Cause(ctx))
		}
		if err == nil {
			model := inner.Model()
			if model == "" {
				model = b.Name()
			}
			return p.track(ctx, msg, prepared, inner, model, i+1, started), model, nil
		}

		lastErr = err
		log.Warn("backend failed to open stream", "backend", b.Name(), "error", err)
		if !backend.IsRetryable(err) {
			break
		}
	}

	p.metrics.IncFailed()
	log.Debug("fallback chain exhausted", "state", "exhausted-failure")
	return nil, "", p.chatFailure(lastErr)
}

// track wraps inner so that draining it records the outcome.
func (p *Processor) track(ctx context.Context, msg InboundMessage, prepared *query.Prepared, inner *llm.Stream, model string, attempts int, started time.Time) *llm.Stream {
	var sb strings.Builder
	s := llm.NewStream(model, func() (string, bool, error) {
		if inner.Next() {
			sb.WriteString(inner.Text())
			return inner.Text(), true, nil
		}
		return "", false, inner.Err()
	}, inner.Close)

	s.OnFinish(func(err error) {
		// A cancelled caller gets no metrics update, however far the stream got.
		if ctx.Err() != nil {
			p.logger.Debug("stream cancelled", "message", msg.Key(), "backend", model, "state", "cancelled")
			return
		}
		if err != nil {
			p.metrics.IncFailed()
			p.logger.Warn("stream failed", "message", msg.Key(), "backend", model, "error", err)
			return
		}
		p.metrics.IncProcessed()
		res := &query.Result{Answer: sb.String(), Model: model, Memories: prepared.Memories}
		p.persist(context.WithoutCancel(ctx), msg, res, attempts, started)
	})
	return s
}

func (p *Processor) process(ctx context.Context, msg InboundMessage, opts ...query.Option) Outcome {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "processor.Process", trace.WithAttributes(
		attribute.String("message.platform", msg.Platform),
		attribute.String("message.key", msg.Key()),
	))
	defer span.End()

	log := p.logger.With("message", msg.Key())
	log.Debug("message received", "state", "received")

	chain, err := p.router.FallbackChain(llm.TaskQuery)
	if err != nil {
		log.Error("no backend for query task", "error", err)
		return p.exhausted(span, 0, err)
	}

	log.Debug("retrieving memory", "state", "retrieving-memory")
	prepared := p.handler.Prepare(ctx, msg.UserID, msg.GroupID, msg.Content, opts...)

	var (
		lastErr error
		tried   int
	)
	for i := range p.attempts(chain) {
		b := chain[i]
		tried = i + 1
		if i > 0 {
			p.metrics.IncRetries()
			log.Debug("retrying with next backend", "state", "retry", "backend", b.Name(), "attempt", i+1)
			if p.refetchMemory {
				prepared = p.handler.Prepare(ctx, msg.UserID, msg.GroupID, msg.Content, opts...)
			}
		}

		log.Debug("generating", "state", "generating", "backend", b.Name(), "attempt", i+1)
		res, err := p.handler.Generate(ctx, prepared, b)

		// A cancelled caller gets no metrics update, whatever the attempt returned.
		if ctx.Err() != nil {
			log.Debug("message cancelled", "state", "cancelled", "backend", b.Name())
			span.SetStatus(codes.Error, ReasonCancelled)
			return Outcome{
				Status:    StatusFailure,
				Reason:    ReasonCancelled,
				Memories:  prepared.Memories,
				Attempts:  i + 1,
				Cancelled: true,
				Err:       context.Cause(ctx),
			}
		}

		if err == nil {
			p.metrics.IncProcessed()
			log.Debug("message answered", "state", "success", "backend", b.Name(), "model", res.Model)
			span.SetAttributes(
				attribute.Int("attempts", i+1),
				attribute.String("model", res.Model),
			)
			p.persist(context.WithoutCancel(ctx), msg, res, i+1, started)
			return Outcome{
				Status:   StatusSuccess,
				Text:     res.Answer,
				Model:    res.Model,
				Memories: res.Memories,
				Attempts: i + 1,
			}
		}

		lastErr = err
		log.Warn("backend generation failed", "backend", b.Name(), "error", err)
		if !backend.IsRetryable(err) {
			break
		}
	}

	log.Debug("fallback chain exhausted", "state", "exhausted-failure")
	out := p.exhausted(span, tried, lastErr)
	out.Memories = prepared.Memories
	return out
}

// attempts is the number of backends to try: the first plus MaxRetries,
// bounded by the chain length.
func (p *Processor) attempts(chain []backend.Backend) int {
	return min(len(chain), 1+p.maxRetries)
}

func (p *Processor) exhausted(span trace.Span, attempts int, err error) Outcome {
	p.metrics.IncFailed()
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, ReasonGenerationFailed)

	reason := ReasonGenerationFailed
	if p.diagnostics && err != nil {
		reason += ": " + err.Error()
	}
	return Outcome{
		Status:   StatusFailure,
		Reason:   reason,
		Attempts: attempts,
		Err:      err,
	}
}

func (p *Processor) chatFailure(err error) error {
	if p.diagnostics && err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return ErrGenerationFailed
}

// persist writes the audit log entry and enqueues write-back. Neither can
// fail the user-visible response.
func (p *Processor) persist(ctx context.Context, msg InboundMessage, res *query.Result, attempts int, started time.Time) {
	memoryIDs := make([]string, 0, len(res.Memories))
	for _, item := range res.Memories {
		memoryIDs = append(memoryIDs, item.ID)
	}

	if p.storage != nil {
		_, err := p.storage.SaveMessage(ctx, &storage.Message{
			Platform:          msg.Platform,
			PlatformMessageID: msg.PlatformMessageID,
			GroupID:           msg.GroupID,
			UserID:            msg.UserID,
			Content:           msg.Content,
			Response:          res.Answer,
			Model:             res.Model,
			ReplyToMessageID:  msg.ReplyToMessageID,
			ThreadID:          msg.ThreadID,
			MemoryIDs:         memoryIDs,
		})
		if err != nil {
			p.logger.Error("failed to save message", "message", msg.Key(), "error", err)
		}
	}

	if p.pool != nil {
		p.pool.Enqueue(worker.Job{
			Scope:             memory.Scope{UserID: msg.UserID, GroupID: msg.GroupID},
			Platform:          msg.Platform,
			PlatformMessageID: msg.PlatformMessageID,
			ThreadID:          msg.ThreadID,
			Content:           msg.Content,
			Response:          res.Answer,
			Model:             res.Model,
			Attempts:          attempts,
			Duration:          time.Since(started),
			MemoryIDs:         memoryIDs,
		})
	}
}

// chatMessage turns a web-chat request into an inbound message plus the
// system prompt override.
func chatMessage(req ChatRequest) (InboundMessage, []query.Option, error) {
	content, ok := llm.LastOfRole(req.Messages, llm.RoleUser)
	if !ok || strings.TrimSpace(content) == "" {
		return InboundMessage{}, nil, ErrNoUserMessage
	}

	var opts []query.Option
	if system, ok := llm.LastOfRole(req.Messages, llm.RoleSystem); ok && strings.TrimSpace(system) != "" {
		opts = append(opts, query.WithSystemPrompt(system))
	}

	return InboundMessage{
		Platform:          PlatformWeb,
		PlatformMessageID: uuid.NewString(),
		UserID:            req.UserID,
		GroupID:           req.GroupID,
		Content:           content,
	}, opts, nil
}
