// Package worker provides an asynchronous worker pool for the write-back side
// effects of an answered message: extracting durable facts into the memory
// store and publishing a "message processed" event.
//
// The pool decouples these operations from the request hot path so that a
// slow extraction model or broker never delays the user-visible response.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/memory"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = time.Minute
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Scope             memory.Scope
	Platform          string
	PlatformMessageID string
	ThreadID          string
	Content           string
	Response          string
	Model             string
	Attempts          int
	Duration          time.Duration
	MemoryIDs         []string
}

// FactExtractor turns a finished exchange into memory-worthy facts.
type FactExtractor interface {
	Extract(ctx context.Context, content, response string) ([]string, error)
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Extractor distills facts from the exchange. Optional.
	Extractor FactExtractor

	// Memory receives extracted facts. Required when Extractor is set.
	Memory memory.Driver

	// Publisher receives a MessageProcessedEvent per job. Optional.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds each job (defaults to one minute).
	JobTimeout time.Duration

	// Logger is the provided logger
	Logger *slog.Logger
}

// Pool processes write-back jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed and the close of queue against concurrent sends.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Extractor != nil && c.Memory == nil {
		return nil, fmt.Errorf("extractor configured without a memory driver: %w", memory.ErrNotConfigured)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed, job dropped",
			"platform", job.Platform,
			"platform_message_id", job.PlatformMessageID,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"platform", job.Platform,
			"platform_message_id", job.PlatformMessageID,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"platform", job.Platform,
			"platform_message_id", job.PlatformMessageID,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob writes extracted facts back to memory and publishes the event.
// Failures are logged; neither step blocks the other.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	if p.config.Extractor != nil {
		p.writeBack(ctx, job)
	}

	if p.config.Publisher != nil {
		event := eventstream.NewMessageProcessedEvent(
			eventstream.EventSource{
				Platform:          job.Platform,
				PlatformMessageID: job.PlatformMessageID,
				UserID:            job.Scope.UserID,
				GroupID:           job.Scope.GroupID,
				ThreadID:          job.ThreadID,
			},
			eventstream.GenerationMeta{
				Model:      job.Model,
				Attempts:   job.Attempts,
				DurationMs: job.Duration.Milliseconds(),
			},
			job.Content,
			job.Response,
			job.MemoryIDs,
		)
		if err := p.config.Publisher.PublishMessage(ctx, event); err != nil {
			p.logger.Warn("failed to publish message event",
				"platform_message_id", job.PlatformMessageID,
				"error", err,
			)
		}
	}
}

// writeBack extracts facts from the exchange and adds each to the memory store.
func (p *Pool) writeBack(ctx context.Context, job Job) {
	facts, err := p.config.Extractor.Extract(ctx, job.Content, job.Response)
	if err != nil {
		p.logger.Warn("memory extraction failed",
			"platform_message_id", job.PlatformMessageID,
			"error", err,
		)
		return
	}

	for _, fact := range facts {
		_, err := p.config.Memory.Add(ctx, job.Scope, fact, map[string]any{
			"source":              "extraction",
			"platform":            job.Platform,
			"platform_message_id": job.PlatformMessageID,
		})
		if err != nil {
			p.logger.Warn("failed to store extracted memory",
				"platform_message_id", job.PlatformMessageID,
				"error", err,
			)
		}
	}

	p.logger.Debug("memory write-back complete",
		"platform_message_id", job.PlatformMessageID,
		"facts", len(facts),
	)
}
