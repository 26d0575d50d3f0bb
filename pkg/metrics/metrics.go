// Package metrics counts message processing outcomes.
//
// A Collector is constructed explicitly and injected into the processor;
// there is no package-level instance. Tests build a fresh Collector rather
// than resetting shared state.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Snapshot is a point-in-time read of a Collector.
type Snapshot struct {
	TotalProcessed int64 `json:"totalProcessed"`
	TotalFailed    int64 `json:"totalFailed"`
	TotalRetries   int64 `json:"totalRetries"`

	// SuccessRate is processed / (processed + failed) * 100, or 0 when
	// nothing has completed.
	SuccessRate float64 `json:"successRate"`

	// AvgRetriesPerMessage is retries / processed, or 0 when nothing has
	// been processed.
	AvgRetriesPerMessage float64 `json:"avgRetriesPerMessage"`
}

// Collector holds the processed, failed and retries counters.
//
// Increments take the read side of mu so they run concurrently with each
// other; Get and Reset take the write side so a snapshot never observes a
// partially reset triple.
type Collector struct {
	mu        sync.RWMutex
	processed atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
}

// NewCollector returns a zeroed collector.
func NewCollector() *Collector {
	return &Collector{}
}

// IncProcessed counts one successful top-level attempt.
func (c *Collector) IncProcessed() {
	c.mu.RLock()
	c.processed.Add(1)
	c.mu.RUnlock()
}

// IncFailed counts one top-level attempt that exhausted its fallback chain.
func (c *Collector) IncFailed() {
	c.mu.RLock()
	c.failed.Add(1)
	c.mu.RUnlock()
}

// IncRetries counts one retried sub-attempt.
func (c *Collector) IncRetries() {
	c.mu.RLock()
	c.retries.Add(1)
	c.mu.RUnlock()
}

// Get returns the current counters and derived values.
func (c *Collector) Get() Snapshot {
	c.mu.Lock()
	processed := c.processed.Load()
	failed := c.failed.Load()
	retries := c.retries.Load()
	c.mu.Unlock()

	return newSnapshot(processed, failed, retries)
}

// Reset zeroes all three counters.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.processed.Store(0)
	c.failed.Store(0)
	c.retries.Store(0)
	c.mu.Unlock()
}

func newSnapshot(processed, failed, retries int64) Snapshot {
	s := Snapshot{
		TotalProcessed: processed,
		TotalFailed:    failed,
		TotalRetries:   retries,
	}
	if total := processed + failed; total > 0 {
		s.SuccessRate = float64(processed) / float64(total) * 100
	}
	if processed > 0 {
		s.AvgRetriesPerMessage = float64(retries) / float64(processed)
	}
	return s
}
