// Package router maps generation tasks to ordered chains of backends.
//
// Selection is a static lookup: the router never reorders a chain in
// response to failures. Swap replaces the whole table at once, which is how
// configuration reloads reach a running server.
package router

import (
	"errors"
	"fmt"
	"sync"

	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/llm/backend"
)

// ErrNoBackend is returned when a task resolves to an empty chain.
var ErrNoBackend = errors.New("no backend configured for task")

// Table maps a task to backend names, primary first.
type Table map[llm.Task][]string

// Router resolves tasks to backend chains.
type Router struct {
	backends map[string]backend.Backend

	mu     sync.RWMutex
	chains map[llm.Task][]backend.Backend
}

// New builds a router over the given backends. Every name referenced by the
// table must belong to one of them.
func New(table Table, backends ...backend.Backend) (*Router, error) {
	r := &Router{backends: make(map[string]backend.Backend, len(backends))}
	for _, b := range backends {
		if _, dup := r.backends[b.Name()]; dup {
			return nil, fmt.Errorf("duplicate backend %q", b.Name())
		}
		r.backends[b.Name()] = b
	}

	if err := r.Swap(table); err != nil {
		return nil, err
	}
	return r, nil
}

// Swap validates and installs a new table. The old table stays in place if
// validation fails.
func (r *Router) Swap(table Table) error {
	chains := make(map[llm.Task][]backend.Backend, len(table))
	for task, names := range table {
		chain := make([]backend.Backend, 0, len(names))
		seen := make(map[string]struct{}, len(names))
		for _, name := range names {
			b, ok := r.backends[name]
			if !ok {
				return fmt.Errorf("task %q: unknown backend %q", task, name)
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			chain = append(chain, b)
		}
		chains[task] = chain
	}

	r.mu.Lock()
	r.chains = chains
	r.mu.Unlock()
	return nil
}

// SelectPrimary returns the first backend of the task's chain.
func (r *Router) SelectPrimary(task llm.Task) (backend.Backend, error) {
	chain, err := r.FallbackChain(task)
	if err != nil {
		return nil, err
	}
	return chain[0], nil
}

// FallbackChain returns a copy of the task's chain, primary first. Tasks
// without their own chain use the query chain.
func (r *Router) FallbackChain(task llm.Task) ([]backend.Backend, error) {
	r.mu.RLock()
	chain, ok := r.chains[task]
	if !ok {
		chain = r.chains[llm.TaskQuery]
	}
	r.mu.RUnlock()

	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, task)
	}

	out := make([]backend.Backend, len(chain))
	copy(out, chain)
	return out, nil
}

// Backend returns a backend by name.
func (r *Router) Backend(name string) (backend.Backend, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// Names lists the names in a task's chain.
func (r *Router) Names(task llm.Task) []string {
	chain, err := r.FallbackChain(task)
	if err != nil {
		return nil
	}
	names := make([]string, len(chain))
	for i, b := range chain {
		names[i] = b.Name()
	}
	return names
}
