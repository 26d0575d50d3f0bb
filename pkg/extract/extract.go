// Package extract distills durable facts from a finished exchange so they can
// be written back to the memory store.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/llm/backend"
)

// NoFacts is the reply the model gives when nothing is worth remembering.
const NoFacts = "NONE"

// DefaultMaxFacts caps the number of facts kept from one exchange.
const DefaultMaxFacts = 5

// SystemPrompt instructs the model to list facts one per line.
const SystemPrompt = `You maintain long-term memory for a chat assistant.
From the exchange below, list durable facts about the user or their group that
would help answer future questions: preferences, deadlines, names, decisions.
Write one short fact per line with no numbering or commentary.
If nothing is worth remembering, reply with exactly ` + NoFacts + `.`

// extractTemperature keeps extraction close to deterministic.
const extractTemperature = 0.2

// Chainer yields the ordered backends for a task.
type Chainer interface {
	FallbackChain(task llm.Task) ([]backend.Backend, error)
}

// Extractor asks the extract chain for facts.
type Extractor struct {
	router   Chainer
	maxFacts int
	logger   *slog.Logger
}

// NewExtractor creates an extractor. maxFacts <= 0 uses DefaultMaxFacts.
func NewExtractor(router Chainer, maxFacts int, logger *slog.Logger) *Extractor {
	if maxFacts <= 0 {
		maxFacts = DefaultMaxFacts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{router: router, maxFacts: maxFacts, logger: logger}
}

// Extract returns the facts found in the exchange. Backends in the extract
// chain are tried in order while failures are retryable.
func (e *Extractor) Extract(ctx context.Context, content, response string) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	chain, err := e.router.FallbackChain(llm.TaskExtract)
	if err != nil {
		return nil, err
	}

	req := llm.GenerationRequest{
		Task:        llm.TaskExtract,
		System:      SystemPrompt,
		Prompt:      "User: " + content + "\nAssistant: " + response,
		Temperature: llm.Float(extractTemperature),
		MaxTokens:   llm.ShortFormMaxTokens,
	}

	var lastErr error
	for _, b := range chain {
		resp, err := b.Generate(ctx, req)
		if err == nil {
			facts := ParseFacts(resp.Text, e.maxFacts)
			e.logger.Debug("extracted facts",
				"provider", b.Name(),
				"count", len(facts),
			)
			return facts, nil
		}

		lastErr = err
		if ctx.Err() != nil || !backend.IsRetryable(err) {
			break
		}
		e.logger.Warn("extraction backend failed, trying next",
			"provider", b.Name(),
			"error", err,
		)
	}

	if lastErr == nil {
		lastErr = errors.New("empty extract chain")
	}
	return nil, fmt.Errorf("extracting facts: %w", lastErr)
}

// ParseFacts splits model output into at most max facts, dropping list
// markers, blank lines, duplicates and the NoFacts reply.
func ParseFacts(text string, max int) []string {
	var facts []string
	seen := make(map[string]struct{})

	for _, line := range strings.Split(text, "\n") {
		fact := strings.TrimSpace(stripMarker(strings.TrimSpace(line)))
		if fact == "" || strings.EqualFold(strings.TrimRight(fact, "."), NoFacts) {
			continue
		}

		key := strings.ToLower(fact)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		facts = append(facts, fact)
		if max > 0 && len(facts) == max {
			break
		}
	}
	return facts
}

// stripMarker removes a leading "-", "*", "•" or "1." / "1)" list marker.
func stripMarker(line string) string {
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, prefix) {
			return line[len(prefix):]
		}
	}

	i := 0
	for i < len(line) && unicode.IsDigit(rune(line[i])) {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return line[i+1:]
	}
	return line
}
