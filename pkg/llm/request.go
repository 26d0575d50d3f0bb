package llm

// Task names a kind of generation call. The router keeps one fallback chain
// per task.
type Task string

const (
	// TaskQuery answers an inbound message.
	TaskQuery Task = "query"

	// TaskExtract distills durable facts from a finished exchange.
	TaskExtract Task = "extract"
)

const (
	// DefaultTemperature is applied when a request leaves Temperature unset.
	DefaultTemperature = 0.7

	// DefaultMaxTokens is the service-level completion budget.
	DefaultMaxTokens = 2048

	// ShortFormMaxTokens is used by short-form call sites such as extraction.
	ShortFormMaxTokens = 500
)

// GenerationRequest is a provider-agnostic generation request. It is a value
// object: build a fresh one per call.
type GenerationRequest struct {
	// Task selects the router chain this request belongs to.
	Task Task `json:"task"`

	// System prompt, including any interpolated memory context.
	System string `json:"system,omitempty"`

	// Prompt is the user-visible query text.
	Prompt string `json:"prompt"`

	// Temperature is the sampling temperature; nil means DefaultTemperature.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens caps the completion length; zero means DefaultMaxTokens.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// WithDefaults returns a copy of r with unset generation parameters filled in.
func (r GenerationRequest) WithDefaults() GenerationRequest {
	if r.Task == "" {
		r.Task = TaskQuery
	}
	if r.Temperature == nil {
		t := DefaultTemperature
		r.Temperature = &t
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r
}

// Float returns a pointer to f, for populating optional request fields.
func Float(f float64) *float64 {
	return &f
}
