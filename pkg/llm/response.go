package llm

// GenerationResponse is the provider-agnostic result of a generation call.
type GenerationResponse struct {
	// Text is the generated text. It may be empty; callers must guard.
	Text string `json:"text"`

	// Model identifies the backend that actually answered, formatted as
	// "<backend>/<model>".
	Model string `json:"model"`

	// StopReason as reported by the provider (e.g. "stop", "end_turn").
	StopReason string `json:"stop_reason,omitempty"`

	// Usage contains token counts when the provider reports them.
	Usage *Usage `json:"usage,omitempty"`
}

// Usage contains token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}
