package processor

import (
	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/memory"
)

// PlatformWeb is the platform recorded for web-chat requests.
const PlatformWeb = "web"

// InboundMessage is a normalized message from a chat platform adapter.
// It is immutable once received and identified by (Platform, PlatformMessageID).
type InboundMessage struct {
	Platform          string `json:"platform"`
	PlatformMessageID string `json:"platform_message_id"`
	UserID            string `json:"user_id"`
	GroupID           string `json:"group_id"`
	Content           string `json:"content"`
	SenderName        string `json:"sender_name,omitempty"`
	GroupName         string `json:"group_name,omitempty"`
	ReplyToMessageID  string `json:"reply_to_message_id,omitempty"`
	ThreadID          string `json:"thread_id,omitempty"`
}

// Key returns the idempotency key "platform:platform_message_id".
func (m InboundMessage) Key() string {
	return m.Platform + ":" + m.PlatformMessageID
}

// Status is the final classification of a processed message.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Failure reasons surfaced to callers.
const (
	ReasonGenerationFailed = "generation failed"
	ReasonCancelled        = "cancelled"
)

// Outcome is the result of processing one message. Only the final
// classification crosses this boundary; provider errors stay in Err.
type Outcome struct {
	Status   Status        `json:"status"`
	Text     string        `json:"text,omitempty"`
	Model    string        `json:"model,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Memories []memory.Item `json:"-"`

	// Attempts is the number of backends called.
	Attempts int `json:"-"`

	// Cancelled is set when the caller's context ended mid-processing.
	Cancelled bool `json:"-"`

	// Err is the last backend error of a failed outcome, for logs.
	Err error `json:"-"`
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// ChatRequest is the web-chat input: an ordered list of role-tagged messages.
type ChatRequest struct {
	UserID   string        `json:"user_id"`
	GroupID  string        `json:"group_id"`
	Messages []llm.Message `json:"messages"`
}

// ChatResult is the web-chat response.
type ChatResult struct {
	Text  string `json:"response_text"`
	Model string `json:"model_name"`
}
