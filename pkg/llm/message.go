// Package llm holds the provider-agnostic generation types shared by the
// backends, the query handler and the message processor.
package llm

import "strings"

// Message roles accepted by the web-chat surface.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged chat message as submitted by a web-chat
// client. Only text content is supported.
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // plain text
}

// NewTextMessage creates a message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// LastOfRole returns the content of the last message with the given role.
// The second return value is false when no message has that role.
func LastOfRole(messages []Message, role string) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, role) {
			return messages[i].Content, true
		}
	}
	return "", false
}
