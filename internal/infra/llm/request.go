// Package llm opens streaming chat completions against the supported
// providers and hands the raw response body back for relaying.
package llm

import (
	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
)

// Family identifies a provider wire contract.
type Family int

const (
	// FamilyOpenAI covers chat-completions compatible APIs (Gemini proxy, OpenAI, Perplexity).
	FamilyOpenAI Family = iota
	// FamilyAnthropic is the Anthropic Messages API.
	FamilyAnthropic
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIRequest is the chat-completions body. The system prompt travels as
// the first message.
type openAIRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// anthropicRequest is the Messages API body. The system prompt is a
// top-level field and messages never carry the system role.
type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
}

func buildOpenAIRequest(model, system string, history []domain.ConversationMessage) openAIRequest {
	msgs := make([]chatMessage, 0, len(history)+1)
	msgs = append(msgs, chatMessage{Role: domain.RoleSystem, Content: system})
	for _, m := range history {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	return openAIRequest{Model: model, Messages: msgs, Stream: true}
}

func buildAnthropicRequest(model string, maxTokens int, system string, history []domain.ConversationMessage) anthropicRequest {
	msgs := make([]chatMessage, 0, len(history))
	for _, m := range history {
		if m.Role == domain.RoleSystem {
			continue
		}
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  msgs,
		Stream:    true,
	}
}
