// Package llm defines the Provider interface for Large Language Model
// backends used by the translator.
//
// An LLM provider wraps a remote or local model API (OpenAI, Gemini via
// any-llm-go, or a mock in tests) and exposes a uniform completion interface
// so the translation stage never couples to a specific SDK.
//
// Implementations must be safe for concurrent use — the translator runs a
// bounded worker pool of per-segment completions against one Provider.
package llm

import "context"

// Message is a single message in a completion conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Request carries everything the model needs to produce a completion.
// At minimum Messages must be non-empty.
type Request struct {
	// SystemPrompt is a high-priority instruction injected before the
	// conversation. Providers that lack a dedicated system slot prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message drives the
	// response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Translation
	// uses low values (≈0.2) for determinism.
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the model's reply to a Request.
type Response struct {
	// Content is the full text of the completion.
	Content string

	// Usage contains token accounting when the backend reports it.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Complete must propagate context cancellation promptly and is safe to call
// from multiple goroutines.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
