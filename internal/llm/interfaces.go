// Package llm provides clients for LLM completion and embedding providers.
// All providers are wrapped with circuit breaker protection so a struggling
// backend degrades chat turns instead of hanging them.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// The chat pipeline composes a single prompt string per turn, so the
// interface is completion-style rather than chat-message-style.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
