package llm

import (
	"context"
	"log"
	"strings"

	"golang.org/x/time/rate"
)

// SafeEmbedder wraps an EmbeddingGenerator so that callers always receive a
// vector of the configured dimension. Empty input and provider failures both
// yield a zero vector instead of an error: a record with a zero embedding is
// still stored and retrievable by id or scroll, it just never ranks in
// similarity searches.
//
// A token-bucket limiter caps the embedding request rate so bulk document
// ingestion cannot starve interactive chat turns.
type SafeEmbedder struct {
	inner     EmbeddingGenerator
	dimension int
	limiter   *rate.Limiter
}

// NewSafeEmbedder creates a SafeEmbedder producing vectors of the given
// dimension. ratePerSecond caps embedding calls; zero or negative disables
// rate limiting.
func NewSafeEmbedder(inner EmbeddingGenerator, dimension int, ratePerSecond float64) *SafeEmbedder {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1)
	}
	return &SafeEmbedder{inner: inner, dimension: dimension, limiter: limiter}
}

// Dimension returns the vector size every Embed call produces.
func (e *SafeEmbedder) Dimension() int {
	return e.dimension
}

// Embed returns the embedding for text, or a zero vector of the configured
// dimension when the text is blank or the provider fails.
func (e *SafeEmbedder) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dimension)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			log.Printf("llm: embedding rate wait aborted: %v", err)
			return make([]float32, e.dimension)
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		log.Printf("llm: embedding failed (%s), storing zero vector: %v", e.inner.GetModel(), err)
		return make([]float32, e.dimension)
	}
	if len(vec) != e.dimension {
		log.Printf("llm: embedding dimension %d does not match configured %d, storing zero vector",
			len(vec), e.dimension)
		return make([]float32, e.dimension)
	}
	return vec
}
