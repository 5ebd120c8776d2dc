package llm

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

func (s *stubEmbedder) GetModel() string { return "stub" }

func TestSafeEmbedder_PassesThrough(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{1, 2, 3}}
	e := NewSafeEmbedder(inner, 3, 0)

	got := e.Embed(context.Background(), "hello")
	if len(got) != 3 || got[0] != 1 {
		t.Fatalf("expected inner vector, got %v", got)
	}
}

func TestSafeEmbedder_BlankTextGetsZeroVector(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{1, 2, 3}}
	e := NewSafeEmbedder(inner, 3, 0)

	got := e.Embed(context.Background(), "   \n\t ")
	if len(got) != 3 {
		t.Fatalf("expected 3-dim zero vector, got %v", got)
	}
	for i, v := range got {
		if v != 0 {
			t.Fatalf("expected zero at %d, got %f", i, v)
		}
	}
}

func TestSafeEmbedder_ProviderFailureGetsZeroVector(t *testing.T) {
	inner := &stubEmbedder{err: errors.New("connection refused")}
	e := NewSafeEmbedder(inner, 4, 0)

	got := e.Embed(context.Background(), "hello")
	if len(got) != 4 {
		t.Fatalf("expected 4-dim zero vector, got %v", got)
	}
	for _, v := range got {
		if v != 0 {
			t.Fatal("failure must produce a zero vector")
		}
	}
}

func TestSafeEmbedder_DimensionMismatchGetsZeroVector(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{1, 2}}
	e := NewSafeEmbedder(inner, 3, 0)

	got := e.Embed(context.Background(), "hello")
	if len(got) != 3 {
		t.Fatalf("expected configured dimension 3, got %d", len(got))
	}
	for _, v := range got {
		if v != 0 {
			t.Fatal("mismatched vector must be replaced with zeros")
		}
	}
}

func TestCountTokens(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Errorf("empty text should count 0 tokens, got %d", got)
	}
	if got := CountTokens("hello world, this is a chat turn"); got < 4 {
		t.Errorf("token count suspiciously low: %d", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens("abcdefgh"); got != 2 {
		t.Errorf("expected 2 estimated tokens for 8 chars, got %d", got)
	}
	if got := estimateTokens("a"); got != 1 {
		t.Errorf("short text should estimate at least 1 token, got %d", got)
	}
}
