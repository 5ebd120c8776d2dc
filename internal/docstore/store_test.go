package docstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/scrypster/aibuddy/internal/llm"
	"github.com/scrypster/aibuddy/internal/storage"
	"github.com/scrypster/aibuddy/internal/storage/chromem"
)

type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	var norm float64
	for i := range vec {
		vec[i] = float32(sum[i]) + 1
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (hashEmbedder) GetModel() string { return "hash-test" }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend := chromem.New()
	embedder := llm.NewSafeEmbedder(hashEmbedder{}, 8, 0)
	store := NewStore(backend, embedder, "documents", 1200)
	if err := store.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady() failed: %v", err)
	}
	return store
}

func TestAddDocumentChunksAndTags(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	text := strings.Repeat("p1 ", 300) + "\n\n" + strings.Repeat("p2 ", 300)
	result, err := store.AddDocument(ctx, "Lecture Notes", text,
		map[string]interface{}{"user_id": "u1", "filename": "notes.txt"})
	if err != nil {
		t.Fatalf("AddDocument() failed: %v", err)
	}
	if result.DocID == "" {
		t.Fatal("AddDocument() must mint a doc id")
	}
	if result.Chunks != 2 {
		t.Fatalf("expected 2 chunks, got %d", result.Chunks)
	}

	hits, err := store.Search(ctx, strings.TrimSpace(strings.Repeat("p1 ", 300)), storage.Filter{"user_id": "u1"}, 5, 0)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits for ingested chunk")
	}
	hit := hits[0]
	if hit.Title != "Lecture Notes" {
		t.Errorf("expected title from payload, got %q", hit.Title)
	}
	if hit.Metadata["doc_id"] != result.DocID {
		t.Errorf("chunk should carry its doc_id: %+v", hit.Metadata)
	}
	if _, ok := hit.Metadata["chunk_index"]; !ok {
		t.Error("chunk metadata missing chunk_index")
	}
	if _, ok := hit.Metadata["text"]; ok {
		t.Error("metadata must not duplicate the chunk text")
	}
}

func TestAddDocumentRejectsBlankText(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddDocument(context.Background(), "Empty", "  \n\n  ", nil)
	if !errors.Is(err, storage.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestSearchBlankQueryReturnsNothing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.AddDocument(ctx, "Doc", "some content here", nil); err != nil {
		t.Fatalf("AddDocument() failed: %v", err)
	}

	hits, err := store.Search(ctx, "   ", nil, 5, 0)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("blank query should return no hits, got %d", len(hits))
	}
}

func TestTitleFallbacks(t *testing.T) {
	if got := chunkTitle(map[string]interface{}{"title": "My Doc"}); got != "My Doc" {
		t.Errorf("expected stored title, got %q", got)
	}
	if got := chunkTitle(map[string]interface{}{"title": " ", "filename": "notes.pdf"}); got != "notes.pdf" {
		t.Errorf("expected filename fallback, got %q", got)
	}
	if got := chunkTitle(map[string]interface{}{}); got != "Document" {
		t.Errorf("expected generic fallback, got %q", got)
	}
}

func TestDeleteDocumentRemovesAllChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	text := strings.Repeat("a ", 700) + "\n\n" + strings.Repeat("b ", 700)
	result, err := store.AddDocument(ctx, "Doomed", text, map[string]interface{}{"user_id": "u1"})
	if err != nil {
		t.Fatalf("AddDocument() failed: %v", err)
	}

	if err := store.DeleteDocument(ctx, result.DocID); err != nil {
		t.Fatalf("DeleteDocument() failed: %v", err)
	}

	hits, err := store.Search(ctx, "a a a", storage.Filter{"doc_id": result.DocID}, 10, 0)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no chunks after delete, got %d", len(hits))
	}
}
