package docstore

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/aibuddy/internal/llm"
	"github.com/scrypster/aibuddy/internal/storage"
	"github.com/scrypster/aibuddy/pkg/types"
)

// Store keeps uploaded documents as embedded chunks in a vector collection,
// one point per chunk.
type Store struct {
	backend    storage.Backend
	embedder   *llm.SafeEmbedder
	collection string
	maxChars   int
}

// NewStore creates a document store. maxChars bounds chunk sizes; zero or
// negative uses DefaultMaxChunkChars.
func NewStore(backend storage.Backend, embedder *llm.SafeEmbedder, collection string, maxChars int) *Store {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	return &Store{backend: backend, embedder: embedder, collection: collection, maxChars: maxChars}
}

// EnsureReady makes the backing collection exist with the embedder's dimension.
func (s *Store) EnsureReady(ctx context.Context) error {
	return storage.EnsureCollection(ctx, s.backend, s.collection, s.embedder.Dimension())
}

// AddDocument chunks, embeds and persists a document, returning the minted
// doc_id and chunk count. Blank text, or text that chunks down to nothing,
// is rejected with storage.ErrEmptyContent. Extra metadata fields (user_id,
// filename and so on) are stored on every chunk so searches can be scoped.
func (s *Store) AddDocument(ctx context.Context, title, text string, metadata map[string]interface{}) (*types.IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("docstore: add document: %w", storage.ErrEmptyContent)
	}

	docID := uuid.NewString()
	uploadedAt := time.Now().UTC().Format(time.RFC3339)
	chunks := ChunkParagraphs(text, s.maxChars)

	points := make([]storage.Point, 0, len(chunks))
	for idx, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		payload := map[string]interface{}{
			"text":        chunk,
			"doc_id":      docID,
			"chunk_index": idx,
			"chunk_total": len(chunks),
			"title":       title,
			"uploaded_at": uploadedAt,
		}
		for key, value := range metadata {
			if _, reserved := payload[key]; !reserved {
				payload[key] = value
			}
		}
		points = append(points, storage.Point{
			ID:      uuid.NewString(),
			Vector:  s.embedder.Embed(ctx, chunk),
			Payload: payload,
		})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("docstore: no content left after chunking: %w", storage.ErrEmptyContent)
	}

	if err := s.backend.Upsert(ctx, s.collection, points); err != nil {
		return nil, fmt.Errorf("docstore: add document: %w", err)
	}
	log.Printf("docstore: stored document %q with %d chunks", title, len(points))
	return &types.IngestResult{DocID: docID, Chunks: len(points)}, nil
}

// Search runs a filtered similarity search over document chunks. A blank
// query returns no results without touching the backend.
func (s *Store) Search(ctx context.Context, query string, filter storage.Filter, limit int, minScore float64) ([]types.SearchHit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}

	vector := s.embedder.Embed(ctx, query)
	points, err := storage.SimilaritySearch(ctx, s.backend, s.collection, vector, filter, limit, minScore)
	if err != nil {
		return nil, fmt.Errorf("docstore: search: %w", err)
	}

	hits := make([]types.SearchHit, 0, len(points))
	for _, point := range points {
		hits = append(hits, types.SearchHit{
			ID:       point.ID,
			Score:    point.Score,
			Memory:   chunkText(point.Payload),
			Title:    chunkTitle(point.Payload),
			Metadata: chunkMetadata(point.Payload),
		})
	}
	return hits, nil
}

// DeleteDocument removes every chunk of a document.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	if err := s.backend.DeleteByFilter(ctx, s.collection, storage.Filter{"doc_id": docID}); err != nil {
		return fmt.Errorf("docstore: delete document: %w", err)
	}
	return nil
}

// Reset drops and recreates the document collection.
func (s *Store) Reset(ctx context.Context) error {
	return storage.ResetCollection(ctx, s.backend, s.collection, s.embedder.Dimension())
}

func chunkText(payload map[string]interface{}) string {
	text, _ := payload["text"].(string)
	return text
}

// chunkTitle resolves a display title: the stored title, then the uploaded
// filename, then a generic label.
func chunkTitle(payload map[string]interface{}) string {
	if title, ok := payload["title"].(string); ok && strings.TrimSpace(title) != "" {
		return title
	}
	if filename, ok := payload["filename"].(string); ok && strings.TrimSpace(filename) != "" {
		return filename
	}
	return "Document"
}

func chunkMetadata(payload map[string]interface{}) map[string]interface{} {
	if len(payload) == 0 {
		return nil
	}
	meta := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		if key == "text" {
			continue
		}
		meta[key] = value
	}
	return meta
}
