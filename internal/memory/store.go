// Package memory implements the vector-backed long-term memory store. Every
// record is a text snippet embedded into a vector and tagged with ownership
// scopes, so searches can be narrowed to one user, agent or session run.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/aibuddy/internal/llm"
	"github.com/scrypster/aibuddy/internal/storage"
	"github.com/scrypster/aibuddy/pkg/types"
)

// scrollPageSize is how many points GetAll fetches per backend round trip.
const scrollPageSize = 64

// Scope narrows memory operations to an owner. Empty fields are ignored, so
// a Scope with only UserID set addresses everything that user ever stored.
type Scope struct {
	UserID  string
	AgentID string
	RunID   string
}

// Filter converts the scope into an equality filter over payload fields.
func (s Scope) Filter() storage.Filter {
	filter := storage.Filter{}
	if s.UserID != "" {
		filter["user_id"] = s.UserID
	}
	if s.AgentID != "" {
		filter["agent_id"] = s.AgentID
	}
	if s.RunID != "" {
		filter["run_id"] = s.RunID
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

// Store is the vector memory store.
type Store struct {
	backend    storage.Backend
	embedder   *llm.SafeEmbedder
	collection string
}

// NewStore creates a memory store over the given backend and embedder.
func NewStore(backend storage.Backend, embedder *llm.SafeEmbedder, collection string) *Store {
	return &Store{backend: backend, embedder: embedder, collection: collection}
}

// EnsureReady makes the backing collection exist with the embedder's
// dimension, recreating it if a previous run used a different model.
func (s *Store) EnsureReady(ctx context.Context) error {
	return storage.EnsureCollection(ctx, s.backend, s.collection, s.embedder.Dimension())
}

// Add stores one memory snippet and returns its generated id. Blank text is
// rejected with storage.ErrEmptyContent. Extra metadata fields are stored in
// the payload alongside the core fields, which they cannot override.
func (s *Store) Add(ctx context.Context, text string, scope Scope, metadata map[string]interface{}) (*types.AddResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("memory: add: %w", storage.ErrEmptyContent)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	payload := map[string]interface{}{
		"text":       text,
		"hash":       contentHash(text),
		"created_at": now,
		"updated_at": now,
	}
	for key, value := range metadata {
		if _, reserved := payload[key]; !reserved {
			payload[key] = value
		}
	}
	applyScope(payload, scope)

	point := storage.Point{
		ID:      id,
		Vector:  s.embedder.Embed(ctx, text),
		Payload: payload,
	}
	if err := s.backend.Upsert(ctx, s.collection, []storage.Point{point}); err != nil {
		return nil, fmt.Errorf("memory: add: %w", err)
	}
	return &types.AddResult{ID: id, Text: text}, nil
}

// Search runs a scoped similarity search for the query text. The fallback
// chain inside storage.SimilaritySearch keeps this working on backends that
// cannot filter server-side.
func (s *Store) Search(ctx context.Context, query string, scope Scope, limit int, minScore float64) ([]types.SearchHit, error) {
	if limit <= 0 {
		return nil, nil
	}

	vector := s.embedder.Embed(ctx, query)
	points, err := storage.SimilaritySearch(ctx, s.backend, s.collection, vector, scope.Filter(), limit, minScore)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}

	hits := make([]types.SearchHit, 0, len(points))
	for _, point := range points {
		hits = append(hits, types.SearchHit{
			ID:       point.ID,
			Score:    point.Score,
			Memory:   payloadText(point.Payload),
			Metadata: payloadMetadata(point.Payload),
		})
	}
	return hits, nil
}

// GetAll lists up to limit memories in the scope, paging through the backend
// in insertion order.
func (s *Store) GetAll(ctx context.Context, scope Scope, limit int) ([]types.MemoryItem, error) {
	if limit <= 0 {
		return nil, nil
	}

	var items []types.MemoryItem
	offset := ""
	for len(items) < limit {
		pageSize := scrollPageSize
		if remaining := limit - len(items); remaining < pageSize {
			pageSize = remaining
		}

		points, next, err := s.backend.Scroll(ctx, s.collection, scope.Filter(), pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("memory: get all: %w", err)
		}
		for _, point := range points {
			items = append(items, types.MemoryItem{
				ID:       point.ID,
				Memory:   payloadText(point.Payload),
				Metadata: payloadMetadata(point.Payload),
			})
		}
		if next == "" {
			break
		}
		offset = next
	}
	return items, nil
}

// Get fetches a single memory by id.
func (s *Store) Get(ctx context.Context, id string) (*types.MemoryItem, error) {
	points, err := s.backend.Retrieve(ctx, s.collection, []string{id})
	if err != nil {
		return nil, fmt.Errorf("memory: get: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("memory: get %s: %w", id, storage.ErrNotFound)
	}
	point := points[0]
	return &types.MemoryItem{
		ID:       point.ID,
		Memory:   payloadText(point.Payload),
		Metadata: payloadMetadata(point.Payload),
	}, nil
}

// Update replaces the text of an existing memory, refreshing its hash,
// updated_at timestamp and embedding while preserving every other payload
// field. A missing id yields storage.ErrNotFound.
func (s *Store) Update(ctx context.Context, id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("memory: update: %w", storage.ErrEmptyContent)
	}

	points, err := s.backend.Retrieve(ctx, s.collection, []string{id})
	if err != nil {
		return fmt.Errorf("memory: update: %w", err)
	}
	if len(points) == 0 {
		return fmt.Errorf("memory: update %s: %w", id, storage.ErrNotFound)
	}

	payload := points[0].Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["text"] = text
	payload["hash"] = contentHash(text)
	payload["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	point := storage.Point{
		ID:      id,
		Vector:  s.embedder.Embed(ctx, text),
		Payload: payload,
	}
	if err := s.backend.Upsert(ctx, s.collection, []storage.Point{point}); err != nil {
		return fmt.Errorf("memory: update: %w", err)
	}
	return nil
}

// Delete removes a memory by id. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.DeletePoints(ctx, s.collection, []string{id}); err != nil {
		return fmt.Errorf("memory: delete: %w", err)
	}
	return nil
}

// DeleteAll removes every memory in the scope. An empty scope is rejected
// with storage.ErrInvalidArgument so one bad call cannot wipe the collection;
// use Reset for that.
func (s *Store) DeleteAll(ctx context.Context, scope Scope) error {
	filter := scope.Filter()
	if filter == nil {
		return fmt.Errorf("memory: delete all requires at least one scope field: %w", storage.ErrInvalidArgument)
	}
	if err := s.backend.DeleteByFilter(ctx, s.collection, filter); err != nil {
		return fmt.Errorf("memory: delete all: %w", err)
	}
	return nil
}

// Reset drops and recreates the whole collection.
func (s *Store) Reset(ctx context.Context) error {
	return storage.ResetCollection(ctx, s.backend, s.collection, s.embedder.Dimension())
}

func applyScope(payload map[string]interface{}, scope Scope) {
	if scope.UserID != "" {
		payload["user_id"] = scope.UserID
	}
	if scope.AgentID != "" {
		payload["agent_id"] = scope.AgentID
	}
	if scope.RunID != "" {
		payload["run_id"] = scope.RunID
	}
}

func payloadText(payload map[string]interface{}) string {
	text, _ := payload["text"].(string)
	return text
}

// payloadMetadata returns the payload without the text field, which is
// already surfaced as the memory body.
func payloadMetadata(payload map[string]interface{}) map[string]interface{} {
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

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
