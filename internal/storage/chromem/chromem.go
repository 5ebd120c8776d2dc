// Package chromem implements storage.Backend on chromem-go, a pure Go
// embedded vector database. It needs no external service, which makes it the
// default backend for local development and tests.
//
// chromem-go keeps documents in memory and has no native pagination or
// payload model, so the backend tracks insertion order itself and stores the
// full payload as JSON in the document content, with stringified payload
// fields mirrored into chromem metadata for server-side where-filtering.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/scrypster/aibuddy/internal/storage"
)

// Backend is an embedded storage.Backend.
type Backend struct {
	db *chromemgo.DB

	mu         sync.RWMutex
	dimensions map[string]int
	order      map[string][]string        // insertion order per collection
	present    map[string]map[string]bool // membership per collection
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		db:         chromemgo.NewDB(),
		dimensions: make(map[string]int),
		order:      make(map[string][]string),
		present:    make(map[string]map[string]bool),
	}
}

var _ storage.Backend = (*Backend)(nil)

// GetCollection returns metadata for an existing collection.
func (b *Backend) GetCollection(ctx context.Context, name string) (*storage.CollectionInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db.GetCollection(name, nil) == nil {
		return nil, fmt.Errorf("chromem: collection %s: %w", name, storage.ErrCollectionNotFound)
	}
	return &storage.CollectionInfo{Name: name, Dimension: b.dimensions[name]}, nil
}

// CreateCollection creates a collection and records its dimension.
func (b *Backend) CreateCollection(ctx context.Context, name string, dimension int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.db.CreateCollection(name, nil, nil); err != nil {
		return fmt.Errorf("chromem: create collection %s: %w", name, err)
	}
	b.dimensions[name] = dimension
	b.order[name] = nil
	b.present[name] = make(map[string]bool)
	return nil
}

// DeleteCollection drops a collection and its bookkeeping.
func (b *Backend) DeleteCollection(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db.GetCollection(name, nil) == nil {
		return fmt.Errorf("chromem: collection %s: %w", name, storage.ErrCollectionNotFound)
	}
	if err := b.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("chromem: delete collection %s: %w", name, err)
	}
	delete(b.dimensions, name)
	delete(b.order, name)
	delete(b.present, name)
	return nil
}

// Upsert writes points; an existing id is replaced in place.
func (b *Backend) Upsert(ctx context.Context, collection string, points []storage.Point) error {
	col, err := b.collection(collection)
	if err != nil {
		return err
	}

	for _, point := range points {
		payloadJSON, err := json.Marshal(point.Payload)
		if err != nil {
			return fmt.Errorf("chromem: marshal payload for %s: %w", point.ID, err)
		}

		b.mu.Lock()
		if b.present[collection][point.ID] {
			// chromem has no update; drop the old document first.
			if err := col.Delete(ctx, nil, nil, point.ID); err != nil {
				b.mu.Unlock()
				return fmt.Errorf("chromem: replace %s: %w", point.ID, err)
			}
		} else {
			b.order[collection] = append(b.order[collection], point.ID)
			b.present[collection][point.ID] = true
		}
		b.mu.Unlock()

		doc := chromemgo.Document{
			ID:        point.ID,
			Content:   string(payloadJSON),
			Embedding: point.Vector,
			Metadata:  metadataFromPayload(point.Payload),
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("chromem: add document %s: %w", point.ID, err)
		}
	}
	return nil
}

// Query runs a where-filtered similarity search.
func (b *Backend) Query(ctx context.Context, collection string, vector []float32, filter storage.Filter, limit int, minScore float64) ([]storage.ScoredPoint, error) {
	return b.similarity(ctx, collection, vector, filter, limit, minScore)
}

// Search is identical to Query: an embedded store has no separate legacy
// path, so the fallback chain terminates at the first level.
func (b *Backend) Search(ctx context.Context, collection string, vector []float32, filter storage.Filter, limit int, minScore float64) ([]storage.ScoredPoint, error) {
	return b.similarity(ctx, collection, vector, filter, limit, minScore)
}

func (b *Backend) similarity(ctx context.Context, collection string, vector []float32, filter storage.Filter, limit int, minScore float64) ([]storage.ScoredPoint, error) {
	col, err := b.collection(collection)
	if err != nil {
		return nil, err
	}
	if col.Count() == 0 || limit <= 0 {
		return nil, nil
	}

	where := whereFromFilter(filter)

	// chromem rejects nResults larger than the (filtered) document count;
	// retry with smaller limits until the query fits.
	var results []chromemgo.Result
	for n := min(limit, col.Count()); n >= 1; n-- {
		results, err = col.QueryEmbedding(ctx, vector, n, where, nil)
		if err == nil {
			break
		}
		if !isTooManyResultsError(err) {
			return nil, fmt.Errorf("chromem: query: %w", err)
		}
		if n == 1 {
			return nil, nil
		}
	}

	hits := make([]storage.ScoredPoint, 0, len(results))
	for _, result := range results {
		score := float64(result.Similarity)
		if minScore > 0 && score < minScore {
			continue
		}
		payload, err := payloadFromContent(result.Content)
		if err != nil {
			return nil, err
		}
		hits = append(hits, storage.ScoredPoint{
			Point: storage.Point{ID: result.ID, Vector: result.Embedding, Payload: payload},
			Score: score,
		})
	}
	return hits, nil
}

// Scroll pages through points in insertion order. The cursor is a numeric
// index into the tracked id list.
func (b *Backend) Scroll(ctx context.Context, collection string, filter storage.Filter, limit int, offset string) ([]storage.Point, string, error) {
	col, err := b.collection(collection)
	if err != nil {
		return nil, "", err
	}

	start := 0
	if offset != "" {
		start, err = strconv.Atoi(offset)
		if err != nil {
			return nil, "", fmt.Errorf("chromem: bad scroll cursor %q: %w", offset, storage.ErrInvalidArgument)
		}
	}

	b.mu.RLock()
	ids := append([]string(nil), b.order[collection]...)
	b.mu.RUnlock()

	var points []storage.Point
	i := start
	for ; i < len(ids) && len(points) < limit; i++ {
		doc, err := col.GetByID(ctx, ids[i])
		if err != nil {
			continue
		}
		payload, err := payloadFromContent(doc.Content)
		if err != nil {
			return nil, "", err
		}
		if !filter.Matches(payload) {
			continue
		}
		points = append(points, storage.Point{ID: doc.ID, Vector: doc.Embedding, Payload: payload})
	}

	next := ""
	if i < len(ids) {
		next = strconv.Itoa(i)
	}
	return points, next, nil
}

// Retrieve fetches points by id; missing ids are skipped.
func (b *Backend) Retrieve(ctx context.Context, collection string, ids []string) ([]storage.Point, error) {
	col, err := b.collection(collection)
	if err != nil {
		return nil, err
	}

	var points []storage.Point
	for _, id := range ids {
		doc, err := col.GetByID(ctx, id)
		if err != nil {
			continue
		}
		payload, err := payloadFromContent(doc.Content)
		if err != nil {
			return nil, err
		}
		points = append(points, storage.Point{ID: doc.ID, Vector: doc.Embedding, Payload: payload})
	}
	return points, nil
}

// DeletePoints removes points by id; absent ids are ignored.
func (b *Backend) DeletePoints(ctx context.Context, collection string, ids []string) error {
	col, err := b.collection(collection)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var existing []string
	for _, id := range ids {
		if b.present[collection][id] {
			existing = append(existing, id)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, existing...); err != nil {
		return fmt.Errorf("chromem: delete points: %w", err)
	}
	b.untrack(collection, existing)
	return nil
}

// DeleteByFilter removes every point matching the filter.
func (b *Backend) DeleteByFilter(ctx context.Context, collection string, filter storage.Filter) error {
	matched := []string{}
	offset := ""
	for {
		points, next, err := b.Scroll(ctx, collection, filter, 64, offset)
		if err != nil {
			return err
		}
		for _, p := range points {
			matched = append(matched, p.ID)
		}
		if next == "" {
			break
		}
		offset = next
	}
	return b.DeletePoints(ctx, collection, matched)
}

func (b *Backend) collection(name string) (*chromemgo.Collection, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	col := b.db.GetCollection(name, nil)
	if col == nil {
		return nil, fmt.Errorf("chromem: collection %s: %w", name, storage.ErrCollectionNotFound)
	}
	return col, nil
}

// untrack removes ids from the bookkeeping maps. Caller holds b.mu.
func (b *Backend) untrack(collection string, ids []string) {
	for _, id := range ids {
		delete(b.present[collection], id)
	}
	kept := b.order[collection][:0]
	for _, id := range b.order[collection] {
		if b.present[collection][id] {
			kept = append(kept, id)
		}
	}
	b.order[collection] = kept
}

// metadataFromPayload mirrors payload fields into chromem string metadata so
// where-filters can run inside chromem.
func metadataFromPayload(payload map[string]interface{}) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	meta := make(map[string]string, len(payload))
	for key, value := range payload {
		meta[key] = fmt.Sprint(value)
	}
	return meta
}

// whereFromFilter stringifies filter values the same way metadataFromPayload
// does, so equality semantics line up.
func whereFromFilter(filter storage.Filter) map[string]string {
	if len(filter) == 0 {
		return nil
	}
	where := make(map[string]string, len(filter))
	for key, value := range filter {
		where[key] = fmt.Sprint(value)
	}
	return where
}

func payloadFromContent(content string) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("chromem: decode payload: %w", err)
	}
	return payload, nil
}

func isTooManyResultsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
