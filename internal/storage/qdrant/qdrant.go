// Package qdrant implements storage.Backend against the Qdrant REST API.
//
// The client maps Qdrant's infrastructure failures onto the typed errors the
// stores use for fallback: HTTP 403 (shared multi-tenant clusters frequently
// forbid collection management or the newer query endpoint) becomes
// storage.ErrPermissionDenied, and "index required" complaints about
// server-side payload filtering become storage.ErrFilterUnsupported.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scrypster/aibuddy/internal/storage"
)

// Config holds Qdrant client configuration.
type Config struct {
	// BaseURL is the Qdrant REST endpoint (default: http://localhost:6333).
	BaseURL string

	// APIKey is sent as the api-key header when non-empty.
	APIKey string

	// Timeout is the per-request timeout (default: 15s).
	Timeout time.Duration
}

// Backend is a storage.Backend over Qdrant's REST API.
type Backend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates a Qdrant backend with the given configuration.
func New(cfg Config) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Backend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

var _ storage.Backend = (*Backend)(nil)

// collectionInfoResponse is the relevant slice of GET /collections/{name}.
type collectionInfoResponse struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// GetCollection fetches collection metadata.
func (b *Backend) GetCollection(ctx context.Context, name string) (*storage.CollectionInfo, error) {
	var resp collectionInfoResponse
	err := b.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &storage.CollectionInfo{Name: name, Dimension: resp.Result.Config.Params.Vectors.Size}, nil
}

// CreateCollection creates a cosine-distance collection.
func (b *Backend) CreateCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return b.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name), body, nil)
}

// DeleteCollection drops a collection.
func (b *Backend) DeleteCollection(ctx context.Context, name string) error {
	return b.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name), nil, nil)
}

// Upsert writes points with wait=true so single-record adds are observable
// immediately after return.
func (b *Backend) Upsert(ctx context.Context, collection string, points []storage.Point) error {
	wire := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		wire = append(wire, map[string]interface{}{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		})
	}
	body := map[string]interface{}{"points": wire}
	return b.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(collection)+"/points?wait=true", body, nil)
}

type queryResponse struct {
	Result struct {
		Points []wireScoredPoint `json:"points"`
	} `json:"result"`
}

type searchResponse struct {
	Result []wireScoredPoint `json:"result"`
}

type wireScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
	Vector  []float32              `json:"vector"`
}

// Query runs the newer points/query endpoint with an optional filter.
func (b *Backend) Query(ctx context.Context, collection string, vector []float32, filter storage.Filter, limit int, minScore float64) ([]storage.ScoredPoint, error) {
	body := map[string]interface{}{
		"query":        vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := wireFilter(filter); f != nil {
		body["filter"] = f
	}
	if minScore > 0 {
		body["score_threshold"] = minScore
	}

	var resp queryResponse
	if err := b.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/query", body, &resp); err != nil {
		return nil, err
	}
	return fromWire(resp.Result.Points), nil
}

// Search runs the legacy points/search endpoint.
func (b *Backend) Search(ctx context.Context, collection string, vector []float32, filter storage.Filter, limit int, minScore float64) ([]storage.ScoredPoint, error) {
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := wireFilter(filter); f != nil {
		body["filter"] = f
	}
	if minScore > 0 {
		body["score_threshold"] = minScore
	}

	var resp searchResponse
	if err := b.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/search", body, &resp); err != nil {
		return nil, err
	}
	return fromWire(resp.Result), nil
}

type scrollResponse struct {
	Result struct {
		Points         []wireScoredPoint `json:"points"`
		NextPageOffset json.RawMessage   `json:"next_page_offset"`
	} `json:"result"`
}

// Scroll pages through points matching the filter. The cursor is Qdrant's
// next_page_offset passed through verbatim as JSON text.
func (b *Backend) Scroll(ctx context.Context, collection string, filter storage.Filter, limit int, offset string) ([]storage.Point, string, error) {
	body := map[string]interface{}{
		"limit":        limit,
		"with_payload": true,
	}
	if f := wireFilter(filter); f != nil {
		body["filter"] = f
	}
	if offset != "" {
		body["offset"] = json.RawMessage(offset)
	}

	var resp scrollResponse
	if err := b.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/scroll", body, &resp); err != nil {
		return nil, "", err
	}

	points := make([]storage.Point, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		points = append(points, storage.Point{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
	}

	next := string(resp.Result.NextPageOffset)
	if next == "null" {
		next = ""
	}
	return points, next, nil
}

type retrieveResponse struct {
	Result []wireScoredPoint `json:"result"`
}

// Retrieve fetches points by id.
func (b *Backend) Retrieve(ctx context.Context, collection string, ids []string) ([]storage.Point, error) {
	body := map[string]interface{}{
		"ids":          ids,
		"with_payload": true,
	}

	var resp retrieveResponse
	if err := b.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points", body, &resp); err != nil {
		return nil, err
	}

	points := make([]storage.Point, 0, len(resp.Result))
	for _, p := range resp.Result {
		points = append(points, storage.Point{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
	}
	return points, nil
}

// DeletePoints removes points by id.
func (b *Backend) DeletePoints(ctx context.Context, collection string, ids []string) error {
	body := map[string]interface{}{"points": ids}
	return b.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/delete?wait=true", body, nil)
}

// DeleteByFilter removes every point matching the filter.
func (b *Backend) DeleteByFilter(ctx context.Context, collection string, filter storage.Filter) error {
	body := map[string]interface{}{"filter": wireFilter(filter)}
	return b.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/delete?wait=true", body, nil)
}

// wireFilter converts an equality filter into Qdrant's must/match form.
func wireFilter(filter storage.Filter) map[string]interface{} {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]map[string]interface{}, 0, len(filter))
	for key, value := range filter {
		conditions = append(conditions, map[string]interface{}{
			"key":   key,
			"match": map[string]interface{}{"value": value},
		})
	}
	return map[string]interface{}{"must": conditions}
}

func fromWire(points []wireScoredPoint) []storage.ScoredPoint {
	out := make([]storage.ScoredPoint, 0, len(points))
	for _, p := range points {
		out = append(out, storage.ScoredPoint{
			Point: storage.Point{ID: p.ID, Vector: p.Vector, Payload: p.Payload},
			Score: p.Score,
		})
	}
	return out
}

// do performs one REST call and decodes the response into out when non-nil.
func (b *Backend) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("qdrant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return classifyError(resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}

// classifyError maps Qdrant error responses onto the typed storage errors
// that drive the search fallback chain.
func classifyError(status int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusForbidden || strings.Contains(lower, "forbidden"):
		return fmt.Errorf("qdrant: status %d: %s: %w", status, body, storage.ErrPermissionDenied)
	case strings.Contains(lower, "index required") || strings.Contains(lower, "payload index"):
		return fmt.Errorf("qdrant: status %d: %s: %w", status, body, storage.ErrFilterUnsupported)
	case status == http.StatusNotFound:
		return fmt.Errorf("qdrant: status %d: %s: %w", status, body, storage.ErrCollectionNotFound)
	default:
		return fmt.Errorf("qdrant: status %d: %s", status, body)
	}
}
