// Package storage defines the vector-store client abstraction shared by the
// conversational memory store and the document store.
//
// A Backend is a thin client for one external vector database. It exposes the
// operations the stores need (collection management, upserts, filtered
// similarity queries, pagination, deletes) and reports infrastructure-shape
// failures as typed sentinel errors so callers can fall back instead of
// failing. Backends never interpret payloads; all record semantics live in
// the stores built on top.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCollectionNotFound indicates the named collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrPermissionDenied indicates the backing store rejected the operation.
	// Callers downgrade this to a no-op or a fallback strategy; it is never
	// surfaced to the end user.
	ErrPermissionDenied = errors.New("permission denied by vector store")

	// ErrFilterUnsupported indicates the backing store requires a server-side
	// payload index it does not have, so filtered queries must be re-run
	// client-side.
	ErrFilterUnsupported = errors.New("server-side filtering unsupported")

	// ErrNotFound indicates an operation referenced a record id that does
	// not exist.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyContent indicates blank or whitespace-only text was passed to
	// an insert or update.
	ErrEmptyContent = errors.New("empty content")

	// ErrInvalidArgument indicates invalid call parameters, e.g. a bulk
	// delete with no scope filter at all.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Filter is a set of equality conditions over payload fields. A nil or empty
// filter matches every record.
type Filter map[string]interface{}

// Matches reports whether the payload satisfies every condition in the
// filter. Values are compared loosely so JSON round-tripped numbers
// (float64) still match their integer originals.
func (f Filter) Matches(payload map[string]interface{}) bool {
	for key, want := range f {
		got, ok := payload[key]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the filter so callers can extend it without
// mutating the original.
func (f Filter) Clone() Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func equalValue(a, b interface{}) bool {
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Point is one stored vector record with its free-form payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a point annotated with a similarity score. Higher scores
// mean higher similarity (cosine).
type ScoredPoint struct {
	Point
	Score float64
}

// CollectionInfo describes an existing collection.
type CollectionInfo struct {
	Name      string
	Dimension int
}

// Backend is the client contract for one external vector database.
// Implementations must be safe for concurrent use.
type Backend interface {
	// GetCollection returns metadata for an existing collection, or
	// ErrCollectionNotFound.
	GetCollection(ctx context.Context, name string) (*CollectionInfo, error)

	// CreateCollection creates a collection with the given vector dimension
	// and cosine distance.
	CreateCollection(ctx context.Context, name string, dimension int) error

	// DeleteCollection drops a collection and all of its points.
	DeleteCollection(ctx context.Context, name string) error

	// Upsert writes points synchronously; an existing id is replaced.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Query runs a filtered similarity search using the store's primary
	// query path, ordered by descending score. A minScore of 0 disables
	// threshold filtering.
	Query(ctx context.Context, collection string, vector []float32, filter Filter, limit int, minScore float64) ([]ScoredPoint, error)

	// Search runs a similarity search via the store's simpler legacy path.
	// Some deployments permit Search where Query is forbidden.
	Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int, minScore float64) ([]ScoredPoint, error)

	// Scroll pages through points matching the filter. The returned cursor
	// is passed back as offset on the next call; an empty cursor signals
	// exhaustion.
	Scroll(ctx context.Context, collection string, filter Filter, limit int, offset string) ([]Point, string, error)

	// Retrieve fetches points by id. Missing ids are simply absent from the
	// result, not an error.
	Retrieve(ctx context.Context, collection string, ids []string) ([]Point, error)

	// DeletePoints removes points by id; absent ids are ignored.
	DeletePoints(ctx context.Context, collection string, ids []string) error

	// DeleteByFilter removes every point matching the filter.
	DeleteByFilter(ctx context.Context, collection string, filter Filter) error
}
