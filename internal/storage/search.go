package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// manualFetchCap bounds the candidate set fetched for client-side filtering.
const manualFetchCap = 100

// SimilaritySearch executes a filtered similarity search against the backend
// with graceful multi-level fallback:
//
//  1. The primary filtered query path.
//  2. On ErrPermissionDenied, the simpler legacy search path, still filtered.
//  3. On ErrFilterUnsupported from either path, an unfiltered search over a
//     larger candidate set (min(limit*5, 100)) with the equality filter
//     applied in-process, truncated to limit.
//
// Any other error propagates. Results are ordered by descending score.
func SimilaritySearch(ctx context.Context, b Backend, collection string, vector []float32, filter Filter, limit int, minScore float64) ([]ScoredPoint, error) {
	points, err := b.Query(ctx, collection, vector, filter, limit, minScore)
	if err == nil {
		return points, nil
	}

	if errors.Is(err, ErrPermissionDenied) {
		points, err = b.Search(ctx, collection, vector, filter, limit, minScore)
		if err == nil {
			return points, nil
		}
	}

	if errors.Is(err, ErrFilterUnsupported) {
		return manualFilterSearch(ctx, b, collection, vector, filter, limit, minScore)
	}

	return nil, err
}

// manualFilterSearch fetches a larger unfiltered candidate set ranked by
// similarity alone and applies the equality filter client-side.
func manualFilterSearch(ctx context.Context, b Backend, collection string, vector []float32, filter Filter, limit int, minScore float64) ([]ScoredPoint, error) {
	fetchLimit := limit * 5
	if fetchLimit < limit {
		fetchLimit = limit
	}
	if fetchLimit > manualFetchCap {
		fetchLimit = manualFetchCap
	}

	candidates, err := b.Search(ctx, collection, vector, nil, fetchLimit, minScore)
	if err != nil {
		return nil, fmt.Errorf("storage: manual filter fallback: %w", err)
	}

	matched := make([]ScoredPoint, 0, limit)
	for _, point := range candidates {
		if filter.Matches(point.Payload) {
			matched = append(matched, point)
			if len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

// EnsureCollection makes the named collection exist with the configured
// dimension. A missing collection is created; an existing one with a
// mismatched dimension is dropped and recreated (stale vectors of the wrong
// size are never retained). Permission errors from the backing store are
// logged and skipped rather than surfaced; the store may be a shared,
// partially-writable cluster.
func EnsureCollection(ctx context.Context, b Backend, name string, dimension int) error {
	info, err := b.GetCollection(ctx, name)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			log.Printf("storage: skipping collection ensure for %s (permission denied)", name)
			return nil
		}
		if !errors.Is(err, ErrCollectionNotFound) {
			return fmt.Errorf("storage: inspect collection %s: %w", name, err)
		}
		return createCollection(ctx, b, name, dimension)
	}

	if info.Dimension == dimension {
		return nil
	}

	log.Printf("storage: dimension mismatch for collection %s (expected %d, got %d); recreating",
		name, dimension, info.Dimension)
	if err := b.DeleteCollection(ctx, name); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			log.Printf("storage: skipping collection recreation for %s (delete forbidden)", name)
			return nil
		}
		return fmt.Errorf("storage: drop collection %s: %w", name, err)
	}
	return createCollection(ctx, b, name, dimension)
}

func createCollection(ctx context.Context, b Backend, name string, dimension int) error {
	if err := b.CreateCollection(ctx, name, dimension); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			log.Printf("storage: skipping collection creation for %s (permission denied)", name)
			return nil
		}
		return fmt.Errorf("storage: create collection %s: %w", name, err)
	}
	return nil
}

// ResetCollection drops and recreates a collection unconditionally. The drop
// is best-effort: if it fails because the collection does not exist, the
// recreate still proceeds.
func ResetCollection(ctx context.Context, b Backend, name string, dimension int) error {
	if err := b.DeleteCollection(ctx, name); err != nil && !errors.Is(err, ErrCollectionNotFound) {
		log.Printf("storage: reset: collection %s could not be deleted: %v", name, err)
	}
	return createCollection(ctx, b, name, dimension)
}
