package memory

import (
	"context"
	"crypto/sha256"
	"errors"
	"math"
	"testing"

	"github.com/scrypster/aibuddy/internal/llm"
	"github.com/scrypster/aibuddy/internal/storage"
	"github.com/scrypster/aibuddy/internal/storage/chromem"
)

// hashEmbedder derives a deterministic unit vector from the text, so the same
// text always embeds identically and ranks itself first in a search.
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
	store := NewStore(backend, embedder, "memories")
	if err := store.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady() failed: %v", err)
	}
	return store
}

func TestAddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	scope := Scope{UserID: "u1", AgentID: "buddy"}

	added, err := store.Add(ctx, "Recursion is a function calling itself", scope, nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if added.ID == "" {
		t.Fatal("Add() must mint an id")
	}
	if _, err := store.Add(ctx, "Base cases stop the recursion", scope, nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	hits, err := store.Search(ctx, "Recursion is a function calling itself", scope, 5, 0)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if hits[0].ID != added.ID {
		t.Errorf("identical text should rank first, got %s", hits[0].ID)
	}
	if hits[0].Memory != "Recursion is a function calling itself" {
		t.Errorf("hit text mismatch: %q", hits[0].Memory)
	}
	if _, ok := hits[0].Metadata["created_at"]; !ok {
		t.Error("hit metadata should carry created_at")
	}
	if _, ok := hits[0].Metadata["text"]; ok {
		t.Error("hit metadata must not duplicate the text field")
	}
}

func TestAddRejectsBlankText(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Add(context.Background(), "   \n ", Scope{UserID: "u1"}, nil)
	if !errors.Is(err, storage.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestAddMetadataCannotOverrideCoreFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	added, err := store.Add(ctx, "some fact", Scope{UserID: "u1"},
		map[string]interface{}{"hash": "forged", "type": "short_term"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	item, err := store.Get(ctx, added.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item.Metadata["hash"] == "forged" {
		t.Error("metadata must not override the content hash")
	}
	if item.Metadata["type"] != "short_term" {
		t.Errorf("extra metadata field lost: %+v", item.Metadata)
	}
}

func TestSearchRespectsScope(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Add(ctx, "u1 secret", Scope{UserID: "u1"}, nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if _, err := store.Add(ctx, "u2 secret", Scope{UserID: "u2"}, nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	hits, err := store.Search(ctx, "secret", Scope{UserID: "u1"}, 10, 0)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	for _, hit := range hits {
		if hit.Metadata["user_id"] != "u1" {
			t.Errorf("scope leak: %+v", hit.Metadata)
		}
	}
}

func TestGetAllPagesThroughScope(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	scope := Scope{UserID: "u1", RunID: "session-1"}

	texts := []string{"fact one", "fact two", "fact three"}
	for _, text := range texts {
		if _, err := store.Add(ctx, text, scope, nil); err != nil {
			t.Fatalf("Add(%q) failed: %v", text, err)
		}
	}
	if _, err := store.Add(ctx, "other run", Scope{UserID: "u1", RunID: "session-2"}, nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	items, err := store.GetAll(ctx, scope, 100)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(items) != len(texts) {
		t.Fatalf("expected %d items in run scope, got %d", len(texts), len(items))
	}
	for i, item := range items {
		if item.Memory != texts[i] {
			t.Errorf("insertion order broken at %d: %q", i, item.Memory)
		}
	}
}

func TestUpdatePreservesPayload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	scope := Scope{UserID: "u1", AgentID: "buddy"}

	added, err := store.Add(ctx, "original text", scope, map[string]interface{}{"type": "long_term"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	before, err := store.Get(ctx, added.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if err := store.Update(ctx, added.ID, "revised text"); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	after, err := store.Get(ctx, added.ID)
	if err != nil {
		t.Fatalf("Get() after update failed: %v", err)
	}
	if after.Memory != "revised text" {
		t.Errorf("text not updated: %q", after.Memory)
	}
	if after.Metadata["user_id"] != "u1" || after.Metadata["type"] != "long_term" {
		t.Errorf("payload fields lost on update: %+v", after.Metadata)
	}
	if after.Metadata["hash"] == before.Metadata["hash"] {
		t.Error("hash should change with the text")
	}
	if after.Metadata["created_at"] != before.Metadata["created_at"] {
		t.Error("created_at must survive an update")
	}
}

func TestUpdateMissingIDIsNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.Update(context.Background(), "no-such-id", "text")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	added, err := store.Add(ctx, "to be removed", Scope{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	if err := store.Delete(ctx, added.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete(ctx, added.ID); err != nil {
		t.Fatalf("second Delete() should be a no-op, got %v", err)
	}
	if _, err := store.Get(ctx, added.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted memory should be gone, got %v", err)
	}
}

func TestDeleteAllRequiresScope(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Add(ctx, "keep me", Scope{UserID: "u1"}, nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	if err := store.DeleteAll(ctx, Scope{}); !errors.Is(err, storage.ErrInvalidArgument) {
		t.Fatalf("empty scope must be rejected, got %v", err)
	}

	if err := store.DeleteAll(ctx, Scope{UserID: "u1"}); err != nil {
		t.Fatalf("DeleteAll() failed: %v", err)
	}
	items, err := store.GetAll(ctx, Scope{UserID: "u1"}, 10)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty scope after DeleteAll, got %d items", len(items))
	}
}

func TestResetWipesCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Add(ctx, "anything", Scope{UserID: "u1"}, nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}

	items, err := store.GetAll(ctx, Scope{UserID: "u1"}, 10)
	if err != nil {
		t.Fatalf("GetAll() after reset failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("reset collection should be empty, got %d items", len(items))
	}

	// The collection must be usable again immediately.
	if _, err := store.Add(ctx, "fresh start", Scope{UserID: "u1"}, nil); err != nil {
		t.Fatalf("Add() after reset failed: %v", err)
	}
}
