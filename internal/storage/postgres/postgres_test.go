package postgres

import (
	"errors"
	"testing"

	"github.com/lib/pq"

	"github.com/scrypster/aibuddy/internal/storage"
)

func TestTableName(t *testing.T) {
	got, err := tableName("ai_buddy-memory")
	if err != nil {
		t.Fatalf("tableName() failed: %v", err)
	}
	if got != `"vectors_ai_buddy_memory"` {
		t.Errorf("unexpected table name %s", got)
	}

	if _, err := tableName(`mem"; DROP TABLE x;--`); !errors.Is(err, storage.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for hostile name, got %v", err)
	}
	if _, err := tableName(""); !errors.Is(err, storage.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for empty name, got %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	denied := classifyError("query", &pq.Error{Code: "42501", Message: "permission denied for table"})
	if !errors.Is(denied, storage.ErrPermissionDenied) {
		t.Errorf("42501 should map to ErrPermissionDenied, got %v", denied)
	}

	missing := classifyError("query", &pq.Error{Code: "42P01", Message: "relation does not exist"})
	if !errors.Is(missing, storage.ErrCollectionNotFound) {
		t.Errorf("42P01 should map to ErrCollectionNotFound, got %v", missing)
	}

	plain := errors.New("connection reset")
	wrapped := classifyError("query", plain)
	if !errors.Is(wrapped, plain) {
		t.Errorf("unknown errors should stay wrapped, got %v", wrapped)
	}
	if errors.Is(wrapped, storage.ErrPermissionDenied) {
		t.Error("unknown errors must not gain a permission classification")
	}
}
