package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/scrypster/aibuddy/internal/memory"
	"github.com/scrypster/aibuddy/internal/registry/sqlitestore"
	"github.com/scrypster/aibuddy/internal/storage"
	"github.com/scrypster/aibuddy/pkg/types"
)

// fakeMemorySearcher returns session-scoped hits when the scope carries a run
// id and global hits otherwise.
type fakeMemorySearcher struct {
	scoped []types.SearchHit
	global []types.SearchHit
	err    error
}

func (f *fakeMemorySearcher) Search(_ context.Context, _ string, scope memory.Scope, _ int, _ float64) ([]types.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if scope.RunID != "" {
		return f.scoped, nil
	}
	return f.global, nil
}

type fakeDocSearcher struct {
	hits []types.SearchHit
	err  error
}

func (f *fakeDocSearcher) Search(_ context.Context, _ string, _ storage.Filter, _ int, _ float64) ([]types.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func newTestRegistry(t *testing.T) *sqlitestore.Store {
	t.Helper()
	reg, err := sqlitestore.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestBuildTeachModeReturnsEmpty(t *testing.T) {
	reg := newTestRegistry(t)
	builder := NewContextBuilder(
		&fakeMemorySearcher{scoped: []types.SearchHit{{ID: "m1", Memory: "should not appear"}}},
		&fakeDocSearcher{hits: []types.SearchHit{{ID: "d1", Memory: "nor this", Title: "Doc"}}},
		reg, reg, DefaultContextParams())

	result := builder.Build(context.Background(), "what is a stack?", "s1", "u1", true)
	if result.ChatContext != "" || len(result.MemoryHits) != 0 || len(result.DocumentHits) != 0 {
		t.Errorf("teach mode must produce an empty context, got %+v", result)
	}
}

func TestBuildTwoTierMemorySearchDeduplicates(t *testing.T) {
	reg := newTestRegistry(t)
	builder := NewContextBuilder(
		&fakeMemorySearcher{
			scoped: []types.SearchHit{
				{ID: "a", Memory: "session fact"},
			},
			global: []types.SearchHit{
				{ID: "a", Memory: "session fact"}, // duplicate id, must not repeat
				{ID: "b", Memory: "global fact"},
			},
		},
		&fakeDocSearcher{},
		reg, reg, DefaultContextParams())

	result := builder.Build(context.Background(), "stacks", "s1", "u1", false)
	want := []string{"session fact", "global fact"}
	if len(result.MemoryHits) != len(want) {
		t.Fatalf("expected %v, got %v", want, result.MemoryHits)
	}
	for i := range want {
		if result.MemoryHits[i] != want[i] {
			t.Errorf("memory hit %d: want %q, got %q", i, want[i], result.MemoryHits[i])
		}
	}
}

func TestBuildDocumentSnippetsTitledAndDeduplicated(t *testing.T) {
	reg := newTestRegistry(t)
	builder := NewContextBuilder(
		&fakeMemorySearcher{},
		&fakeDocSearcher{hits: []types.SearchHit{
			{ID: "d1", Title: "Sorting Notes", Memory: "Quicksort partitions around a pivot."},
			{ID: "d2", Title: "Sorting Notes", Memory: "Quicksort partitions around a pivot."},
			{ID: "d3", Title: "Graph Notes", Memory: "BFS explores level by level."},
		}},
		reg, reg, DefaultContextParams())

	result := builder.Build(context.Background(), "sorting", "s1", "u1", false)
	if len(result.DocumentHits) != 2 {
		t.Fatalf("expected identical snippets collapsed, got %v", result.DocumentHits)
	}
	if result.DocumentHits[0] != "Sorting Notes:\nQuicksort partitions around a pivot." {
		t.Errorf("snippet missing title prefix: %q", result.DocumentHits[0])
	}
	if !strings.HasPrefix(result.ChatContext, "[Uploaded Document Context]") {
		t.Errorf("document section must lead the context, got %q", result.ChatContext)
	}
}

func TestBuildHistoryKeepsTrailingTurnsOnly(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 6; i++ {
		turn := types.ChatTurn{
			SessionID: "s1",
			UserInput: "question " + string(rune('a'+i)),
			AIOutput:  "answer " + string(rune('a'+i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			UserID:    "u1",
		}
		if err := reg.InsertTurn(ctx, turn); err != nil {
			t.Fatalf("insert turn: %v", err)
		}
	}

	builder := NewContextBuilder(&fakeMemorySearcher{}, &fakeDocSearcher{}, reg, reg, DefaultContextParams())
	result := builder.Build(ctx, "next", "s1", "u1", false)

	if len(result.HistoryRows) != 6 {
		t.Fatalf("HistoryRows must carry the full transcript, got %d rows", len(result.HistoryRows))
	}
	if strings.Contains(result.ChatContext, "question a") {
		t.Error("oldest turn leaked into the rendered context")
	}
	for _, suffix := range []string{"c", "d", "e", "f"} {
		if !strings.Contains(result.ChatContext, "Teacher: question "+suffix) {
			t.Errorf("trailing turn %q missing from context:\n%s", suffix, result.ChatContext)
		}
	}
}

func TestBuildSectionOrdering(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if err := reg.InsertTurn(ctx, types.ChatTurn{
		SessionID: "s1", UserInput: "hi", AIOutput: "hello", Timestamp: time.Now().UTC(), UserID: "u1",
	}); err != nil {
		t.Fatalf("insert turn: %v", err)
	}

	builder := NewContextBuilder(
		&fakeMemorySearcher{scoped: []types.SearchHit{{ID: "m1", Memory: "remembered"}}},
		&fakeDocSearcher{hits: []types.SearchHit{{ID: "d1", Title: "Doc", Memory: "chunk"}}},
		reg, reg, DefaultContextParams())

	result := builder.Build(ctx, "query", "s1", "u1", false)
	docIdx := strings.Index(result.ChatContext, "[Uploaded Document Context]")
	memIdx := strings.Index(result.ChatContext, "[Related Memories]")
	histIdx := strings.Index(result.ChatContext, "[Conversation History]")
	if docIdx == -1 || memIdx == -1 || histIdx == -1 {
		t.Fatalf("missing section in context:\n%s", result.ChatContext)
	}
	if !(docIdx < memIdx && memIdx < histIdx) {
		t.Errorf("sections out of order: doc=%d mem=%d hist=%d", docIdx, memIdx, histIdx)
	}
}

func TestBuildSummariesFormatted(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if err := reg.InsertSummary(ctx, types.SessionSummary{
		SessionID:      "old-session",
		TeacherSummary: "Taught binary search.",
		StudentSummary: "Understood halving.",
		UserID:         "u1",
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert summary: %v", err)
	}

	builder := NewContextBuilder(&fakeMemorySearcher{}, &fakeDocSearcher{}, reg, reg, DefaultContextParams())
	result := builder.Build(ctx, "query", "s1", "u1", false)

	if !strings.Contains(result.SessionSummaries, "[Teacher Summary - old-session]\nTaught binary search.") {
		t.Errorf("teacher summary block missing:\n%s", result.SessionSummaries)
	}
	if !strings.Contains(result.SessionSummaries, "[Student Summary - old-session]\nUnderstood halving.") {
		t.Errorf("student summary block missing:\n%s", result.SessionSummaries)
	}
}

func TestBuildDegradesWhenSourcesFail(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if err := reg.InsertTurn(ctx, types.ChatTurn{
		SessionID: "s1", UserInput: "hi", AIOutput: "hello", Timestamp: time.Now().UTC(), UserID: "u1",
	}); err != nil {
		t.Fatalf("insert turn: %v", err)
	}

	builder := NewContextBuilder(
		&fakeMemorySearcher{err: errors.New("vector store down")},
		&fakeDocSearcher{err: errors.New("vector store down")},
		reg, reg, DefaultContextParams())

	result := builder.Build(ctx, "query", "s1", "u1", false)
	if len(result.MemoryHits) != 0 || len(result.DocumentHits) != 0 {
		t.Errorf("failing sources must contribute nothing, got %+v", result)
	}
	if !strings.Contains(result.ChatContext, "[Conversation History]") {
		t.Errorf("healthy source must survive a failing one:\n%s", result.ChatContext)
	}
}
