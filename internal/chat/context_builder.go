package chat

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/scrypster/aibuddy/internal/memory"
	"github.com/scrypster/aibuddy/internal/registry"
	"github.com/scrypster/aibuddy/internal/storage"
	"github.com/scrypster/aibuddy/pkg/types"
)

// MemorySearcher is the slice of the memory store the context builder needs.
type MemorySearcher interface {
	Search(ctx context.Context, query string, scope memory.Scope, limit int, minScore float64) ([]types.SearchHit, error)
}

// DocumentSearcher is the slice of the document store the context builder needs.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, filter storage.Filter, limit int, minScore float64) ([]types.SearchHit, error)
}

// ContextParams tunes how much of each context source makes it into the
// prompt.
type ContextParams struct {
	MaxHistoryTurns   int    // turns of transcript included verbatim
	MemoryLimit       int    // memory snippets in the prompt
	DocumentLimit     int    // document chunks in the prompt
	SummaryLimit      int    // recent session summaries in the prompt
	ChatSearchLimit   int    // memory hits fetched per search tier
	HistoryFetchLimit int    // transcript rows loaded from the registry
	AgentID           string // memory agent scope
}

// DefaultContextParams returns the standard tuning.
func DefaultContextParams() ContextParams {
	return ContextParams{
		MaxHistoryTurns:   4,
		MemoryLimit:       5,
		DocumentLimit:     5,
		SummaryLimit:      2,
		ChatSearchLimit:   5,
		HistoryFetchLimit: 50,
		AgentID:           "general",
	}
}

// ContextResult is everything assembled for one turn. HistoryRows carries the
// full fetched transcript (the summary trigger counts it), while ChatContext
// contains only the trailing MaxHistoryTurns.
type ContextResult struct {
	ChatContext      string
	HistoryRows      []types.ChatTurn
	MemoryHits       []string
	DocumentHits     []string
	SessionSummaries string
}

// ContextBuilder gathers the document, memory, transcript and summary slices
// of a prompt. Every source degrades independently: a failing store logs a
// warning and contributes nothing instead of failing the turn.
type ContextBuilder struct {
	memories  MemorySearcher
	documents DocumentSearcher
	sessions  registry.SessionRegistry
	summaries registry.SummaryRegistry
	params    ContextParams
}

// NewContextBuilder creates a context builder.
func NewContextBuilder(memories MemorySearcher, documents DocumentSearcher,
	sessions registry.SessionRegistry, summaries registry.SummaryRegistry, params ContextParams) *ContextBuilder {
	return &ContextBuilder{
		memories:  memories,
		documents: documents,
		sessions:  sessions,
		summaries: summaries,
		params:    params,
	}
}

// Build assembles the context for one prompt. In teach mode it returns an
// empty result immediately: the agent is not supposed to see anything.
func (b *ContextBuilder) Build(ctx context.Context, prompt, sessionID, userID string, teachMode bool) ContextResult {
	if teachMode {
		return ContextResult{}
	}

	historyRows := b.history(ctx, sessionID)
	memoryHits := b.memoryHits(ctx, prompt, sessionID, userID)
	documentHits := b.documentHits(ctx, prompt, userID)
	summaryText := b.sessionSummaries(ctx, userID)

	if len(memoryHits) > b.params.MemoryLimit {
		memoryHits = memoryHits[:b.params.MemoryLimit]
	}

	var sections []string
	if len(documentHits) > 0 {
		sections = append(sections, "[Uploaded Document Context]\n"+strings.Join(documentHits, "\n\n"))
	}
	if len(memoryHits) > 0 {
		sections = append(sections, "[Related Memories]\n"+strings.Join(memoryHits, "\n"))
	}
	if historyText := formatHistory(historyRows, b.params.MaxHistoryTurns); historyText != "" {
		sections = append(sections, "[Conversation History]\n"+historyText)
	}

	return ContextResult{
		ChatContext:      strings.Join(sections, "\n\n"),
		HistoryRows:      historyRows,
		MemoryHits:       memoryHits,
		DocumentHits:     documentHits,
		SessionSummaries: summaryText,
	}
}

func (b *ContextBuilder) history(ctx context.Context, sessionID string) []types.ChatTurn {
	rows, err := b.sessions.FetchHistory(ctx, sessionID, b.params.HistoryFetchLimit)
	if err != nil {
		log.Printf("chat: history unavailable for %s: %v", sessionID, err)
		return nil
	}
	return rows
}

// memoryHits searches in two tiers: session-scoped first, then user-global to
// top up, deduplicating by memory id so a snippet never appears twice.
func (b *ContextBuilder) memoryHits(ctx context.Context, prompt, sessionID, userID string) []string {
	limit := b.params.ChatSearchLimit

	scoped, err := b.memories.Search(ctx, prompt,
		memory.Scope{UserID: userID, AgentID: b.params.AgentID, RunID: sessionID}, limit, 0)
	if err != nil {
		log.Printf("chat: session memory search failed: %v", err)
	}

	combined := scoped
	if len(combined) < limit {
		global, err := b.memories.Search(ctx, prompt,
			memory.Scope{UserID: userID, AgentID: b.params.AgentID}, limit, 0)
		if err != nil {
			log.Printf("chat: global memory search failed: %v", err)
		}
		seen := make(map[string]bool, len(combined))
		for _, hit := range combined {
			seen[hit.ID] = true
		}
		for _, hit := range global {
			if seen[hit.ID] {
				continue
			}
			combined = append(combined, hit)
			seen[hit.ID] = true
			if len(combined) >= limit {
				break
			}
		}
	}

	var hits []string
	for _, hit := range combined {
		if hit.Memory != "" {
			hits = append(hits, hit.Memory)
		}
	}
	return hits
}

// documentHits returns titled snippets, deduplicated while preserving rank
// order so overlapping chunks don't crowd the prompt.
func (b *ContextBuilder) documentHits(ctx context.Context, prompt, userID string) []string {
	hits, err := b.documents.Search(ctx, prompt, storage.Filter{"user_id": userID}, b.params.DocumentLimit, 0)
	if err != nil {
		log.Printf("chat: document search failed: %v", err)
		return nil
	}

	seen := make(map[string]bool, len(hits))
	var snippets []string
	for _, hit := range hits {
		snippet := fmt.Sprintf("%s:\n%s", hit.Title, hit.Memory)
		if seen[snippet] {
			continue
		}
		seen[snippet] = true
		snippets = append(snippets, snippet)
		if len(snippets) >= b.params.DocumentLimit {
			break
		}
	}
	return snippets
}

func (b *ContextBuilder) sessionSummaries(ctx context.Context, userID string) string {
	docs, err := b.summaries.FetchRecentSummaries(ctx, userID, b.params.SummaryLimit)
	if err != nil {
		log.Printf("chat: session summaries unavailable: %v", err)
		return ""
	}

	var blocks []string
	for _, doc := range docs {
		var parts []string
		if teacher := strings.TrimSpace(doc.TeacherSummary); teacher != "" {
			parts = append(parts, fmt.Sprintf("[Teacher Summary - %s]\n%s", doc.SessionID, teacher))
		}
		if student := strings.TrimSpace(doc.StudentSummary); student != "" {
			parts = append(parts, fmt.Sprintf("[Student Summary - %s]\n%s", doc.SessionID, student))
		}
		if len(parts) > 0 {
			blocks = append(blocks, strings.Join(parts, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n")
}

// formatHistory renders the trailing maxTurns exchanges as Teacher/Student
// line pairs.
func formatHistory(rows []types.ChatTurn, maxTurns int) string {
	if len(rows) > maxTurns {
		rows = rows[len(rows)-maxTurns:]
	}
	var lines []string
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("Teacher: %s\nStudent: %s", row.UserInput, row.AIOutput))
	}
	return strings.Join(lines, "\n")
}
