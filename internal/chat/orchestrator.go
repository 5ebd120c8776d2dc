package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/scrypster/aibuddy/internal/llm"
	"github.com/scrypster/aibuddy/internal/memory"
	"github.com/scrypster/aibuddy/internal/registry"
	"github.com/scrypster/aibuddy/pkg/types"
)

// noOutputReply is returned when the model produced a blank completion.
const noOutputReply = "Agent returned no output."

// MemoryService is the slice of the memory store the orchestrator needs.
type MemoryService interface {
	MemorySearcher
	Add(ctx context.Context, text string, scope memory.Scope, metadata map[string]interface{}) (*types.AddResult, error)
	Reset(ctx context.Context) error
}

// Orchestrator handles complete chat turns.
type Orchestrator struct {
	generator      llm.TextGenerator
	memories       MemoryService
	contextBuilder *ContextBuilder
	reg            registry.Registry
	teachMode      *TeachMode
	summarizer     *Summarizer
	params         ContextParams

	// summaryInterval triggers a background summary every n-th turn;
	// summaryTokenThreshold triggers one whenever the assembled context
	// exceeds this many tokens.
	summaryInterval       int
	summaryTokenThreshold int
}

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Generator             llm.TextGenerator
	Memories              MemoryService
	Documents             DocumentSearcher
	Registry              registry.Registry
	TeachMode             *TeachMode
	Params                ContextParams
	SummaryInterval       int
	SummaryTokenThreshold int
}

// NewOrchestrator assembles the turn pipeline.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.SummaryInterval <= 0 {
		cfg.SummaryInterval = 6
	}
	if cfg.SummaryTokenThreshold <= 0 {
		cfg.SummaryTokenThreshold = 2000
	}
	if cfg.TeachMode == nil {
		cfg.TeachMode = &TeachMode{}
	}
	return &Orchestrator{
		generator:             cfg.Generator,
		memories:              cfg.Memories,
		contextBuilder:        NewContextBuilder(cfg.Memories, cfg.Documents, cfg.Registry, cfg.Registry, cfg.Params),
		reg:                   cfg.Registry,
		teachMode:             cfg.TeachMode,
		summarizer:            NewSummarizer(cfg.Generator, cfg.Registry),
		params:                cfg.Params,
		summaryInterval:       cfg.SummaryInterval,
		summaryTokenThreshold: cfg.SummaryTokenThreshold,
	}
}

// TeachMode exposes the toggle for admin surfaces.
func (o *Orchestrator) TeachMode() *TeachMode {
	return o.teachMode
}

// Summarizer exposes the background summarizer, mainly so callers can wait
// for in-flight summaries during shutdown.
func (o *Orchestrator) Summarizer() *Summarizer {
	return o.summarizer
}

// HandleChat runs one full turn: developer commands, context assembly, the
// LLM call, hidden action handling, persistence and the summary trigger.
// An empty sessionID starts a new session.
func (o *Orchestrator) HandleChat(ctx context.Context, prompt, sessionID, userID string) (*types.TurnResult, error) {
	activeSession := sessionID
	if activeSession == "" {
		activeSession = NewSessionID()
	}

	if cmd := DetectDevCommand(prompt); cmd != nil {
		return o.handleDevCommand(ctx, cmd, activeSession, userID)
	}

	teachOn := o.teachMode.IsOn()
	turnContext := o.contextBuilder.Build(ctx, prompt, activeSession, userID, teachOn)

	if teachOn {
		log.Printf("chat: teach mode active, skipping context aggregation for %s", activeSession)
	} else {
		log.Printf("chat: loaded %d previous messages, %d memories, %d document hits for %s",
			len(turnContext.HistoryRows), len(turnContext.MemoryHits), len(turnContext.DocumentHits), activeSession)
	}

	userPrompt := composePrompt(activeSession, teachOn, turnContext.SessionSummaries, turnContext.ChatContext, prompt)

	rawReply, err := o.generator.Complete(ctx, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("chat: completion failed: %w", err)
	}

	replyText := prepareReply(rawReply, teachOn)
	silent := teachOn

	replyText, actions := SanitizeReply(replyText)
	for _, action := range actions {
		sysReply, nextSession := o.executeAction(ctx, action, activeSession)
		if nextSession != "" {
			activeSession = nextSession
		}
		if sysReply != "" {
			// A confirmed system action always surfaces, even in
			// teach mode.
			replyText = sysReply
			silent = false
		}
	}

	replyText, sourcesBlock := splitSourcesBlock(replyText)

	o.storeShortTermMemory(ctx, prompt, replyText, activeSession, userID)
	o.persistTurn(ctx, prompt, replyText, activeSession, userID)
	o.maybeQueueSummary(turnContext, activeSession, userID)

	return &types.TurnResult{
		Response:     replyText,
		ContextCount: len(turnContext.HistoryRows),
		SessionID:    activeSession,
		Silent:       silent,
		Sources:      sourcesBlock,
	}, nil
}

func (o *Orchestrator) handleDevCommand(ctx context.Context, cmd *DevCommand, sessionID, userID string) (*types.TurnResult, error) {
	switch cmd.Cmd {
	case "search_topic":
		if cmd.Arg == "" {
			return &types.TurnResult{Response: "Provide a search query.", SessionID: sessionID}, nil
		}
		hits, err := o.memories.Search(ctx, cmd.Arg,
			memory.Scope{UserID: userID, AgentID: o.params.AgentID}, 5, 0)
		if err != nil {
			return nil, fmt.Errorf("chat: topic search failed: %w", err)
		}
		var formatted []string
		for i, hit := range hits {
			formatted = append(formatted, fmt.Sprintf("%d. %s\n   score: %.3f", i+1, hit.Memory, hit.Score))
		}
		response := fmt.Sprintf("Found %d results for %q.\n\n%s", len(hits), cmd.Arg, strings.Join(formatted, "\n\n"))
		return &types.TurnResult{Response: response, SessionID: sessionID}, nil

	case "reset":
		if err := o.memories.Reset(ctx); err != nil {
			return nil, fmt.Errorf("chat: reset failed: %w", err)
		}
		return &types.TurnResult{Response: "Memory store reset successfully.", SessionID: sessionID}, nil
	}
	return &types.TurnResult{Response: "Unknown command.", SessionID: sessionID}, nil
}

// executeAction runs one hidden agent command. It returns the confirmation
// text ("" for unrecognized commands) and, for session switches, the id the
// turn should continue under.
func (o *Orchestrator) executeAction(ctx context.Context, action Action, sessionID string) (string, string) {
	switch action.Key {
	case "topic":
		topic := action.Value
		if topic == "" {
			topic = "general"
		}
		if err := o.reg.RenameSession(ctx, sessionID, topic); err != nil {
			log.Printf("chat: topic rename failed: %v", err)
		}
		return fmt.Sprintf("Topic switched to %s.", topic), ""

	case "session":
		title := action.Value
		if title == "" || title == "new" {
			title = "general"
		}
		newSession := NewSessionID()
		if err := o.reg.RenameSession(ctx, newSession, title); err != nil {
			log.Printf("chat: new session registration failed: %v", err)
		}
		return fmt.Sprintf("New session started (%s)", newSession), newSession

	case "reset":
		if err := o.memories.Reset(ctx); err != nil {
			log.Printf("chat: memory reset failed: %v", err)
			return "Memory store reset failed.", ""
		}
		return "Memory store reset successfully.", ""
	}
	return "", ""
}

// storeShortTermMemory persists the exchange into the vector store so later
// turns can retrieve it semantically.
func (o *Orchestrator) storeShortTermMemory(ctx context.Context, prompt, replyText, sessionID, userID string) {
	snippet := fmt.Sprintf("Teacher: %s\nStudent: %s", prompt, replyText)
	scope := memory.Scope{UserID: userID, AgentID: o.params.AgentID, RunID: sessionID}
	if _, err := o.memories.Add(ctx, snippet, scope, map[string]interface{}{"type": types.MemoryTypeShortTerm}); err != nil {
		log.Printf("chat: short-term memory store failed: %v", err)
	}
}

// persistTurn appends the exchange to the transcript, skipping sides that are
// pure context scaffolding, and keeps the session heartbeat fresh.
func (o *Orchestrator) persistTurn(ctx context.Context, prompt, replyText, sessionID, userID string) {
	userEntry := prompt
	if isContextBlock(userEntry) {
		userEntry = ""
	}
	replyEntry := replyText
	if isContextBlock(replyEntry) {
		replyEntry = ""
	}

	if userEntry != "" || replyEntry != "" {
		turn := types.ChatTurn{
			SessionID: sessionID,
			UserInput: userEntry,
			AIOutput:  replyEntry,
			Timestamp: time.Now().UTC(),
			UserID:    userID,
		}
		if err := o.reg.InsertTurn(ctx, turn); err != nil {
			log.Printf("chat: transcript insert failed: %v", err)
		}
	}
	if err := o.reg.TouchSession(ctx, sessionID, userID); err != nil {
		log.Printf("chat: session touch failed: %v", err)
	}
}

// maybeQueueSummary fires a background summary for long sessions: whenever
// the context grows past the token threshold, or every summaryInterval-th
// turn.
func (o *Orchestrator) maybeQueueSummary(turnContext ContextResult, sessionID, userID string) {
	turnCount := len(turnContext.HistoryRows)
	if turnCount == 0 {
		return
	}
	tokenCount := llm.CountTokens(turnContext.ChatContext)
	if tokenCount <= o.summaryTokenThreshold && turnCount%o.summaryInterval != 0 {
		return
	}

	var teacherLines, studentLines []string
	for _, row := range turnContext.HistoryRows {
		if row.UserInput != "" {
			teacherLines = append(teacherLines, row.UserInput)
		}
		if row.AIOutput != "" {
			studentLines = append(studentLines, row.AIOutput)
		}
	}
	teacherText := strings.Join(teacherLines, "\n")
	studentText := strings.Join(studentLines, "\n")
	if teacherText == "" && studentText == "" {
		return
	}

	o.summarizer.Queue(sessionID, teacherText, studentText, userID)
}

// composePrompt wraps the turn in the session header, assembled context,
// recent summaries and the standing agent instructions.
func composePrompt(sessionID string, teachOn bool, sessionSummaries, chatContext, prompt string) string {
	mode := "OFF"
	contextSection := chatContext
	if teachOn {
		mode = "ON"
		contextSection = ""
	}
	summariesSection := ""
	if strings.TrimSpace(sessionSummaries) != "" {
		summariesSection = fmt.Sprintf("[Session Summaries]\n%s\n\n", strings.TrimSpace(sessionSummaries))
	}

	return fmt.Sprintf("[Session: %s] [TeachMode: %s]\n", sessionID, mode) +
		fmt.Sprintf("[Time: %s]\n", time.Now().UTC().Format(time.RFC3339)) +
		contextSection + "\n" +
		summariesSection +
		"\n---\nIMPORTANT:\n" +
		" - Treat [Uploaded Document Context] and [Related Memories] as previously taught material whenever relevant.\n" +
		" - When the teacher paraphrases earlier topics, infer continuity and answer using prior knowledge.\n" +
		" - Student messages are conversational reflections only; rely on Teacher and Document content for facts.\n" +
		" - Summaries of prior sessions are authoritative for continuing the current dialogue.\n" +
		llm.AgentInstructions + "\n\n" +
		fmt.Sprintf("Teacher: %s\nStudent:", prompt)
}

// prepareReply suppresses output in teach mode and substitutes a sentinel for
// blank completions.
func prepareReply(rawReply string, teachOn bool) string {
	if teachOn {
		return ""
	}
	reply := strings.TrimSpace(rawReply)
	if reply == "" {
		return noOutputReply
	}
	return reply
}

// splitSourcesBlock separates a trailing "Sources:" block from the answer.
func splitSourcesBlock(reply string) (string, string) {
	if reply == "" {
		return "", ""
	}
	idx := strings.Index(reply, "Sources:")
	if idx == -1 {
		return strings.TrimSpace(reply), ""
	}
	return strings.TrimSpace(reply[:idx]), strings.TrimSpace(reply[idx:])
}

// isContextBlock reports whether text is context scaffolding rather than a
// real conversational message.
func isContextBlock(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	prefixes := []string{
		"[Uploaded Document Context]",
		"[Related Memories]",
		"[Session Summaries]",
		"========== FULL PROMPT",
		"========== CONTEXT OUTLINE",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
