// Package types defines the shared data model for the AI Buddy backend:
// memory records, document ingestion results, chat turns, session metadata,
// and the per-turn result envelope returned by the chat orchestrator.
package types

import "time"

// Memory type discriminators stored in the payload "type" field.
const (
	MemoryTypeShortTerm      = "short_term"
	MemoryTypeLongTerm       = "long_term"
	MemoryTypeSessionSummary = "session_summary"
	MemoryTypeSystem         = "system"
)

// MemoryItem is one stored conversational memory as returned by listing
// operations. Metadata carries every payload field except the raw text.
type MemoryItem struct {
	ID       string                 `json:"id"`
	Memory   string                 `json:"memory"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchHit is a similarity search result. Title is populated only for
// document hits, derived from the chunk metadata.
type SearchHit struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Memory   string                 `json:"memory"`
	Title    string                 `json:"title,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AddResult is returned by a single-record memory insert.
type AddResult struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// IngestResult is returned by document ingestion.
type IngestResult struct {
	DocID  string `json:"doc_id"`
	Chunks int    `json:"chunks"`
}

// ChatTurn is one completed exchange in a session transcript.
// Turns are appended once and never mutated.
type ChatTurn struct {
	SessionID string    `json:"session_id" bson:"session_id"`
	UserInput string    `json:"user_input" bson:"user_input"`
	AIOutput  string    `json:"ai_output" bson:"ai_output"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	UserID    string    `json:"user_id" bson:"user_id"`
}

// Session holds per-session metadata maintained by the session registry.
type Session struct {
	SessionID string    `json:"session_id" bson:"session_id"`
	Title     string    `json:"title" bson:"title"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
	UserID    string    `json:"user_id" bson:"user_id"`
}

// SessionSummary is an immutable two-part summary of a session, produced
// asynchronously once the transcript crosses a length threshold.
type SessionSummary struct {
	SessionID      string    `json:"session_id" bson:"session_id"`
	TeacherSummary string    `json:"teacher_summary" bson:"teacher_summary"`
	StudentSummary string    `json:"student_summary" bson:"student_summary"`
	UserID         string    `json:"user_id" bson:"user_id"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

// TurnResult is the envelope returned for every handled chat turn.
// Silent is true only when teach mode suppressed the reply and no
// system-action confirmation overrode it.
type TurnResult struct {
	Response     string `json:"response"`
	ContextCount int    `json:"context_count"`
	SessionID    string `json:"session_id"`
	Silent       bool   `json:"silent"`
	Sources      string `json:"sources,omitempty"`
}
