// Package registry defines the relational side of the backend: session
// metadata, chat transcripts and session summaries. Two implementations
// exist, an embedded SQLite store for single-node deployments and a MongoDB
// store for shared ones.
package registry

import (
	"context"

	"github.com/scrypster/aibuddy/pkg/types"
)

// SessionRegistry persists chat transcripts and session metadata.
type SessionRegistry interface {
	// InsertTurn appends one completed exchange to the transcript.
	InsertTurn(ctx context.Context, turn types.ChatTurn) error

	// FetchHistory returns up to limit turns of a session in
	// chronological order.
	FetchHistory(ctx context.Context, sessionID string, limit int) ([]types.ChatTurn, error)

	// TouchSession upserts session metadata, bumping updated_at and
	// setting created_at only on first touch.
	TouchSession(ctx context.Context, sessionID, userID string) error

	// RenameSession sets the session title, creating the session row if
	// it does not exist yet.
	RenameSession(ctx context.Context, sessionID, title string) error

	// ListSessions returns all sessions, most recently active first.
	ListSessions(ctx context.Context) ([]types.Session, error)

	// DeleteSession removes the session row and its transcript.
	DeleteSession(ctx context.Context, sessionID string) error
}

// SummaryRegistry persists the asynchronous session summaries.
type SummaryRegistry interface {
	// InsertSummary appends one immutable summary record.
	InsertSummary(ctx context.Context, summary types.SessionSummary) error

	// FetchRecentSummaries returns the newest summaries for a user, most
	// recent first. An empty userID returns summaries across all users.
	FetchRecentSummaries(ctx context.Context, userID string, limit int) ([]types.SessionSummary, error)
}

// Registry is the full relational store.
type Registry interface {
	SessionRegistry
	SummaryRegistry
	Close() error
}
