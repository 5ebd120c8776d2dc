// Package mongostore implements registry.Registry on MongoDB for deployments
// where several backend instances share one transcript database.
package mongostore

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/scrypster/aibuddy/internal/registry"
	"github.com/scrypster/aibuddy/pkg/types"
)

// Collection names.
const (
	ColChatMessages     = "chat_messages"
	ColSessions         = "sessions"
	ColSessionSummaries = "session_summaries"
)

// Store is a MongoDB-backed registry.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ registry.Registry = (*Store)(nil)

// NewStore connects to MongoDB and prepares indexes.
//
// uri: connection URI, e.g. "mongodb://localhost:27017"
// dbName: database name, e.g. "aibuddy"
func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	s := &Store{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		log.Printf("WARNING: mongostore: ensure indexes failed: %v", err)
	}
	return s, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	type idx struct {
		col    string
		keys   bson.D
		unique bool
	}

	indexes := []idx{
		{ColChatMessages, bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: -1}}, false},
		{ColSessions, bson.D{{Key: "session_id", Value: 1}}, true},
		{ColSessionSummaries, bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}, false},
	}
	for _, i := range indexes {
		model := mongo.IndexModel{Keys: i.keys}
		if i.unique {
			model.Options = options.Index().SetUnique(true)
		}
		if _, err := s.col(i.col).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create index on %s: %w", i.col, err)
		}
	}
	return nil
}

// InsertTurn appends one exchange to the transcript.
func (s *Store) InsertTurn(ctx context.Context, turn types.ChatTurn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	if _, err := s.col(ColChatMessages).InsertOne(ctx, turn); err != nil {
		return fmt.Errorf("mongostore: insert turn: %w", err)
	}
	return nil
}

// FetchHistory returns up to limit turns in chronological order.
func (s *Store) FetchHistory(ctx context.Context, sessionID string, limit int) ([]types.ChatTurn, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := s.col(ColChatMessages).Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: fetch history: %w", err)
	}
	defer cursor.Close(ctx)

	var turns []types.ChatTurn
	if err := cursor.All(ctx, &turns); err != nil {
		return nil, fmt.Errorf("mongostore: decode history: %w", err)
	}
	return turns, nil
}

// TouchSession upserts session metadata, setting created_at only on insert.
func (s *Store) TouchSession(ctx context.Context, sessionID, userID string) error {
	now := time.Now().UTC()
	set := bson.M{"session_id": sessionID, "updated_at": now}
	if userID != "" {
		set["user_id"] = userID
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := s.col(ColSessions).UpdateOne(ctx,
		bson.M{"session_id": sessionID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: touch session: %w", err)
	}
	return nil
}

// RenameSession sets the title, creating the session document if needed.
func (s *Store) RenameSession(ctx context.Context, sessionID, title string) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"session_id": sessionID, "title": title, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := s.col(ColSessions).UpdateOne(ctx,
		bson.M{"session_id": sessionID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: rename session: %w", err)
	}
	return nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := s.col(ColSessions).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []types.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("mongostore: decode sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes the session document and its whole transcript.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.col(ColSessions).DeleteOne(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("mongostore: delete session: %w", err)
	}
	if _, err := s.col(ColChatMessages).DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("mongostore: delete session messages: %w", err)
	}
	return nil
}

// InsertSummary appends one immutable summary record.
func (s *Store) InsertSummary(ctx context.Context, summary types.SessionSummary) error {
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	if _, err := s.col(ColSessionSummaries).InsertOne(ctx, summary); err != nil {
		return fmt.Errorf("mongostore: insert summary: %w", err)
	}
	return nil
}

// FetchRecentSummaries returns the newest summaries, most recent first.
func (s *Store) FetchRecentSummaries(ctx context.Context, userID string, limit int) ([]types.SessionSummary, error) {
	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.col(ColSessionSummaries).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: fetch summaries: %w", err)
	}
	defer cursor.Close(ctx)

	var summaries []types.SessionSummary
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("mongostore: decode summaries: %w", err)
	}
	return summaries, nil
}
