// Package postgres implements storage.Backend on PostgreSQL with the pgvector
// extension. Each collection gets its own vectors_<name> table holding the
// embedding and a JSONB payload; a small meta table records dimensions so
// GetCollection can answer without parsing table DDL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/aibuddy/internal/storage"
)

// Backend is a storage.Backend over PostgreSQL/pgvector.
type Backend struct {
	db *sql.DB
}

// New wraps an open database handle. The caller owns the handle lifecycle.
func New(db *sql.DB) *Backend {
	return &Backend{db: db}
}

// Open connects with lib/pq and prepares the meta schema.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	b := New(db)
	if err := b.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

var _ storage.Backend = (*Backend)(nil)

// Close releases the underlying handle.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS aibuddy_collections (
			name      TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return classifyError("init schema", err)
		}
	}
	return nil
}

// collectionNamePattern guards table-name interpolation. Collection names are
// configuration values, not user input, but they still end up in DDL.
var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func tableName(collection string) (string, error) {
	if !collectionNamePattern.MatchString(collection) {
		return "", fmt.Errorf("postgres: bad collection name %q: %w", collection, storage.ErrInvalidArgument)
	}
	return `"vectors_` + strings.ReplaceAll(collection, "-", "_") + `"`, nil
}

// GetCollection looks up the recorded dimension.
func (b *Backend) GetCollection(ctx context.Context, name string) (*storage.CollectionInfo, error) {
	var dimension int
	err := b.db.QueryRowContext(ctx,
		`SELECT dimension FROM aibuddy_collections WHERE name = $1`, name).Scan(&dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: collection %s: %w", name, storage.ErrCollectionNotFound)
	}
	if err != nil {
		return nil, classifyError("get collection", err)
	}
	return &storage.CollectionInfo{Name: name, Dimension: dimension}, nil
}

// CreateCollection creates the per-collection vector table and records it.
func (b *Backend) CreateCollection(ctx context.Context, name string, dimension int) error {
	table, err := tableName(name)
	if err != nil {
		return err
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id        TEXT PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		payload   JSONB NOT NULL DEFAULT '{}'::jsonb
	)`, table, dimension)
	if _, err := b.db.ExecContext(ctx, create); err != nil {
		return classifyError("create collection", err)
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO aibuddy_collections (name, dimension) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET dimension = EXCLUDED.dimension`,
		name, dimension)
	if err != nil {
		return classifyError("register collection", err)
	}
	return nil
}

// DeleteCollection drops the vector table and forgets the registration.
func (b *Backend) DeleteCollection(ctx context.Context, name string) error {
	if _, err := b.GetCollection(ctx, name); err != nil {
		return err
	}
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return classifyError("drop collection", err)
	}
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM aibuddy_collections WHERE name = $1`, name); err != nil {
		return classifyError("unregister collection", err)
	}
	return nil
}

// Upsert writes points, replacing rows that share an id.
func (b *Backend) Upsert(ctx context.Context, collection string, points []storage.Point) error {
	table, err := tableName(collection)
	if err != nil {
		return err
	}

	query := `INSERT INTO ` + table + ` (id, embedding, payload) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`

	for _, point := range points {
		payloadJSON, err := json.Marshal(point.Payload)
		if err != nil {
			return fmt.Errorf("postgres: marshal payload for %s: %w", point.ID, err)
		}
		if _, err := b.db.ExecContext(ctx, query, point.ID, pgvector.NewVector(point.Vector), payloadJSON); err != nil {
			return classifyError("upsert", err)
		}
	}
	return nil
}

// Query runs a JSONB-containment-filtered cosine similarity search. pgvector's
// <=> operator yields cosine distance; score is reported as 1 - distance.
func (b *Backend) Query(ctx context.Context, collection string, vector []float32, filter storage.Filter, limit int, minScore float64) ([]storage.ScoredPoint, error) {
	table, err := tableName(collection)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, payload, 1 - (embedding <=> $1) AS score FROM ` + table
	args := []interface{}{pgvector.NewVector(vector)}

	if len(filter) != 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("postgres: marshal filter: %w", err)
		}
		query += ` WHERE payload @> $2`
		args = append(args, filterJSON)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, limit)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError("query", err)
	}
	defer rows.Close()

	var hits []storage.ScoredPoint
	for rows.Next() {
		var (
			id          string
			payloadJSON []byte
			score       float64
		)
		if err := rows.Scan(&id, &payloadJSON, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan hit: %w", err)
		}
		if minScore > 0 && score < minScore {
			continue
		}
		payload, err := decodePayload(payloadJSON)
		if err != nil {
			return nil, err
		}
		hits = append(hits, storage.ScoredPoint{
			Point: storage.Point{ID: id, Payload: payload},
			Score: score,
		})
	}
	return hits, rows.Err()
}

// Search is the same similarity query; PostgreSQL has no separate legacy
// endpoint, so the fallback chain degenerates to one level here.
func (b *Backend) Search(ctx context.Context, collection string, vector []float32, filter storage.Filter, limit int, minScore float64) ([]storage.ScoredPoint, error) {
	return b.Query(ctx, collection, vector, filter, limit, minScore)
}

// Scroll pages through points ordered by id. The cursor is a row offset.
func (b *Backend) Scroll(ctx context.Context, collection string, filter storage.Filter, limit int, offset string) ([]storage.Point, string, error) {
	table, err := tableName(collection)
	if err != nil {
		return nil, "", err
	}

	start := 0
	if offset != "" {
		start, err = strconv.Atoi(offset)
		if err != nil {
			return nil, "", fmt.Errorf("postgres: bad scroll cursor %q: %w", offset, storage.ErrInvalidArgument)
		}
	}

	query := `SELECT id, payload FROM ` + table
	var args []interface{}
	if len(filter) != 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, "", fmt.Errorf("postgres: marshal filter: %w", err)
		}
		query += ` WHERE payload @> $1`
		args = append(args, filterJSON)
	}
	query += fmt.Sprintf(` ORDER BY id LIMIT %d OFFSET %d`, limit+1, start)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", classifyError("scroll", err)
	}
	defer rows.Close()

	var points []storage.Point
	for rows.Next() {
		var (
			id          string
			payloadJSON []byte
		)
		if err := rows.Scan(&id, &payloadJSON); err != nil {
			return nil, "", fmt.Errorf("postgres: scan point: %w", err)
		}
		payload, err := decodePayload(payloadJSON)
		if err != nil {
			return nil, "", err
		}
		points = append(points, storage.Point{ID: id, Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(points) > limit {
		points = points[:limit]
		next = strconv.Itoa(start + limit)
	}
	return points, next, nil
}

// Retrieve fetches points by id; missing ids are skipped.
func (b *Backend) Retrieve(ctx context.Context, collection string, ids []string) ([]storage.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table, err := tableName(collection)
	if err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT id, payload FROM `+table+` WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, classifyError("retrieve", err)
	}
	defer rows.Close()

	var points []storage.Point
	for rows.Next() {
		var (
			id          string
			payloadJSON []byte
		)
		if err := rows.Scan(&id, &payloadJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan point: %w", err)
		}
		payload, err := decodePayload(payloadJSON)
		if err != nil {
			return nil, err
		}
		points = append(points, storage.Point{ID: id, Payload: payload})
	}
	return points, rows.Err()
}

// DeletePoints removes points by id; absent ids are ignored.
func (b *Backend) DeletePoints(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := tableName(collection)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return classifyError("delete points", err)
	}
	return nil
}

// DeleteByFilter removes every point whose payload contains the filter.
func (b *Backend) DeleteByFilter(ctx context.Context, collection string, filter storage.Filter) error {
	table, err := tableName(collection)
	if err != nil {
		return err
	}

	query := `DELETE FROM ` + table
	var args []interface{}
	if len(filter) != 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return fmt.Errorf("postgres: marshal filter: %w", err)
		}
		query += ` WHERE payload @> $1`
		args = append(args, filterJSON)
	}
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return classifyError("delete by filter", err)
	}
	return nil
}

func decodePayload(raw []byte) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("postgres: decode payload: %w", err)
	}
	return payload, nil
}

// classifyError maps PostgreSQL error codes onto the typed storage errors.
// 42501 (insufficient_privilege) drives the permission fallback and 42P01
// (undefined_table) means the collection's table is gone.
func classifyError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42501":
			return fmt.Errorf("postgres: %s: %s: %w", op, pqErr.Message, storage.ErrPermissionDenied)
		case "42P01":
			return fmt.Errorf("postgres: %s: %s: %w", op, pqErr.Message, storage.ErrCollectionNotFound)
		}
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
