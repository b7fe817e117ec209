// Package vectordb stores embedded code chunks in SQLite and answers
// nearest-neighbour queries by cosine similarity.
package vectordb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DefaultCollection is the collection the code tools search.
const DefaultCollection = "code_chunks"

// ErrDimensionMismatch is returned when a vector's length differs from the
// vectors already stored in the collection.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Chunk is one embedded slice of a source file.
type Chunk struct {
	ID        string
	Name      string // file base name
	FilePath  string // path relative to the workspace root
	StartLine int
	EndLine   int
	Content   string
	Vector    []float32
}

// Hit is a search result.
type Hit struct {
	Chunk Chunk
	Score float32
}

// Index is a SQLite-backed vector index scoped to one collection.
type Index struct {
	db         *sql.DB
	collection string
	logger     *zap.Logger
}

// Open opens (or creates) the index database at path. Use ":memory:" for
// a throwaway index.
func Open(path, collection string, logger *zap.Logger) (*Index, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening vector index %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring vector index: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising vector index schema: %w", err)
	}

	return &Index{db: db, collection: collection, logger: logger}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT NOT NULL,
			collection TEXT NOT NULL,
			name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			start_line INTEGER NOT NULL DEFAULT 0,
			end_line INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			dim INTEGER NOT NULL,
			vector BLOB NOT NULL,
			updated_at INTEGER DEFAULT (strftime('%s','now')),
			PRIMARY KEY (collection, id)
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(collection, file_path)`)
	return err
}

// Collection returns the collection this index reads and writes.
func (x *Index) Collection() string { return x.collection }

// Close closes the database.
func (x *Index) Close() error { return x.db.Close() }

// Upsert inserts chunks or replaces chunks with the same id. All vectors
// must share the dimension of the collection.
func (x *Index) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim, err := x.dimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		dim = len(chunks[0].Vector)
	}
	for _, c := range chunks {
		if len(c.Vector) != dim {
			return fmt.Errorf("chunk %s has %d dimensions, collection has %d: %w", c.ID, len(c.Vector), dim, ErrDimensionMismatch)
		}
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, collection, name, file_path, start_line, end_line, content, dim, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s','now'))
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, x.collection, c.Name, c.FilePath, c.StartLine, c.EndLine, c.Content, len(c.Vector), encodeVector(c.Vector)); err != nil {
			return fmt.Errorf("upserting chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}

	x.logger.Debug("upserted chunks", zap.String("collection", x.collection), zap.Int("count", len(chunks)))
	return nil
}

// Search returns up to limit chunks ordered by descending cosine
// similarity to query. Ties keep insertion order.
func (x *Index) Search(ctx context.Context, query []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT id, name, file_path, start_line, end_line, content, vector
		FROM chunks WHERE collection = ? ORDER BY rowid
	`, x.collection)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.FilePath, &c.StartLine, &c.EndLine, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Vector = decodeVector(blob)
		if len(c.Vector) != len(query) {
			return nil, fmt.Errorf("query has %d dimensions, chunk %s has %d: %w", len(query), c.ID, len(c.Vector), ErrDimensionMismatch)
		}
		hits = append(hits, Hit{Chunk: c, Score: cosineSimilarity(query, c.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the number of chunks in the collection.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, x.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Reset removes every chunk in the collection.
func (x *Index) Reset(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, x.collection); err != nil {
		return fmt.Errorf("resetting collection %s: %w", x.collection, err)
	}
	return nil
}

// Retain removes every chunk in the collection whose id is not in keep and
// returns how many were removed.
func (x *Index) Retain(ctx context.Context, keep map[string]struct{}) (int, error) {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning retain: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE collection = ?`, x.collection)
	if err != nil {
		return 0, fmt.Errorf("listing chunk ids: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning chunk id: %w", err)
		}
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterating chunk ids: %w", err)
	}
	rows.Close()

	if len(stale) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks WHERE collection = ? AND id = ?`)
	if err != nil {
		return 0, fmt.Errorf("preparing delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range stale {
		if _, err := stmt.ExecContext(ctx, x.collection, id); err != nil {
			return 0, fmt.Errorf("deleting chunk %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing retain: %w", err)
	}

	x.logger.Debug("removed stale chunks", zap.String("collection", x.collection), zap.Int("count", len(stale)))
	return len(stale), nil
}

// dimension returns the stored vector dimension, or 0 for an empty
// collection.
func (x *Index) dimension(ctx context.Context) (int, error) {
	var dim sql.NullInt64
	err := x.db.QueryRowContext(ctx, `SELECT dim FROM chunks WHERE collection = ? LIMIT 1`, x.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading collection dimension: %w", err)
	}
	return int(dim.Int64), nil
}

// ---------------------------------------------------------------------------
// Vector helpers
// ---------------------------------------------------------------------------

func encodeVector(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / math.Sqrt(normA*normB))
}
