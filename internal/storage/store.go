// Package storage persists chunks and their embeddings in SQLite and serves
// exact similarity search over them from memory.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// DBFileName is the database file inside a store directory.
const DBFileName = "index.db"

// Options fixes the shape of a store. A store created with one set of options can
// only be reopened with the same dimensions, metric and encoder.
type Options struct {
	Dimensions int
	Metric     vector.Metric
	// Encoder is the embedder name (see embedding.Embedder.Name).
	Encoder string
	Logger  *zap.Logger
}

// VectorStore is an append-only, durable store of chunks and their vectors.
// Writes are serialized; searches may run concurrently with each other.
type VectorStore struct {
	dir    string
	db     *sql.DB
	index  *vector.FlatIndex
	chunks []models.Chunk // by insertion position, parallel to index
	ids    map[string]int // chunk ID to insertion position
	mu     sync.RWMutex
	logger *zap.Logger
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"
}

// Open opens the store in dir. A missing directory or database file yields a new
// empty store. An existing database that cannot be read or whose contents do not
// match opts fails with models.ErrStoreCorrupt.
func Open(dir string, opts Options) (*VectorStore, error) {
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("store dimensions must be positive, got %d", opts.Dimensions)
	}
	metric, err := vector.ParseMetric(string(opts.Metric))
	if err != nil {
		return nil, err
	}
	opts.Metric = metric
	logger := utils.OrNop(opts.Logger)

	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", models.ErrStoreCorrupt, dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	dbPath := filepath.Join(dir, DBFileName)
	_, statErr := os.Stat(dbPath)
	fresh := errors.Is(statErr, os.ErrNotExist)
	if statErr != nil && !fresh {
		return nil, fmt.Errorf("%w: %w", models.ErrStoreCorrupt, statErr)
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &VectorStore{dir: dir, db: db, ids: make(map[string]int), logger: logger}
	if s.index, err = vector.NewFlatIndex(opts.Dimensions, opts.Metric); err != nil {
		_ = db.Close()
		return nil, err
	}

	ctx := context.Background()
	if fresh {
		if err := initSchema(ctx, db, opts); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		logger.Info("created vector store", zap.String("dir", dir), zap.Int("dimensions", opts.Dimensions),
			zap.String("metric", string(opts.Metric)), zap.String("encoder", opts.Encoder))
		return s, nil
	}

	if err := s.load(ctx, opts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %w", models.ErrStoreCorrupt, dbPath, err)
	}
	logger.Info("opened vector store", zap.String("dir", dir), zap.Int("chunks", len(s.chunks)))
	return s, nil
}

// load verifies the recorded layout against opts and reads every chunk and vector.
func (s *VectorStore) load(ctx context.Context, opts Options) error {
	info, err := readInfo(ctx, s.db)
	if err != nil {
		return err
	}
	if info.Dimensions != opts.Dimensions {
		return fmt.Errorf("store has %d dimensions, encoder produces %d", info.Dimensions, opts.Dimensions)
	}
	if info.Metric != string(opts.Metric) {
		return fmt.Errorf("store uses metric %q, configured %q", info.Metric, opts.Metric)
	}
	if info.Encoder != opts.Encoder {
		return fmt.Errorf("store was built with encoder %q, configured %q", info.Encoder, opts.Encoder)
	}

	var vectorRows int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&vectorRows); err != nil {
		return fmt.Errorf("count vectors: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.source_path, c.byte_offset, c.byte_length, c.chunk_index, c.text, v.vector
		FROM chunks c LEFT JOIN vectors v ON v.chunk_id = c.id
		ORDER BY c.seq`)
	if err != nil {
		return fmt.Errorf("read chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.SourcePath, &c.Offset, &c.Length, &c.Index, &c.Text, &blob); err != nil {
			return fmt.Errorf("read chunk: %w", err)
		}
		if blob == nil {
			return fmt.Errorf("chunk %s has no vector", c.ID)
		}
		vec, err := vector.DecodeVector(blob, opts.Dimensions)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		if err := s.index.Add(c.ID, vec); err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		s.ids[c.ID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read chunks: %w", err)
	}
	if vectorRows != len(s.chunks) {
		return fmt.Errorf("%d vectors for %d chunks", vectorRows, len(s.chunks))
	}
	if info.Count != len(s.chunks) {
		return fmt.Errorf("meta count %d, found %d chunks", info.Count, len(s.chunks))
	}
	return nil
}

// Add durably stores chunk and its vector in one transaction. Adding a chunk ID
// that is already stored is a no-op, so an interrupted ingestion can be retried.
func (s *VectorStore) Add(ctx context.Context, chunk models.Chunk, vec []float32) error {
	if len(vec) != s.index.Dimensions() {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), s.index.Dimensions())
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[chunk.ID]; ok {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO chunks (id, source_path, byte_offset, byte_length, chunk_index, text)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.SourcePath, chunk.Offset, chunk.Length, chunk.Index, chunk.Text,
	)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO vectors (chunk_id, vector) VALUES (?, ?)`,
		chunk.ID, vector.EncodeVector(vec)); err != nil {
		return fmt.Errorf("insert vector: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE meta SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT) WHERE key = ?`, metaCount); err != nil {
		return fmt.Errorf("update count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add: %w", err)
	}

	if err := s.index.Add(chunk.ID, vec); err != nil {
		return err
	}
	s.ids[chunk.ID] = len(s.chunks)
	s.chunks = append(s.chunks, chunk)
	return nil
}

// Persist checkpoints the write-ahead log into the database file. Every completed
// Add is already durable; Persist only compacts. Calling it twice is harmless.
func (s *VectorStore) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Search returns the k stored chunks most similar to query, most similar first.
// k <= 0 or an empty store returns an empty result.
func (s *VectorStore) Search(query []float32, k int) (models.RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.index.Search(query, k)
	if err != nil {
		return models.RetrievalResult{}, err
	}
	items := make([]models.ScoredChunk, len(hits))
	for i, h := range hits {
		items[i] = models.ScoredChunk{Chunk: s.chunks[h.Pos], Score: h.Score}
	}
	return models.RetrievalResult{Items: items}, nil
}

// Chunk returns the stored chunk with id.
func (s *VectorStore) Chunk(id string) (models.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.ids[id]
	if !ok {
		return models.Chunk{}, false
	}
	return s.chunks[pos], true
}

// Chunks returns a copy of every stored chunk in insertion order.
func (s *VectorStore) Chunks() []models.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// MarkSource records that path, with content hash sha256, has been fully ingested.
func (s *VectorStore) MarkSource(ctx context.Context, path, sha256 string, chunks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (path, sha256, chunks, ingested_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(path) DO UPDATE SET sha256 = excluded.sha256, chunks = excluded.chunks, ingested_at = excluded.ingested_at`,
		path, sha256, chunks,
	)
	if err != nil {
		return fmt.Errorf("mark source: %w", err)
	}
	return nil
}

// HasSource reports whether path was fully ingested with content hash sha256.
func (s *VectorStore) HasSource(ctx context.Context, path, sha256 string) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT sha256 FROM sources WHERE path = ?`, path).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup source: %w", err)
	}
	return stored == sha256, nil
}

// Info returns the recorded store layout and counts.
func (s *VectorStore) Info(ctx context.Context) (Info, error) {
	return readInfo(ctx, s.db)
}

// Size returns the number of stored chunks.
func (s *VectorStore) Size() int {
	return s.index.Size()
}

// Close checkpoints and closes the database.
func (s *VectorStore) Close() error {
	perr := s.Persist()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return err
	}
	return perr
}

// Inspect reads a store's recorded layout without loading chunks or checking it
// against an encoder. A missing store reports os.ErrNotExist.
func Inspect(ctx context.Context, dir string) (Info, error) {
	dbPath := filepath.Join(dir, DBFileName)
	if _, err := os.Stat(dbPath); err != nil {
		return Info{}, err
	}
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return Info{}, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	info, err := readInfo(ctx, db)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", models.ErrStoreCorrupt, err)
	}
	return info, nil
}
