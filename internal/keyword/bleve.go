// Package keyword maintains a bleve full-text index over stored chunks for hybrid retrieval.
package keyword

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

const batchSize = 500

// Result is a single keyword hit.
type Result struct {
	ID    string
	Score float64
}

// chunkDoc is the indexed form of a chunk.
type chunkDoc struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// BleveIndex is a BM25-style keyword index keyed by chunk ID.
type BleveIndex struct {
	index  bleve.Index
	fuzzy  int
	logger *zap.Logger
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *BleveIndex) { b.logger = l }
}

// WithFuzziness enables fuzzy term matching within the given edit distance (1 or 2).
func WithFuzziness(n int) Option {
	return func(b *BleveIndex) { b.fuzzy = n }
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	// Standard analyzer: lower-case and tokenize without stemming, so "Bayes" matches "bayes".
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = false
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("source", text)
	im.DefaultMapping = doc
	return im
}

// Open opens the index at path, creating it when missing.
func Open(path string, opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		b.index, err = bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open keyword index: %w", err)
		}
		return b, nil
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat keyword index: %w", statErr)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create keyword index directory: %w", err)
	}
	b.index, err = bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	return b, nil
}

// Index adds or replaces one chunk.
func (b *BleveIndex) Index(_ context.Context, c models.Chunk) error {
	return b.index.Index(c.ID, chunkDoc{Text: c.Text, Source: filepath.Base(c.SourcePath)})
}

// IndexAll indexes chunks in batches.
func (b *BleveIndex) IndexAll(ctx context.Context, chunks []models.Chunk) error {
	batch := b.index.NewBatch()
	for i, c := range chunks {
		if err := batch.Index(c.ID, chunkDoc{Text: c.Text, Source: filepath.Base(c.SourcePath)}); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
		if batch.Size() >= batchSize || i == len(chunks)-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("index batch: %w", err)
			}
			batch.Reset()
		}
	}
	return nil
}

// Sync indexes every chunk the keyword index does not hold yet. Chunks come from
// the vector store in insertion order, so a count mismatch means a suffix is missing.
func (b *BleveIndex) Sync(ctx context.Context, chunks []models.Chunk) error {
	n, err := b.index.DocCount()
	if err != nil {
		return fmt.Errorf("count keyword docs: %w", err)
	}
	if int(n) >= len(chunks) {
		return nil
	}
	b.logger.Info("syncing keyword index", zap.Uint64("indexed", n), zap.Int("chunks", len(chunks)))
	return b.IndexAll(ctx, chunks[n:])
}

// Search returns up to limit chunk IDs matching query, best first.
func (b *BleveIndex) Search(_ context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(b.buildQuery(query))
	req.Size = limit
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	out := make([]Result, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// buildQuery matches the text field, with source-file name matches as a weaker signal.
func (b *BleveIndex) buildQuery(query string) blevequery.Query {
	text := bleve.NewMatchQuery(query)
	text.SetField("text")
	source := bleve.NewMatchQuery(query)
	source.SetField("source")
	source.SetBoost(0.5)
	if b.fuzzy > 0 {
		text.SetFuzziness(b.fuzzy)
		source.SetFuzziness(b.fuzzy)
	}
	return bleve.NewDisjunctionQuery(text, source)
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
