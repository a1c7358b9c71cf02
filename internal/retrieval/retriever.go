// Package retrieval selects the chunks most relevant to a query.
package retrieval

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// VectorSearcher is the read side of the vector store.
type VectorSearcher interface {
	Search(query []float32, k int) (models.RetrievalResult, error)
	Chunk(id string) (models.Chunk, bool)
}

// KeywordSearcher is a full-text index over chunk IDs.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]keyword.Result, error)
}

// HybridOptions weights keyword and semantic scores in hybrid retrieval.
type HybridOptions struct {
	KeywordWeight  float64
	SemanticWeight float64
	// CandidateFactor multiplies k to size each candidate list before fusion.
	CandidateFactor int
}

// Retriever embeds a query and searches the store. It holds no per-query state.
type Retriever struct {
	embedder embedding.Embedder
	store    VectorSearcher
	keyword  KeywordSearcher
	hybrid   HybridOptions
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithKeywordIndex turns on hybrid retrieval over kw.
func WithKeywordIndex(kw KeywordSearcher, opts HybridOptions) Option {
	return func(r *Retriever) {
		r.keyword = kw
		r.hybrid = opts
	}
}

// New returns a Retriever over store using embedder for queries.
func New(embedder embedding.Embedder, store VectorSearcher, opts ...Option) *Retriever {
	r := &Retriever{embedder: embedder, store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.hybrid.CandidateFactor <= 0 {
		r.hybrid.CandidateFactor = 1
	}
	return r
}

// Retrieve returns at most k chunks for q, highest score first. Encoding
// failures are returned as models.ErrEncoding.
func (r *Retriever) Retrieve(ctx context.Context, q models.Query, k int) (models.RetrievalResult, error) {
	vec, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return models.RetrievalResult{}, fmt.Errorf("embed query: %w", err)
	}
	if r.keyword == nil {
		res, err := r.store.Search(vec, k)
		if err != nil {
			return models.RetrievalResult{}, fmt.Errorf("vector search: %w", err)
		}
		r.logger.Debug("retrieved", zap.Int("k", k), zap.Int("hits", res.Len()))
		return res, nil
	}
	return r.retrieveHybrid(ctx, q.Text, vec, k)
}

func (r *Retriever) retrieveHybrid(ctx context.Context, query string, vec []float32, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		return models.RetrievalResult{}, nil
	}
	limit := k * r.hybrid.CandidateFactor
	semantic, err := r.store.Search(vec, limit)
	if err != nil {
		return models.RetrievalResult{}, fmt.Errorf("vector search: %w", err)
	}
	kwHits, err := r.keyword.Search(ctx, query, limit)
	if err != nil {
		// The keyword index is advisory; fall back to vector ranking.
		r.logger.Warn("keyword search failed", zap.Error(err))
		kwHits = nil
	}
	order := make([]string, len(kwHits))
	for i, h := range kwHits {
		order[i] = h.ID
	}
	fused := Fuse(semantic.Items, NormalizeKeywordScores(kwHits), order, r.hybrid.KeywordWeight, r.hybrid.SemanticWeight)

	byID := make(map[string]models.Chunk, len(semantic.Items))
	for _, s := range semantic.Items {
		byID[s.Chunk.ID] = s.Chunk
	}
	items := make([]models.ScoredChunk, 0, k)
	for _, f := range fused {
		if len(items) == k {
			break
		}
		c, ok := byID[f.ChunkID]
		if !ok {
			if c, ok = r.store.Chunk(f.ChunkID); !ok {
				continue // indexed by keyword but not in the store
			}
		}
		items = append(items, models.ScoredChunk{Chunk: c, Score: f.Score})
	}
	r.logger.Debug("retrieved hybrid", zap.Int("k", k), zap.Int("semantic", semantic.Len()),
		zap.Int("keyword", len(kwHits)), zap.Int("hits", len(items)))
	return models.RetrievalResult{Items: items}, nil
}
