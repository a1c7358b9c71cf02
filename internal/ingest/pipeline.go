// Package ingest loads, chunks and embeds source documents into the vector store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is the write side of the vector store.
type Store interface {
	Add(ctx context.Context, chunk models.Chunk, vec []float32) error
	MarkSource(ctx context.Context, path, sha256 string, chunks int) error
	HasSource(ctx context.Context, path, sha256 string) (bool, error)
	Persist() error
}

// KeywordIndexer receives newly stored chunks for hybrid retrieval.
type KeywordIndexer interface {
	IndexAll(ctx context.Context, chunks []models.Chunk) error
}

// Failure records a document that could not be ingested.
type Failure struct {
	Path string
	Err  error
}

// Summary reports one ingestion run.
type Summary struct {
	Documents int
	Skipped   int
	Chunks    int
	Failures  []Failure
	Duration  time.Duration
}

func (s *Summary) merge(o Summary) {
	s.Documents += o.Documents
	s.Skipped += o.Skipped
	s.Chunks += o.Chunks
	s.Failures = append(s.Failures, o.Failures...)
}

// Pipeline runs ingestion. Documents are prepared in parallel; store writes
// happen on one goroutine in path order.
type Pipeline struct {
	loader     *extract.Loader
	embedder   embedding.Embedder
	store      Store
	keyword    KeywordIndexer
	chunker    *chunker.Chunker
	workers    int
	extensions map[string]bool
	logger     *zap.Logger

	mu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithKeywordIndex also indexes stored chunks in kw.
func WithKeywordIndex(kw KeywordIndexer) Option {
	return func(p *Pipeline) { p.keyword = kw }
}

// WithWorkers sets how many documents are prepared concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithExtensions restricts directory walks to these extensions. The loader's
// supported set still applies.
func WithExtensions(exts []string) Option {
	return func(p *Pipeline) {
		p.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			p.extensions["."+strings.ToLower(strings.TrimPrefix(e, "."))] = true
		}
	}
}

// New returns a Pipeline splitting documents into chunkSize-word windows with
// overlap words shared between neighbours.
func New(loader *extract.Loader, embedder embedding.Embedder, store Store, chunkSize, overlap int, opts ...Option) (*Pipeline, error) {
	c, err := chunker.New(chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		loader:   loader,
		embedder: embedder,
		store:    store,
		chunker:  c,
		workers:  4,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.workers < 1 {
		p.workers = 1
	}
	return p, nil
}

// Accepts reports whether path would be picked up by a directory walk.
func (p *Pipeline) Accepts(path string) bool {
	if !p.loader.Supported(path) {
		return false
	}
	if len(p.extensions) == 0 {
		return true
	}
	return p.extensions[strings.ToLower(filepath.Ext(path))]
}

type prepared struct {
	key     string
	hash    string
	skipped bool
	chunks  []models.Chunk
	vectors []models.EmbeddingVector
	err     error
}

// IngestDirectory ingests every accepted file under dir.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (Summary, error) {
	start := time.Now()
	info, err := os.Stat(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("stat source directory: %w", err)
	}
	if !info.IsDir() {
		return Summary{}, fmt.Errorf("not a directory: %s", dir)
	}
	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !p.Accepts(path) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		if fi, statErr := os.Stat(path); statErr != nil || !fi.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	p.logger.Info("ingesting directory", zap.String("dir", dir), zap.Int("files", len(paths)), zap.Int("workers", p.workers))

	sum, err := p.ingestPaths(ctx, paths)
	sum.Duration = time.Since(start)
	return sum, err
}

// IngestFile ingests a single file.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (Summary, error) {
	start := time.Now()
	sum, err := p.ingestPaths(ctx, []string{path})
	sum.Duration = time.Since(start)
	return sum, err
}

func (p *Pipeline) ingestPaths(ctx context.Context, paths []string) (Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	results := make([]prepared, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = p.prepare(gctx, path)
			if err := gctx.Err(); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("prepare documents: %w", err)
	}

	var sum Summary
	for _, r := range results {
		s, err := p.commit(ctx, r)
		sum.merge(s)
		if err != nil {
			return sum, err
		}
	}
	if err := p.store.Persist(); err != nil {
		return sum, fmt.Errorf("persist store: %w", err)
	}
	p.logger.Info("ingestion finished",
		zap.Int("documents", sum.Documents),
		zap.Int("skipped", sum.Skipped),
		zap.Int("chunks", sum.Chunks),
		zap.Int("failures", len(sum.Failures)))
	return sum, nil
}

// prepare loads, chunks and embeds one document without touching the store.
func (p *Pipeline) prepare(ctx context.Context, path string) prepared {
	key, err := fileid.SourceKey(path)
	if err != nil {
		return prepared{key: path, err: fmt.Errorf("%w: %w", models.ErrLoad, err)}
	}
	r := prepared{key: key}
	if r.hash, err = fileid.ContentHash(key); err != nil {
		r.err = fmt.Errorf("%w: %s: %w", models.ErrLoad, key, err)
		return r
	}
	if seen, err := p.store.HasSource(ctx, key, r.hash); err != nil {
		r.err = err
		return r
	} else if seen {
		r.skipped = true
		return r
	}
	doc, err := p.loader.Load(key)
	if err != nil {
		r.err = err
		return r
	}
	r.chunks = p.chunker.Split(doc)
	if len(r.chunks) == 0 {
		return r
	}
	texts := make([]string, len(r.chunks))
	for i, c := range r.chunks {
		texts[i] = c.Text
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", key, err)
		return r
	}
	if len(vecs) != len(r.chunks) {
		r.err = fmt.Errorf("%w: %s: got %d vectors for %d chunks", models.ErrEncoding, key, len(vecs), len(r.chunks))
		return r
	}
	r.vectors = make([]models.EmbeddingVector, len(vecs))
	for i, v := range vecs {
		r.vectors[i] = models.EmbeddingVector{ChunkID: r.chunks[i].ID, Vector: v}
	}
	p.logger.Debug("embedded document", zap.String("path", key),
		zap.Int("chunks", len(r.chunks)), zap.Int("dimensions", r.vectors[0].Dim()))
	return r
}

// commit writes a prepared document. Load and encoding failures are recorded in
// the summary; store failures abort the run.
func (p *Pipeline) commit(ctx context.Context, r prepared) (Summary, error) {
	var sum Summary
	switch {
	case r.err != nil && (errors.Is(r.err, models.ErrLoad) || errors.Is(r.err, models.ErrEncoding)):
		p.logger.Warn("document failed", zap.String("path", r.key), zap.Error(r.err))
		sum.Failures = append(sum.Failures, Failure{Path: r.key, Err: r.err})
		return sum, nil
	case r.err != nil:
		return sum, r.err
	case r.skipped:
		p.logger.Debug("document unchanged", zap.String("path", r.key))
		sum.Skipped++
		return sum, nil
	}

	for i, c := range r.chunks {
		if err := p.store.Add(ctx, c, r.vectors[i].Vector); err != nil {
			return sum, fmt.Errorf("store chunk %d of %s: %w", c.Index, r.key, err)
		}
	}
	if err := p.store.MarkSource(ctx, r.key, r.hash, len(r.chunks)); err != nil {
		return sum, err
	}
	if p.keyword != nil {
		if err := p.keyword.IndexAll(ctx, r.chunks); err != nil {
			p.logger.Warn("keyword index update failed", zap.String("path", r.key), zap.Error(err))
		}
	}
	sum.Documents++
	sum.Chunks += len(r.chunks)
	p.logger.Debug("document ingested", zap.String("path", r.key), zap.Int("chunks", len(r.chunks)))
	return sum, nil
}
