// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Embedder produces vector embeddings for text. The same text given to the same
// Embedder always yields the same vector, and EmbedBatch matches per-item Embed calls.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies the encoder and model; a store built with one name cannot be
	// queried with another.
	Name() string
	Close() error
}

// checkInput rejects text that has nothing to encode.
func checkInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty input", models.ErrEncoding)
	}
	return nil
}

// embedEach implements EmbedBatch on top of a single-text embed function.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
