package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// HashEmbedder is a feature-hashing bag-of-words encoder. It needs no model file,
// is bit-exact across machines, and texts that share words get similar vectors,
// which makes it suitable for tests and offline smoke runs.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash encoder producing vectors of the given dimension.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed hashes each lower-cased letter or digit run into a signed bucket and L2-normalizes.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkInput(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEncoding, err)
	}
	vec := make([]float32, e.dimensions)
	for _, tok := range features(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// features returns the lower-cased word tokens of text, or every pre-token when
// text has no words at all (so "?!" still encodes to a non-zero vector).
func features(text string) []string {
	toks := utils.Pretokenize(strings.ToLower(text))
	words := toks[:0:0]
	for _, tok := range toks {
		if len(tok) > 1 || isWordByte(tok[0]) {
			words = append(words, tok)
		}
	}
	if len(words) == 0 {
		return toks
	}
	return words
}

// isWordByte reports whether a single-byte pre-token is alphanumeric.
func isWordByte(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z'
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns "hash-<dimensions>".
func (e *HashEmbedder) Name() string {
	return fmt.Sprintf("hash-%d", e.dimensions)
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}
