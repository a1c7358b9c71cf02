// Package prompt builds the model prompt from retrieved chunks within a token budget.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	preamble = "Use the following pieces of context to answer the question at the end. " +
		"If you don't know the answer, just say that you don't know, don't try to make up an answer."
	questionFormat = "Question: %s\nHelpful Answer:"
)

// Prompt is the assembled text plus the chunks that made it in, in score order.
type Prompt struct {
	Text     string
	Included []models.ScoredChunk
}

// Counter measures text in model tokens.
type Counter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

type estimateCounter struct{}

func (estimateCounter) CountTokens(_ context.Context, text string) (int, error) {
	return utils.CountTokens(text), nil
}

// Assembler fills the prompt template. Reserve tokens are kept free for the answer.
type Assembler struct {
	reserve int
	counter Counter
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithCounter measures prompts with c, normally the generating backend, instead
// of the shared pre-tokenizer estimate.
func WithCounter(c Counter) Option {
	return func(a *Assembler) { a.counter = c }
}

// NewAssembler returns an Assembler that leaves reserveTokens of the context
// window for generation.
func NewAssembler(reserveTokens int, opts ...Option) *Assembler {
	if reserveTokens < 0 {
		reserveTokens = 0
	}
	a := &Assembler{reserve: reserveTokens}
	for _, opt := range opts {
		opt(a)
	}
	if a.counter == nil {
		a.counter = estimateCounter{}
	}
	return a
}

// Assemble renders query and as many of the retrieved chunks as fit in
// maxContextTokens minus the reserve, dropping the lowest-scoring chunks first.
// The query is never cut: with no chunks left the prompt is returned as is.
func (a *Assembler) Assemble(ctx context.Context, query string, result models.RetrievalResult, maxContextTokens int) (Prompt, error) {
	if strings.TrimSpace(query) == "" {
		return Prompt{}, errors.New("empty query")
	}
	budget := maxContextTokens - a.reserve

	// Items arrive in descending score order, so a prefix keeps the best chunks.
	included := result.Items
	for {
		text := render(query, included)
		if len(included) == 0 {
			return Prompt{Text: text}, nil
		}
		n, err := a.counter.CountTokens(ctx, text)
		if err != nil {
			return Prompt{}, fmt.Errorf("count prompt tokens: %w", err)
		}
		if n <= budget {
			return Prompt{Text: text, Included: append([]models.ScoredChunk(nil), included...)}, nil
		}
		included = included[:len(included)-1]
	}
}

func render(query string, chunks []models.ScoredChunk) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	for _, c := range chunks {
		b.WriteString(c.Chunk.Text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, questionFormat, query)
	return b.String()
}
