// Package llm talks to the local language-model runtimes that produce answers.
package llm

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// TokenFunc receives each generated token in order, on the generating goroutine.
type TokenFunc func(token string)

// TokenCounter measures text in the model's own tokens.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// Backend generates a completion for a prompt. Implementations never truncate the
// prompt: one longer than maxContextTokens, as measured by CountTokens, fails with
// models.ErrGeneration.
type Backend interface {
	TokenCounter
	Generate(ctx context.Context, prompt string, maxContextTokens int, onToken TokenFunc) (string, error)
	Name() string
}

// New builds the backend for cfg.Variant.
func New(cfg *config.LLMConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Variant {
	case config.VariantLlamaCpp:
		return NewLlamaCpp(cfg, logger), nil
	case config.VariantGPT4All:
		return NewGPT4All(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedBackend, cfg.Variant)
	}
}

func generationError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrGeneration, what, err)
}
