package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// GPT4All generates through the OpenAI-compatible completions API served by the
// GPT4All desktop server or LocalAI. The model is addressed by its file name.
type GPT4All struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// NewGPT4All returns a GPT4All backend.
func NewGPT4All(cfg *config.LLMConfig, logger *zap.Logger) *GPT4All {
	logger = utils.OrNop(logger)
	clientCfg := openai.DefaultConfig("not-needed")
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GPT4All{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       filepath.Base(cfg.ModelPath),
		maxTokens:   cfg.MaxAnswerTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Name identifies the backend in logs and status output.
func (g *GPT4All) Name() string {
	return "gpt4all:" + g.model
}

// CountTokens estimates with the shared pre-tokenizer since the server exposes no
// tokenize endpoint.
func (g *GPT4All) CountTokens(_ context.Context, text string) (int, error) {
	return utils.CountTokens(text), nil
}

// Generate streams a completion for prompt.
func (g *GPT4All) Generate(ctx context.Context, prompt string, maxContextTokens int, onToken TokenFunc) (string, error) {
	if n, _ := g.CountTokens(ctx, prompt); n > maxContextTokens {
		return "", fmt.Errorf("%w: prompt has %d tokens, context window is %d", models.ErrGeneration, n, maxContextTokens)
	}
	stream, err := g.client.CreateCompletionStream(ctx, openai.CompletionRequest{
		Model:       g.model,
		Prompt:      prompt,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Stream:      true,
	})
	if err != nil {
		return "", generationError("gpt4all completion", err)
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", generationError("gpt4all stream", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Text == "" {
			continue
		}
		tok := resp.Choices[0].Text
		answer.WriteString(tok)
		if onToken != nil {
			onToken(tok)
		}
	}
	g.logger.Debug("gpt4all completion done", zap.String("model", g.model), zap.Int("answer_bytes", answer.Len()))
	return answer.String(), nil
}
