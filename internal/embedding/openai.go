package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures an OpenAI-compatible embeddings client.
type OpenAIOptions struct {
	// BaseURL of the API including the version prefix, e.g. http://127.0.0.1:8080/v1.
	// Empty means api.openai.com.
	BaseURL string
	APIKey  string
	Model   string
	// Dimensions is the expected vector size; responses of another size fail.
	Dimensions int
}

// OpenAIEmbedder calls any OpenAI-compatible /embeddings endpoint: a local
// llama.cpp, LocalAI or GPT4All server, or the hosted API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder for opts.
func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: openai embedder needs a model name", models.ErrEncoding)
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: openai embedder needs positive dimensions", models.ErrEncoding)
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      opts.Model,
		dimensions: opts.Dimensions,
	}, nil
}

// Embed returns the L2-normalized embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one request and orders the result by input index.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if err := checkInput(text); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings request: %w", models.ErrEncoding, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", models.ErrEncoding, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad embedding index %d", models.ErrEncoding, d.Index)
		}
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: model returned %d dimensions, want %d", models.ErrEncoding, len(d.Embedding), e.dimensions)
		}
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		utils.NormalizeL2(v)
		out[d.Index] = v
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns "openai:<model>".
func (e *OpenAIEmbedder) Name() string {
	return "openai:" + e.model
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
