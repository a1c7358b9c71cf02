package embedding

import (
	"fmt"
	"os"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// New builds the encoder selected by cfg.Provider.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	logger = utils.OrNop(logger)
	switch cfg.Provider {
	case config.ProviderHash:
		logger.Debug("using hash embedder", zap.Int("dimensions", cfg.Dimensions))
		return NewHashEmbedder(cfg.Dimensions), nil
	case config.ProviderOpenAI:
		logger.Debug("using openai-compatible embedder", zap.String("model", cfg.Model), zap.String("base_url", cfg.BaseURL))
		e, err := NewOpenAIEmbedder(OpenAIOptions{
			BaseURL:    cfg.BaseURL,
			APIKey:     os.Getenv(cfg.APIKeyEnv),
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderONNX:
		logger.Debug("using onnx embedder", zap.String("model", cfg.Model), zap.String("path", cfg.ModelPath))
		e, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:  cfg.ModelPath,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrEncoding, cfg.Provider)
	}
}
