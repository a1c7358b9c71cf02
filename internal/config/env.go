package config

import (
	"fmt"
	"strconv"
)

// Environment variable names. The first six keep the names used by privateGPT .env files.
const (
	EnvEmbeddingModel    = "EMBEDDINGS_MODEL_NAME"
	EnvPersistDirectory  = "PERSIST_DIRECTORY"
	EnvModelType         = "MODEL_TYPE"
	EnvModelPath         = "MODEL_PATH"
	EnvModelNCtx         = "MODEL_N_CTX"
	EnvTargetChunks      = "TARGET_SOURCE_CHUNKS"
	EnvSourceDirectory   = "SOURCE_DIRECTORY"
	EnvLLMBaseURL        = "LLM_BASE_URL"
	EnvEmbeddingProvider = "EMBEDDINGS_PROVIDER"
)

// ApplyEnv overrides cfg with any set environment variables. lookup is os.LookupEnv in
// production and a map in tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	str(EnvEmbeddingModel, &cfg.Embedding.Model)
	str(EnvEmbeddingProvider, &cfg.Embedding.Provider)
	str(EnvPersistDirectory, &cfg.Store.Directory)
	str(EnvModelPath, &cfg.LLM.ModelPath)
	str(EnvSourceDirectory, &cfg.Ingest.SourceDirectory)
	str(EnvLLMBaseURL, &cfg.LLM.BaseURL)
	if err := num(EnvModelNCtx, &cfg.LLM.ContextTokens); err != nil {
		return err
	}
	if err := num(EnvTargetChunks, &cfg.Retrieval.K); err != nil {
		return err
	}
	if v, ok := lookup(EnvModelType); ok && v != "" {
		variant, err := ParseLLMVariant(v)
		if err != nil {
			return err
		}
		cfg.LLM.Variant = variant
	}
	return nil
}
