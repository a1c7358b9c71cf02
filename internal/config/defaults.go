package config

// Embedding providers.
const (
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Vector store metrics.
const (
	MetricCosine    = "cosine"
	MetricEuclidean = "euclidean"
)

// ApplyDefaults sets default values for any optional zero values in cfg. Required values
// (embedding model, store directory, LLM variant, model path, context size) are left alone
// so Validate can report them.
func ApplyDefaults(cfg *Config) {
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Store.Metric == "" {
		cfg.Store.Metric = MetricCosine
	}
	if cfg.Ingest.SourceDirectory == "" {
		cfg.Ingest.SourceDirectory = "source_documents"
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".pptx", ".xlsx", ".odt", ".odp", ".ods", ".csv", ".rtf"}
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 500
	}
	if cfg.Ingest.ChunkOverlap == nil {
		overlap := cfg.Ingest.ChunkSize / 10
		cfg.Ingest.ChunkOverlap = &overlap
	}
	if cfg.Ingest.WatchDebounceMs == 0 {
		cfg.Ingest.WatchDebounceMs = 400
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.LLM.MaxAnswerTokens == 0 {
		cfg.LLM.MaxAnswerTokens = 256
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 600
	}
	if cfg.LLM.BaseURL == "" {
		switch cfg.LLM.Variant {
		case VariantLlamaCpp:
			cfg.LLM.BaseURL = "http://127.0.0.1:8080"
		case VariantGPT4All:
			cfg.LLM.BaseURL = "http://127.0.0.1:4891/v1"
		}
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 4
	}
	if cfg.Retrieval.KeywordWeight == 0 && cfg.Retrieval.SemanticWeight == 0 {
		cfg.Retrieval.KeywordWeight = 0.3
		cfg.Retrieval.SemanticWeight = 0.7
	}
	if cfg.Retrieval.CandidateFactor == 0 {
		cfg.Retrieval.CandidateFactor = 4
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
}
