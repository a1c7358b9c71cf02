// Package config provides configuration loading and structs for kotae.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is built once at startup and
// passed by pointer into each component constructor; nothing mutates it afterwards.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Server    ServerConfig    `yaml:"server"`
	Hooks     HooksConfig     `yaml:"hooks"`
}

// EmbeddingConfig selects and configures the embedding encoder.
type EmbeddingConfig struct {
	// Provider is one of "onnx", "openai", or "hash".
	Provider string `yaml:"provider"`
	// Model is the embedding model identifier (e.g. "all-MiniLM-L6-v2"). Required.
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// StoreConfig holds the vector store location and metric.
type StoreConfig struct {
	Directory string `yaml:"directory"`
	// Metric is "cosine" or "euclidean"; fixed when the store is created.
	Metric string `yaml:"metric"`
}

// IngestConfig holds document discovery and chunking settings.
type IngestConfig struct {
	SourceDirectory string   `yaml:"source_directory"`
	Extensions      []string `yaml:"extensions"`
	ChunkSize       int      `yaml:"chunk_size"`
	// ChunkOverlap is nil when unset so an explicit 0 survives ApplyDefaults.
	ChunkOverlap    *int `yaml:"chunk_overlap"`
	Workers         int  `yaml:"workers"`
	WatchDebounceMs int  `yaml:"watch_debounce_ms"`
}

// Overlap returns the configured chunk overlap in words.
func (c *IngestConfig) Overlap() int {
	if c.ChunkOverlap == nil {
		return 0
	}
	return *c.ChunkOverlap
}

// LLMConfig selects and configures the generation backend.
type LLMConfig struct {
	Variant         LLMVariant `yaml:"variant"`
	ModelPath       string     `yaml:"model_path"`
	BaseURL         string     `yaml:"base_url"`
	ContextTokens   int        `yaml:"context_tokens"`
	MaxAnswerTokens int        `yaml:"max_answer_tokens"`
	Temperature     float32    `yaml:"temperature"`
	TimeoutSecs     int        `yaml:"timeout_secs"`
}

// RetrievalConfig holds retrieval fan-out and optional hybrid keyword fusion.
type RetrievalConfig struct {
	K               int     `yaml:"k"`
	Hybrid          bool    `yaml:"hybrid"`
	KeywordWeight   float64 `yaml:"keyword_weight"`
	SemanticWeight  float64 `yaml:"semantic_weight"`
	CandidateFactor int     `yaml:"candidate_factor"`
	// Fuzziness is the keyword edit distance, 0 (exact) to 2.
	Fuzziness int `yaml:"fuzziness"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HooksConfig enables optional post-processing hooks. All are off by default.
type HooksConfig struct {
	FinancialNotice bool `yaml:"financial_notice"`
}

// KeywordIndexPath returns where the bleve index for hybrid retrieval lives.
func (s *StoreConfig) KeywordIndexPath() string {
	return filepath.Join(s.Directory, "keyword.bleve")
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the process environment.
// Missing files are ignored; variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads and parses the config file at path (skipped when path is empty), applies
// environment overrides and defaults, and expands paths. It does not validate required
// values; call Validate before wiring components.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Store.Directory = expandPath(cfg.Store.Directory, configDir)
	cfg.Ingest.SourceDirectory = expandPath(cfg.Ingest.SourceDirectory, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.LLM.ModelPath = expandPath(cfg.LLM.ModelPath, configDir)

	return &cfg, nil
}

// Validate reports every missing or out-of-range required value. Any error is fatal at startup.
func (c *Config) Validate() error {
	var problems []string
	if c.Embedding.Model == "" {
		problems = append(problems, "embedding.model (EMBEDDINGS_MODEL_NAME) is required")
	}
	switch c.Embedding.Provider {
	case ProviderONNX:
		if c.Embedding.ModelPath == "" {
			problems = append(problems, "embedding.model_path is required for the onnx provider")
		}
	case ProviderOpenAI, ProviderHash:
	default:
		problems = append(problems, fmt.Sprintf("embedding.provider %q is not one of onnx, openai, hash", c.Embedding.Provider))
	}
	if c.Store.Directory == "" {
		problems = append(problems, "store.directory (PERSIST_DIRECTORY) is required")
	}
	if c.Store.Metric != MetricCosine && c.Store.Metric != MetricEuclidean {
		problems = append(problems, fmt.Sprintf("store.metric %q is not one of cosine, euclidean", c.Store.Metric))
	}
	if c.LLM.ModelPath == "" {
		problems = append(problems, "llm.model_path (MODEL_PATH) is required")
	}
	if c.LLM.ContextTokens <= 0 {
		problems = append(problems, "llm.context_tokens (MODEL_N_CTX) must be positive")
	} else if c.LLM.MaxAnswerTokens >= c.LLM.ContextTokens {
		problems = append(problems, "llm.max_answer_tokens must be smaller than llm.context_tokens")
	}
	if c.Retrieval.K <= 0 {
		problems = append(problems, "retrieval.k (TARGET_SOURCE_CHUNKS) must be positive")
	}
	if c.Ingest.ChunkSize <= 0 {
		problems = append(problems, "ingest.chunk_size must be positive")
	} else if o := c.Ingest.Overlap(); o < 0 || o >= c.Ingest.ChunkSize {
		problems = append(problems, "ingest.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Retrieval.Fuzziness < 0 || c.Retrieval.Fuzziness > 2 {
		problems = append(problems, "retrieval.fuzziness must be 0, 1, or 2")
	}
	if c.LLM.Variant == "" {
		// Checked last so a missing variant is reported with its own sentinel.
		if len(problems) > 0 {
			return fmt.Errorf("invalid config: %s; %w", strings.Join(problems, "; "), errMissingVariant)
		}
		return fmt.Errorf("invalid config: %w", errMissingVariant)
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// expandPath converts a path to absolute. Relative paths are relative to configDir;
// a leading "~/" is relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	joined := filepath.Join(configDir, path)
	if abs, err := filepath.Abs(joined); err == nil {
		return abs
	}
	return joined
}
