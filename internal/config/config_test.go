package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
)

func noEnv(string) (string, bool) { return "", false }

func mapEnv(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func validConfig() *Config {
	cfg := &Config{
		Embedding: EmbeddingConfig{Provider: ProviderHash, Model: "hash-384"},
		Store:     StoreConfig{Directory: "/tmp/db"},
		LLM:       LLMConfig{Variant: VariantLlamaCpp, ModelPath: "/models/m.gguf", ContextTokens: 1000},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Retrieval.K != 4 {
		t.Errorf("Retrieval.K = %d, want 4", cfg.Retrieval.K)
	}
	if cfg.Store.Metric != MetricCosine {
		t.Errorf("Store.Metric = %q, want cosine", cfg.Store.Metric)
	}
	if cfg.Ingest.ChunkSize != 500 || cfg.Ingest.Overlap() != 50 {
		t.Errorf("chunking = %d/%d, want 500/50", cfg.Ingest.ChunkSize, cfg.Ingest.Overlap())
	}
	if cfg.Hooks.FinancialNotice {
		t.Error("financial notice hook should be off by default")
	}
	if cfg.Retrieval.Hybrid {
		t.Error("hybrid retrieval should be off by default")
	}
	if cfg.Embedding.Model != "" || cfg.Store.Directory != "" || cfg.LLM.Variant != "" {
		t.Error("required values must not be defaulted")
	}
}

func TestApplyDefaults_ExtensionsMatchLoader(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	want := extract.Extensions()
	got := append([]string(nil), cfg.Ingest.Extensions...)
	sort.Strings(got)
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("default extensions = %v, loader supports %v", got, want)
	}
}

func TestApplyDefaults_LLMBaseURLFollowsVariant(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Variant: VariantGPT4All}}
	ApplyDefaults(cfg)
	if cfg.LLM.BaseURL != "http://127.0.0.1:4891/v1" {
		t.Errorf("BaseURL = %q", cfg.LLM.BaseURL)
	}
}

func TestParseLLMVariant(t *testing.T) {
	tests := []struct {
		in      string
		want    LLMVariant
		wantErr bool
	}{
		{"LlamaCpp", VariantLlamaCpp, false},
		{"llama.cpp", VariantLlamaCpp, false},
		{"llama-cpp", VariantLlamaCpp, false},
		{"GPT4All", VariantGPT4All, false},
		{" gpt4all ", VariantGPT4All, false},
		{"OpenAI", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLLMVariant(tt.in)
			if tt.wantErr {
				if !errors.Is(err, models.ErrUnsupportedBackend) {
					t.Fatalf("err = %v, want ErrUnsupportedBackend", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{}
	env := mapEnv(map[string]string{
		EnvEmbeddingModel:   "all-MiniLM-L6-v2",
		EnvPersistDirectory: "db",
		EnvModelType:        "GPT4All",
		EnvModelPath:        "models/ggml.bin",
		EnvModelNCtx:        "1000",
		EnvTargetChunks:     "6",
	})
	if err := ApplyEnv(cfg, env); err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.Model != "all-MiniLM-L6-v2" || cfg.Store.Directory != "db" {
		t.Errorf("string overrides not applied: %+v", cfg)
	}
	if cfg.LLM.Variant != VariantGPT4All || cfg.LLM.ContextTokens != 1000 || cfg.Retrieval.K != 6 {
		t.Errorf("llm/retrieval overrides not applied: %+v %+v", cfg.LLM, cfg.Retrieval)
	}
}

func TestApplyEnv_Errors(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		sentinel error
	}{
		{"unknown model type", map[string]string{EnvModelType: "Falcon"}, models.ErrUnsupportedBackend},
		{"non-numeric context", map[string]string{EnvModelNCtx: "lots"}, nil},
		{"non-numeric k", map[string]string{EnvTargetChunks: "four"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ApplyEnv(&Config{}, mapEnv(tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("err = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"missing embedding model", func(c *Config) { c.Embedding.Model = "" }, "embedding.model"},
		{"missing store dir", func(c *Config) { c.Store.Directory = "" }, "store.directory"},
		{"missing model path", func(c *Config) { c.LLM.ModelPath = "" }, "llm.model_path"},
		{"missing context", func(c *Config) { c.LLM.ContextTokens = 0 }, "context_tokens"},
		{"answer reserve too large", func(c *Config) { c.LLM.MaxAnswerTokens = 1000 }, "max_answer_tokens"},
		{"bad metric", func(c *Config) { c.Store.Metric = "manhattan" }, "store.metric"},
		{"bad provider", func(c *Config) { c.Embedding.Provider = "word2vec" }, "embedding.provider"},
		{"onnx without model path", func(c *Config) { c.Embedding.Provider = ProviderONNX }, "model_path"},
		{"fuzziness out of range", func(c *Config) { c.Retrieval.Fuzziness = 3 }, "fuzziness"},
		{"overlap too large", func(c *Config) { n := c.Ingest.ChunkSize; c.Ingest.ChunkOverlap = &n }, "chunk_overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("err = %v, want mention of %q", err, tt.substr)
			}
		})
	}
}

func TestValidate_MissingVariant(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Variant = ""
	if err := cfg.Validate(); !errors.Is(err, models.ErrUnsupportedBackend) {
		t.Fatalf("err = %v, want ErrUnsupportedBackend", err)
	}
}

func TestLoad_YAMLAndRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kotae.yaml")
	content := `
embedding:
  provider: hash
  model: hash-384
store:
  directory: ./db
llm:
  variant: LlamaCpp
  model_path: ./models/model.gguf
  context_tokens: 2048
retrieval:
  k: 3
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Directory != filepath.Join(dir, "db") {
		t.Errorf("Store.Directory = %q, want %q", cfg.Store.Directory, filepath.Join(dir, "db"))
	}
	if cfg.LLM.ModelPath != filepath.Join(dir, "models", "model.gguf") {
		t.Errorf("LLM.ModelPath = %q", cfg.LLM.ModelPath)
	}
	if cfg.LLM.Variant != VariantLlamaCpp || cfg.Retrieval.K != 3 {
		t.Errorf("parsed llm/retrieval = %+v / %+v", cfg.LLM, cfg.Retrieval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_ChunkOverlap(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want int
	}{
		{"explicit zero kept", "ingest:\n  chunk_size: 20\n  chunk_overlap: 0\n", 0},
		{"explicit value", "ingest:\n  chunk_size: 20\n  chunk_overlap: 5\n", 5},
		{"unset uses a tenth", "ingest:\n  chunk_size: 20\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "kotae.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0600); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if got := cfg.Ingest.Overlap(); got != tt.want {
				t.Errorf("Overlap() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoad_UnknownVariantRejectedAtParse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kotae.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  variant: Mistral\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, models.ErrUnsupportedBackend) {
		t.Fatalf("err = %v, want ErrUnsupportedBackend", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kotae.yaml")
	if err := os.WriteFile(path, []byte("retrieval:\n  k: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvTargetChunks, "7")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.K != 7 {
		t.Errorf("Retrieval.K = %d, want 7 from environment", cfg.Retrieval.K)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("KOTAE_TEST_DOTENV=loaded\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KOTAE_TEST_DOTENV", "")
	os.Unsetenv("KOTAE_TEST_DOTENV")
	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("KOTAE_TEST_DOTENV"); got != "loaded" {
		t.Errorf("KOTAE_TEST_DOTENV = %q, want loaded", got)
	}
}

func TestExpandPath(t *testing.T) {
	if got := expandPath("", "/cfg"); got != "" {
		t.Errorf("empty path = %q", got)
	}
	if got := expandPath("/abs/x", "/cfg"); got != "/abs/x" {
		t.Errorf("absolute path = %q", got)
	}
	if got := expandPath("rel/x", "/cfg"); got != "/cfg/rel/x" {
		t.Errorf("relative path = %q", got)
	}
}
