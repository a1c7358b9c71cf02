package config

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"gopkg.in/yaml.v3"
)

// LLMVariant is the closed set of supported generation runtimes. It is parsed once from
// configuration; an unknown value never reaches backend construction.
type LLMVariant string

const (
	// VariantLlamaCpp drives a local quantized GGUF model through llama.cpp's llama-server.
	VariantLlamaCpp LLMVariant = "llamacpp"
	// VariantGPT4All drives a GPT4All (or LocalAI) OpenAI-compatible local server.
	VariantGPT4All LLMVariant = "gpt4all"
)

var errMissingVariant = fmt.Errorf("%w: llm.variant (MODEL_TYPE) is required", models.ErrUnsupportedBackend)

// ParseLLMVariant maps a configuration string to a variant. Matching ignores case and the
// separators "-", "_", and ".", so "LlamaCpp", "llama.cpp", and "GPT4All" are accepted.
func ParseLLMVariant(s string) (LLMVariant, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "", "_", "", ".", "").Replace(norm)
	switch norm {
	case "llamacpp":
		return VariantLlamaCpp, nil
	case "gpt4all":
		return VariantGPT4All, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: %s, %s)", models.ErrUnsupportedBackend, s, VariantLlamaCpp, VariantGPT4All)
	}
}

// UnmarshalYAML rejects unknown variants while the config file is parsed.
func (v *LLMVariant) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*v = ""
		return nil
	}
	parsed, err := ParseLLMVariant(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
