package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// LlamaCpp generates with a llama.cpp llama-server that has the configured GGUF
// model loaded, through its native /completion and /tokenize endpoints.
type LlamaCpp struct {
	baseURL     string
	modelPath   string
	maxTokens   int
	temperature float32
	client      *http.Client
	logger      *zap.Logger
}

type llamaCompletionRequest struct {
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict,omitempty"`
	Temperature float32 `json:"temperature"`
	Stream      bool    `json:"stream"`
	CachePrompt bool    `json:"cache_prompt"`
}

type llamaCompletionChunk struct {
	Content string `json:"content"`
	Stop    bool   `json:"stop"`
}

type llamaTokenizeRequest struct {
	Content string `json:"content"`
}

type llamaTokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// NewLlamaCpp returns a llama-server backend.
func NewLlamaCpp(cfg *config.LLMConfig, logger *zap.Logger) *LlamaCpp {
	logger = utils.OrNop(logger)
	return &LlamaCpp{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		modelPath:   cfg.ModelPath,
		maxTokens:   cfg.MaxAnswerTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		logger:      logger,
	}
}

// Name identifies the backend in logs and status output.
func (l *LlamaCpp) Name() string {
	return "llamacpp:" + l.modelPath
}

// Generate streams a completion for prompt.
func (l *LlamaCpp) Generate(ctx context.Context, prompt string, maxContextTokens int, onToken TokenFunc) (string, error) {
	n, err := l.CountTokens(ctx, prompt)
	if err != nil {
		return "", err
	}
	if n > maxContextTokens {
		return "", fmt.Errorf("%w: prompt has %d tokens, context window is %d", models.ErrGeneration, n, maxContextTokens)
	}

	body, err := json.Marshal(llamaCompletionRequest{
		Prompt:      prompt,
		NPredict:    l.maxTokens,
		Temperature: l.temperature,
		Stream:      true,
		CachePrompt: true,
	})
	if err != nil {
		return "", generationError("marshal request", err)
	}
	resp, err := l.post(ctx, "/completion", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var answer strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var chunk llamaCompletionChunk
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &chunk); err != nil {
			return "", generationError("decode stream", err)
		}
		if chunk.Content != "" {
			answer.WriteString(chunk.Content)
			if onToken != nil {
				onToken(chunk.Content)
			}
		}
		if chunk.Stop {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", generationError("read stream", err)
	}
	if err := ctx.Err(); err != nil {
		return "", generationError("generation cancelled", err)
	}
	l.logger.Debug("llama completion done", zap.Int("prompt_tokens", n), zap.Int("answer_bytes", answer.Len()))
	return answer.String(), nil
}

// CountTokens asks llama-server's /tokenize endpoint for the exact token count of
// text under the loaded model.
func (l *LlamaCpp) CountTokens(ctx context.Context, text string) (int, error) {
	body, err := json.Marshal(llamaTokenizeRequest{Content: text})
	if err != nil {
		return 0, generationError("marshal tokenize request", err)
	}
	resp, err := l.post(ctx, "/tokenize", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var out llamaTokenizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, generationError("decode tokenize response", err)
	}
	return len(out.Tokens), nil
}

func (l *LlamaCpp) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, generationError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, generationError("llama-server "+path, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, generationError("llama-server "+path,
			errors.New(resp.Status+": "+strings.TrimSpace(string(msg))))
	}
	return resp, nil
}
