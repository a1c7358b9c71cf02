//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// ONNXOptions configures an ONNX sentence encoder.
type ONNXOptions struct {
	ModelPath  string
	Model      string
	Dimensions int
	MaxTokens  int
	Tokenizer  Tokenizer
}

// ONNXEmbedder is unavailable without CGO; see onnx.go.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails when built without CGO.
func NewONNXEmbedder(_ ONNXOptions) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: onnx embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime", models.ErrEncoding)
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: onnx unavailable", models.ErrEncoding)
}

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: onnx unavailable", models.ErrEncoding)
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }
func (e *ONNXEmbedder) Name() string    { return "onnx" }
func (e *ONNXEmbedder) Close() error    { return nil }
