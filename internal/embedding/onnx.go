//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXOptions configures an ONNX sentence encoder.
type ONNXOptions struct {
	// ModelPath is the .onnx file exported from a sentence-transformers model.
	ModelPath string
	// Model is the model identifier recorded in the store (e.g. "all-MiniLM-L6-v2").
	Model      string
	Dimensions int
	MaxTokens  int
	Tokenizer  Tokenizer
}

// ONNXEmbedder runs a BERT-style encoder with ONNX Runtime and mean-pools its
// last hidden state. It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	model      string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// Tensors are bound to the session once; Embed rewrites their data in place.
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	hidden        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewONNXEmbedder creates an ONNX embedder, initializing the runtime if needed.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	if opts.Dimensions <= 0 || opts.MaxTokens <= 2 {
		return nil, fmt.Errorf("%w: invalid onnx dimensions=%d max_tokens=%d", models.ErrEncoding, opts.Dimensions, opts.MaxTokens)
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = &HashTokenizer{}
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize onnx runtime: %w", models.ErrEncoding, err)
		}
	}

	e := &ONNXEmbedder{
		model:      opts.Model,
		dimensions: opts.Dimensions,
		maxTokens:  opts.MaxTokens,
		tokenizer:  opts.Tokenizer,
	}
	seqShape := ort.NewShape(1, int64(opts.MaxTokens))
	var err error
	if e.inputIDs, err = ort.NewEmptyTensor[int64](seqShape); err != nil {
		return nil, e.failInit("input_ids tensor", err)
	}
	if e.attentionMask, err = ort.NewEmptyTensor[int64](seqShape); err != nil {
		return nil, e.failInit("attention_mask tensor", err)
	}
	if e.tokenTypeIDs, err = ort.NewEmptyTensor[int64](seqShape); err != nil {
		return nil, e.failInit("token_type_ids tensor", err)
	}
	if e.hidden, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.MaxTokens), int64(opts.Dimensions))); err != nil {
		return nil, e.failInit("output tensor", err)
	}
	e.session, err = ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		[]ort.ArbitraryTensor{e.inputIDs, e.attentionMask, e.tokenTypeIDs},
		[]ort.ArbitraryTensor{e.hidden},
		nil,
	)
	if err != nil {
		return nil, e.failInit("session", err)
	}
	return e, nil
}

func (e *ONNXEmbedder) failInit(what string, err error) error {
	_ = e.Close()
	return fmt.Errorf("%w: create onnx %s: %w", models.ErrEncoding, what, err)
}

// Embed returns the mean-pooled, L2-normalized embedding of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkInput(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEncoding, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	copy(e.tokenTypeIDs.GetData(), types)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: inference: %w", models.ErrEncoding, err)
	}

	hidden := e.hidden.GetData()
	out := make([]float32, e.dimensions)
	var n float32
	for pos, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[pos*e.dimensions : (pos+1)*e.dimensions]
		for i, v := range row {
			out[i] += v
		}
		n++
	}
	if n > 0 {
		for i := range out {
			out[i] /= n
		}
	}
	utils.NormalizeL2(out)
	return out, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns "onnx:<model>".
func (e *ONNXEmbedder) Name() string {
	return "onnx:" + e.model
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.inputIDs, e.attentionMask, e.tokenTypeIDs} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if e.hidden != nil {
		_ = e.hidden.Destroy()
	}
	e.inputIDs, e.attentionMask, e.tokenTypeIDs, e.hidden = nil, nil, nil, nil
	return err
}
