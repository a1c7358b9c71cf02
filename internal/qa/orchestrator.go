// Package qa runs question-answer turns: retrieve, assemble, generate, present.
package qa

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/postprocess"
	"github.com/hyperjump/kotae/internal/prompt"
	"go.uber.org/zap"
)

// ExitCommand ends an interactive session.
const ExitCommand = "exit"

// State is the orchestrator's position in a turn.
type State int32

const (
	Idle State = iota
	Retrieving
	Assembling
	Generating
	Presenting
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Retrieving:
		return "retrieving"
	case Assembling:
		return "assembling"
	case Generating:
		return "generating"
	case Presenting:
		return "presenting"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Retriever finds the chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, q models.Query, k int) (models.RetrievalResult, error)
}

// Assembler builds the prompt for a query and its retrieved chunks.
type Assembler interface {
	Assemble(ctx context.Context, query string, result models.RetrievalResult, maxContextTokens int) (prompt.Prompt, error)
}

// Orchestrator answers one question at a time. Configuration is fixed at construction.
type Orchestrator struct {
	retriever     Retriever
	assembler     Assembler
	backend       llm.Backend
	k             int
	contextTokens int
	muteStream    bool
	hooks         []postprocess.Hook
	logger        *zap.Logger

	turn    sync.Mutex
	state   atomic.Int32
	onState func(State)
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMuteStream prints answers only once complete.
func WithMuteStream(mute bool) Option {
	return func(o *Orchestrator) { o.muteStream = mute }
}

// WithHooks adds post-processing hooks run after each presented answer.
func WithHooks(hooks ...postprocess.Hook) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, hooks...) }
}

// New returns an Orchestrator retrieving k chunks per question for a model with a
// contextTokens window.
func New(r Retriever, a Assembler, b llm.Backend, k, contextTokens int, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		retriever:     r,
		assembler:     a,
		backend:       b,
		k:             k,
		contextTokens: contextTokens,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	if o.onState != nil {
		o.onState(s)
	}
}

// Ask runs one turn for query. onToken, when set, receives generated tokens in
// order before Ask returns. Turns are serialized.
func (o *Orchestrator) Ask(ctx context.Context, query string, onToken llm.TokenFunc) (*models.Answer, error) {
	o.turn.Lock()
	defer o.turn.Unlock()
	defer o.setState(Idle)
	return o.answer(ctx, models.Query{Text: query}, onToken)
}

// answer retrieves, assembles and generates. The caller holds the turn lock and
// resets the state.
func (o *Orchestrator) answer(ctx context.Context, q models.Query, onToken llm.TokenFunc) (*models.Answer, error) {
	start := time.Now()

	o.setState(Retrieving)
	res, err := o.retriever.Retrieve(ctx, q, o.k)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	o.setState(Assembling)
	p, err := o.assembler.Assemble(ctx, q.Text, res, o.contextTokens)
	if err != nil {
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}

	o.setState(Generating)
	genCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	text, err := o.backend.Generate(genCtx, p.Text, o.contextTokens, onToken)
	o.mu.Lock()
	o.cancel = nil
	o.mu.Unlock()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	cited := models.RetrievalResult{Items: p.Included}.Chunks()
	o.logger.Debug("answered",
		zap.Int("retrieved", res.Len()),
		zap.Int("cited", len(cited)),
		zap.Duration("took", time.Since(start)))
	return &models.Answer{Text: text, CitedChunks: cited}, nil
}

// Cancel aborts the generation in flight, if any. It reports whether there was one.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

// Run reads one question per line from in and presents each answer through out
// until "exit", end of input, or ctx is done. Per-turn failures are reported and
// the loop continues.
func (o *Orchestrator) Run(ctx context.Context, in io.Reader, out *cli.Presenter) error {
	defer o.setState(Stopped)
	scanner := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Prompt()
		if !scanner.Scan() {
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == ExitCommand {
			return nil
		}
		if query == "" {
			continue
		}
		o.turnWithPresenter(ctx, query, out)
	}
}

func (o *Orchestrator) turnWithPresenter(ctx context.Context, query string, out *cli.Presenter) {
	o.turn.Lock()
	defer o.turn.Unlock()
	defer o.setState(Idle)

	out.Question(query)
	var onToken llm.TokenFunc
	streamed := out.Streaming() && !o.muteStream
	if streamed {
		onToken = out.Token
	}
	answer, err := o.answer(ctx, models.Query{Text: query}, onToken)
	if err != nil {
		o.logger.Warn("turn failed", zap.Error(err))
		out.Error(err)
		return
	}
	o.setState(Presenting)
	if err := out.Answer(query, answer, streamed); err != nil {
		o.logger.Warn("present answer", zap.Error(err))
	}
	for _, h := range o.hooks {
		if msg := h.After(ctx, query, answer); msg != "" {
			out.Notice(msg)
		}
	}
}
