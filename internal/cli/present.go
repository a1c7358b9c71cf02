// Package cli renders question-answer turns for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/kotae/internal/models"
)

// OutputFormat is the format for answer output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is one JSON object per answer, for other programs.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Presenter writes turns to w. Styles degrade to plain text when w is not a terminal.
type Presenter struct {
	w          io.Writer
	format     OutputFormat
	hideSource bool
	heading    lipgloss.Style
	source     lipgloss.Style
	failure    lipgloss.Style
	notice     lipgloss.Style
}

// PresenterOption configures a Presenter.
type PresenterOption func(*Presenter)

// WithFormat sets the output format.
func WithFormat(f OutputFormat) PresenterOption {
	return func(p *Presenter) { p.format = f }
}

// WithHiddenSources omits the source listing after each answer.
func WithHiddenSources(hide bool) PresenterOption {
	return func(p *Presenter) { p.hideSource = hide }
}

// NewPresenter returns a Presenter writing to w.
func NewPresenter(w io.Writer, opts ...PresenterOption) *Presenter {
	r := lipgloss.NewRenderer(w)
	p := &Presenter{
		w:       w,
		format:  OutputText,
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		source:  r.NewStyle().Foreground(lipgloss.Color("10")),
		failure: r.NewStyle().Foreground(lipgloss.Color("9")),
		notice:  r.NewStyle().Italic(true).Foreground(lipgloss.Color("11")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Streaming reports whether answer tokens should be written as they arrive.
func (p *Presenter) Streaming() bool {
	return p.format == OutputText
}

// Prompt writes the input prompt.
func (p *Presenter) Prompt() {
	if p.format == OutputText {
		fmt.Fprint(p.w, "\nEnter a query: ")
	}
}

// Question echoes the question and opens the answer section.
func (p *Presenter) Question(q string) {
	if p.format != OutputText {
		return
	}
	fmt.Fprintf(p.w, "\n\n%s\n%s\n", p.heading.Render("> Question:"), q)
	fmt.Fprintf(p.w, "\n%s\n", p.heading.Render("> Answer:"))
}

// Token writes one streamed token.
func (p *Presenter) Token(tok string) {
	fmt.Fprint(p.w, tok)
}

type jsonAnswer struct {
	Question string       `json:"question"`
	Answer   string       `json:"answer"`
	Sources  []jsonSource `json:"sources,omitempty"`
}

type jsonSource struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// Answer finishes the turn. With streamed set the answer text was already
// written token by token and only the sources follow.
func (p *Presenter) Answer(question string, a *models.Answer, streamed bool) error {
	if p.format == OutputJSON {
		out := jsonAnswer{Question: question, Answer: a.Text}
		if !p.hideSource {
			for _, c := range a.CitedChunks {
				out.Sources = append(out.Sources, jsonSource{Path: c.SourcePath, Text: c.Text})
			}
		}
		return json.NewEncoder(p.w).Encode(out)
	}
	if !streamed {
		fmt.Fprint(p.w, a.Text)
	}
	fmt.Fprintln(p.w)
	if p.hideSource {
		return nil
	}
	for _, src := range a.Sources() {
		for _, c := range a.CitedChunks {
			if c.SourcePath == src {
				fmt.Fprintf(p.w, "\n%s\n%s\n", p.source.Render("> "+src+":"), c.Text)
			}
		}
	}
	return nil
}

// Error reports a failed turn.
func (p *Presenter) Error(err error) {
	if p.format == OutputJSON {
		_ = json.NewEncoder(p.w).Encode(map[string]string{"error": err.Error()})
		return
	}
	fmt.Fprintf(p.w, "\n%s %v\n", p.failure.Render("error:"), err)
}

// Notice writes an informational line after an answer.
func (p *Presenter) Notice(msg string) {
	if p.format == OutputJSON {
		return
	}
	fmt.Fprintf(p.w, "\n%s\n", p.notice.Render(msg))
}
