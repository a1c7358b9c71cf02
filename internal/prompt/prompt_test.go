package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

var ctx = context.Background()

func result(texts ...string) models.RetrievalResult {
	var r models.RetrievalResult
	for i, text := range texts {
		r.Items = append(r.Items, models.ScoredChunk{
			Chunk: models.Chunk{ID: text, Text: text},
			Score: 1 - float64(i)/10,
		})
	}
	return r
}

func TestAssemble_Template(t *testing.T) {
	p, err := NewAssembler(0).Assemble(ctx, "What is the capital of France?", result("Paris is the capital of France.", "The sky is blue."), 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := preamble + "\n\nParis is the capital of France.\n\nThe sky is blue.\n\n" +
		"Question: What is the capital of France?\nHelpful Answer:"
	if p.Text != want {
		t.Errorf("Text =\n%s\nwant\n%s", p.Text, want)
	}
	if len(p.Included) != 2 {
		t.Errorf("Included = %d", len(p.Included))
	}
}

func TestAssemble_NoChunks(t *testing.T) {
	p, err := NewAssembler(0).Assemble(ctx, "Why?", models.RetrievalResult{}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if p.Text != preamble+"\n\nQuestion: Why?\nHelpful Answer:" {
		t.Errorf("Text = %q", p.Text)
	}
}

func TestAssemble_DropsLowestScoreFirst(t *testing.T) {
	res := result(
		"alpha alpha alpha alpha alpha",
		"beta beta beta beta beta",
		"gamma gamma gamma gamma gamma",
	)
	base := utils.CountTokens(render("q", nil))
	// Room for exactly two chunks.
	budget := base + 10

	p, err := NewAssembler(0).Assemble(ctx, "q", res, budget)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Included) != 2 || p.Included[0].Chunk.ID != res.Items[0].Chunk.ID || p.Included[1].Chunk.ID != res.Items[1].Chunk.ID {
		t.Errorf("Included = %+v", p.Included)
	}
	if strings.Contains(p.Text, "gamma") {
		t.Error("lowest-scoring chunk kept")
	}
	if utils.CountTokens(p.Text) > budget {
		t.Errorf("prompt over budget: %d > %d", utils.CountTokens(p.Text), budget)
	}
}

func TestAssemble_ReserveShrinksBudget(t *testing.T) {
	res := result("one two three four five")
	base := utils.CountTokens(render("q", nil))

	p, _ := NewAssembler(0).Assemble(ctx, "q", res, base+5)
	if len(p.Included) != 1 {
		t.Fatalf("without reserve Included = %d", len(p.Included))
	}
	p, _ = NewAssembler(1).Assemble(ctx, "q", res, base+5)
	if len(p.Included) != 0 {
		t.Errorf("with reserve Included = %d", len(p.Included))
	}
}

func TestAssemble_QueryNeverTruncated(t *testing.T) {
	query := strings.Repeat("very long question ", 100)
	p, err := NewAssembler(0).Assemble(ctx, query, result("context"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Included) != 0 {
		t.Errorf("Included = %d, want 0", len(p.Included))
	}
	if !strings.Contains(p.Text, "Question: "+query+"\n") {
		t.Error("query was altered")
	}
}

func TestAssemble_EmptyQuery(t *testing.T) {
	if _, err := NewAssembler(0).Assemble(ctx, "  ", result("x"), 100); err == nil {
		t.Error("expected error")
	}
}

// scaledCounter reports factor times the pre-tokenizer estimate, like a BPE
// tokenizer splitting words into several pieces.
type scaledCounter struct {
	factor int
	calls  int
}

func (c *scaledCounter) CountTokens(_ context.Context, text string) (int, error) {
	c.calls++
	return c.factor * utils.CountTokens(text), nil
}

func TestAssemble_UsesInjectedCounter(t *testing.T) {
	res := result("alpha alpha alpha alpha alpha", "beta beta beta beta beta")
	base := utils.CountTokens(render("q", nil))
	budget := base + 10

	// The estimate fits both chunks.
	p, err := NewAssembler(0).Assemble(ctx, "q", res, budget)
	if err != nil || len(p.Included) != 2 {
		t.Fatalf("estimate: Included = %d, err = %v", len(p.Included), err)
	}

	// At twice the estimate only one chunk fits.
	c := &scaledCounter{factor: 2}
	budget = 2*base + 10
	p, err = NewAssembler(0, WithCounter(c)).Assemble(ctx, "q", res, budget)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Included) != 1 || p.Included[0].Chunk.ID != res.Items[0].Chunk.ID {
		t.Errorf("Included = %+v", p.Included)
	}
	if n, _ := c.CountTokens(ctx, p.Text); n > budget {
		t.Errorf("prompt over budget: %d > %d", n, budget)
	}
}

type failingCounter struct{}

func (failingCounter) CountTokens(context.Context, string) (int, error) {
	return 0, errors.New("tokenizer down")
}

func TestAssemble_CounterError(t *testing.T) {
	if _, err := NewAssembler(0, WithCounter(failingCounter{})).Assemble(ctx, "q", result("x"), 100); err == nil {
		t.Error("expected error")
	}
}
