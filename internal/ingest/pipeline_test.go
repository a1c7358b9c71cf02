package ingest

import (
	"context"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// poisonEmbedder fails on any text containing "poison".
type poisonEmbedder struct{ *embedding.HashEmbedder }

func (p poisonEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, "poison") {
			return nil, models.ErrEncoding
		}
	}
	return p.HashEmbedder.EmbedBatch(ctx, texts)
}

type recordingKeyword struct{ chunks []models.Chunk }

func (r *recordingKeyword) IndexAll(_ context.Context, chunks []models.Chunk) error {
	r.chunks = append(r.chunks, chunks...)
	return nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// malformedPDF returns a PDF with a valid xref table whose page tree object is
// missing the end of its Kids array.
func malformedPDF() string {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return b.String()
}

func setup(t *testing.T, opts ...Option) (*Pipeline, *storage.VectorStore) {
	t.Helper()
	e := poisonEmbedder{embedding.NewHashEmbedder(64)}
	store, err := storage.Open(t.TempDir(), storage.Options{Dimensions: 64, Metric: vector.Cosine, Encoder: e.Name()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	p, err := New(extract.NewLoader(), e, store, 5, 1, append([]Option{WithWorkers(3)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return p, store
}

func TestNew_InvalidChunking(t *testing.T) {
	_, err := New(extract.NewLoader(), embedding.NewHashEmbedder(8), nil, 5, 5)
	if !errors.Is(err, models.ErrInvalidChunking) {
		t.Errorf("err = %v, want ErrInvalidChunking", err)
	}
}

func TestIngestDirectory(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "Paris is the capital of France and its largest city.")
	writeFile(t, filepath.Join(src, "nested", "b.md"), "# Notes\n\nThe sky is blue.")
	writeFile(t, filepath.Join(src, "bad.docx"), "not a zip archive")
	writeFile(t, filepath.Join(src, "blank.txt"), "   \n\t ")
	writeFile(t, filepath.Join(src, "poison.txt"), "this text is poison")
	writeFile(t, filepath.Join(src, "image.bin"), "\x00\x01")

	kw := &recordingKeyword{}
	p, store := setup(t, WithKeywordIndex(kw))
	ctx := context.Background()

	sum, err := p.IngestDirectory(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	// a.txt: 10 words, size 5 overlap 1 -> windows at 0,4,8 = 3 chunks; b.md: 6 words -> 2 chunks.
	if sum.Documents != 2 || sum.Chunks != 5 || sum.Skipped != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Failures) != 3 {
		t.Fatalf("failures = %+v, want 3", sum.Failures)
	}
	for _, f := range sum.Failures {
		if !errors.Is(f.Err, models.ErrLoad) && !errors.Is(f.Err, models.ErrEncoding) {
			t.Errorf("failure %s: %v", f.Path, f.Err)
		}
	}
	if store.Size() != 5 || len(kw.chunks) != 5 {
		t.Errorf("store size %d, keyword chunks %d", store.Size(), len(kw.chunks))
	}

	again, err := p.IngestDirectory(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	if again.Documents != 0 || again.Skipped != 2 || store.Size() != 5 {
		t.Errorf("second run = %+v, size %d", again, store.Size())
	}
}

func TestIngestDirectory_MalformedPDFIsIsolated(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "good.txt"), "Paris is the capital of France.")
	writeFile(t, filepath.Join(src, "broken.pdf"), malformedPDF())
	p, store := setup(t)

	sum, err := p.IngestDirectory(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Documents != 1 || store.Size() != sum.Chunks {
		t.Errorf("summary = %+v, size %d", sum, store.Size())
	}
	if len(sum.Failures) != 1 {
		t.Fatalf("failures = %+v, want 1", sum.Failures)
	}
	f := sum.Failures[0]
	if filepath.Base(f.Path) != "broken.pdf" || !errors.Is(f.Err, models.ErrLoad) {
		t.Errorf("failure = %s: %v", f.Path, f.Err)
	}
}

func TestIngestDirectory_ChangedFile(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "a.txt")
	writeFile(t, path, "one two three")
	p, store := setup(t)
	ctx := context.Background()
	if _, err := p.IngestDirectory(ctx, src); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, "one two three four")
	sum, err := p.IngestDirectory(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Documents != 1 || store.Size() != 2 {
		t.Errorf("summary %+v, size %d", sum, store.Size())
	}
}

func TestIngestDirectory_Extensions(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "text file")
	writeFile(t, filepath.Join(src, "b.md"), "markdown file")
	p, _ := setup(t, WithExtensions([]string{"md"}))
	sum, err := p.IngestDirectory(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Documents != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if p.Accepts("x.txt") || !p.Accepts("x.MD") {
		t.Error("Accepts does not honour extensions")
	}
}

func TestIngestDirectory_NotADirectory(t *testing.T) {
	p, _ := setup(t)
	if _, err := p.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error")
	}
}

func TestIngestFile(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "a.txt")
	writeFile(t, path, "Paris is the capital of France.")
	p, store := setup(t)
	sum, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Documents != 1 || sum.Chunks != 2 {
		t.Errorf("summary = %+v", sum)
	}
	key, _ := filepath.Abs(path)
	if ok, _ := store.HasSource(context.Background(), key, mustHash(t, path)); !ok {
		t.Error("source not marked")
	}
	chunks := store.Chunks()
	if chunks[0].SourcePath != key {
		t.Errorf("SourcePath = %q, want %q", chunks[0].SourcePath, key)
	}
}

func TestIngest_Cancelled(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "some words here")
	p, store := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.IngestDirectory(ctx, src); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if store.Size() != 0 {
		t.Errorf("store size = %d", store.Size())
	}
}

func mustHash(t *testing.T, path string) string {
	t.Helper()
	h, err := fileid.ContentHash(path)
	if err != nil {
		t.Fatal(err)
	}
	return h
}
