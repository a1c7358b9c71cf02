// Package extract loads source documents and turns them into plain text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// textFunc extracts text from a file's bytes. path is passed for formats whose
// library only reads from disk.
type textFunc func(path string, content []byte) (string, error)

var formats = map[string]textFunc{
	".txt":  plainText,
	".md":   plainText,
	".rst":  plainText,
	".csv":  csvText,
	".pdf":  pdfText,
	".docx": docxText,
	".pptx": pptxText,
	".xlsx": excelText,
	".odp":  openDocumentText,
	".ods":  openDocumentText,
	".odt":  catText,
	".rtf":  catText,
}

// Loader reads documents from disk. It is safe for concurrent use.
type Loader struct {
	logger *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for per-file debug output.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// NewLoader returns a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// Extensions returns the supported extensions (with leading dot), sorted.
func Extensions() []string {
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supported reports whether path has an extension the loader can read.
func (l *Loader) Supported(path string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load reads the file at path and returns its extracted text as a Document.
// Any failure, including an unsupported extension or text that is empty after
// trimming, is reported as models.ErrLoad.
func (l *Loader) Load(path string) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	extract, ok := formats[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s: unsupported extension %q", models.ErrLoad, path, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrLoad, path, err)
	}
	text, err := extract(path, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrLoad, path, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s: no text extracted", models.ErrLoad, path)
	}
	l.logger.Debug("loaded document", zap.String("path", path), zap.Int("bytes", len(text)))
	return &models.Document{SourcePath: path, Text: text}, nil
}
