// Package chunker splits documents into overlapping word windows.
package chunker

import (
	"fmt"
	"strconv"
	"unicode"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/models"
)

// chunkNamespace scopes chunk IDs so they never collide with other name-based UUIDs.
var chunkNamespace = uuid.MustParse("6f1c1a52-5b0e-4d8e-9f0a-2d3b7c4e8a11")

// Chunker splits text into overlapping word-based chunks. Sizes are in words.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a chunker. It fails with models.ErrInvalidChunking unless
// chunkSize > 0 and 0 <= chunkOverlap < chunkSize.
func New(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", models.ErrInvalidChunking, chunkSize, chunkOverlap)
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Split is shorthand for New(chunkSize, overlap) followed by Chunker.Split.
func Split(doc *models.Document, chunkSize, overlap int) ([]models.Chunk, error) {
	c, err := New(chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(doc), nil
}

// span is the byte range of one whitespace-delimited word.
type span struct{ start, end int }

// wordSpans returns the byte ranges of the words strings.Fields would return.
func wordSpans(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

// Split returns the chunks of doc in order. Each chunk's text is the exact
// source substring from its first to its last word, so offsets always map back
// into doc.Text. A document with at most chunkSize words yields one chunk;
// a whitespace-only document yields none. Output depends only on the input.
func (c *Chunker) Split(doc *models.Document) []models.Chunk {
	words := wordSpans(doc.Text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap

	var chunks []models.Chunk
	for i := 0; i < len(words); i += step {
		end := min(i+c.chunkSize, len(words))
		ch := models.Chunk{
			SourcePath: doc.SourcePath,
			Offset:     words[i].start,
			Length:     words[end-1].end - words[i].start,
			Index:      len(chunks),
		}
		ch.Text = doc.Text[ch.Offset:ch.End()]
		ch.ID = chunkID(ch.SourcePath, ch.Offset, ch.Length, ch.Text)
		chunks = append(chunks, ch)
		if end == len(words) {
			break
		}
	}
	return chunks
}

func chunkID(path string, offset, length int, text string) string {
	name := make([]byte, 0, len(path)+len(text)+24)
	name = append(name, path...)
	name = append(name, 0)
	name = strconv.AppendInt(name, int64(offset), 10)
	name = append(name, 0)
	name = strconv.AppendInt(name, int64(length), 10)
	name = append(name, 0)
	name = append(name, text...)
	return uuid.NewSHA1(chunkNamespace, name).String()
}
