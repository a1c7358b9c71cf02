// Package models defines core data structures for documents, chunks, retrieval results, and answers.
package models

// Document is the plain text extracted from one source file.
type Document struct {
	SourcePath string `json:"source_path"`
	Text       string `json:"text"`
}

// Chunk is a contiguous span of a document used as the unit of retrieval.
// Text equals the document text at [Offset, Offset+Length) in bytes.
type Chunk struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SourcePath string `json:"source_path"`
	Offset     int    `json:"offset"`
	Length     int    `json:"length"`
	Index      int    `json:"index"`
}

// End returns the byte offset just past the chunk in its document.
func (c Chunk) End() int {
	return c.Offset + c.Length
}

// EmbeddingVector is the encoder output for one chunk.
type EmbeddingVector struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
}

// Dim returns the vector dimension.
func (v EmbeddingVector) Dim() int {
	return len(v.Vector)
}
