package models

// Query is one user turn.
type Query struct {
	Text string `json:"text"`
}

// ScoredChunk is a retrieved chunk with its similarity score (higher is more similar).
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult holds at most k chunks in descending score order.
type RetrievalResult struct {
	Items []ScoredChunk `json:"items"`
}

// Len returns the number of retrieved chunks.
func (r RetrievalResult) Len() int {
	return len(r.Items)
}

// Chunks returns the retrieved chunks in retrieval order.
func (r RetrievalResult) Chunks() []Chunk {
	out := make([]Chunk, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Chunk
	}
	return out
}

// Answer is the generated response for one query. It is never persisted.
type Answer struct {
	Text        string  `json:"text"`
	CitedChunks []Chunk `json:"cited_chunks"`
}

// Sources returns the distinct source paths of the cited chunks in first-citation order.
func (a *Answer) Sources() []string {
	seen := make(map[string]bool, len(a.CitedChunks))
	var out []string
	for _, c := range a.CitedChunks {
		if seen[c.SourcePath] {
			continue
		}
		seen[c.SourcePath] = true
		out = append(out, c.SourcePath)
	}
	return out
}
