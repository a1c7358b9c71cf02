package retrieval

import (
	"sort"

	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
)

// FusedResult holds a chunk ID with its fused and component scores.
type FusedResult struct {
	ChunkID       string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores scales keyword scores into [0,1] by the maximum score.
func NormalizeKeywordScores(results []keyword.Result) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	var maxScore float64
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// Fuse combines semantic candidates (in rank order) with keyword scores. Candidates
// found only by keyword follow the semantic ones in keywordOrder. The result is sorted
// by weighted score; ties keep that initial order, so the vector rank breaks ties.
func Fuse(semantic []models.ScoredChunk, keywordScores map[string]float64, keywordOrder []string, keywordWeight, semanticWeight float64) []FusedResult {
	seen := make(map[string]bool, len(semantic)+len(keywordOrder))
	results := make([]FusedResult, 0, len(semantic)+len(keywordOrder))
	for _, s := range semantic {
		seen[s.Chunk.ID] = true
		results = append(results, FusedResult{
			ChunkID:       s.Chunk.ID,
			SemanticScore: s.Score,
			KeywordScore:  keywordScores[s.Chunk.ID],
		})
	}
	for _, id := range keywordOrder {
		if seen[id] {
			continue
		}
		seen[id] = true
		results = append(results, FusedResult{ChunkID: id, KeywordScore: keywordScores[id]})
	}
	for i := range results {
		results[i].Score = keywordWeight*results[i].KeywordScore + semanticWeight*results[i].SemanticScore
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
