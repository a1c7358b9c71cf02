package vector

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Result is a single search hit. Pos is the insertion position of the vector.
type Result struct {
	ID    string
	Pos   int
	Score float64
}

// FlatIndex is an append-only exact index: every search scores every vector.
// Ties keep insertion order, so results are fully deterministic.
type FlatIndex struct {
	metric     Metric
	dimensions int
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dimensions int, metric Metric) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if metric == "" {
		metric = Cosine
	}
	return &FlatIndex{metric: metric, dimensions: dimensions}, nil
}

// Add appends a copy of vec under id.
func (f *FlatIndex) Add(id string, vec []float32) error {
	if len(vec) != f.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
	}
	v := make([]float32, len(vec))
	copy(v, vec)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	f.vectors = append(f.vectors, v)
	return nil
}

// Search returns up to k results in descending score order. k <= 0 or an empty
// index yields no results; fewer than k vectors yields all of them.
func (f *FlatIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.ids) == 0 {
		return nil, nil
	}
	results := make([]Result, len(f.ids))
	for i, vec := range f.vectors {
		results[i] = Result{ID: f.ids[i], Pos: i, Score: f.metric.Score(query, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results[:min(k, len(results))], nil
}

// Size returns the number of vectors.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Metric returns the scoring metric.
func (f *FlatIndex) Metric() Metric {
	return f.metric
}

// EncodeVector serializes v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

// DecodeVector parses a blob written by EncodeVector. It fails unless the blob
// holds exactly dimensions values.
func DecodeVector(b []byte, dimensions int) ([]float32, error) {
	if len(b) != dimensions*4 {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d", len(b), dimensions*4)
	}
	out := make([]float32, dimensions)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
