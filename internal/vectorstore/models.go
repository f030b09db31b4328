package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/yektalaw/pasokhd/internal/embeddings"
)

// ChunkMetadata is the structured payload stored alongside each passage.
type ChunkMetadata struct {
	Title     string `json:"title,omitempty"`
	Article   string `json:"article,omitempty"`
	Note      string `json:"note,omitempty"`
	Path      string `json:"path,omitempty"`
	Authority string `json:"authority,omitempty"`
	Language  string `json:"language,omitempty"`
	ValidFrom string `json:"valid_from,omitempty"`
	ValidTo   string `json:"valid_to,omitempty"`
}

// Chunk is a retrieved passage. Ordering within a result list is significant
// and read-only for downstream stages.
type Chunk struct {
	ID         string
	Text       string
	Score      float32
	DocumentID string
	Metadata   ChunkMetadata
}

// Searcher is the retrieval capability consumed by the pipeline.
type Searcher interface {
	// HybridSearch runs metadata-boosted similarity search when the query
	// text carries structured hints, falling back to plain similarity with
	// a lower threshold otherwise. Filters are always applied verbatim.
	HybridSearch(ctx context.Context, emb embeddings.Embedding, queryText string, limit int, filters map[string]string) ([]Chunk, error)
}

// SlotSet maps named vector slots to their dimensionality.
type SlotSet map[string]uint64

// Resolve returns the slot name whose dimensionality equals dim.
// Exactly-one-slot matching is guaranteed by config validation; no match
// is a hard ErrDimensionMismatch, never a best-effort guess.
func (s SlotSet) Resolve(dim int) (string, error) {
	for name, d := range s {
		if d == uint64(dim) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: dimension %d, configured slots %v", ErrDimensionMismatch, dim, s.Dims())
}

// Dims returns the configured dimensionalities in ascending order.
func (s SlotSet) Dims() []uint64 {
	dims := make([]uint64, 0, len(s))
	for _, d := range s {
		dims = append(dims, d)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })
	return dims
}
