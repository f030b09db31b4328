package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHintsArticle(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryHints
	}{
		{
			name:  "persian article reference",
			query: "ماده 10 قانون مدنی چی می‌گه؟",
			want:  QueryHints{Articles: []string{"10"}},
		},
		{
			name:  "article and note",
			query: "تبصره 2 ماده 187 قانون مالیات",
			want:  QueryHints{Articles: []string{"187"}, Notes: []string{"2"}},
		},
		{
			name:  "constitution principle",
			query: "اصل 44 قانون اساسی",
			want:  QueryHints{Articles: []string{"44"}},
		},
		{
			name:  "english article reference",
			query: "what does article 12 say",
			want:  QueryHints{Articles: []string{"12"}},
		},
		{
			name:  "duplicate references collapse",
			query: "ماده 5 و ماده 5",
			want:  QueryHints{Articles: []string{"5"}},
		},
		{
			name:  "no hints",
			query: "شرایط فسخ قرارداد اجاره",
			want:  QueryHints{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractHints(tt.query)
			assert.Equal(t, tt.want.Articles, got.Articles)
			assert.Equal(t, tt.want.Notes, got.Notes)
			assert.Equal(t, len(tt.want.Articles) == 0 && len(tt.want.Notes) == 0, got.Empty())
		})
	}
}

func TestApplyMetadataBoostPromotesMatches(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", Score: 0.80, Metadata: ChunkMetadata{Article: "9"}},
		{ID: "b", Score: 0.75, Metadata: ChunkMetadata{Article: "10"}},
		{ID: "c", Score: 0.70, Metadata: ChunkMetadata{Article: "11"}},
	}
	hints := QueryHints{Articles: []string{"10"}}

	boosted := applyMetadataBoost(chunks, hints, 0.15)

	// "b" gets 0.75+0.15=0.90 and overtakes "a".
	assert.Equal(t, "b", boosted[0].ID)
	assert.Equal(t, "a", boosted[1].ID)
	assert.Equal(t, "c", boosted[2].ID)
	assert.InDelta(t, 0.90, boosted[0].Score, 1e-6)

	// Input slice is not mutated.
	assert.Equal(t, float32(0.75), chunks[1].Score)
}

func TestApplyMetadataBoostStableOnTies(t *testing.T) {
	chunks := []Chunk{
		{ID: "first", Score: 0.5},
		{ID: "second", Score: 0.5},
	}
	boosted := applyMetadataBoost(chunks, QueryHints{Articles: []string{"99"}}, 0.15)

	// No metadata matches: similarity order is preserved.
	assert.Equal(t, "first", boosted[0].ID)
	assert.Equal(t, "second", boosted[1].ID)
}

func TestApplyMetadataBoostNoHintsPassthrough(t *testing.T) {
	chunks := []Chunk{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.1}}
	got := applyMetadataBoost(chunks, QueryHints{}, 0.15)
	assert.Equal(t, chunks, got)
}
