package chunkstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/condoql/internal/model"
)

func TestFilterMatches(t *testing.T) {
	chunk := model.Chunk{
		ChunkID:     "line_item:x",
		Granularity: model.GranularityLineItem,
		Metadata: model.ChunkMetadata{
			Category:    "utilities",
			Vendor:      "CEMIG",
			Period:      "2025-03",
			DocumentIDs: []string{"doc-a", "doc-b"},
		},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty filter matches", filter: Filter{}, want: true},
		{name: "period match", filter: Filter{Period: "2025-03"}, want: true},
		{name: "period mismatch", filter: Filter{Period: "2025-04"}, want: false},
		{name: "category in list", filter: Filter{Categories: []string{"cleaning", "utilities"}}, want: true},
		{name: "category not in list", filter: Filter{Categories: []string{"cleaning"}}, want: false},
		{name: "vendor match", filter: Filter{Vendor: "CEMIG"}, want: true},
		{name: "vendor mismatch", filter: Filter{Vendor: "COPASA"}, want: false},
		{name: "granularity match", filter: Filter{Granularities: []model.Granularity{model.GranularityLineItem}}, want: true},
		{name: "granularity mismatch", filter: Filter{Granularities: []model.Granularity{model.GranularityPeriodTotal}}, want: false},
		{name: "document id match", filter: Filter{DocumentID: "doc-b"}, want: true},
		{name: "document id mismatch", filter: Filter{DocumentID: "doc-z"}, want: false},
		{name: "all predicates", filter: Filter{Period: "2025-03", Vendor: "CEMIG", DocumentID: "doc-a"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.filter.Matches(chunk))
		})
	}
}

func TestFilterEmpty(t *testing.T) {
	require.True(t, Filter{}.Empty())
	require.False(t, Filter{Period: "2025-03"}.Empty())
	require.False(t, Filter{Categories: []string{"utilities"}}.Empty())
}

func TestNew_UnknownStoreType(t *testing.T) {
	_, err := New("bolt", nil, Deps{Embedder: testEmbedder(t, "m")})
	require.Error(t, err)
}
