package chunkstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/condoql/internal/ai"
	"github.com/xxxsen/condoql/internal/model"
	appErr "github.com/xxxsen/condoql/internal/pkg/errors"
)

func testEmbedder(t *testing.T, modelName string) ai.IEmbedder {
	t.Helper()
	provider, err := ai.NewEmbedProvider("hash", nil)
	require.NoError(t, err)
	return ai.NewEmbedder(provider, modelName)
}

func testChunks() []model.Chunk {
	return []model.Chunk{
		{
			ChunkID:     "line_item:aaa",
			Text:        "Electricity bill: R$ 2,450.30 paid to CEMIG on 2025-03-10. Category: Utilities. Period: March 2025.",
			Granularity: model.GranularityLineItem,
			Metadata: model.ChunkMetadata{
				Category:    "utilities",
				Amount:      2450.30,
				Currency:    "BRL",
				Date:        "2025-03-10",
				Vendor:      "CEMIG",
				Period:      "2025-03",
				DocumentIDs: []string{"balancete-2025-03"},
				ItemCount:   1,
			},
		},
		{
			ChunkID:     "line_item:bbb",
			Text:        "Garden maintenance: R$ 800.00 paid to Verde Jardins on 2025-04-02. Category: Maintenance. Period: April 2025.",
			Granularity: model.GranularityLineItem,
			Metadata: model.ChunkMetadata{
				Category:    "maintenance",
				Amount:      800,
				Currency:    "BRL",
				Date:        "2025-04-02",
				Vendor:      "Verde Jardins",
				Period:      "2025-04",
				DocumentIDs: []string{"balancete-2025-04"},
				ItemCount:   1,
			},
		},
		{
			ChunkID:     "period_total:ccc",
			Text:        "Total expenses for March 2025: R$ 2,450.30 across 1 items.",
			Granularity: model.GranularityPeriodTotal,
			Metadata: model.ChunkMetadata{
				Amount:      2450.30,
				Currency:    "BRL",
				Period:      "2025-03",
				DocumentIDs: []string{"balancete-2025-03"},
				ItemCount:   1,
			},
		},
	}
}

func TestMemoryStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testEmbedder(t, "test-model"))

	require.NoError(t, store.Upsert(ctx, testChunks()))
	require.NoError(t, store.Upsert(ctx, testChunks()))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestMemoryStore_QueryRanksRelevantFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testEmbedder(t, "test-model"))
	require.NoError(t, store.Upsert(ctx, testChunks()))

	results, err := store.Query(ctx, "electricity bill CEMIG March 2025", Filter{}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "line_item:aaa", results[0].Chunk.ChunkID)
	require.Greater(t, results[0].Score, results[2].Score)
}

func TestMemoryStore_QueryAppliesFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testEmbedder(t, "test-model"))
	require.NoError(t, store.Upsert(ctx, testChunks()))

	results, err := store.Query(ctx, "expenses", Filter{Period: "2025-04"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "line_item:bbb", results[0].Chunk.ChunkID)

	results, err = store.Query(ctx, "expenses", Filter{
		Granularities: []model.Granularity{model.GranularityPeriodTotal},
	}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "period_total:ccc", results[0].Chunk.ChunkID)
}

func TestMemoryStore_QueryDeterministicOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testEmbedder(t, "test-model"))
	require.NoError(t, store.Upsert(ctx, testChunks()))

	first, err := store.Query(ctx, "condominium expenses", Filter{}, 3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := store.Query(ctx, "condominium expenses", Filter{}, 3)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestMemoryStore_ResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testEmbedder(t, "test-model"))
	require.NoError(t, store.Upsert(ctx, testChunks()))
	require.NoError(t, store.Reset(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)

	results, err := store.Query(ctx, "anything", Filter{}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestMemoryStore_EmbedderSwapRejected(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testEmbedder(t, "model-a"))
	require.NoError(t, store.Upsert(ctx, testChunks()))

	store.embedder = testEmbedder(t, "model-b")
	_, err := store.Query(ctx, "expenses", Filter{}, 3)
	require.ErrorIs(t, err, appErr.ErrSchemaVersion)
	require.ErrorIs(t, store.Upsert(ctx, testChunks()), appErr.ErrSchemaVersion)

	// Reset drops the stamp, so the new embedder may rebuild the index.
	require.NoError(t, store.Reset(ctx))
	require.NoError(t, store.Upsert(ctx, testChunks()))
}

func TestMemoryStore_Values(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testEmbedder(t, "test-model"))
	require.NoError(t, store.Upsert(ctx, testChunks()))

	values, err := store.Values(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"maintenance", "utilities"}, values.Categories)
	require.Equal(t, []string{"2025-03", "2025-04"}, values.Periods)
	require.Equal(t, []string{"CEMIG", "Verde Jardins"}, values.Vendors)
}
