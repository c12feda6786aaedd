package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/condoql/internal/ai"
	"github.com/xxxsen/condoql/internal/chunker"
	"github.com/xxxsen/condoql/internal/chunkstore"
	"github.com/xxxsen/condoql/internal/model"
	appErr "github.com/xxxsen/condoql/internal/pkg/errors"
)

type stubGenerator struct {
	answer string
	err    error
	prompt string
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func newTestStore(t *testing.T) chunkstore.Store {
	t.Helper()
	provider, err := ai.NewEmbedProvider("hash", nil)
	require.NoError(t, err)
	return chunkstore.NewMemoryStore(ai.NewEmbedder(provider, "test-model"))
}

func seedMarchRecords(t *testing.T, store chunkstore.Store) {
	t.Helper()
	records := []model.FinancialRecord{
		{
			Amount:      2450.30,
			Date:        "2025-03-10",
			Category:    "utilities",
			Subcategory: "electricity",
			Vendor:      "CEMIG",
			Description: "Electricity bill",
			DocumentID:  "balancete-2025-03",
		},
		{
			Amount:      1890.00,
			Date:        "2025-03-12",
			Category:    "utilities",
			Subcategory: "water",
			Vendor:      "COPASA",
			Description: "Water and sewage",
			DocumentID:  "balancete-2025-03",
		},
		{
			Amount:      5200.00,
			Date:        "2025-03-05",
			Category:    "payroll",
			Description: "Building staff wages",
			DocumentID:  "balancete-2025-03",
		},
	}
	chunks, err := chunker.NewBuilder().Build(records)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), chunks))
}

func TestQueryService_SpecificQuestionFindsLineItem(t *testing.T) {
	store := newTestStore(t)
	seedMarchRecords(t, store)
	svc := NewQueryService(store, nil, nil, RetrievalConfig{})

	answer, err := svc.AnswerQuestion(context.Background(), "How much did we spend on electricity in March 2025?", "")
	require.NoError(t, err)
	require.NotEmpty(t, answer.Supporting)
	require.Equal(t, model.GranularityLineItem, answer.Supporting[0].Chunk.Granularity)
	require.Contains(t, answer.Supporting[0].Chunk.Text, "R$ 2,450.30")
	require.Contains(t, answer.Answer, "R$ 2,450.30")
	require.True(t, answer.Degraded)
	require.Equal(t, "2025-03", answer.UsedFilter.Period)
	require.Equal(t, []string{"utilities"}, answer.UsedFilter.Categories)
	require.NotEmpty(t, answer.ConversationID)
}

func TestQueryService_SingleResultTargetsVendorLineItem(t *testing.T) {
	store := newTestStore(t)
	chunks, err := chunker.NewBuilder().Build([]model.FinancialRecord{{
		Amount:     2450.30,
		Date:       "2025-03-15",
		Category:   "utilities",
		Vendor:     "CEMIG",
		DocumentID: "balancete-2025-03",
	}})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), chunks))

	svc := NewQueryService(store, nil, nil, RetrievalConfig{})
	results, _, err := svc.Retrieve(context.Background(), "power supply cost March", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, model.GranularityLineItem, results[0].Chunk.Granularity)
	require.Contains(t, results[0].Chunk.Text, "2,450.30")
	require.Contains(t, results[0].Chunk.Text, "CEMIG")
}

func TestQueryService_AggregateQuestionPrefersSummary(t *testing.T) {
	store := newTestStore(t)
	seedMarchRecords(t, store)
	svc := NewQueryService(store, nil, nil, RetrievalConfig{})

	results, _, err := svc.Retrieve(context.Background(), "What were the total expenses in March 2025?", 6)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.True(t, results[0].Chunk.Granularity.Aggregate())

	// Every summary outranks every individual line item.
	firstLineItem := len(results)
	lastAggregate := -1
	var sawPeriodTotal bool
	for i, res := range results {
		if res.Chunk.Granularity == model.GranularityLineItem && i < firstLineItem {
			firstLineItem = i
		}
		if res.Chunk.Granularity.Aggregate() {
			lastAggregate = i
		}
		if res.Chunk.Granularity == model.GranularityPeriodTotal {
			sawPeriodTotal = true
			require.Contains(t, res.Chunk.Text, "R$ 9,540.30")
		}
	}
	require.True(t, sawPeriodTotal)
	require.Less(t, lastAggregate, firstLineItem)
}

func TestQueryService_RanksAssignedSequentially(t *testing.T) {
	store := newTestStore(t)
	seedMarchRecords(t, store)
	svc := NewQueryService(store, nil, nil, RetrievalConfig{TopK: 4})

	results, _, err := svc.Retrieve(context.Background(), "condominium expenses", 4)
	require.NoError(t, err)
	for i, res := range results {
		require.Equal(t, i+1, res.Rank)
	}
}

func TestQueryService_EmptyQuestionRejected(t *testing.T) {
	store := newTestStore(t)
	svc := NewQueryService(store, nil, nil, RetrievalConfig{})

	_, _, err := svc.Retrieve(context.Background(), "   ", 5)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestQueryService_EmptyIndexAnswersGracefully(t *testing.T) {
	store := newTestStore(t)
	svc := NewQueryService(store, nil, nil, RetrievalConfig{})

	answer, err := svc.AnswerQuestion(context.Background(), "any expenses at all?", "conv-1")
	require.NoError(t, err)
	require.Equal(t, "conv-1", answer.ConversationID)
	require.Empty(t, answer.Supporting)
	require.False(t, answer.Degraded)
	require.Contains(t, answer.Answer, "No financial records match")
}

func TestQueryService_ResetThenQuery(t *testing.T) {
	store := newTestStore(t)
	seedMarchRecords(t, store)
	require.NoError(t, store.Reset(context.Background()))

	svc := NewQueryService(store, nil, nil, RetrievalConfig{})
	answer, err := svc.AnswerQuestion(context.Background(), "electricity costs", "")
	require.NoError(t, err)
	require.Empty(t, answer.Supporting)
	require.Contains(t, answer.Answer, "No financial records match")
}

func TestQueryService_DedupByText(t *testing.T) {
	store := newTestStore(t)
	chunks := []model.Chunk{
		{
			ChunkID:     "line_item:one",
			Text:        "Cleaning service: R$ 400.00 on 2025-06-01.",
			Granularity: model.GranularityLineItem,
			Metadata: model.ChunkMetadata{
				Category: "cleaning", Date: "2025-06-01", Period: "2025-06",
				Amount: 400, Currency: "BRL", DocumentIDs: []string{"doc-a"}, ItemCount: 1,
			},
		},
		{
			ChunkID:     "line_item:two",
			Text:        "Cleaning  service: R$ 400.00 on 2025-06-01.",
			Granularity: model.GranularityLineItem,
			Metadata: model.ChunkMetadata{
				Category: "cleaning", Date: "2025-06-01", Period: "2025-06",
				Amount: 400, Currency: "BRL", DocumentIDs: []string{"doc-b"}, ItemCount: 1,
			},
		},
	}
	require.NoError(t, store.Upsert(context.Background(), chunks))

	svc := NewQueryService(store, nil, nil, RetrievalConfig{})
	results, _, err := svc.Retrieve(context.Background(), "cleaning service", 10)
	require.NoError(t, err)
	// Whitespace differences only, so the two chunks are one logical result.
	require.Len(t, results, 1)
}

func TestQueryService_DeterministicAcrossRuns(t *testing.T) {
	store := newTestStore(t)
	seedMarchRecords(t, store)
	svc := NewQueryService(store, nil, nil, RetrievalConfig{})

	first, _, err := svc.Retrieve(context.Background(), "building expenses in March 2025", 5)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := svc.Retrieve(context.Background(), "building expenses in March 2025", 5)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestQueryService_GeneratorAnswer(t *testing.T) {
	store := newTestStore(t)
	seedMarchRecords(t, store)
	gen := &stubGenerator{answer: "The condo spent R$ 2,450.30 on electricity in March 2025."}
	svc := NewQueryService(store, nil, gen, RetrievalConfig{})

	answer, err := svc.AnswerQuestion(context.Background(), "electricity costs in March 2025", "")
	require.NoError(t, err)
	require.False(t, answer.Degraded)
	require.Equal(t, "The condo spent R$ 2,450.30 on electricity in March 2025.", answer.Answer)
	require.Contains(t, gen.prompt, "R$ 2,450.30")
	require.Contains(t, gen.prompt, "electricity costs in March 2025")
}

func TestQueryService_GeneratorFailureDegrades(t *testing.T) {
	store := newTestStore(t)
	seedMarchRecords(t, store)
	gen := &stubGenerator{err: errors.New("upstream exploded")}
	svc := NewQueryService(store, nil, gen, RetrievalConfig{})

	answer, err := svc.AnswerQuestion(context.Background(), "electricity costs in March 2025", "")
	require.NoError(t, err)
	require.True(t, answer.Degraded)
	require.NotEmpty(t, answer.Answer)
	require.Contains(t, answer.Answer, "R$ 2,450.30")
}
