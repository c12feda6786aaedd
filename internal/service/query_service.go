package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/condoql/internal/ai"
	"github.com/xxxsen/condoql/internal/chunkstore"
	"github.com/xxxsen/condoql/internal/hints"
	"github.com/xxxsen/condoql/internal/model"
	appErr "github.com/xxxsen/condoql/internal/pkg/errors"
)

type RetrievalConfig struct {
	TopK            int
	Oversample      int
	Epsilon         float32
	MaxContextChars int
	Timeout         int
}

func (c *RetrievalConfig) normalize() {
	if c.TopK <= 0 {
		c.TopK = 8
	}
	if c.Oversample <= 0 {
		c.Oversample = 3
	}
	if c.Epsilon <= 0 {
		c.Epsilon = 0.05
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 6000
	}
}

// Answer is the payload handed back to the transport layer.
type Answer struct {
	Answer         string                  `json:"answer"`
	ConversationID string                  `json:"conversation_id"`
	Degraded       bool                    `json:"degraded"`
	UsedFilter     chunkstore.Filter       `json:"used_filters"`
	Supporting     []model.RetrievalResult `json:"supporting_chunks"`
	Provenance     []Provenance            `json:"provenance"`
}

type QueryService struct {
	store     chunkstore.Store
	extractor hints.Extractor
	generator ai.IGenerator
	cfg       RetrievalConfig
}

func NewQueryService(store chunkstore.Store, extractor hints.Extractor, generator ai.IGenerator, cfg RetrievalConfig) *QueryService {
	cfg.normalize()
	if extractor == nil {
		extractor = hints.NewKeywordExtractor()
	}
	return &QueryService{
		store:     store,
		extractor: extractor,
		generator: generator,
		cfg:       cfg,
	}
}

// Retrieve runs the full ranking pipeline: hint extraction, oversampled
// store query, dedup, granularity tie-break, truncation to k. Zero matches
// is a valid outcome and returns an empty slice, not an error.
func (s *QueryService) Retrieve(ctx context.Context, question string, k int) ([]model.RetrievalResult, chunkstore.Filter, error) {
	if strings.TrimSpace(question) == "" {
		return nil, chunkstore.Filter{}, appErr.ErrInvalid
	}
	if k <= 0 {
		k = s.cfg.TopK
	}
	extracted := s.extractor.Extract(question)
	logger := logutil.GetLogger(ctx).With(zap.String("question", question), zap.Int("k", k))

	oversampled := k * s.cfg.Oversample
	if oversampled < k+8 {
		oversampled = k + 8
	}
	scored, err := s.store.Query(ctx, question, extracted.Filter, oversampled)
	if err != nil {
		logger.Error("chunk store query failed", zap.Error(err))
		return nil, extracted.Filter, err
	}

	scored = dedup(scored)
	rerankTies(scored, extracted.Intent, s.cfg.Epsilon)
	if len(scored) > k {
		scored = scored[:k]
	}

	results := make([]model.RetrievalResult, 0, len(scored))
	for i, item := range scored {
		results = append(results, model.RetrievalResult{
			Chunk: item.Chunk,
			Score: item.Score,
			Rank:  i + 1,
		})
	}
	logger.Debug("retrieval completed",
		zap.Int("results", len(results)),
		zap.Bool("filtered", !extracted.Filter.Empty()),
	)
	return results, extracted.Filter, nil
}

// AnswerQuestion retrieves context and forwards it to the generator. A dead
// or unconfigured generator degrades to a listing of the retrieved chunks
// instead of failing the request.
func (s *QueryService) AnswerQuestion(ctx context.Context, question, conversationID string) (*Answer, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("conversation_id", conversationID))

	results, usedFilter, err := s.Retrieve(ctx, question, s.cfg.TopK)
	if err != nil {
		return nil, err
	}
	out := &Answer{
		ConversationID: conversationID,
		UsedFilter:     usedFilter,
		Supporting:     results,
	}
	if len(results) == 0 {
		out.Answer = "No financial records match this question. Try another period or category."
		return out, nil
	}

	contextText, provenance := AssembleContext(results, s.cfg.MaxContextChars)
	out.Provenance = provenance

	if s.generator == nil {
		out.Answer = degradedAnswer(results)
		out.Degraded = true
		return out, nil
	}
	genCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Timeout)*time.Second)
		defer cancel()
	}
	answer, err := s.generator.Generate(genCtx, buildAnswerPrompt(question, contextText))
	if err != nil {
		logger.Warn("generation unavailable, returning retrieved chunks", zap.Error(err))
		out.Answer = degradedAnswer(results)
		out.Degraded = true
		return out, nil
	}
	out.Answer = strings.TrimSpace(answer)
	if out.Answer == "" {
		out.Answer = degradedAnswer(results)
		out.Degraded = true
	}
	return out, nil
}

func (s *QueryService) FilterValues(ctx context.Context) (chunkstore.FilterValues, error) {
	return s.store.Values(ctx)
}

func (s *QueryService) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

func (s *QueryService) GeneratorConfigured() bool {
	return s.generator != nil
}

func buildAnswerPrompt(question, contextText string) string {
	return fmt.Sprintf(`You are an assistant helping condominium associates understand their monthly trial balance reports.
Answer the question using ONLY the financial data below.
- Quote exact amounts, dates and vendor names from the data.
- If the data does not contain the answer, say so plainly.
- Answer in the same language as the question.

FINANCIAL DATA:
%s

QUESTION: %s`, contextText, question)
}

func degradedAnswer(results []model.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString("The answer generator is currently unavailable. Most relevant records:\n")
	for _, res := range results {
		sb.WriteString("- ")
		sb.WriteString(res.Chunk.Text)
		sb.WriteString(" (")
		sb.WriteString(strings.Join(res.Chunk.Metadata.DocumentIDs, ","))
		sb.WriteString(")\n")
	}
	return sb.String()
}

// dedup drops repeated chunk ids, then repeated texts. Distinct ids can
// carry the same rendered sentence after a reprocessing run.
func dedup(scored []chunkstore.Scored) []chunkstore.Scored {
	seenID := make(map[string]bool, len(scored))
	seenText := make(map[string]bool, len(scored))
	out := scored[:0]
	for _, item := range scored {
		if seenID[item.Chunk.ChunkID] {
			continue
		}
		normalized := strings.Join(strings.Fields(strings.ToLower(item.Chunk.Text)), " ")
		if seenText[normalized] {
			continue
		}
		seenID[item.Chunk.ChunkID] = true
		seenText[normalized] = true
		out = append(out, item)
	}
	return out
}

var specificRank = map[model.Granularity]int{
	model.GranularityLineItem:        0,
	model.GranularityCategorySummary: 1,
	model.GranularityVendorSummary:   1,
	model.GranularityPeriodTotal:     2,
}

var aggregateRank = map[model.Granularity]int{
	model.GranularityPeriodTotal:     0,
	model.GranularityCategorySummary: 1,
	model.GranularityVendorSummary:   1,
	model.GranularityLineItem:        2,
}

// rerankTies reorders only within epsilon-equal score groups. Questions that
// target a specific fact prefer finer granularity; aggregate questions
// ("total", "overall") prefer coarser. Similarity order outside tie groups
// is never touched.
func rerankTies(scored []chunkstore.Scored, intent hints.Intent, epsilon float32) {
	if len(scored) < 2 || intent == hints.IntentUnknown {
		return
	}
	ranks := specificRank
	if intent == hints.IntentAggregate {
		ranks = aggregateRank
	}
	start := 0
	for start < len(scored) {
		end := start + 1
		for end < len(scored) && scored[start].Score-scored[end].Score <= epsilon {
			end++
		}
		group := scored[start:end]
		sort.SliceStable(group, func(i, j int) bool {
			return ranks[group[i].Chunk.Granularity] < ranks[group[j].Chunk.Granularity]
		})
		start = end
	}
}
