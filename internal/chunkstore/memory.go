package chunkstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/xxxsen/condoql/internal/ai"
	"github.com/xxxsen/condoql/internal/model"
	appErr "github.com/xxxsen/condoql/internal/pkg/errors"
)

func init() {
	Register("memory", createMemoryStore)
}

func createMemoryStore(args interface{}, deps Deps) (Store, error) {
	_ = args
	return NewMemoryStore(deps.Embedder), nil
}

type memoryEntry struct {
	chunk     model.Chunk
	embedding []float32
}

// MemoryStore keeps the whole index in process memory. It is the default for
// tests and single-node local setups; the postgres store is the durable one.
type MemoryStore struct {
	mu       sync.RWMutex
	embedder ai.IEmbedder
	entries  map[string]memoryEntry
	modelTag string
}

func NewMemoryStore(embedder ai.IEmbedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		entries:  make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	// Embed outside the lock; only the map write is serialized.
	embedded := make([]memoryEntry, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := s.embedder.Embed(ctx, chunk.Text, taskTypeDocument)
		if err != nil {
			return err
		}
		embedded = append(embedded, memoryEntry{chunk: chunk, embedding: vec})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersionLocked(true); err != nil {
		return err
	}
	for _, entry := range embedded {
		s.entries[entry.chunk.ChunkID] = entry
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, queryText string, filter Filter, k int) ([]Scored, error) {
	if k <= 0 {
		return nil, nil
	}
	queryVec, err := s.embedder.Embed(ctx, queryText, taskTypeQuery)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkVersionLocked(false); err != nil {
		return nil, err
	}
	results := make([]Scored, 0, len(s.entries))
	for _, entry := range s.entries {
		if !filter.Matches(entry.chunk) {
			continue
		}
		results = append(results, Scored{
			Chunk: entry.chunk,
			Score: cosineSimilarity(queryVec, entry.embedding),
		})
	}
	// Equal scores fall back to chunk id so identical queries return
	// identical orderings.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ChunkID < results[j].Chunk.ChunkID
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	s.modelTag = ""
	return nil
}

func (s *MemoryStore) Values(ctx context.Context) (FilterValues, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	categories := make(map[string]bool)
	periods := make(map[string]bool)
	vendors := make(map[string]bool)
	for _, entry := range s.entries {
		meta := entry.chunk.Metadata
		if meta.Category != "" {
			categories[meta.Category] = true
		}
		if meta.Period != "" {
			periods[meta.Period] = true
		}
		if meta.Vendor != "" {
			vendors[meta.Vendor] = true
		}
	}
	return FilterValues{
		Categories: sortedSet(categories),
		Periods:    sortedSet(periods),
		Vendors:    sortedSet(vendors),
	}, nil
}

// checkVersionLocked enforces the ingest/query embedding-space invariant.
// The first writer stamps the index with its embedder model name; any later
// access through a different embedder is rejected.
func (s *MemoryStore) checkVersionLocked(stamp bool) error {
	current := s.embedder.ModelName()
	if s.modelTag == "" {
		if stamp {
			s.modelTag = current
		}
		return nil
	}
	if s.modelTag != current {
		return appErr.ErrSchemaVersion
	}
	return nil
}

func sortedSet(set map[string]bool) []string {
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
