package chunkstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/condoql/internal/ai"
	"github.com/xxxsen/condoql/internal/model"
)

const (
	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"
)

// Filter is a structured predicate over chunk metadata. Filtering is exact:
// a chunk violating the filter never appears in results, whatever its
// similarity score.
type Filter struct {
	Period        string              `json:"period,omitempty"`
	Categories    []string            `json:"categories,omitempty"`
	Vendor        string              `json:"vendor,omitempty"`
	Granularities []model.Granularity `json:"granularities,omitempty"`
	DocumentID    string              `json:"document_id,omitempty"`
}

func (f Filter) Empty() bool {
	return f.Period == "" && len(f.Categories) == 0 && f.Vendor == "" &&
		len(f.Granularities) == 0 && f.DocumentID == ""
}

// Matches evaluates the predicate in memory. The postgres store compiles the
// same semantics to SQL; keep the two in sync.
func (f Filter) Matches(c model.Chunk) bool {
	if f.Period != "" && c.Metadata.Period != f.Period {
		return false
	}
	if len(f.Categories) > 0 && !containsString(f.Categories, c.Metadata.Category) {
		return false
	}
	if f.Vendor != "" && c.Metadata.Vendor != f.Vendor {
		return false
	}
	if len(f.Granularities) > 0 {
		found := false
		for _, g := range f.Granularities {
			if c.Granularity == g {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DocumentID != "" && !containsString(c.Metadata.DocumentIDs, f.DocumentID) {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Scored pairs a chunk with its similarity score (higher is more relevant).
type Scored struct {
	Chunk model.Chunk
	Score float32
}

// FilterValues enumerates distinct metadata values present in the index,
// for building user-facing filter pickers.
type FilterValues struct {
	Categories []string `json:"categories"`
	Periods    []string `json:"periods"`
	Vendors    []string `json:"vendors"`
}

// Store is the chunk index boundary. Implementations embed chunk text at
// upsert and query text at query time with the SAME embedder; the embedder
// model name is persisted as an index version tag and a mismatch fails with
// errors.ErrSchemaVersion rather than silently returning garbage scores.
type Store interface {
	Upsert(ctx context.Context, chunks []model.Chunk) error
	Query(ctx context.Context, queryText string, filter Filter, k int) ([]Scored, error)
	Count(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
	Values(ctx context.Context) (FilterValues, error)
}

// Deps carries the shared handles a store implementation may need.
type Deps struct {
	Embedder ai.IEmbedder
	DB       *sql.DB
}

type Factory func(args interface{}, deps Deps) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(typ string, args interface{}, deps Deps) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" {
		return nil, fmt.Errorf("chunk_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported chunk store type: %s", typ)
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("chunk store requires an embedder")
	}
	return factory(args, deps)
}
