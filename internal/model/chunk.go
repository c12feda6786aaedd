package model

import "fmt"

type Granularity string

const (
	GranularityLineItem        Granularity = "line_item"
	GranularityCategorySummary Granularity = "category_summary"
	GranularityPeriodTotal     Granularity = "period_total"
	GranularityVendorSummary   Granularity = "vendor_summary"
)

func (g Granularity) Valid() bool {
	switch g {
	case GranularityLineItem, GranularityCategorySummary, GranularityPeriodTotal, GranularityVendorSummary:
		return true
	}
	return false
}

// Aggregate reports whether the granularity summarizes multiple records.
func (g Granularity) Aggregate() bool {
	return g != GranularityLineItem
}

// ChunkMetadata is the closed, versioned field set carried next to each
// chunk. Every fact stored here must also appear in the chunk text, so a
// pure-text semantic match can succeed without filters.
type ChunkMetadata struct {
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
	Amount      float64  `json:"amount"`
	Currency    string   `json:"currency"`
	Date        string   `json:"date,omitempty"`
	Vendor      string   `json:"vendor,omitempty"`
	Period      string   `json:"period,omitempty"`
	DocumentIDs []string `json:"document_ids"`
	ItemCount   int      `json:"item_count"`
}

// Validate enforces the per-granularity schema before a chunk may reach the
// store.
func (m *ChunkMetadata) Validate(g Granularity) error {
	if !g.Valid() {
		return fmt.Errorf("unknown granularity %q", g)
	}
	if len(m.DocumentIDs) == 0 {
		return fmt.Errorf("metadata missing document ids")
	}
	if m.Currency == "" {
		return fmt.Errorf("metadata missing currency")
	}
	switch g {
	case GranularityLineItem:
		if m.Category == "" || m.Date == "" || m.Period == "" {
			return fmt.Errorf("line item metadata requires category, date and period")
		}
		if m.ItemCount != 1 {
			return fmt.Errorf("line item metadata must carry item_count=1")
		}
	case GranularityCategorySummary:
		if m.Category == "" || m.Period == "" {
			return fmt.Errorf("category summary metadata requires category and period")
		}
		if m.ItemCount < 1 {
			return fmt.Errorf("category summary metadata requires item_count")
		}
	case GranularityPeriodTotal:
		if m.Period == "" {
			return fmt.Errorf("period total metadata requires period")
		}
		if m.ItemCount < 1 {
			return fmt.Errorf("period total metadata requires item_count")
		}
	case GranularityVendorSummary:
		if m.Vendor == "" {
			return fmt.Errorf("vendor summary metadata requires vendor")
		}
		if m.ItemCount < 2 {
			return fmt.Errorf("vendor summary metadata requires item_count >= 2")
		}
	}
	return nil
}

// Chunk is the retrievable unit. The embedding vector is owned by the chunk
// store, derived from Text at upsert time; it is intentionally absent here.
type Chunk struct {
	ChunkID     string        `json:"chunk_id"`
	Text        string        `json:"text"`
	Granularity Granularity   `json:"granularity"`
	Metadata    ChunkMetadata `json:"metadata"`
}

// RetrievalResult lives only within one query.
type RetrievalResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"similarity_score"`
	Rank  int     `json:"rank"`
}
