package service

import (
	"fmt"
	"strings"

	"github.com/xxxsen/condoql/internal/model"
)

// Provenance records where each context block came from, so an answer can
// always be traced back to the statements that produced it.
type Provenance struct {
	ChunkID     string            `json:"chunk_id"`
	DocumentIDs []string          `json:"document_ids"`
	Granularity model.Granularity `json:"granularity"`
	Rank        int               `json:"rank"`
	Score       float32           `json:"similarity_score"`
	Truncated   bool              `json:"truncated,omitempty"`
}

// AssembleContext concatenates chunk texts in rank order under a character
// budget. The top result is never dropped: if it alone exceeds the budget it
// is cut to exactly maxChars, since a truncated context still beats an empty
// one. Output is deterministic for identical inputs.
func AssembleContext(results []model.RetrievalResult, maxChars int) (string, []Provenance) {
	if len(results) == 0 || maxChars <= 0 {
		return "", nil
	}
	const sep = "\n\n"
	var sb strings.Builder
	var provenance []Provenance
	for i, res := range results {
		block := fmt.Sprintf("[source=%s type=%s] %s",
			strings.Join(res.Chunk.Metadata.DocumentIDs, ","),
			res.Chunk.Granularity,
			res.Chunk.Text,
		)
		entry := Provenance{
			ChunkID:     res.Chunk.ChunkID,
			DocumentIDs: res.Chunk.Metadata.DocumentIDs,
			Granularity: res.Chunk.Granularity,
			Rank:        res.Rank,
			Score:       res.Score,
		}
		if i == 0 {
			if len(block) > maxChars {
				block = block[:maxChars]
				entry.Truncated = true
			}
			sb.WriteString(block)
			provenance = append(provenance, entry)
			continue
		}
		if sb.Len()+len(sep)+len(block) > maxChars {
			break
		}
		sb.WriteString(sep)
		sb.WriteString(block)
		provenance = append(provenance, entry)
	}
	return sb.String(), provenance
}
