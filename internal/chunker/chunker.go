package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/condoql/internal/model"
)

// Builder turns normalized financial records into self-describing text
// chunks at several granularities. Chunk ids are pure functions of the
// source data, never of wall-clock time or input order, so rebuilding from
// unchanged records reproduces identical ids and upserts become no-ops.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Build(records []model.FinancialRecord) ([]model.Chunk, error) {
	var chunks []model.Chunk
	for _, rec := range records {
		chunks = append(chunks, buildLineItem(rec))
	}

	byPeriod := groupBy(records, func(r model.FinancialRecord) string { return r.Period() })
	for _, period := range sortedKeys(byPeriod) {
		periodRecords := byPeriod[period]
		byCategory := groupBy(periodRecords, func(r model.FinancialRecord) string { return r.Category })
		for _, category := range sortedKeys(byCategory) {
			if chunk, ok := buildCategorySummary(period, category, byCategory[category]); ok {
				chunks = append(chunks, chunk)
			}
		}
		if chunk, ok := buildPeriodTotal(period, periodRecords); ok {
			chunks = append(chunks, chunk)
		}
	}

	byVendor := groupBy(records, func(r model.FinancialRecord) string { return r.Vendor })
	for _, vendor := range sortedKeys(byVendor) {
		if vendor == "" {
			continue
		}
		if chunk, ok := buildVendorSummary(vendor, byVendor[vendor]); ok {
			chunks = append(chunks, chunk)
		}
	}

	for i := range chunks {
		if err := chunks[i].Metadata.Validate(chunks[i].Granularity); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunks[i].ChunkID, err)
		}
	}
	return chunks, nil
}

func buildLineItem(rec model.FinancialRecord) model.Chunk {
	currency := rec.CurrencyOrDefault()
	amount := formatAmount(currency, rec.Amount)

	var parts []string
	lead := rec.Description
	if lead == "" {
		lead = titleWords(rec.Category) + " expense"
	}
	if rec.Vendor != "" {
		parts = append(parts, fmt.Sprintf("%s: %s paid to %s on %s", lead, amount, rec.Vendor, rec.Date))
	} else {
		parts = append(parts, fmt.Sprintf("%s: %s on %s", lead, amount, rec.Date))
	}
	parts = append(parts, "Category: "+titleWords(rec.Category))
	if rec.Subcategory != "" {
		parts = append(parts, "Subcategory: "+titleWords(rec.Subcategory))
	}
	parts = append(parts, "Period: "+humanPeriod(rec.Period()))
	parts = append(parts, "Source document: "+rec.DocumentID)

	key := strings.Join([]string{
		rec.Date, rec.Category, rec.Subcategory, rec.Vendor,
		fmt.Sprintf("%.2f", rec.Amount), rec.Description,
	}, "|")
	return model.Chunk{
		ChunkID:     chunkID(model.GranularityLineItem, key, []string{rec.DocumentID}),
		Text:        strings.Join(parts, ". ") + ".",
		Granularity: model.GranularityLineItem,
		Metadata: model.ChunkMetadata{
			Category:    rec.Category,
			Subcategory: rec.Subcategory,
			Amount:      rec.Amount,
			Currency:    currency,
			Date:        rec.Date,
			Vendor:      rec.Vendor,
			Period:      rec.Period(),
			DocumentIDs: []string{rec.DocumentID},
			ItemCount:   1,
		},
	}
}

func buildCategorySummary(period, category string, records []model.FinancialRecord) (model.Chunk, bool) {
	total, currency := sumAmounts(records)
	if total == 0 {
		return model.Chunk{}, false
	}
	docIDs := documentIDs(records)
	vendors := vendorNames(records)

	parts := []string{fmt.Sprintf(
		"%s expenses for %s: %s total across %d items",
		titleWords(category), humanPeriod(period), formatAmount(currency, total), len(records),
	)}
	if len(vendors) > 0 {
		parts = append(parts, "Vendors: "+strings.Join(vendors, ", "))
	}
	parts = append(parts, "Source documents: "+strings.Join(docIDs, ", "))

	return model.Chunk{
		ChunkID:     chunkID(model.GranularityCategorySummary, period+"|"+category, docIDs),
		Text:        strings.Join(parts, ". ") + ".",
		Granularity: model.GranularityCategorySummary,
		Metadata: model.ChunkMetadata{
			Category:    category,
			Amount:      total,
			Currency:    currency,
			Period:      period,
			DocumentIDs: docIDs,
			ItemCount:   len(records),
		},
	}, true
}

func buildPeriodTotal(period string, records []model.FinancialRecord) (model.Chunk, bool) {
	total, currency := sumAmounts(records)
	if total == 0 {
		return model.Chunk{}, false
	}
	docIDs := documentIDs(records)

	byCategory := groupBy(records, func(r model.FinancialRecord) string { return r.Category })
	catParts := make([]string, 0, len(byCategory))
	for _, category := range sortedKeys(byCategory) {
		catTotal, _ := sumAmounts(byCategory[category])
		catParts = append(catParts, fmt.Sprintf("%s: %s", titleWords(category), formatAmount(currency, catTotal)))
	}

	parts := []string{fmt.Sprintf(
		"Total expenses for %s: %s across %d items",
		humanPeriod(period), formatAmount(currency, total), len(records),
	)}
	if len(catParts) > 0 {
		parts = append(parts, "By category: "+strings.Join(catParts, ", "))
	}
	parts = append(parts, "Source documents: "+strings.Join(docIDs, ", "))

	return model.Chunk{
		ChunkID:     chunkID(model.GranularityPeriodTotal, period, docIDs),
		Text:        strings.Join(parts, ". ") + ".",
		Granularity: model.GranularityPeriodTotal,
		Metadata: model.ChunkMetadata{
			Amount:      total,
			Currency:    currency,
			Period:      period,
			DocumentIDs: docIDs,
			ItemCount:   len(records),
		},
	}, true
}

func buildVendorSummary(vendor string, records []model.FinancialRecord) (model.Chunk, bool) {
	// A single transaction is already covered by its line item chunk.
	if len(records) < 2 {
		return model.Chunk{}, false
	}
	total, currency := sumAmounts(records)
	if total == 0 {
		return model.Chunk{}, false
	}
	docIDs := documentIDs(records)

	byPeriod := groupBy(records, func(r model.FinancialRecord) string { return r.Period() })
	periodParts := make([]string, 0, len(byPeriod))
	for _, period := range sortedKeys(byPeriod) {
		pTotal, _ := sumAmounts(byPeriod[period])
		periodParts = append(periodParts, fmt.Sprintf("%s: %s", humanPeriod(period), formatAmount(currency, pTotal)))
	}

	parts := []string{fmt.Sprintf(
		"%s: %s total across %d transactions",
		vendor, formatAmount(currency, total), len(records),
	)}
	if len(periodParts) > 1 {
		parts = append(parts, "By period: "+strings.Join(periodParts, ", "))
	}
	parts = append(parts, "Source documents: "+strings.Join(docIDs, ", "))

	return model.Chunk{
		ChunkID:     chunkID(model.GranularityVendorSummary, vendor, docIDs),
		Text:        strings.Join(parts, ". ") + ".",
		Granularity: model.GranularityVendorSummary,
		Metadata: model.ChunkMetadata{
			Amount:      total,
			Currency:    currency,
			Vendor:      vendor,
			DocumentIDs: docIDs,
			ItemCount:   len(records),
		},
	}, true
}

func chunkID(g model.Granularity, key string, docIDs []string) string {
	sorted := append([]string(nil), docIDs...)
	sort.Strings(sorted)
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s\x00%s\x00%s", g, key, strings.Join(sorted, "\x00"))
	return string(g) + ":" + hex.EncodeToString(h.Sum(nil))[:24]
}

func groupBy(records []model.FinancialRecord, key func(model.FinancialRecord) string) map[string][]model.FinancialRecord {
	groups := make(map[string][]model.FinancialRecord)
	for _, rec := range records {
		k := key(rec)
		groups[k] = append(groups[k], rec)
	}
	return groups
}

func sortedKeys(groups map[string][]model.FinancialRecord) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sumAmounts(records []model.FinancialRecord) (float64, string) {
	var total float64
	currency := ""
	for _, rec := range records {
		total += rec.Amount
		if currency == "" {
			currency = rec.CurrencyOrDefault()
		}
	}
	if currency == "" {
		currency = "BRL"
	}
	return total, currency
}

func documentIDs(records []model.FinancialRecord) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, rec := range records {
		if seen[rec.DocumentID] {
			continue
		}
		seen[rec.DocumentID] = true
		ids = append(ids, rec.DocumentID)
	}
	sort.Strings(ids)
	return ids
}

func vendorNames(records []model.FinancialRecord) []string {
	seen := make(map[string]bool)
	var vendors []string
	for _, rec := range records {
		if rec.Vendor == "" || seen[rec.Vendor] {
			continue
		}
		seen[rec.Vendor] = true
		vendors = append(vendors, rec.Vendor)
	}
	sort.Strings(vendors)
	return vendors
}
