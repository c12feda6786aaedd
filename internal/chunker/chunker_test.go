package chunker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/condoql/internal/model"
)

func sampleRecords() []model.FinancialRecord {
	return []model.FinancialRecord{
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
			Vendor:      "CEMIG",
			Description: "Building staff wages",
			DocumentID:  "balancete-2025-03",
		},
	}
}

func TestBuild_GranularityCoverage(t *testing.T) {
	chunks, err := NewBuilder().Build(sampleRecords())
	require.NoError(t, err)

	counts := map[model.Granularity]int{}
	for _, c := range chunks {
		counts[c.Granularity]++
	}
	require.Equal(t, 3, counts[model.GranularityLineItem])
	require.Equal(t, 2, counts[model.GranularityCategorySummary])
	require.Equal(t, 1, counts[model.GranularityPeriodTotal])
	// COPASA has a single transaction, only CEMIG earns a vendor summary.
	require.Equal(t, 1, counts[model.GranularityVendorSummary])
}

func TestBuild_DeterministicIDs(t *testing.T) {
	records := sampleRecords()
	first, err := NewBuilder().Build(records)
	require.NoError(t, err)

	reversed := make([]model.FinancialRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		reversed = append(reversed, records[i])
	}
	second, err := NewBuilder().Build(reversed)
	require.NoError(t, err)

	ids := func(chunks []model.Chunk) map[string]string {
		out := make(map[string]string, len(chunks))
		for _, c := range chunks {
			out[c.ChunkID] = c.Text
		}
		return out
	}
	require.Equal(t, ids(first), ids(second))
}

func TestBuild_LineItemText(t *testing.T) {
	chunks, err := NewBuilder().Build(sampleRecords()[:1])
	require.NoError(t, err)

	var line model.Chunk
	for _, c := range chunks {
		if c.Granularity == model.GranularityLineItem {
			line = c
		}
	}
	require.Contains(t, line.Text, "Electricity bill: R$ 2,450.30 paid to CEMIG on 2025-03-10")
	require.Contains(t, line.Text, "Category: Utilities")
	require.Contains(t, line.Text, "Subcategory: Electricity")
	require.Contains(t, line.Text, "Period: March 2025")
	require.Contains(t, line.Text, "Source document: balancete-2025-03")
	require.Equal(t, "2025-03", line.Metadata.Period)
	require.Equal(t, 1, line.Metadata.ItemCount)
}

func TestBuild_LineItemWithoutVendor(t *testing.T) {
	records := []model.FinancialRecord{{
		Amount:      120.50,
		Date:        "2025-04-02",
		Category:    "maintenance",
		Description: "Elevator inspection",
		DocumentID:  "balancete-2025-04",
	}}
	chunks, err := NewBuilder().Build(records)
	require.NoError(t, err)
	require.Contains(t, chunks[0].Text, "Elevator inspection: R$ 120.50 on 2025-04-02")
	require.NotContains(t, chunks[0].Text, "paid to")
}

func TestBuild_ZeroTotalSummariesSuppressed(t *testing.T) {
	records := []model.FinancialRecord{
		{
			Kind:       model.RecordKindNet,
			Amount:     300,
			Date:       "2025-05-01",
			Category:   "reserve_fund",
			DocumentID: "balancete-2025-05",
		},
		{
			Kind:       model.RecordKindNet,
			Amount:     -300,
			Date:       "2025-05-20",
			Category:   "reserve_fund",
			DocumentID: "balancete-2025-05",
		},
	}
	chunks, err := NewBuilder().Build(records)
	require.NoError(t, err)
	for _, c := range chunks {
		require.Equal(t, model.GranularityLineItem, c.Granularity)
	}
}

func TestBuild_PeriodTotalBreakdown(t *testing.T) {
	chunks, err := NewBuilder().Build(sampleRecords())
	require.NoError(t, err)

	var total model.Chunk
	for _, c := range chunks {
		if c.Granularity == model.GranularityPeriodTotal {
			total = c
		}
	}
	require.Contains(t, total.Text, "Total expenses for March 2025: R$ 9,540.30 across 3 items")
	require.Contains(t, total.Text, "Payroll: R$ 5,200.00")
	require.Contains(t, total.Text, "Utilities: R$ 4,340.30")
	require.Equal(t, []string{"balancete-2025-03"}, total.Metadata.DocumentIDs)
}

func TestBuild_VendorSummarySpansPeriods(t *testing.T) {
	records := []model.FinancialRecord{
		{Amount: 100, Date: "2025-01-10", Category: "utilities", Vendor: "CEMIG", DocumentID: "doc-a", Description: "Bill"},
		{Amount: 200, Date: "2025-02-10", Category: "utilities", Vendor: "CEMIG", DocumentID: "doc-b", Description: "Bill"},
	}
	chunks, err := NewBuilder().Build(records)
	require.NoError(t, err)

	var vendor model.Chunk
	for _, c := range chunks {
		if c.Granularity == model.GranularityVendorSummary {
			vendor = c
		}
	}
	require.Contains(t, vendor.Text, "CEMIG: R$ 300.00 total across 2 transactions")
	require.Contains(t, vendor.Text, "January 2025: R$ 100.00")
	require.Contains(t, vendor.Text, "February 2025: R$ 200.00")
	require.Equal(t, []string{"doc-a", "doc-b"}, vendor.Metadata.DocumentIDs)
	require.Equal(t, 2, vendor.Metadata.ItemCount)
}

func TestChunkID_Shape(t *testing.T) {
	id := chunkID(model.GranularityLineItem, "key", []string{"b", "a"})
	same := chunkID(model.GranularityLineItem, "key", []string{"a", "b"})
	require.Equal(t, id, same)
	require.Regexp(t, `^line_item:[0-9a-f]{24}$`, id)

	other := chunkID(model.GranularityPeriodTotal, "key", []string{"a", "b"})
	require.NotEqual(t, id, other)
}
