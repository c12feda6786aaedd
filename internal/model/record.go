package model

import (
	"fmt"
	"strings"
	"time"
)

type RecordKind string

const (
	RecordKindExpense      RecordKind = "expense"
	RecordKindContribution RecordKind = "contribution"
	RecordKindNet          RecordKind = "net"
)

// FinancialRecord is one normalized trial-balance line item as produced by
// the extraction pipeline. Records are immutable; re-ingesting the same
// document_id supersedes all chunks previously derived from it.
type FinancialRecord struct {
	Kind        RecordKind `json:"kind"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	Date        string     `json:"date"` // YYYY-MM-DD
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory"`
	Vendor      string     `json:"vendor"`
	Description string     `json:"description"`
	DocumentID  string     `json:"document_id"`
}

func (r *FinancialRecord) Validate() error {
	if r.DocumentID == "" {
		return fmt.Errorf("document_id is required")
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", r.Date, err)
	}
	kind := r.Kind
	if kind == "" {
		kind = RecordKindExpense
	}
	switch kind {
	case RecordKindExpense, RecordKindContribution:
		if r.Amount < 0 {
			return fmt.Errorf("negative amount %.2f on %s record", r.Amount, kind)
		}
	case RecordKindNet:
		// net figures are signed
	default:
		return fmt.Errorf("unknown record kind %q", r.Kind)
	}
	return nil
}

// Period returns the YYYY-MM bucket derived from the record date.
func (r *FinancialRecord) Period() string {
	if len(r.Date) >= 7 {
		return r.Date[:7]
	}
	return r.Date
}

func (r *FinancialRecord) CurrencyOrDefault() string {
	if r.Currency == "" {
		return "BRL"
	}
	return r.Currency
}
