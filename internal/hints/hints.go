package hints

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xxxsen/condoql/internal/chunkstore"
)

type Intent int

const (
	IntentUnknown Intent = iota
	IntentSpecific
	IntentAggregate
)

// Hints is coarse metadata narrowing extracted from a free-text question.
// Extraction is best effort: no extractable hint means an empty filter and
// pure semantic ranking.
type Hints struct {
	Filter chunkstore.Filter
	Intent Intent
}

type Extractor interface {
	Extract(question string) Hints
}

var monthTokens = map[string]string{
	"january": "01", "february": "02", "march": "03", "april": "04",
	"may": "05", "june": "06", "july": "07", "august": "08",
	"september": "09", "october": "10", "november": "11", "december": "12",
	// Portuguese month names show up in Brazilian statements and questions.
	"janeiro": "01", "fevereiro": "02", "marco": "03", "março": "03",
	"abril": "04", "maio": "05", "junho": "06", "julho": "07",
	"agosto": "08", "setembro": "09", "outubro": "10", "novembro": "11",
	"dezembro": "12",
}

var categoryTokens = map[string]string{
	"power": "utilities", "electricity": "utilities", "energy": "utilities",
	"water": "utilities", "gas": "utilities", "utilities": "utilities",
	"utility": "utilities",
	"maintenance": "maintenance", "repair": "maintenance", "repairs": "maintenance",
	"elevator": "maintenance",
	"cleaning": "cleaning", "janitorial": "cleaning",
	"security": "security",
	"supplies": "supplies", "supply": "",
	"services": "services", "service": "services",
	// Portuguese equivalents.
	"energia": "utilities", "luz": "utilities", "agua": "utilities",
	"água": "utilities", "limpeza": "cleaning", "seguranca": "security",
	"segurança": "security", "manutencao": "maintenance", "manutenção": "maintenance",
}

var aggregateTokens = []string{
	"total", "totals", "overall", "altogether", "sum", "summary", "combined",
}

var (
	yearRe       = regexp.MustCompile(`\b(20\d{2})\b`)
	yearMonthRe  = regexp.MustCompile(`\b(20\d{2})-(0[1-9]|1[0-2])\b`)
	nonWordSplit = regexp.MustCompile(`[^\p{L}\p{N}-]+`)
)

// KeywordExtractor is the default rule-based Extractor. It only emits a
// period filter when both month and year are explicit; a bare month name is
// ambiguous across years and is left to semantic ranking.
type KeywordExtractor struct{}

func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

func (e *KeywordExtractor) Extract(question string) Hints {
	lower := strings.ToLower(question)
	tokens := nonWordSplit.Split(lower, -1)

	var out Hints
	if m := yearMonthRe.FindStringSubmatch(lower); m != nil {
		out.Filter.Period = m[1] + "-" + m[2]
	} else {
		month := ""
		for _, token := range tokens {
			if num, ok := monthTokens[token]; ok {
				month = num
				break
			}
		}
		if month != "" {
			if y := yearRe.FindStringSubmatch(lower); y != nil {
				out.Filter.Period = fmt.Sprintf("%s-%s", y[1], month)
			}
		}
	}

	seen := make(map[string]bool)
	for _, token := range tokens {
		category, ok := categoryTokens[token]
		if !ok || category == "" || seen[category] {
			continue
		}
		seen[category] = true
		out.Filter.Categories = append(out.Filter.Categories, category)
	}

	out.Intent = IntentSpecific
	for _, token := range tokens {
		for _, agg := range aggregateTokens {
			if token == agg {
				out.Intent = IntentAggregate
				return out
			}
		}
	}
	return out
}
