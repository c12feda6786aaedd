package chunker

import (
	"fmt"
	"strings"
)

var monthNames = map[string]string{
	"01": "January", "02": "February", "03": "March", "04": "April",
	"05": "May", "06": "June", "07": "July", "08": "August",
	"09": "September", "10": "October", "11": "November", "12": "December",
}

// humanPeriod renders "2025-03" as "March 2025" so that month-name queries
// match the chunk text without any filter.
func humanPeriod(period string) string {
	parts := strings.SplitN(period, "-", 2)
	if len(parts) != 2 {
		return period
	}
	name, ok := monthNames[parts[1]]
	if !ok {
		return period
	}
	return name + " " + parts[0]
}

func formatAmount(currency string, value float64) string {
	prefix := currency + " "
	if currency == "BRL" {
		prefix = "R$ "
	}
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	whole := int64(value)
	cents := int64(value*100+0.5) - whole*100
	if cents >= 100 { // rounding spilled into the next unit
		whole++
		cents -= 100
	}
	return sign + prefix + groupThousands(whole) + fmt.Sprintf(".%02d", cents)
}

func groupThousands(v int64) string {
	s := fmt.Sprintf("%d", v)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		sb.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}

func titleWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == ' ' })
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
