package search

import "strings"

// Score computes the relevance of an ordered field list against a query.
// Fields are ordered title-first; an exact match on a field contributes 100,
// otherwise a whole-query substring match contributes 50 and each query word
// found in the field contributes 10. After each field the running total is
// multiplied by (fieldCount-fieldIndex)/fieldCount, so contributions from
// later fields are discounted and the decay compounds across the whole list.
// The compounding is deliberate and load-bearing: golden values in the tests
// depend on it.
func Score(query string, fields []string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(fields) == 0 {
		return 0
	}
	words := strings.Fields(q)

	total := 0.0
	count := float64(len(fields))
	for i, field := range fields {
		f := strings.ToLower(field)
		if f != "" {
			if f == q {
				total += 100
			} else {
				if strings.Contains(f, q) {
					total += 50
				}
				for _, word := range words {
					if strings.Contains(f, word) {
						total += 10
					}
				}
			}
		}
		total *= (count - float64(i)) / count
	}
	return total
}
