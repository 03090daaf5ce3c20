package app

import (
	"strings"

	"github.com/emalab/eyelocater/internal/domain/expr"
)

// ParseGeneList splits a user-supplied gene list on commas and semicolons,
// trimming whitespace and dropping duplicates while preserving order.
func ParseGeneList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		g := strings.TrimSpace(f)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}

// ValidateGenes splits the requested genes into those present in the dataset
// and those that are not. Unknown genes are reported, not fatal; the caller
// decides whether an all-unknown list is an error.
func ValidateGenes(ds *expr.Dataset, genes []string) (valid, unknown []string) {
	idx := ds.GeneIndex()
	for _, g := range genes {
		if _, ok := idx[g]; !ok {
			unknown = append(unknown, g)
			continue
		}
		valid = append(valid, g)
	}
	return valid, unknown
}
