package typing

import "sort"

// AlleleCount is one allele's vote total.
type AlleleCount struct {
	Allele string
	Count  int
}

// RankedAlleles returns the locus's per-allele totals sorted by descending
// count, ties broken by allele name for stable output.
func (r *Result) RankedAlleles() []AlleleCount {
	ranked := make([]AlleleCount, 0, len(r.Counts))
	for a, n := range r.Counts {
		ranked = append(ranked, AlleleCount{a, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Allele < ranked[j].Allele
	})
	return ranked
}
