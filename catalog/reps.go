package catalog

import (
	"sort"
	"strings"
)

// RepGroups partitions alleles into groups that are indistinguishable over
// the variant ids in restricted: two alleles are equivalent iff they carry
// exactly the same subset of restricted ids. The first member of each group
// (in sorted allele order, for determinism) is its representative.
//
// If pool is non-nil, only alleles in pool are considered, and every pool
// allele lands in exactly one group; alleles carrying none of the restricted
// ids share the empty-subset group. If pool is nil the universe is the set of
// alleles that appear in links for at least one restricted id.
type RepGroups struct {
	// Rep maps every member allele to its group representative.
	Rep map[string]string
	// Members maps a representative to all alleles of its group, sorted.
	Members map[string][]string
}

// GroupByVariants computes the representative partition of alleles over the
// given restricted variant ids.
func GroupByVariants(links Linkage, restricted []string, pool []string) RepGroups {
	inRestricted := make(map[string]bool, len(restricted))
	for _, id := range restricted {
		inRestricted[id] = true
	}
	var inPool map[string]bool
	if pool != nil {
		inPool = make(map[string]bool, len(pool))
		for _, a := range pool {
			inPool[a] = true
		}
	}

	alleleVars := make(map[string][]string)
	for id, alleles := range links {
		if !inRestricted[id] {
			continue
		}
		for _, a := range alleles {
			if inPool != nil && !inPool[a] {
				continue
			}
			alleleVars[a] = append(alleleVars[a], id)
		}
	}

	universe := pool
	if universe == nil {
		universe = make([]string, 0, len(alleleVars))
		for a := range alleleVars {
			universe = append(universe, a)
		}
	}
	sorted := make([]string, len(universe))
	copy(sorted, universe)
	sort.Strings(sorted)

	byKey := make(map[string][]string)
	for _, a := range sorted {
		ids := alleleVars[a]
		sort.Strings(ids)
		key := strings.Join(ids, "-")
		byKey[key] = append(byKey[key], a)
	}

	g := RepGroups{
		Rep:     make(map[string]string, len(sorted)),
		Members: make(map[string][]string, len(byKey)),
	}
	for _, members := range byKey {
		rep := members[0]
		g.Members[rep] = members
		for _, m := range members {
			g.Rep[m] = rep
		}
	}
	return g
}

// RepSet returns the set of representatives.
func (g RepGroups) RepSet() map[string]bool {
	set := make(map[string]bool, len(g.Members))
	for rep := range g.Members {
		set[rep] = true
	}
	return set
}

// Redistribute spreads per-representative mass uniformly across each group's
// members, for recombining representative-restricted results with
// unrestricted ones.
func (g RepGroups) Redistribute(repMass map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for rep, mass := range repMass {
		members, ok := g.Members[rep]
		if !ok {
			out[rep] += mass
			continue
		}
		share := mass / float64(len(members))
		for _, m := range members {
			out[m] += share
		}
	}
	return out
}
