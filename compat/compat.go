// Package compat decides which catalog alleles are compatible with one
// haplotype signature and aggregates per-fragment winners into
// compatibility-class tallies, the sufficient statistic handed to the
// abundance estimator.
package compat

import (
	"sort"
	"strings"

	"github.com/grailbio/genotype/catalog"
	"github.com/grailbio/genotype/haplotype"
)

// Tally maps a compatibility-class key (sorted, hyphen-joined allele names)
// to the number of fragments whose evidence selected that class.
type Tally map[string]int

// Counter tracks one fragment's per-allele votes. It is created from the
// locus allele pool (or a representative subset) at the start of each
// fragment and committed once both mates are processed.
type Counter struct {
	votes map[string]int
}

// NewCounter initializes a zero vote for every allele in pool, optionally
// keeping only alleles in restrict.
func NewCounter(pool []string, restrict map[string]bool) *Counter {
	c := &Counter{votes: make(map[string]int, len(pool))}
	for _, a := range pool {
		if restrict != nil && !restrict[a] {
			continue
		}
		c.votes[a] = 0
	}
	return c
}

// Add computes the alleles compatible with sig and credits each of them one
// vote. It returns the number of credited alleles.
//
// Starting from every allele in pool, each non-novel id embedded in sig
// intersects the set with that id's linked alleles. Then the catalog is
// scanned backward from the right anchor: any variant overlapping
// [Left, Right] that sig does not embed subtracts its linked alleles, since
// an allele carrying a variant inside the confidently-called span that the
// read did not exhibit is incompatible. The cached rightmost-affected
// positions bound the scan. Finally the set is restricted to the alleles
// this counter tracks.
func (c *Counter) Add(sig haplotype.Signature, cat *catalog.Catalog, links catalog.Linkage, pool map[string]bool) int {
	compatible := make(map[string]bool, len(pool))
	for a := range pool {
		compatible[a] = true
	}

	inSig := make(map[string]bool, len(sig.IDs))
	for _, id := range sig.IDs {
		inSig[id] = true
		if catalog.IsNovel(id) {
			continue
		}
		linked, ok := links[id]
		if !ok {
			continue
		}
		linkedSet := make(map[string]bool, len(linked))
		for _, a := range linked {
			linkedSet[a] = true
		}
		for a := range compatible {
			if !linkedSet[a] {
				delete(compatible, a)
			}
		}
	}

	// Alleles carrying a variant inside the span that the read did not show.
	excluded := make(map[string]bool)
	idx := cat.LowerBound(sig.Right + 1)
	if idx > cat.Len()-1 {
		idx = cat.Len() - 1
	}
	for ; idx >= 0; idx-- {
		_, id := cat.At(idx)
		if catalog.IsNovel(id) || inSig[id] {
			continue
		}
		linked, ok := links[id]
		if !ok {
			continue
		}
		if mr, ok := cat.MaxRight(id); ok && mr < sig.Left {
			break
		}
		v, _ := cat.Get(id)
		right := v.Right()
		if (v.Pos >= sig.Left && v.Pos <= sig.Right) || (right >= sig.Left && right <= sig.Right) {
			for _, a := range linked {
				excluded[a] = true
			}
		}
	}
	for a := range excluded {
		delete(compatible, a)
	}

	n := 0
	for a := range compatible {
		if _, tracked := c.votes[a]; tracked {
			c.votes[a]++
			n++
		}
	}
	return n
}

// Commit reduces the fragment's votes to its compatibility class: the
// alleles holding the maximum vote count (restricted to include, when
// non-empty). Each winner's total in counts is incremented, the class is
// recorded in tally, and its key is returned ("" when no allele qualifies).
func (c *Counter) Commit(tally Tally, counts map[string]int, include map[string]bool) string {
	if len(c.votes) == 0 {
		return ""
	}
	max := 0
	first := true
	for _, n := range c.votes {
		if first || n > max {
			max = n
			first = false
		}
	}
	var winners []string
	for a, n := range c.votes {
		if n < max {
			continue
		}
		if len(include) > 0 && !include[a] {
			continue
		}
		winners = append(winners, a)
		counts[a]++
	}
	if len(winners) == 0 {
		return ""
	}
	sort.Strings(winners)
	class := strings.Join(winners, "-")
	tally[class]++
	return class
}
