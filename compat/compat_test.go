package compat

import (
	"testing"

	"github.com/grailbio/genotype/catalog"
	"github.com/grailbio/genotype/haplotype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAlleles = []string{"A1", "A2", "A3"}
	testPool    = map[string]bool{"A1": true, "A2": true, "A3": true}
	testLinks   = catalog.Linkage{"v1": {"A1", "A2"}, "v2": {"A3"}}
)

func testCatalog() *catalog.Catalog {
	return catalog.New(
		[]string{"v1", "v2"},
		map[string]catalog.Variant{
			"v1": {Kind: catalog.Single, Pos: 10, Data: "T"},
			"v2": {Kind: catalog.Single, Pos: 15, Data: "C"},
		})
}

func TestAddIntersectsLinkedAlleles(t *testing.T) {
	cat := testCatalog()
	c := NewCounter(testAlleles, nil)
	sig := haplotype.Signature{Left: 0, Right: 12, IDs: []string{"v1"}}
	n := c.Add(sig, cat, testLinks, testPool)
	assert.Equal(t, 2, n)

	tally, counts := Tally{}, map[string]int{}
	assert.Equal(t, "A1-A2", c.Commit(tally, counts, nil))
	assert.Equal(t, Tally{"A1-A2": 1}, tally)
	assert.Equal(t, map[string]int{"A1": 1, "A2": 1}, counts)
}

func TestAddExcludesUnexhibitedVariants(t *testing.T) {
	// The signature spans v2's position without embedding it, so alleles
	// carrying v2 are incompatible. v1 sits outside the span and excludes
	// nothing.
	cat := testCatalog()
	c := NewCounter(testAlleles, nil)
	sig := haplotype.Signature{Left: 12, Right: 20}
	n := c.Add(sig, cat, testLinks, testPool)
	assert.Equal(t, 2, n)

	tally := Tally{}
	assert.Equal(t, "A1-A2", c.Commit(tally, map[string]int{}, nil))
}

func TestAddEmptySpanKeepsPool(t *testing.T) {
	cat := testCatalog()
	c := NewCounter(testAlleles, nil)
	sig := haplotype.Signature{Left: 20, Right: 40}
	n := c.Add(sig, cat, testLinks, testPool)
	assert.Equal(t, 3, n)

	tally := Tally{}
	assert.Equal(t, "A1-A2-A3", c.Commit(tally, map[string]int{}, nil))
}

func TestAddIgnoresNovelIDs(t *testing.T) {
	cat := testCatalog()
	nv := cat.InsertNovel(catalog.Single, 5, "G")
	require.True(t, catalog.IsNovel(nv))

	c := NewCounter(testAlleles, nil)
	sig := haplotype.Signature{Left: 0, Right: 12, IDs: []string{nv, "v1"}}
	n := c.Add(sig, cat, testLinks, testPool)
	assert.Equal(t, 2, n, "a novel id neither intersects nor excludes")
}

func TestAddUnlinkedIDIsNeutral(t *testing.T) {
	cat := catalog.New(
		[]string{"v1", "vx"},
		map[string]catalog.Variant{
			"v1": {Kind: catalog.Single, Pos: 10, Data: "T"},
			"vx": {Kind: catalog.Single, Pos: 11, Data: "A"},
		})
	c := NewCounter(testAlleles, nil)
	// vx has no linkage entry: it must not exclude anything even though it
	// overlaps the span unexhibited.
	sig := haplotype.Signature{Left: 0, Right: 12, IDs: []string{"v1"}}
	n := c.Add(sig, cat, testLinks, testPool)
	assert.Equal(t, 2, n)
}

func TestAddVoteMonotonicity(t *testing.T) {
	cat := testCatalog()
	c := NewCounter(testAlleles, nil)
	sigA := haplotype.Signature{Left: 0, Right: 12, IDs: []string{"v1"}}
	sigB := haplotype.Signature{Left: 12, Right: 20}
	c.Add(sigA, cat, testLinks, testPool) // A1, A2
	c.Add(sigB, cat, testLinks, testPool) // A1, A2

	tally, counts := Tally{}, map[string]int{}
	assert.Equal(t, "A1-A2", c.Commit(tally, counts, nil))
	assert.Equal(t, map[string]int{"A1": 1, "A2": 1}, counts)
}

func TestCounterRestriction(t *testing.T) {
	cat := testCatalog()
	c := NewCounter(testAlleles, map[string]bool{"A1": true})
	sig := haplotype.Signature{Left: 0, Right: 12, IDs: []string{"v1"}}
	n := c.Add(sig, cat, testLinks, testPool)
	assert.Equal(t, 1, n, "only tracked alleles take votes")

	tally := Tally{}
	assert.Equal(t, "A1", c.Commit(tally, map[string]int{}, nil))
}

func TestCommitIncludeFilter(t *testing.T) {
	cat := testCatalog()
	c := NewCounter(testAlleles, nil)
	sig := haplotype.Signature{Left: 0, Right: 12, IDs: []string{"v1"}}
	c.Add(sig, cat, testLinks, testPool)

	tally, counts := Tally{}, map[string]int{}
	class := c.Commit(tally, counts, map[string]bool{"A2": true})
	assert.Equal(t, "A2", class)
	assert.Equal(t, map[string]int{"A2": 1}, counts)

	c2 := NewCounter(testAlleles, nil)
	c2.Add(sig, cat, testLinks, testPool)
	class = c2.Commit(Tally{}, map[string]int{}, map[string]bool{"A3": true})
	assert.Equal(t, "", class, "include filter can empty the class")
}

func TestCommitEmptyCounter(t *testing.T) {
	c := NewCounter(nil, nil)
	assert.Equal(t, "", c.Commit(Tally{}, map[string]int{}, nil))
}

func TestTallyAccumulatesAcrossFragments(t *testing.T) {
	cat := testCatalog()
	tally, counts := Tally{}, map[string]int{}
	for i := 0; i < 3; i++ {
		c := NewCounter(testAlleles, nil)
		c.Add(haplotype.Signature{Left: 0, Right: 12, IDs: []string{"v1"}}, cat, testLinks, testPool)
		c.Commit(tally, counts, nil)
	}
	c := NewCounter(testAlleles, nil)
	c.Add(haplotype.Signature{Left: 12, Right: 20}, cat, testLinks, testPool)
	c.Commit(tally, counts, nil)

	assert.Equal(t, Tally{"A1-A2": 4}, tally)
	assert.Equal(t, map[string]int{"A1": 4, "A2": 4}, counts)
}
