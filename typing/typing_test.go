package typing

import (
	"testing"

	"github.com/grailbio/genotype/catalog"
	"github.com/grailbio/genotype/compat"
	"github.com/grailbio/genotype/haplotype"
	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRef = []byte("ACGTACGTACGACGTACGTAC")

const (
	pairedRead1 = sam.Paired | sam.ProperPair | sam.Read1
	pairedRead2 = sam.Paired | sam.ProperPair | sam.Read2
)

func testLocus() *Locus {
	return &Locus{
		Name:    "GENE1",
		Mode:    Generic,
		Ref:     testRef,
		Alleles: []string{"A1", "A2", "A3"},
		Catalog: catalog.New(
			[]string{"v1", "v2"},
			map[string]catalog.Variant{
				"v1": {Kind: catalog.Single, Pos: 10, Data: "T"},
				"v2": {Kind: catalog.Single, Pos: 15, Data: "C"},
			}),
		Links: catalog.Linkage{"v1": {"A1", "A2"}, "v2": {"A3"}},
	}
}

func testOpts() Opts {
	return Opts{
		EditDistance:    2,
		AllowDiscordant: true,
		Resolver:        haplotype.WholeReadResolver{},
	}
}

func newRead(t *testing.T, name string, pos int, flags sam.Flags, cigar sam.Cigar, seq string, tags map[string]interface{}) *sam.Record {
	t.Helper()
	rec := &sam.Record{
		Name:  name,
		Pos:   pos,
		Flags: flags,
		Cigar: cigar,
		Seq:   sam.NewSeq([]byte(seq)),
		Qual:  make([]byte, len(seq)),
	}
	for tag, value := range tags {
		aux, err := sam.NewAux(sam.NewTag(tag), value)
		require.NoError(t, err)
		rec.AuxFields = append(rec.AuxFields, aux)
	}
	return rec
}

func cigarM(n int) sam.Cigar { return sam.Cigar{sam.NewCigarOp(sam.CigarMatch, n)} }

// mutate returns the reference with one substituted base.
func mutate(pos int, base byte) string {
	seq := append([]byte{}, testRef...)
	seq[pos] = base
	return string(seq)
}

func TestProcessLocusGeneric(t *testing.T) {
	reads := []*sam.Record{
		newRead(t, "frag1", 0, pairedRead1, cigarM(21), mutate(10, 'T'), map[string]interface{}{"MD": "10G10", "NM": uint8(1)}),
		newRead(t, "frag1", 0, pairedRead2, cigarM(21), string(testRef), map[string]interface{}{"MD": "21", "NM": uint8(0)}),
		newRead(t, "frag2", 0, pairedRead1, cigarM(21), mutate(15, 'C'), map[string]interface{}{"MD": "15A5", "NM": uint8(1)}),
		newRead(t, "frag2", 0, pairedRead2, cigarM(21), string(testRef), map[string]interface{}{"MD": "21", "NM": uint8(0)}),
	}
	res := ProcessLocus(testLocus(), reads, testOpts())
	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Reads)
	assert.Equal(t, 2, res.Pairs)
	assert.Equal(t, 0, res.Rejected)
	assert.Equal(t, compat.Tally{"A1-A2": 1, "A3": 1}, res.Tally)
	assert.Equal(t, map[string]int{"A1": 1, "A2": 1, "A3": 1}, res.Counts)
	assert.Equal(t, map[string]int{"v1": 1, "v2": 1}, res.VarCounts)
}

func TestProcessLocusQualityGates(t *testing.T) {
	opts := testOpts()
	opts.AllowDiscordant = false
	reads := []*sam.Record{
		newRead(t, "r1", 0, pairedRead1|sam.Unmapped, cigarM(21), string(testRef), map[string]interface{}{"MD": "21"}),
		newRead(t, "r2", 0, pairedRead1, cigarM(21), string(testRef), map[string]interface{}{"MD": "21", "NM": uint8(5)}),
		newRead(t, "r3", 0, pairedRead1, cigarM(21), string(testRef), map[string]interface{}{"MD": "21", "NH": int32(2)}),
		newRead(t, "r4", 0, sam.Paired|sam.Read1, cigarM(21), string(testRef), map[string]interface{}{"MD": "21"}),
	}
	res := ProcessLocus(testLocus(), reads, opts)
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.Reads)
	assert.Equal(t, 0, res.Pairs)
	assert.Equal(t, 4, res.Rejected)
	assert.Empty(t, res.Tally)
}

func TestProcessLocusDedupPerEnd(t *testing.T) {
	rec := func() *sam.Record {
		return newRead(t, "frag1", 0, pairedRead1, cigarM(21), string(testRef), map[string]interface{}{"MD": "21"})
	}
	res := ProcessLocus(testLocus(), []*sam.Record{rec(), rec()}, testOpts())
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Reads, "only the first alignment per read end counts")
	assert.Equal(t, 1, res.Pairs)
}

// correctionReads is ten reference-identical unpaired reads over [0,12] plus
// one with base b at position 10, in name order.
func correctionReads(t *testing.T, b byte) []*sam.Record {
	var reads []*sam.Record
	for i := 0; i < 10; i++ {
		name := "r0" + string(rune('0'+i))
		reads = append(reads, newRead(t, name, 0, 0, cigarM(13), string(testRef[:13]), map[string]interface{}{"MD": "13"}))
	}
	seq := append([]byte{}, testRef[:13]...)
	seq[10] = b
	reads = append(reads, newRead(t, "r99", 0, 0, cigarM(13), string(seq), map[string]interface{}{"MD": "10G2"}))
	return reads
}

func TestProcessLocusErrorCorrection(t *testing.T) {
	// At depth 11 a lone T at position 10 falls under the consensus support
	// threshold and is rewritten back to G: the v1 evidence disappears.
	opts := testOpts()
	opts.ErrorCorrection = true
	res := ProcessLocus(testLocus(), correctionReads(t, 'T'), opts)
	require.NoError(t, res.Err)
	assert.Equal(t, 11, res.Reads)
	assert.Equal(t, compat.Tally{"A3": 11}, res.Tally)

	opts.ErrorCorrection = false
	res = ProcessLocus(testLocus(), correctionReads(t, 'T'), opts)
	require.NoError(t, res.Err)
	assert.Equal(t, compat.Tally{"A3": 10, "A1-A2": 1}, res.Tally)
}

func TestProcessLocusCorrectionLimit(t *testing.T) {
	opts := testOpts()
	opts.ErrorCorrection = true
	opts.EditDistance = 1
	reads := correctionReads(t, 'T')[:10]
	seq := append([]byte{}, testRef[:13]...)
	seq[3] = 'A'
	seq[7] = 'A'
	reads = append(reads, newRead(t, "r99", 0, 0, cigarM(13), string(seq), map[string]interface{}{"MD": "3T3T5"}))

	res := ProcessLocus(testLocus(), reads, opts)
	require.NoError(t, res.Err)
	assert.Equal(t, 10, res.Reads, "a read needing too many corrections is dropped")
	assert.Equal(t, 1, res.Rejected)
}

func TestProcessLocusNovelPromotion(t *testing.T) {
	reads := []*sam.Record{
		newRead(t, "frag1", 0, pairedRead1, cigarM(13), string(append(append([]byte{}, testRef[:10]...), 'C', testRef[11], testRef[12])), map[string]interface{}{"MD": "10G2"}),
	}
	res := ProcessLocus(testLocus(), reads, testOpts())
	require.NoError(t, res.Err)
	assert.Equal(t, map[string]int{"nv0": 1}, res.VarCounts)
	v, ok := res.Catalog.Get("nv0")
	require.True(t, ok)
	assert.Equal(t, catalog.Variant{Kind: catalog.Single, Pos: 10, Data: "C"}, v)
	// The novel id carries no linkage, so the fragment still excludes v1's
	// alleles over its span.
	assert.Equal(t, compat.Tally{"A3": 1}, res.Tally)
}

func TestProcessLocusExonRestricted(t *testing.T) {
	locus := testLocus()
	locus.Mode = ExonRestricted
	locus.Exons = []catalog.Interval{{Left: 8, Right: 20}}
	locus.PrimaryExons = []catalog.Interval{{Left: 8, Right: 12}}
	reads := []*sam.Record{
		newRead(t, "frag1", 0, pairedRead1, cigarM(13), mutate(10, 'T')[:13], map[string]interface{}{"MD": "10G2"}),
	}
	res := ProcessLocus(locus, reads, testOpts())
	require.NoError(t, res.Err)

	// A1 and A2 are indistinguishable over the exonic variants; A1 represents
	// both.
	assert.Equal(t, []string{"A1", "A2"}, res.ExonReps.Members["A1"])
	assert.Equal(t, []string{"A3"}, res.ExonReps.Members["A3"])

	assert.Equal(t, compat.Tally{"A1-A2": 1}, res.Tally)
	assert.Equal(t, compat.Tally{"A1": 1}, res.ExonTally)
	assert.Equal(t, compat.Tally{"A1": 1}, res.PrimaryExonTally)
}

func TestProcessLocusTandemRepeatNeedsDistance(t *testing.T) {
	locus := testLocus()
	locus.Mode = TandemRepeat
	res := ProcessLocus(locus, nil, testOpts())
	assert.Error(t, res.Err)
}

func TestProcessLocusTandemRepeat(t *testing.T) {
	locus := testLocus()
	locus.Mode = TandemRepeat
	locus.ExpectedInterDist = 1
	reads := []*sam.Record{
		newRead(t, "frag1", 0, pairedRead1, cigarM(13), mutate(10, 'T')[:13], map[string]interface{}{"MD": "10G2"}),
		newRead(t, "frag1", 14, pairedRead2, cigarM(7), mutate(15, 'C')[14:], map[string]interface{}{"MD": "1A5"}),
	}
	res := ProcessLocus(locus, reads, testOpts())
	require.NoError(t, res.Err)
	// Single candidates per mate pass through the insert-distance model
	// untouched; the fragment's votes split across both linked sets.
	assert.Equal(t, compat.Tally{"A1-A2-A3": 1}, res.Tally)
}

func TestProcessLocusNoResolver(t *testing.T) {
	res := ProcessLocus(testLocus(), nil, Opts{EditDistance: 2})
	assert.Error(t, res.Err)
}

func TestRunIsolatesLocusFailure(t *testing.T) {
	good := testLocus()
	bad := testLocus()
	bad.Name = "GENE2"
	bad.Mode = TandemRepeat // no expected insert distance

	reads := map[string][]*sam.Record{
		good.Name: {
			newRead(t, "frag1", 0, pairedRead1, cigarM(21), mutate(10, 'T'), map[string]interface{}{"MD": "10G10"}),
		},
	}
	results := Run([]*Locus{good, bad}, reads, testOpts())
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, compat.Tally{"A1-A2": 1}, results[0].Tally)
	assert.Error(t, results[1].Err)
}

func TestRankedAlleles(t *testing.T) {
	res := &Result{Counts: map[string]int{"A1": 3, "A2": 5, "A3": 3}}
	assert.Equal(t, []AlleleCount{{"A2", 5}, {"A1", 3}, {"A3", 3}}, res.RankedAlleles())
}

func TestKeepEvidence(t *testing.T) {
	opts := testOpts()
	opts.KeepEvidence = true
	reads := []*sam.Record{
		newRead(t, "frag1", 0, pairedRead1, cigarM(21), mutate(10, 'T'), map[string]interface{}{"MD": "10G10"}),
	}
	res := ProcessLocus(testLocus(), reads, opts)
	require.NoError(t, res.Err)
	require.Len(t, res.Evidence, 1)
	assert.Equal(t, "frag1", res.Evidence[0].Name)
	require.Len(t, res.Evidence[0].Sigs, 1)
	assert.Equal(t, haplotype.Signature{Left: 0, Right: 20, IDs: []string{"v1"}}, res.Evidence[0].Sigs[0])
}
