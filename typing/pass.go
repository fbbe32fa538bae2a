package typing

import (
	"fmt"

	"github.com/grailbio/genotype/catalog"
	"github.com/grailbio/genotype/compat"
	"github.com/grailbio/genotype/decode"
	"github.com/grailbio/genotype/haplotype"
	"github.com/grailbio/genotype/pileup"
	"github.com/grailbio/hts/sam"
)

// readEnd distinguishes the two mates of a fragment and unpaired reads.
type readEnd byte

const (
	leftEnd readEnd = iota
	rightEnd
	unpairedEnd
)

// locusPass is the single-owner state of one locus-processing pass. Nothing
// here may be shared across loci.
type locusPass struct {
	locus *Locus
	opts  Opts
	res   *Result

	dec  *decode.Decoder
	pool map[string]bool // non-reference allele set

	exonRepSet    map[string]bool
	primaryRepSet map[string]bool

	// Per-end dedup: only the first alignment of each (read, end) counts.
	seen map[readEnd]map[string]bool

	// Current fragment state, reset on read-name change.
	fragName       string
	fragOpen       bool
	left, right    haplotype.Set
	counter        *compat.Counter
	exonCounter    *compat.Counter
	primaryCounter *compat.Counter
}

func newLocusPass(locus *Locus, reads []*sam.Record, opts Opts, res *Result) (*locusPass, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("typing: no boundary resolver configured")
	}
	if locus.Mode == TandemRepeat && locus.ExpectedInterDist <= 0 {
		return nil, fmt.Errorf("typing: tandem-repeat locus %s has no expected insert distance", locus.Name)
	}
	cat := locus.Catalog.Clone()
	p := &locusPass{
		locus: locus,
		opts:  opts,
		res:   res,
		dec: &decode.Decoder{
			Catalog:            cat,
			Ref:                locus.Ref,
			Pile:               buildPileup(locus, reads, opts),
			CheckDeletionRatio: locus.Mode == ExonRestricted,
		},
		pool: make(map[string]bool, len(locus.Alleles)),
		seen: map[readEnd]map[string]bool{
			leftEnd:     {},
			rightEnd:    {},
			unpairedEnd: {},
		},
	}
	for _, a := range locus.Alleles {
		p.pool[a] = true
	}
	if locus.Mode == ExonRestricted {
		exonIDs := cat.ExonicIDs(locus.Exons)
		res.ExonReps = catalog.GroupByVariants(locus.Links, exonIDs, nil)
		p.exonRepSet = res.ExonReps.RepSet()

		primaryIDs := cat.ExonicIDs(locus.PrimaryExons)
		repPool := make([]string, 0, len(p.exonRepSet))
		for a := range p.exonRepSet {
			repPool = append(repPool, a)
		}
		res.PrimaryExonReps = catalog.GroupByVariants(locus.Links, primaryIDs, repPool)
		p.primaryRepSet = res.PrimaryExonReps.RepSet()
	}
	return p, nil
}

// buildPileup constructs the locus consensus pileup from the reads that will
// be decoded, applying the same acceptance gates.
func buildPileup(locus *Locus, reads []*sam.Record, opts Opts) pileup.Pileup {
	b := pileup.NewBuilder(len(locus.Ref))
	for _, rec := range reads {
		if !accept(rec, opts) {
			continue
		}
		b.Add(rec, rec.Pos-locus.BasePos)
	}
	return b.Pileup()
}

// accept applies the pre-decode quality gates: mapped, unique, concordant
// (unless discordant reads are allowed), and edit distance within bounds.
func accept(rec *sam.Record, opts Opts) bool {
	if rec.Flags&sam.Unmapped != 0 {
		return false
	}
	if !opts.AllowDiscordant && rec.Flags&sam.ProperPair == 0 {
		return false
	}
	if nm, ok := decode.EditDistance(rec); ok && nm > opts.EditDistance {
		return false
	}
	if nh, ok := decode.NumHits(rec); ok && nh > 1 {
		return false
	}
	return true
}

// end classifies which fragment end a record belongs to.
func end(rec *sam.Record) readEnd {
	switch {
	case rec.Flags&sam.Read1 != 0:
		return leftEnd
	case rec.Flags&sam.Read2 != 0:
		return rightEnd
	default:
		return unpairedEnd
	}
}

func (p *locusPass) processRecord(rec *sam.Record) error {
	if !accept(rec, p.opts) {
		p.res.Rejected++
		return nil
	}
	readEnd := end(rec)
	if readEnd == unpairedEnd && !p.opts.AllowDiscordant {
		p.res.Rejected++
		return nil
	}
	if p.seen[readEnd][rec.Name] {
		return nil
	}
	p.seen[readEnd][rec.Name] = true

	result, err := p.dec.Decode(rec, p.locus.BasePos)
	if err != nil {
		if _, rejected := err.(*decode.RejectedError); rejected {
			p.res.Rejected++
			return nil
		}
		return err
	}
	if p.opts.ErrorCorrection {
		if err := p.dec.Correct(result); err != nil {
			return err
		}
		limit := p.opts.EditDistance
		if limit < 1 {
			limit = 1
		}
		if result.Corrections > limit {
			p.res.Rejected++
			return nil
		}
	}
	if result.Misaligned {
		p.res.Rejected++
		return nil
	}
	// The read has cleared every gate; only now does it count toward
	// fragment grouping and catalog mutation.
	if !p.fragOpen || rec.Name != p.fragName {
		p.commitFragment()
		p.openFragment(rec.Name)
	}
	p.dec.PromoteNovel(result, p.res.VarCounts)
	p.res.Reads++

	sigs, err := haplotype.Assemble(result.Ops, p.dec.Catalog, p.opts.Resolver)
	if err != nil {
		return err
	}
	evidence := p.left
	if readEnd != leftEnd {
		evidence = p.right
	}
	for _, sig := range sigs {
		evidence.Add(sig)
	}
	if p.opts.KeepEvidence {
		p.res.Evidence = append(p.res.Evidence, ReadEvidence{Name: rec.Name, Ops: result.Ops, Sigs: sigs})
	}
	return nil
}

// openFragment resets the per-fragment evidence state. Vote counters start
// from the full allele pool; the exon-restricted counters track only the
// representative subsets.
func (p *locusPass) openFragment(name string) {
	p.fragName = name
	p.fragOpen = true
	p.left = make(haplotype.Set)
	p.right = make(haplotype.Set)
	p.counter = compat.NewCounter(p.locus.Alleles, nil)
	if p.locus.Mode == ExonRestricted {
		p.exonCounter = compat.NewCounter(p.locus.Alleles, p.exonRepSet)
		p.primaryCounter = compat.NewCounter(p.locus.Alleles, p.primaryRepSet)
	}
}

// commitFragment reconciles the open fragment's mate evidence and folds its
// votes into the locus tallies.
func (p *locusPass) commitFragment() {
	if !p.fragOpen {
		return
	}
	left, right := p.left, p.right
	if p.locus.Mode == TandemRepeat {
		left, right = haplotype.ChoosePairs(left, right, p.locus.ExpectedInterDist)
	}
	cat := p.dec.Catalog
	for _, sig := range haplotype.Union(left, right) {
		if p.locus.Mode == ExonRestricted {
			for _, projected := range haplotype.Project(sig, p.locus.PrimaryExons, cat) {
				p.primaryCounter.Add(projected, cat, p.locus.Links, p.pool)
			}
			for _, projected := range haplotype.Project(sig, p.locus.Exons, cat) {
				p.exonCounter.Add(projected, cat, p.locus.Links, p.pool)
			}
		}
		p.counter.Add(sig, cat, p.locus.Links, p.pool)
	}
	if p.locus.Mode == ExonRestricted {
		p.primaryCounter.Commit(p.res.PrimaryExonTally, p.res.PrimaryExonCounts, p.primaryRepSet)
		p.exonCounter.Commit(p.res.ExonTally, p.res.ExonCounts, p.exonRepSet)
	}
	p.counter.Commit(p.res.Tally, p.res.Counts, nil)
	p.res.Pairs++
	p.fragOpen = false
}
