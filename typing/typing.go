// Package typing runs the per-locus evidence pipeline: decode each aligned
// read against the locus catalog, correct sequencing errors against the
// pileup, assemble haplotype signatures, and tally allele-compatibility
// classes. Loci are processed independently and in parallel; reads within a
// locus are strictly sequential, since novel-variant ids are numbered by
// order of first observation.
package typing

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/genotype/catalog"
	"github.com/grailbio/genotype/compat"
	"github.com/grailbio/genotype/decode"
	"github.com/grailbio/genotype/haplotype"
	"github.com/grailbio/hts/sam"
)

// Mode selects the locus family's typing behavior. It is chosen once per
// locus before the pipeline runs; no stage branches on the locus name.
type Mode int

const (
	// Generic tallies full-signature compatibility only.
	Generic Mode = iota
	// ExonRestricted additionally tallies exon-projected and
	// primary-exon-projected signatures over representative allele sets
	// (HLA-style loci).
	ExonRestricted
	// TandemRepeat reconciles mate signature sets under the expected
	// insert-distance model before tallying (STR/CODIS-style loci).
	TandemRepeat
)

func (m Mode) String() string {
	switch m {
	case Generic:
		return "generic"
	case ExonRestricted:
		return "exon-restricted"
	case TandemRepeat:
		return "tandem-repeat"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Opts configures one typing run.
type Opts struct {
	// EditDistance drops reads whose NM aux value exceeds it, and bounds the
	// error-correction quality gate.
	EditDistance int
	// AllowDiscordant admits non-concordant and unpaired alignments.
	AllowDiscordant bool
	// ErrorCorrection enables pileup-consensus correction of read bases.
	ErrorCorrection bool
	// Resolver places the trusted-region boundary on each comparison list.
	Resolver haplotype.Resolver
	// KeepEvidence retains per-read signatures and comparison lists in the
	// Result for the downstream assembler.
	KeepEvidence bool
}

// DefaultOpts is the baseline configuration.
var DefaultOpts = Opts{
	EditDistance:    2,
	ErrorCorrection: true,
	Resolver:        haplotype.WholeReadResolver{},
}

// Locus describes one genetic region to type. The master Catalog is cloned
// per run; the Locus itself is read-only during processing.
type Locus struct {
	// Name of the locus (gene).
	Name string
	// Mode is the locus family's typing behavior.
	Mode Mode
	// Ref is the backbone reference sequence.
	Ref []byte
	// BasePos rebases alignment positions onto Ref (contig offset of the
	// locus's left edge).
	BasePos int
	// Alleles is the non-reference allele pool.
	Alleles []string
	// Catalog is the master variant registry for the locus.
	Catalog *catalog.Catalog
	// Links is the variant->alleles linkage table.
	Links catalog.Linkage
	// Exons and PrimaryExons bound the exon-restricted projections
	// (ExonRestricted mode).
	Exons, PrimaryExons []catalog.Interval
	// ExpectedInterDist is the expected inter-mate gap (TandemRepeat mode).
	ExpectedInterDist int
}

// ReadEvidence is one read's decoded evidence, kept for the downstream
// assembler.
type ReadEvidence struct {
	Name string
	Ops  decode.Ops
	Sigs []haplotype.Signature
}

// Result is one locus's outcome. Err is set when the locus could not be
// completed; other loci in the run are unaffected.
type Result struct {
	Locus string
	Err   error

	// Tally and Counts aggregate full-signature compatibility; the Exon and
	// PrimaryExon variants are populated in ExonRestricted mode over the
	// respective representative sets.
	Tally, ExonTally, PrimaryExonTally    compat.Tally
	Counts, ExonCounts, PrimaryExonCounts map[string]int

	// ExonReps and PrimaryExonReps are the representative partitions used
	// for the restricted tallies.
	ExonReps, PrimaryExonReps catalog.RepGroups

	// Catalog is the working catalog, augmented with the run's novel
	// variants. VarCounts holds per-variant observation counts.
	Catalog   *catalog.Catalog
	VarCounts map[string]int

	// Reads and Pairs count decodable reads and committed fragments;
	// Rejected counts quality rejections (expected, high-frequency).
	Reads, Pairs, Rejected int

	Evidence []ReadEvidence
}

// Run types every locus, in parallel across loci. Each locus gets its own
// Result; a locus failure is recorded in its Result.Err and never aborts its
// siblings.
func Run(loci []*Locus, reads map[string][]*sam.Record, opts Opts) []*Result {
	results := make([]*Result, len(loci))
	_ = traverse.Each(len(loci), func(i int) error {
		results[i] = ProcessLocus(loci[i], reads[loci[i].Name], opts)
		if err := results[i].Err; err != nil {
			log.Error.Printf("locus %s: %v", loci[i].Name, err)
		}
		return nil
	})
	return results
}

// ProcessLocus runs the full pipeline for one locus over its name-sorted,
// locus-relative read stream. The stream and pileup are fully materialized
// before decoding begins; processing is strictly sequential.
func ProcessLocus(locus *Locus, reads []*sam.Record, opts Opts) *Result {
	res := &Result{
		Locus:             locus.Name,
		Tally:             make(compat.Tally),
		ExonTally:         make(compat.Tally),
		PrimaryExonTally:  make(compat.Tally),
		Counts:            make(map[string]int),
		ExonCounts:        make(map[string]int),
		PrimaryExonCounts: make(map[string]int),
		VarCounts:         make(map[string]int),
	}
	p, err := newLocusPass(locus, reads, opts, res)
	if err != nil {
		res.Err = err
		return res
	}
	for _, rec := range reads {
		if err := p.processRecord(rec); err != nil {
			res.Err = fmt.Errorf("locus %s, read %s: %v", locus.Name, rec.Name, err)
			return res
		}
	}
	p.commitFragment()
	res.Catalog = p.dec.Catalog
	log.Debug.Printf("locus %s: %d reads, %d fragments, %d rejected, %d classes",
		locus.Name, res.Reads, res.Pairs, res.Rejected, len(res.Tally))
	return res
}
