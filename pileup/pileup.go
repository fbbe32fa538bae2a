// Package pileup builds the per-position consensus summary that the decoder's
// error corrector uses as an oracle. One Column per locus-relative reference
// position records the observed base counts, the deletion count, and the
// consensus support set derived from them.
//
// A Pileup is built once per locus from the full filtered read stream and is
// read-only afterwards.
package pileup

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// Del is the symbol used for deletion observations in Column.Counts.
const Del = 'D'

// consensusFrac is the minimum fraction of a column's observations a base
// needs to join the consensus support set.
const consensusFrac = 0.2

// Column summarizes all observations at one reference position.
type Column struct {
	// Consensus is the support set: the bases whose counts clear the
	// consensus threshold. Empty when the column has no observations.
	Consensus []byte
	// Counts maps observed symbol (A/C/G/T/N or Del) to its read count.
	Counts map[byte]int
}

// Supports reports whether base is in the column's consensus support set.
func (c *Column) Supports(base byte) bool {
	for _, b := range c.Consensus {
		if b == base {
			return true
		}
	}
	return false
}

// Pileup indexes Columns by locus-relative reference position.
type Pileup []Column

// Column returns the column at pos, or an error if pos is outside the pileup.
// A missing column is an upstream contract violation, not a quality
// condition.
func (p Pileup) Column(pos int) (*Column, error) {
	if pos < 0 || pos >= len(p) {
		return nil, fmt.Errorf("pileup: position %d outside [0, %d)", pos, len(p))
	}
	return &p[pos], nil
}

// Builder accumulates read observations into a Pileup.
type Builder struct {
	cols []Column
}

// NewBuilder returns a builder for a reference of refLen bases.
func NewBuilder(refLen int) *Builder {
	return &Builder{cols: make([]Column, refLen)}
}

// Add records one aligned read. pos must already be locus-relative. Only
// CIGAR match runs contribute base observations; deletions contribute Del
// observations over their span.
func (b *Builder) Add(rec *sam.Record, pos int) {
	seq := rec.Seq.Expand()
	readPos := 0
	refPos := pos
	for _, co := range rec.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := 0; i < n; i++ {
				b.count(refPos+i, seq[readPos+i])
			}
			refPos += n
			readPos += n
		case sam.CigarDeletion:
			for i := 0; i < n; i++ {
				b.count(refPos+i, Del)
			}
			refPos += n
		case sam.CigarSkipped:
			refPos += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			readPos += n
		case sam.CigarHardClipped, sam.CigarPadded:
			// no bases on either side
		}
	}
}

func (b *Builder) count(pos int, symbol byte) {
	if pos < 0 || pos >= len(b.cols) {
		return
	}
	col := &b.cols[pos]
	if col.Counts == nil {
		col.Counts = make(map[byte]int, 4)
	}
	col.Counts[symbol]++
}

// Pileup freezes the builder into a Pileup, computing each column's consensus
// support set. Only A/C/G/T can join the consensus; Del and N observations
// count toward the column total but never support a base call.
func (b *Builder) Pileup() Pileup {
	for i := range b.cols {
		col := &b.cols[i]
		total := 0
		for _, n := range col.Counts {
			total += n
		}
		if total == 0 {
			continue
		}
		min := int(float64(total)*consensusFrac + 0.5)
		if min < 1 {
			min = 1
		}
		for _, base := range []byte{'A', 'C', 'G', 'T'} {
			if col.Counts[base] >= min {
				col.Consensus = append(col.Consensus, base)
			}
		}
	}
	return Pileup(b.cols)
}
