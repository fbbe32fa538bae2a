// Package haplotype reconstructs per-read haplotype signatures from decoded
// comparison lists: the confidently-called middle region plus every
// alternative placement of the ambiguous flanks, paired-end reconciliation
// for tandem-repeat loci, and projection onto exon intervals.
package haplotype

import (
	"fmt"
	"strconv"
	"strings"
)

// Signature is one read's (or fragment's) called evidence: the variant ids
// observed between two anchoring reference positions. The wire form is the
// hyphen-joined list "left-id1-...-idN-right"; internally the anchors stay
// integers and only the id list is ordered.
type Signature struct {
	Left  int
	Right int
	IDs   []string
}

// String serializes to the hyphen-joined wire form used as tally keys.
func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(s.Left))
	for _, id := range s.IDs {
		b.WriteByte('-')
		b.WriteString(id)
	}
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(s.Right))
	return b.String()
}

// Parse decodes the hyphen-joined wire form.
func Parse(s string) (Signature, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return Signature{}, fmt.Errorf("haplotype: signature %q needs two anchors", s)
	}
	left, err := strconv.Atoi(parts[0])
	if err != nil {
		return Signature{}, fmt.Errorf("haplotype: bad left anchor in %q", s)
	}
	right, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return Signature{}, fmt.Errorf("haplotype: bad right anchor in %q", s)
	}
	sig := Signature{Left: left, Right: right}
	if len(parts) > 2 {
		sig.IDs = append(sig.IDs, parts[1:len(parts)-1]...)
	}
	return sig, nil
}

// Set is a deduplicated collection of signatures, keyed by wire form. It
// holds one read end's positive evidence.
type Set map[string]Signature

// Add inserts sig, deduplicating by wire form.
func (set Set) Add(sig Signature) { set[sig.String()] = sig }

// Union returns the signatures of both sets.
func Union(a, b Set) []Signature {
	out := make([]Signature, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for k, sig := range a {
		seen[k] = true
		out = append(out, sig)
	}
	for k, sig := range b {
		if !seen[k] {
			out = append(out, sig)
		}
	}
	return out
}
