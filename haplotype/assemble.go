package haplotype

import (
	"fmt"

	"github.com/grailbio/genotype/catalog"
	"github.com/grailbio/genotype/decode"
)

// Flank is one alternative placement of a read's ambiguous end: an anchor
// position plus the variant ids between the anchor and the confidently-called
// middle region. For a left flank the anchor bounds the ids from the left;
// for a right flank, from the right.
type Flank struct {
	Anchor int
	IDs    []string
}

// Boundary is a resolver's split of a comparison list: the inclusive op index
// range of the trusted middle region and the alternative flank placements on
// each side.
type Boundary struct {
	LeftIndex  int
	RightIndex int
	LeftAlts   []Flank
	RightAlts  []Flank
}

// Resolver places the boundary between a read's trusted middle region and its
// ambiguous flanks. Near read ends, adjacent deletions and mismatches can
// make the true boundary unknowable from one read alone; the resolver returns
// every haplotype-equivalent alternative.
//
// The production resolver is an external collaborator; WholeReadResolver
// treats the entire read as trusted.
type Resolver interface {
	Resolve(ops decode.Ops, cat *catalog.Catalog) (Boundary, error)
}

// WholeReadResolver anchors signatures at the read's own edges, with no
// alternatives. Suitable for loci without ambiguous flanking structure and
// for tests.
type WholeReadResolver struct{}

// Resolve implements Resolver.
func (WholeReadResolver) Resolve(ops decode.Ops, cat *catalog.Catalog) (Boundary, error) {
	if len(ops) == 0 {
		return Boundary{}, fmt.Errorf("haplotype: resolve: empty comparison list")
	}
	last := ops[len(ops)-1]
	return Boundary{
		LeftIndex:  0,
		RightIndex: len(ops) - 1,
		LeftAlts:   []Flank{{Anchor: ops[0].Pos}},
		RightAlts:  []Flank{{Anchor: last.Pos + last.RefLen() - 1}},
	}, nil
}

// Normalize folds mismatches caused by unknown or novel variants back into
// their surrounding match runs. Those mismatches carry no catalog linkage, so
// keeping them would only fragment the boundary analysis; unknown or novel
// indels stay, since they change the reference span.
func Normalize(ops decode.Ops) decode.Ops {
	out := make(decode.Ops, 0, len(ops))
	for _, op := range ops {
		asMatch := op.Kind == decode.Match ||
			(op.Kind == decode.Mismatch && (op.VarID == decode.Unknown || catalog.IsNovel(op.VarID)))
		if asMatch {
			if n := len(out); n > 0 && out[n-1].Kind == decode.Match {
				out[n-1].Len += op.Len
				continue
			}
			out = append(out, decode.Op{Kind: decode.Match, Pos: op.Pos, Len: op.Len})
			continue
		}
		out = append(out, op)
	}
	return out
}

// Assemble turns one read's corrected comparison list into its haplotype
// signatures: the resolver splits off the ambiguous flanks, and every
// combination of one left alternative, the fixed middle, and one right
// alternative yields one signature.
//
// A resolver returning an empty alternative set violates its contract and is
// reported as an error (the locus cannot be tallied without it).
func Assemble(ops decode.Ops, cat *catalog.Catalog, r Resolver) ([]Signature, error) {
	norm := Normalize(ops)
	b, err := r.Resolve(norm, cat)
	if err != nil {
		return nil, err
	}
	if len(b.LeftAlts) == 0 || len(b.RightAlts) == 0 {
		return nil, fmt.Errorf("haplotype: resolver returned no flank alternatives")
	}
	var mid []string
	for _, op := range norm[b.LeftIndex : b.RightIndex+1] {
		switch op.Kind {
		case decode.Mismatch, decode.Deletion, decode.Insertion:
			mid = append(mid, op.VarID)
		}
	}
	sigs := make([]Signature, 0, len(b.LeftAlts)*len(b.RightAlts))
	for _, la := range b.LeftAlts {
		for _, ra := range b.RightAlts {
			ids := make([]string, 0, len(la.IDs)+len(mid)+len(ra.IDs))
			ids = append(ids, la.IDs...)
			ids = append(ids, mid...)
			ids = append(ids, ra.IDs...)
			sigs = append(sigs, Signature{Left: la.Anchor, Right: ra.Anchor, IDs: ids})
		}
	}
	return sigs, nil
}
