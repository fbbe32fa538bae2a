package haplotype

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/genotype/catalog"
)

// Project clips sig to each exon interval it overlaps, yielding one
// exon-scoped signature per overlapped exon.
//
// When an anchor lies outside the exon, the clip walks inward from it and
// re-anchors at the exon edge before the first variant contained in the exon.
// A deletion straddling the exon boundary re-anchors at the deletion's far
// edge instead, dropping the deletion from the projected id list.
func Project(sig Signature, exons []catalog.Interval, cat *catalog.Catalog) []Signature {
	var out []Signature
	for _, e := range exons {
		if e.Left > sig.Right || e.Right < sig.Left {
			continue
		}
		htLeft, htRight := sig.Left, sig.Right
		ids := sig.IDs

		if htLeft < e.Left {
			split := false
			for i := 0; i < len(ids); i++ {
				v := mustGet(cat, ids[i])
				if (v.Kind != catalog.Deletion && v.Pos >= e.Left) ||
					(v.Kind == catalog.Deletion && v.Pos-1 >= e.Left) {
					htLeft = e.Left
					ids = ids[i:]
					split = true
					break
				}
				if v.Kind == catalog.Deletion {
					if right := v.Right() + 1; right >= e.Left {
						htLeft = right
						ids = ids[i+1:]
						split = true
						break
					}
				}
			}
			if !split {
				htLeft = e.Left
				ids = nil
			}
		}
		if htLeft < e.Left {
			log.Panicf("haplotype: project: left anchor %d before exon %v", htLeft, e)
		}

		if htRight > e.Right {
			split := false
			for i := len(ids) - 1; i >= 0; i-- {
				v := mustGet(cat, ids[i])
				right := v.Right()
				if (v.Kind != catalog.Deletion && right <= e.Right) ||
					(v.Kind == catalog.Deletion && right+1 <= e.Right) {
					htRight = e.Right
					ids = ids[:i+1]
					split = true
					break
				}
				if v.Kind == catalog.Deletion {
					if left := v.Pos - 1; left <= e.Right {
						htRight = left
						ids = ids[:i]
						split = true
						break
					}
				}
			}
			if !split {
				htRight = e.Right
				ids = nil
			}
		}

		if htLeft > htRight {
			log.Panicf("haplotype: project: anchors inverted (%d > %d) clipping %v to %v",
				htLeft, htRight, sig, e)
		}
		projected := Signature{Left: htLeft, Right: htRight}
		projected.IDs = append(projected.IDs, ids...)
		out = append(out, projected)
	}
	return out
}

func mustGet(cat *catalog.Catalog, id string) catalog.Variant {
	v, ok := cat.Get(id)
	if !ok {
		log.Panicf("haplotype: project: id %s not in catalog", id)
	}
	return v
}
