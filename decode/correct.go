package decode

import (
	"fmt"

	"github.com/grailbio/genotype/catalog"
)

// Correct rewrites read bases that the pileup consensus does not support and
// updates res accordingly.
//
// For each position inside a match or mismatch op whose consensus support set
// is non-empty and excludes the read base, the base is rewritten to the
// single supported base, or to N when the set has several members. A rewrite
// inside a match run splits the run around a new mismatch op; a rewrite
// inside a mismatch re-resolves its tag against the catalog by the corrected
// base. Adjacent match runs are coalesced afterwards.
//
// res.Corrections counts the rewrites the caller gates on. A position with no
// pileup column is an upstream contract violation and returns an error.
func (d *Decoder) Correct(res *Result) error {
	ops := res.Ops
	seq := res.Seq
	readPos := 0
	for i := 0; i < len(ops); i++ {
		op := ops[i]
		if op.Pos >= len(d.Ref) {
			break
		}
		switch op.Kind {
		case Match:
			var middle Ops
			lastJ := 0
			for j := 0; j < op.Len; j++ {
				if readPos+j >= len(seq) || op.Pos+j >= len(d.Ref) {
					continue
				}
				col, err := d.Pile.Column(op.Pos + j)
				if err != nil {
					return err
				}
				readBase := seq[readPos+j]
				if len(col.Consensus) == 0 || col.Supports(readBase) {
					continue
				}
				corrected := byte('N')
				if len(col.Consensus) == 1 {
					corrected = col.Consensus[0]
				}
				seq[readPos+j] = corrected
				res.Corrections++
				newOp := Op{Kind: Mismatch, Pos: op.Pos + j, Len: 1, VarID: Unknown}
				if corrected != 'N' {
					if id, ok := d.Catalog.Find(catalog.Single, op.Pos+j, string(corrected)); ok {
						newOp.VarID = id
					}
				}
				if j > lastJ {
					middle = append(middle, Op{Kind: Match, Pos: op.Pos + lastJ, Len: j - lastJ})
				}
				middle = append(middle, newOp)
				lastJ = j + 1
			}
			if len(middle) > 0 {
				if lastJ < op.Len {
					middle = append(middle, Op{Kind: Match, Pos: op.Pos + lastJ, Len: op.Len - lastJ})
				}
				tail := make(Ops, len(ops[i+1:]))
				copy(tail, ops[i+1:])
				ops = append(append(ops[:i], middle...), tail...)
				i += len(middle) - 1
			}

		case Mismatch:
			col, err := d.Pile.Column(op.Pos)
			if err != nil {
				return err
			}
			readBase := seq[readPos]
			if len(col.Consensus) > 0 && !col.Supports(readBase) {
				corrected := byte('N')
				if len(col.Consensus) == 1 {
					corrected = col.Consensus[0]
				}
				seq[readPos] = corrected
				switch {
				case corrected == 'N':
					ops[i].VarID = Unknown
				case corrected == d.Ref[op.Pos]:
					ops[i] = Op{Kind: Match, Pos: op.Pos, Len: 1}
					res.Corrections++
				default:
					ops[i].VarID = Unknown
					if id, ok := d.Catalog.Find(catalog.Single, op.Pos, string(corrected)); ok {
						ops[i].VarID = id
					}
				}
			}

		case Insertion, Deletion:
			// Indel payloads are not consensus-corrected.

		default:
			return fmt.Errorf("decode: correct: unexpected op %v", op)
		}
		readPos += op.ReadLen()
	}
	res.Ops = coalesceMatches(ops)
	res.Seq = seq
	return nil
}
