// Package decode turns one aligned read's positional edit script into a
// left-to-right comparison list anchored to catalog variant ids, and corrects
// likely sequencing errors against a consensus pileup.
//
// The decoder consumes sam.Records whose aligner annotated mismatches and
// indels with MD and Zs aux tags. Ops it cannot resolve against the
// annotation stream or the catalog are tagged Unknown; after decoding,
// unambiguous Unknown ops are promoted to freshly minted novel variants.
package decode

import (
	"fmt"
	"strings"
)

// Unknown tags an op with no supporting catalog entry that was not
// confidently novel (for example, an ambiguous read base).
const Unknown = "unknown"

// OpKind classifies one comparison op.
type OpKind byte

const (
	// Match is a run of read bases equal to the reference.
	Match OpKind = iota
	// Mismatch is a single substituted base.
	Mismatch
	// Insertion is a run of read bases absent from the reference.
	Insertion
	// Deletion is a run of reference bases absent from the read.
	Deletion
)

func (k OpKind) String() string {
	switch k {
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	case Insertion:
		return "insertion"
	case Deletion:
		return "deletion"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Op is one entry of a comparison list. Pos is the zero-based reference
// position of the op's left edge. VarID is empty for Match; otherwise it is a
// catalog id, a minted novel id, or Unknown.
type Op struct {
	Kind  OpKind
	Pos   int
	Len   int
	VarID string
}

// RefLen returns the number of reference bases the op covers. Insertions
// cover none.
func (o Op) RefLen() int {
	if o.Kind == Insertion {
		return 0
	}
	return o.Len
}

// ReadLen returns the number of read bases the op consumes. Deletions consume
// none.
func (o Op) ReadLen() int {
	if o.Kind == Deletion {
		return 0
	}
	return o.Len
}

func (o Op) String() string {
	if o.Kind == Match {
		return fmt.Sprintf("%s(%d,%d)", o.Kind, o.Pos, o.Len)
	}
	return fmt.Sprintf("%s(%d,%d,%s)", o.Kind, o.Pos, o.Len, o.VarID)
}

// Ops is an ordered comparison list.
type Ops []Op

func (ops Ops) String() string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = o.String()
	}
	return strings.Join(parts, " ")
}

// RightEdge returns one past the rightmost reference position the list
// covers.
func (ops Ops) RightEdge() int {
	if len(ops) == 0 {
		return 0
	}
	last := ops[len(ops)-1]
	return last.Pos + last.RefLen()
}

// coalesceMatches merges runs of adjacent Match ops in place.
func coalesceMatches(ops Ops) Ops {
	out := ops[:0]
	for _, o := range ops {
		if o.Kind == Match && len(out) > 0 && out[len(out)-1].Kind == Match {
			out[len(out)-1].Len += o.Len
			continue
		}
		out = append(out, o)
	}
	return out
}
