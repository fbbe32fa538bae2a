package decode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/genotype/catalog"
	"github.com/grailbio/genotype/pileup"
	"github.com/grailbio/hts/sam"
)

var (
	mdTag = sam.NewTag("MD")
	zsTag = sam.NewTag("Zs")
	nmTag = sam.NewTag("NM")
	nhTag = sam.NewTag("NH")
)

// Decoder decodes aligned reads of one locus against that locus's working
// catalog. The catalog is mutated as novel variants are promoted, so a
// Decoder is owned by a single sequential locus pass.
type Decoder struct {
	// Catalog is the locus's working (cloned) variant catalog.
	Catalog *catalog.Catalog
	// Ref is the locus reference (backbone) sequence.
	Ref []byte
	// Pile is the locus consensus pileup, used for the deletion sanity check
	// and by Correct.
	Pile pileup.Pileup
	// CheckDeletionRatio enables the anomalous-deletion heuristic: a decoded
	// deletion whose pileup deletion support is under one sixth of the base
	// support marks the read likely misaligned.
	CheckDeletionRatio bool
}

// Result is one decoded read.
type Result struct {
	// Ops is the ordered comparison list. Soft-clipped ends are already
	// trimmed.
	Ops Ops
	// Seq and Qual are the read base/quality strings with soft clips
	// trimmed. Correct rewrites Seq in place.
	Seq, Qual []byte
	// Misaligned is set by the likely-misalignment heuristics (N inside an
	// insertion, anomalous deletion/consensus ratio). The caller rejects
	// such reads.
	Misaligned bool
	// Corrections is the number of bases rewritten by Correct.
	Corrections int
}

// RejectedError reports a per-read quality rejection. Rejected reads are
// dropped from tallies without aborting the run.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return "read rejected: " + e.Reason }

// zsEntry is one element of the aligner's Zs annotation stream: a read-coord
// delta from the previous annotated position, a kind letter (S, I or D), and
// the catalog id the aligner matched there.
type zsEntry struct {
	delta int
	kind  byte
	id    string
}

func parseZs(s string) []zsEntry {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	entries := make([]zsEntry, len(parts))
	for i, p := range parts {
		fields := strings.Split(p, "|")
		if len(fields) != 3 || len(fields[1]) != 1 {
			log.Panicf("decode: malformed Zs entry %q in %q", p, s)
		}
		delta, err := strconv.Atoi(fields[0])
		if err != nil {
			log.Panicf("decode: malformed Zs offset %q in %q", fields[0], s)
		}
		entries[i] = zsEntry{delta: delta, kind: fields[1][0], id: fields[2]}
	}
	return entries
}

// AuxString returns the string value of an aux tag, or "".
func AuxString(rec *sam.Record, tag sam.Tag) string {
	aux := rec.AuxFields.Get(tag)
	if aux == nil {
		return ""
	}
	if s, ok := aux.Value().(string); ok {
		return s
	}
	return ""
}

// AuxInt returns the integer value of an aux tag.
func AuxInt(rec *sam.Record, tag sam.Tag) (int, bool) {
	aux := rec.AuxFields.Get(tag)
	if aux == nil {
		return 0, false
	}
	switch v := aux.Value().(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case uint8:
		return int(v), true
	case int16:
		return int(v), true
	case uint16:
		return int(v), true
	case int32:
		return int(v), true
	case uint32:
		return int(v), true
	}
	return 0, false
}

// EditDistance returns the read's NM aux value.
func EditDistance(rec *sam.Record) (int, bool) { return AuxInt(rec, nmTag) }

// NumHits returns the read's NH aux value (number of reported alignments).
func NumHits(rec *sam.Record) (int, bool) { return AuxInt(rec, nhTag) }

// Decode walks rec's CIGAR left to right, splitting match runs on the MD
// annotation and resolving each mismatch/insertion/deletion against the Zs
// annotation stream first and the catalog second. basePos rebases rec.Pos
// onto the locus reference.
//
// The returned ops and trimmed seq/qual are inputs to Correct and
// PromoteNovel. A read decoding past the reference's right edge returns a
// RejectedError.
func (d *Decoder) Decode(rec *sam.Record, basePos int) (*Result, error) {
	pos := rec.Pos - basePos
	if pos < 0 {
		return nil, &RejectedError{Reason: "alignment starts before locus"}
	}
	seq := rec.Seq.Expand()
	qual := make([]byte, len(rec.Qual))
	copy(qual, rec.Qual)

	md := AuxString(rec, mdTag)
	if md == "" {
		log.Panicf("decode: read %s has no MD annotation", rec.Name)
	}
	zs := parseZs(AuxString(rec, zsTag))
	zsIdx, zsPos := 0, 0
	if len(zs) > 0 {
		zsPos = zs[0].delta
	}
	// advance moves past the consumed Zs entry and adds the next delta.
	zsAdvance := func() {
		zsIdx++
		if zsIdx < len(zs) {
			zsPos += zs[zsIdx].delta
		}
	}

	mdPos := 0 // cursor into md
	mdLen := 0 // match length carried across MD fields
	mdNum := func() int {
		n := 0
		for mdPos < len(md) && md[mdPos] >= '0' && md[mdPos] <= '9' {
			n = n*10 + int(md[mdPos]-'0')
			mdPos++
		}
		return n
	}

	var ops Ops
	readPos := 0
	refPos := pos
	misaligned := false
	var clipLeft, clipRight int
	res := &Result{}

	for i, co := range rec.Cigar {
		length := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			first := true
			mdLenUsed := 0
			for {
				if !first || mdLen == 0 {
					if mdPos < len(md) && md[mdPos] >= '0' && md[mdPos] <= '9' {
						mdLen += mdNum()
					}
				}
				// The rest of this run matches (an insertion or the run's
				// end follows in MD).
				if mdLen >= length {
					mdLen -= length
					if length > mdLenUsed {
						ops = append(ops, Op{Kind: Match, Pos: refPos + mdLenUsed, Len: length - mdLenUsed})
					}
					break
				}
				first = false
				if readPos+mdLen >= len(seq) || mdPos >= len(md) {
					log.Panicf("decode: read %s: MD %q overruns CIGAR", rec.Name, md)
				}
				readBase := seq[readPos+mdLen]
				mdRefBase := md[mdPos]
				mdPos++
				if mdRefBase != 'A' && mdRefBase != 'C' && mdRefBase != 'G' && mdRefBase != 'T' {
					log.Panicf("decode: read %s: unexpected MD byte %q", rec.Name, string(mdRefBase))
				}
				if mdLen > mdLenUsed {
					ops = append(ops, Op{Kind: Match, Pos: refPos + mdLenUsed, Len: mdLen - mdLenUsed})
				}
				varID := Unknown
				if zsIdx < len(zs) && readPos+mdLen == zsPos {
					if zs[zsIdx].kind != 'S' {
						log.Panicf("decode: read %s: Zs %c at mismatch position", rec.Name, zs[zsIdx].kind)
					}
					varID = zs[zsIdx].id
					zsPos++
					zsAdvance()
				} else if id, ok := d.Catalog.Find(catalog.Single, refPos+mdLen, string(readBase)); ok {
					varID = id
				}
				ops = append(ops, Op{Kind: Mismatch, Pos: refPos + mdLen, Len: 1, VarID: varID})
				mdLenUsed = mdLen + 1
				mdLen++
				if mdLen == length {
					mdLen = 0
					break
				}
			}
			refPos += length
			readPos += length

		case sam.CigarInsertion:
			varID := Unknown
			if zsIdx < len(zs) && readPos == zsPos && zs[zsIdx].kind == 'I' {
				varID = zs[zsIdx].id
				zsAdvance()
			} else if id, ok := d.findInsertion(refPos, length); ok {
				varID = id
			}
			ops = append(ops, Op{Kind: Insertion, Pos: refPos, Len: length, VarID: varID})
			if containsN(seq[readPos : readPos+length]) {
				misaligned = true
			}
			readPos += length

		case sam.CigarDeletion:
			// MD encodes a deletion as ^<deleted bases>, optionally preceded
			// by a zero-length match.
			if mdPos < len(md) && md[mdPos] == '0' {
				mdPos++
			}
			if mdPos >= len(md) || md[mdPos] != '^' {
				log.Panicf("decode: read %s: MD %q missing deletion at offset %d", rec.Name, md, mdPos)
			}
			mdPos++
			for mdPos < len(md) && (md[mdPos] == 'A' || md[mdPos] == 'C' || md[mdPos] == 'G' || md[mdPos] == 'T') {
				mdPos++
			}
			varID := Unknown
			if zsIdx < len(zs) && readPos == zsPos && zs[zsIdx].kind == 'D' {
				varID = zs[zsIdx].id
				zsAdvance()
			} else if id, ok := d.Catalog.Find(catalog.Deletion, refPos, strconv.Itoa(length)); ok {
				varID = id
			}
			ops = append(ops, Op{Kind: Deletion, Pos: refPos, Len: length, VarID: varID})
			if d.CheckDeletionRatio && refPos < len(d.Pile) {
				var delCount, baseCount int
				for symbol, n := range d.Pile[refPos].Counts {
					if symbol == pileup.Del {
						delCount += n
					} else {
						baseCount += n
					}
				}
				if delCount*6 < baseCount {
					misaligned = true
				}
			}
			refPos += length

		case sam.CigarSoftClipped:
			if i == 0 {
				clipLeft = length
				zsPos += length
			} else {
				if i != len(rec.Cigar)-1 {
					log.Panicf("decode: read %s: soft clip inside CIGAR", rec.Name)
				}
				clipRight = length
			}
			readPos += length

		case sam.CigarHardClipped:
			// no bases to account for

		default:
			return nil, fmt.Errorf("decode: read %s: unsupported CIGAR op %v", rec.Name, co.Type())
		}
	}

	if clipLeft > 0 {
		seq = seq[clipLeft:]
		qual = qual[clipLeft:]
	}
	if clipRight > 0 {
		seq = seq[:len(seq)-clipRight]
		qual = qual[:len(qual)-clipRight]
	}
	if refPos > len(d.Ref) {
		return nil, &RejectedError{Reason: "read extends past reference end"}
	}

	res.Ops = ops
	res.Seq = seq
	res.Qual = qual
	res.Misaligned = misaligned
	return res, nil
}

// findInsertion looks for a catalog insertion at pos with the given inserted
// length. Insertions are compared by length alone: a same-position insertion
// of a different length is a distinct event.
func (d *Decoder) findInsertion(pos, length int) (string, bool) {
	for i := d.Catalog.LowerBound(pos); i < d.Catalog.Len(); i++ {
		p, id := d.Catalog.At(i)
		if p > pos {
			break
		}
		v, _ := d.Catalog.Get(id)
		if v.Kind == catalog.Insertion && len(v.Data) == length {
			return id, true
		}
	}
	return "", false
}

// PromoteNovel mints novel variants for every op still tagged Unknown whose
// read payload is unambiguous: a mismatch whose base is N is never promoted,
// nor is an insertion containing N. Deletions promote by length. Observation
// counts for all tagged ops (known and novel) accumulate into varCount.
func (d *Decoder) PromoteNovel(res *Result, varCount map[string]int) {
	readPos := 0
	for i := range res.Ops {
		op := &res.Ops[i]
		if op.Kind != Match {
			if op.VarID == Unknown {
				var kind catalog.Kind
				var data string
				promote := true
				switch op.Kind {
				case Mismatch:
					kind = catalog.Single
					data = string(res.Seq[readPos])
					if data == "N" {
						promote = false
					}
				case Deletion:
					kind = catalog.Deletion
					data = strconv.Itoa(op.Len)
				case Insertion:
					kind = catalog.Insertion
					data = string(res.Seq[readPos : readPos+op.Len])
					if containsN(res.Seq[readPos : readPos+op.Len]) {
						promote = false
					}
				}
				if promote {
					op.VarID = d.Catalog.InsertNovel(kind, op.Pos, data)
				}
			}
			if op.VarID != Unknown && varCount != nil {
				varCount[op.VarID]++
			}
		}
		readPos += op.ReadLen()
	}
}

func containsN(seq []byte) bool {
	for _, b := range seq {
		if b == 'N' {
			return true
		}
	}
	return false
}
