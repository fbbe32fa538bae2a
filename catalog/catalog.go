// Package catalog maintains the per-locus registry of known and novel
// sequence variants, the variant->allele linkage table, and the
// representative-allele reduction used to collapse alleles that are
// indistinguishable over a restricted set of positions.
//
// A Catalog is cloned once per locus per typing run and then mutated in place
// by the read decoder as novel variants are observed. It is owned by exactly
// one locus-processing pass; nothing here is safe for concurrent mutation.
package catalog

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/log"
)

// Kind distinguishes the three variant classes stored in a catalog.
type Kind byte

const (
	// Single is a single-base substitution.
	Single Kind = iota
	// Insertion is a sequence inserted before a reference position.
	Insertion
	// Deletion removes bases starting at a reference position.
	Deletion
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Insertion:
		return "insertion"
	case Deletion:
		return "deletion"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Variant is one catalog entry. Pos is a zero-based offset on the locus
// reference sequence. Data holds the substituted base (Single), the inserted
// sequence (Insertion), or the decimal deletion length (Deletion).
type Variant struct {
	Kind Kind
	Pos  int
	Data string
}

// Len returns the number of reference bases affected by v (zero for an
// insertion).
func (v Variant) Len() int {
	switch v.Kind {
	case Deletion:
		return mustAtoi(v.Data)
	case Single:
		return 1
	}
	return 0
}

// Right returns the rightmost reference position affected by v. For a
// deletion over [Pos, Pos+len) this is Pos+len-1; for the other kinds it is
// Pos itself.
func (v Variant) Right() int {
	if v.Kind == Deletion {
		return v.Pos + mustAtoi(v.Data) - 1
	}
	return v.Pos
}

// posID is one entry of the position-ordered variant list. Ties on Pos keep
// insertion order, so the list is a stable positional index over the map.
type posID struct {
	pos int
	id  string
}

// Catalog is the ordered, mutable variant registry for one locus. The vars
// map and the ordered list are always mutually consistent: every id in the
// list is a key of vars and vice versa.
type Catalog struct {
	vars      map[string]Variant
	order     []posID
	maxRights map[string]int
	novel     int
}

// New builds a catalog from externally supplied variants. The ids slice
// fixes the initial ordering among variants at equal positions.
func New(ids []string, vars map[string]Variant) *Catalog {
	c := &Catalog{vars: make(map[string]Variant, len(vars))}
	for _, id := range ids {
		v, ok := vars[id]
		if !ok {
			log.Panicf("catalog.New: id %s has no variant", id)
		}
		c.vars[id] = v
		c.order = append(c.order, posID{v.Pos, id})
	}
	sort.SliceStable(c.order, func(i, j int) bool { return c.order[i].pos < c.order[j].pos })
	c.buildMaxRights()
	return c
}

// buildMaxRights caches, for each catalog id, the running maximum of
// Variant.Right over the ordered-list prefix ending at that id. The
// compatibility engine uses it to stop its backward scan early. Novel
// variants inserted later are intentionally absent from the cache; they are
// skipped by that scan anyway.
func (c *Catalog) buildMaxRights() {
	c.maxRights = make(map[string]int, len(c.order))
	cur := -1
	for _, pi := range c.order {
		if r := c.vars[pi.id].Right(); r > cur {
			cur = r
		}
		c.maxRights[pi.id] = cur
	}
}

// Clone returns an independent copy for one locus-processing pass. Novel
// variants accumulate in the clone only.
func (c *Catalog) Clone() *Catalog {
	n := &Catalog{
		vars:      make(map[string]Variant, len(c.vars)),
		order:     make([]posID, len(c.order)),
		maxRights: make(map[string]int, len(c.maxRights)),
		novel:     c.novel,
	}
	for id, v := range c.vars {
		n.vars[id] = v
	}
	copy(n.order, c.order)
	for id, r := range c.maxRights {
		n.maxRights[id] = r
	}
	return n
}

// Len returns the number of variants in the catalog.
func (c *Catalog) Len() int { return len(c.order) }

// Get returns the variant stored under id.
func (c *Catalog) Get(id string) (Variant, bool) {
	v, ok := c.vars[id]
	return v, ok
}

// MaxRight returns the cached running-maximum rightmost-affected-position for
// id. Novel ids have no cache entry.
func (c *Catalog) MaxRight(id string) (int, bool) {
	r, ok := c.maxRights[id]
	return r, ok
}

// lowerBound returns the first index of the ordered list whose position is
// >= pos.
func (c *Catalog) lowerBound(pos int) int {
	return sort.Search(len(c.order), func(i int) bool { return c.order[i].pos >= pos })
}

// LowerBound exposes the positional lower-bound index; the compatibility
// engine walks the ordered list directly through At.
func (c *Catalog) LowerBound(pos int) int { return c.lowerBound(pos) }

// At returns the (position, id) entry at index i of the ordered list.
func (c *Catalog) At(i int) (int, string) { return c.order[i].pos, c.order[i].id }

// LookupAt returns the ids of all variants at exactly pos, in list order.
func (c *Catalog) LookupAt(pos int) []string {
	var ids []string
	for i := c.lowerBound(pos); i < len(c.order) && c.order[i].pos == pos; i++ {
		ids = append(ids, c.order[i].id)
	}
	return ids
}

// Find returns the id of the variant at pos with the given kind and data, if
// one exists.
func (c *Catalog) Find(kind Kind, pos int, data string) (string, bool) {
	for i := c.lowerBound(pos); i < len(c.order) && c.order[i].pos == pos; i++ {
		v := c.vars[c.order[i].id]
		if v.Kind == kind && v.Data == data {
			return c.order[i].id, true
		}
	}
	return "", false
}

// InsertNovel mints a new nv<counter> id for a variant first observed in a
// read and inserts it into the ordered list, preserving position order.
//
// Among variants already at pos, the insertion point follows a precedence
// rule: an insertion never coalesces with a single/deletion (it sorts before
// them), a single sorts before a deletion, and same-kind entries order by
// payload. Asking to insert an exact (kind, pos, data) duplicate is a decoder
// bug and panics.
func (c *Catalog) InsertNovel(kind Kind, pos int, data string) string {
	i := c.lowerBound(pos)
	for i < len(c.order) && c.order[i].pos == pos {
		v := c.vars[c.order[i].id]
		if v.Kind == kind && v.Data == data {
			log.Panicf("catalog.InsertNovel: duplicate of %s (%s at %d, %q)",
				c.order[i].id, kind, pos, data)
		}
		if v.Kind != kind {
			if kind == Insertion {
				break
			}
			if kind == Single && v.Kind == Deletion {
				break
			}
		} else if data < v.Data {
			break
		}
		i++
	}
	id := fmt.Sprintf("nv%d", c.novel)
	c.novel++
	if _, ok := c.vars[id]; ok {
		log.Panicf("catalog.InsertNovel: id %s already present", id)
	}
	c.vars[id] = Variant{Kind: kind, Pos: pos, Data: data}
	c.order = append(c.order, posID{})
	copy(c.order[i+1:], c.order[i:])
	c.order[i] = posID{pos, id}
	return id
}

// IsNovel reports whether id was minted by InsertNovel rather than supplied
// externally.
func IsNovel(id string) bool {
	return len(id) >= 2 && id[0] == 'n' && id[1] == 'v'
}

func mustAtoi(s string) int {
	n := 0
	if s == "" {
		log.Panicf("catalog: empty deletion length")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			log.Panicf("catalog: bad deletion length %q", s)
		}
		n = n*10 + int(s[i]-'0')
	}
	return n
}
