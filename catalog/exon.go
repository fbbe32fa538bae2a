package catalog

// Interval is a closed reference range [Left, Right], zero-based, as used for
// exon boundaries.
type Interval struct {
	Left, Right int
}

// InExon reports whether v lies entirely inside one of the exon intervals.
// A deletion must fit with its full [Pos, Right()] span.
func InExon(v Variant, exons []Interval) bool {
	right := v.Right()
	for _, e := range exons {
		if v.Pos >= e.Left && right <= e.Right {
			return true
		}
	}
	return false
}

// ExonicIDs returns the ids of all catalog variants entirely inside an exon
// interval, in catalog order.
func (c *Catalog) ExonicIDs(exons []Interval) []string {
	var ids []string
	for _, pi := range c.order {
		if InExon(c.vars[pi.id], exons) {
			ids = append(ids, pi.id)
		}
	}
	return ids
}
