package catalog

// Linkage maps a variant id to the names of the alleles carrying that
// variant. It is supplied by the database build and used verbatim by the
// compatibility engine.
type Linkage map[string][]string

// AlleleVariants inverts the linkage: allele name -> set of variant ids,
// restricted to ids present in the catalog's ordered list.
func (c *Catalog) AlleleVariants(links Linkage) map[string][]string {
	out := make(map[string][]string)
	for _, pi := range c.order {
		alleles, ok := links[pi.id]
		if !ok {
			continue
		}
		for _, a := range alleles {
			out[a] = append(out[a], pi.id)
		}
	}
	return out
}
