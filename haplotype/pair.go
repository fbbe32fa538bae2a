package haplotype

// ChoosePairs reconciles the two mates' candidate signature sets on
// multi-copy tandem-repeat loci. Several biologically valid local alignments
// can exist per mate there; only the pairings whose inter-mate gap is closest
// to the expected insert distance should count as evidence.
//
// When both sides are non-empty and at least one has two or more candidates,
// only the signatures appearing in some closest-gap pair survive; ties keep
// every tied pair. Otherwise both sets pass through unchanged.
func ChoosePairs(left, right Set, expectedDist int) (Set, Set) {
	if len(left) == 0 || len(right) == 0 || (len(left) < 2 && len(right) < 2) {
		return left, right
	}
	bestDiff := int(^uint(0) >> 1)
	type pair struct{ l, r Signature }
	var picked []pair
	for _, l := range left {
		for _, r := range right {
			var dist int
			if l.Right < r.Right {
				dist = r.Left - l.Right - 1
			} else {
				dist = l.Left - r.Right - 1
			}
			diff := expectedDist - dist
			if diff < 0 {
				diff = -diff
			}
			if diff < bestDiff {
				bestDiff = diff
				picked = picked[:0]
			}
			if diff == bestDiff {
				picked = append(picked, pair{l, r})
			}
		}
	}
	newLeft, newRight := make(Set, len(picked)), make(Set, len(picked))
	for _, p := range picked {
		newLeft.Add(p.l)
		newRight.Add(p.r)
	}
	return newLeft, newRight
}
