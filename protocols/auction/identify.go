package auction

import (
	"fmt"

	"github.com/obsidian-mpc/obsidian/pkg/field"
	"github.com/obsidian-mpc/obsidian/pkg/mac"
)

// Identify drives IDENTIFY (spec §4.F step 4). v1/v1Mac are the same L1
// evaluation share and MAC companion Sum consumed; xs are the bidders'
// opened client-encoding values; secondPriceLevel is Locate's output.
//
// For each bidder c, Identify independently re-shifts v1 by x_c (the same
// construction Sum used, recomputed per bidder rather than reused, since
// Sum only kept the combined running sum) and opens two quantities in one
// batch: the running total Σ_{i=0..b*} shiftedL1_c[i], and the single
// coordinate shiftedL1_c[b*]. Since shiftedL1_c is hot at exactly c's own
// bid, the running total is 1 if bid_c ≤ b* and 0 if bid_c > b* — the
// bidder whose total opens to zero is the unique winner, per spec §4.F's
// literal construction.
//
// That construction alone is ambiguous when b* sits at the very top of
// the domain and the top bid is tied there: every bidder's running total
// covers the whole domain and opens to 1, so none is "strictly above" b*
// to find. Spec's own tie policy allows reporting any one of the tied
// bidders in that case ("if multiple bidders share b*, any one may be
// reported"), so Identify falls back to the coordinate check: the first
// bidder hot exactly at b* is reported instead.
func Identify(engine *mac.Engine, peer mac.Peer, v1, v1Mac []field.Elem, xs []field.Elem, secondPriceLevel int) (int, error) {
	if len(xs) == 1 {
		return 0, nil
	}
	if secondPriceLevel < 0 {
		return -1, fmt.Errorf("auction: Identify: no second-price level for %d bidders", len(xs))
	}

	d := len(v1)
	n := len(xs)
	shares := make([]mac.Share, 2*n)
	for c, x := range xs {
		shift := int(x.SmallSignedMod(uint64(d)))
		shiftedV := field.RotateLeft(v1, shift)
		shiftedM := field.RotateLeft(v1Mac, shift)

		sumV, sumM := field.Zero(), field.Zero()
		for i := 0; i <= secondPriceLevel; i++ {
			sumV = sumV.Add(shiftedV[i])
			sumM = sumM.Add(shiftedM[i])
		}
		shares[c] = mac.Share{V: sumV, T: sumM}
		shares[n+c] = mac.Share{V: shiftedV[secondPriceLevel], T: shiftedM[secondPriceLevel]}
	}

	opened, err := engine.OpenVector(peer, shares)
	if err != nil {
		return -1, fmt.Errorf("auction: Identify: %w", err)
	}
	above, at := opened[:n], opened[n:]

	for i, v := range above {
		if v.IsZero() {
			return i, nil
		}
	}
	for i, v := range at {
		if !v.IsZero() {
			return i, nil
		}
	}
	return -1, fmt.Errorf("auction: Identify: no bidder found relative to second-price level %d", secondPriceLevel)
}
