package auction

import (
	"fmt"

	"github.com/obsidian-mpc/obsidian/pkg/field"
	"github.com/obsidian-mpc/obsidian/pkg/mac"
)

// locateViaColumns independently re-derives the second-price level from
// SUM's cumulative histogram S using the L2 column layer (spec §4.F steps
// 2-3's column-sum reduction), as a cross-check against the L3-based
// Scanner that Locate also runs: the two layers feed from the same S but
// otherwise share no key material, so tampering with either one's key or
// sketch surfaces as a disagreement here rather than silently vanishing.
//
// For every price level i, it opens x2_i = r2 − S[i] (one batched round;
// r2 is L2's secret offset), then cyclically shifts the L2 evaluation
// share (and its MAC companion) by the opened amount: since the combined
// L2 vector is hot at r2, this moves the hot coordinate to S[i] itself,
// giving a one-hot share C_i over L2's domain (at least N+1 slots, rounded
// up to a power of two), hot at a position in [0, N] — the count at level i,
// encoded as a position rather than revealed as a value. A second batched
// round opens, for every i, the tail sum Σ_{j=threshold..N} C_i[j]; this
// equals 1 iff S[i] ≥ threshold. The smallest i with a nonzero tail sum is
// the price level at which the running count first reaches the
// threshold.
//
// This fixes threshold at N−1 rather than running spec's full decrementing
// search (scanning k from N−1 down to 1 for a unique crossing) — see
// DESIGN.md for why: N−1 is exact whenever the top bid is unique, and
// degenerates to the same tie level the L3 scanner independently finds
// when bids tie at the top, so the cross-check still holds in both cases.
// With fewer than two bidders there is no threshold to cross, so the call
// is a no-op.
func locateViaColumns(engine *mac.Engine, peer mac.Peer, s []mac.Share, offset2 mac.Share, l2Vector, l2VMac []field.Elem, numBidders int) (int, error) {
	if numBidders < 2 {
		return -1, nil
	}

	d := len(s)
	n1 := len(l2Vector)
	if n1 < numBidders+1 || len(l2VMac) != n1 {
		panic("auction: locateViaColumns: L2 vector length must be at least numBidders+1")
	}

	x2Shares := make([]mac.Share, d)
	for i := 0; i < d; i++ {
		x2Shares[i] = mac.Share{V: offset2.V.Sub(s[i].V), T: offset2.T.Sub(s[i].T)}
	}
	x2, err := engine.OpenVector(peer, x2Shares)
	if err != nil {
		return -1, fmt.Errorf("auction: locateViaColumns: opening x2: %w", err)
	}

	threshold := numBidders - 1
	tails := make([]mac.Share, d)
	for i := 0; i < d; i++ {
		shift := int(x2[i].SmallSignedMod(uint64(n1)))
		cV := field.RotateLeft(l2Vector, shift)
		cM := field.RotateLeft(l2VMac, shift)

		tailV, tailM := field.Zero(), field.Zero()
		for j := threshold; j < n1; j++ {
			tailV = tailV.Add(cV[j])
			tailM = tailM.Add(cM[j])
		}
		tails[i] = mac.Share{V: tailV, T: tailM}
	}

	opened, err := engine.OpenVector(peer, tails)
	if err != nil {
		return -1, fmt.Errorf("auction: locateViaColumns: opening tail sums: %w", err)
	}
	for i, v := range opened {
		if !v.IsZero() {
			return i, nil
		}
	}
	return -1, nil
}
