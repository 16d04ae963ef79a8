// Package auction implements the reducer state machine (spec §4.F): given
// the three-layer DPF pipeline's preprocessed keys and each bidder's
// opened client-encoding value, it finds the second-highest bid (the
// Vickrey price) and the identity of the winner, using only local linear
// arithmetic and the handful of oblivious-shift openings the
// SUM/SCAN/LOCATE/IDENTIFY steps need — no bid value is ever opened.
//
// Phases follow the teacher's `protocols/lss` round convention of one file
// per protocol role (`sum.go`, `column.go`, `scan.go`, `locate.go`,
// `identify.go`) rather than one file per numbered round, since SCAN's
// iteration count is data-dependent (spec §4.F), unlike the teacher's
// fixed-round signing protocol.
package auction

import (
	"github.com/obsidian-mpc/obsidian/pkg/field"
	"github.com/obsidian-mpc/obsidian/pkg/mac"
)

// Sum drives SUM (spec §4.F step 1): the client-encoding phase of the
// three-layer DPF pipeline. v1/v1Mac are this party's L1 evaluation share
// and its alpha-MAC companion (both length D, hot at L1's secret offset
// r); xs holds each bidder's already-opened client-encoding value
// x_c = (r − bid_c) mod D.
//
// For each bidder, the L1 share is cyclically shifted by x_c: since the
// two parties' combined L1 vector is hot at r, shifting by r − bid_c moves
// the hot coordinate to bid_c, giving a one-hot share of "bidder c bid
// here." Sum then folds a running prefix sum of that shifted share — and,
// in parallel, of its alpha-scaled MAC companion — across ascending
// indices, accumulating over every bidder. The result S is additive
// shares of the cumulative histogram: S[i] is the number of bidders whose
// bid is ≤ i, monotone non-decreasing with S[D-1] = N. No network
// round-trip is needed here — xs are already public, so every step is a
// local linear combination.
func Sum(v1, v1Mac []field.Elem, xs []field.Elem) []mac.Share {
	d := len(v1)
	s := make([]mac.Share, d)
	for i := range s {
		s[i] = mac.Share{}
	}
	for _, x := range xs {
		shift := int(x.SmallSignedMod(uint64(d)))
		shiftedV := field.RotateLeft(v1, shift)
		shiftedM := field.RotateLeft(v1Mac, shift)

		cumV, cumM := field.Zero(), field.Zero()
		for i := 0; i < d; i++ {
			cumV = cumV.Add(shiftedV[i])
			cumM = cumM.Add(shiftedM[i])
			s[i] = mac.Share{V: s[i].V.Add(cumV), T: s[i].T.Add(cumM)}
		}
	}
	return s
}

// Buckets turns Sum's cumulative histogram S back into a per-level bucket
// count (the number of bidders exactly at each level) via a purely local
// inverse prefix-sum: bucket[i] = S[i] − S[i-1]. Locate's top-down fold
// through the L3 scanner consumes one level at a time, so it needs the
// bucket form rather than the cumulative one.
func Buckets(s []mac.Share) []mac.Share {
	d := len(s)
	b := make([]mac.Share, d)
	prevV, prevM := field.Zero(), field.Zero()
	for i := 0; i < d; i++ {
		b[i] = mac.Share{V: s[i].V.Sub(prevV), T: s[i].T.Sub(prevM)}
		prevV, prevM = s[i].V, s[i].T
	}
	return b
}
