package auction

import (
	"fmt"

	"github.com/obsidian-mpc/obsidian/pkg/field"
	"github.com/obsidian-mpc/obsidian/pkg/mac"
)

// Result is the public output of a completed auction: the Vickrey
// second-price level and the winning bidder's index (spec §1's stated
// outputs — the second-highest bid value and the identity of the highest
// bidder).
type Result struct {
	SecondPriceLevel int
	Winner           int
}

// Locate drives SCAN and LOCATE to completion (spec §4.F steps 2-3). s is
// Sum's cumulative histogram. Locate derives the second-price level two
// independent ways from the same s — folding its per-level buckets
// top-down through a Scanner probing the L3 layer, and via the L2 column
// layer's threshold construction (locateViaColumns) — and requires them to
// agree. L1 feeds both derivations; L2 only the column path; L3 only the
// scanner path. A key or sketch tampered with on either layer disturbs one
// derivation but not the other, so the mismatch this checks for is the
// thing spec §1's malicious-security property is actually supposed to
// catch for L2 and L3, not just Finalize's end-of-session MAC check.
func Locate(engine *mac.Engine, peer mac.Peer, s []mac.Share, offset2 mac.Share, l2Vector, l2VMac []field.Elem, offset3 mac.Share, l3Vector, l3VMac []field.Elem, numBidders int) (Result, error) {
	bucket := Buckets(s)

	sc := NewScanner()
	scanLevel := -1
	for lvl := len(bucket) - 1; lvl >= 0; lvl-- {
		sc.FoldLevel(bucket[lvl])
		status, err := sc.Probe(engine, peer, offset3, l3Vector, l3VMac)
		if err != nil {
			return Result{}, err
		}
		if status == RunningAtLeastTwo {
			scanLevel = lvl
			break
		}
	}

	columnLevel, err := locateViaColumns(engine, peer, s, offset2, l2Vector, l2VMac, numBidders)
	if err != nil {
		return Result{}, err
	}

	if scanLevel != columnLevel {
		return Result{}, fmt.Errorf("auction: Locate: L2/L3 disagree on second-price level (scan=%d, column=%d)", scanLevel, columnLevel)
	}
	return Result{SecondPriceLevel: scanLevel}, nil
}
