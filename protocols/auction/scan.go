package auction

import (
	"fmt"

	"github.com/obsidian-mpc/obsidian/pkg/field"
	"github.com/obsidian-mpc/obsidian/pkg/mac"
)

// Status classifies the running bid count at a scan level without
// revealing its exact value beyond the three buckets SCAN/LOCATE need.
type Status int

const (
	// RunningZero: no bids placed at or above this level yet.
	RunningZero Status = iota
	// RunningOne: exactly one bidder so far — still a unique leader.
	RunningOne
	// RunningAtLeastTwo: two or more bidders at or above this level — the
	// level where this first becomes true is the second price.
	RunningAtLeastTwo
)

// Scanner walks price levels from the top of the domain downward,
// maintaining the running count of bids seen so far without ever opening
// that count directly (spec §4.F's SCAN(k) loop). Only a 3-way bucket —
// zero / exactly-one / at-least-two — is revealed per level, via the L3
// random-offset layer from internal/preprocess (see DESIGN.md's derivation
// of why position 1, not 0, is the indicator for "exactly one").
type Scanner struct {
	running mac.Share // running count of bids at-or-above the current level
}

// NewScanner starts a scan with an empty running count.
func NewScanner() *Scanner {
	return &Scanner{running: mac.Share{}}
}

// FoldLevel adds one price level's column sum into the running count
// (local, linear — no interaction).
func (s *Scanner) FoldLevel(column mac.Share) {
	s.running = mac.Share{V: s.running.V.Add(column.V), T: s.running.T.Add(column.T)}
}

// Probe reveals the running count's status bucket. It opens
// x3 = offset.V - running.V through the MAC engine (so a tampered running
// count or offset is still caught by the session's Finalize, per spec
// §9's hard-fail-every-check decision), cyclically shifts the L3
// evaluation share (and its MAC companion) left by the opened amount, and
// opens the resulting vector's position-0 and position-1 coordinates in
// one batch: since the construction plants the L3 point at the layer's
// secret offset, shifting by (offset - running) moves the hot coordinate
// to exactly index `running`, so "position 0 is hot" means running==0,
// "position 1 is hot" means running==1, and neither being hot means
// running>=2 (the domain is always large enough that a running count of
// 2 or more never coincides with either probed position — see
// DESIGN.md).
//
// l3Vector and l3VMac are this party's full L3 evaluation share and its
// alpha-MAC companion vector (length D, hot at the layer's secret offset);
// offset is that same layer's MAC'd offset share.
func (s *Scanner) Probe(engine *mac.Engine, peer mac.Peer, offset mac.Share, l3Vector, l3VMac []field.Elem) (Status, error) {
	d := len(l3Vector)
	if d < 2 || len(l3VMac) != d {
		panic(fmt.Sprintf("auction: Probe: l3Vector/l3VMac length mismatch or too small (%d)", d))
	}

	x3Share := mac.Share{V: offset.V.Sub(s.running.V), T: offset.T.Sub(s.running.T)}
	x3, err := engine.Open(peer, x3Share)
	if err != nil {
		return 0, fmt.Errorf("auction: Probe: opening x3: %w", err)
	}

	// x3 = offset - running, both in [0, d): the subtraction may have
	// wrapped around the field's modulus rather than around d, so recover
	// the true shift amount via SmallSignedMod rather than a raw %.
	shift := int(x3.SmallSignedMod(uint64(d)))
	shiftedV := field.RotateLeft(l3Vector, shift)
	shiftedMac := field.RotateLeft(l3VMac, shift)

	probes := []mac.Share{
		{V: shiftedV[0], T: shiftedMac[0]},
		{V: shiftedV[1], T: shiftedMac[1]},
	}
	opened, err := engine.OpenVector(peer, probes)
	if err != nil {
		return 0, fmt.Errorf("auction: Probe: opening shifted[0:2]: %w", err)
	}

	switch {
	case opened[0].Equal(field.One()):
		return RunningZero, nil
	case opened[1].Equal(field.One()):
		return RunningOne, nil
	default:
		return RunningAtLeastTwo, nil
	}
}

// RunningShare exposes the scanner's current running-count share, mostly
// for protocols/auction's own tests.
func (s *Scanner) RunningShare() mac.Share { return s.running }
