package preprocess

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/obsidian-mpc/obsidian/internal/prg"
	"github.com/obsidian-mpc/obsidian/internal/transcript"
	"github.com/obsidian-mpc/obsidian/pkg/field"
	"github.com/obsidian-mpc/obsidian/pkg/mac"
	"github.com/obsidian-mpc/obsidian/pkg/sketch"
)

// Verified is the result of evaluating and sketch-checking one layer's key:
// the full evaluation vector (this party's share), its alpha-MAC companion,
// and the layer's offset share, ready for protocols/auction to consume. No
// caller may touch Vector before VerifyBundle returns a nil error (spec
// §4.H's "no eval vector used before its sketch passes" invariant).
type Verified struct {
	Vector []field.Elem
	VMac   []field.Elem
	Offset mac.Share
}

// VerifyBundle evaluates bundle.L1/L2/L3's three keys (embarrassingly
// parallel CPU work — each key's EvalAll tree-walk is independent) and then
// runs pkg/sketch.Verify once per key, over the single session connection,
// in the fixed order both parties agree on ahead of time (L1, L2, L3). The
// interactive sketch step cannot itself run concurrently against a single
// Conn: both parties must call Verify in the same sequence, or each side's
// frame-matching-by-kind would pair a response meant for one key's check
// with another key's request.
func VerifyBundle(peer sketch.Peer, tx *transcript.Hasher, g *prg.G, partyIdx int, bundle Bundle) (v1, v2, v3 *Verified, err error) {
	layers := [3]LayerKey{bundle.L1, bundle.L2, bundle.L3}
	vectors := make([][]field.Elem, 3)

	var eg errgroup.Group
	for li, lk := range layers {
		li, lk := li, lk
		eg.Go(func() error {
			vectors[li] = lk.Key.EvalAll(g)
			return nil
		})
	}
	if err = eg.Wait(); err != nil {
		return nil, nil, nil, err
	}

	results := make([]*Verified, 3)
	for li, lk := range layers {
		mat := sketch.Material{
			V:          vectors[li],
			VMac:       lk.VMacShare,
			AlphaShare: bundle.AlphaShare,
			TripleZZ:   lk.TripleZZ,
			TripleAZ:   lk.TripleAZ,
		}
		if verr := sketch.Verify(peer, tx, partyIdx, mat); verr != nil {
			return nil, nil, nil, fmt.Errorf("preprocess: VerifyBundle: layer %d: %w", li, verr)
		}
		results[li] = &Verified{Vector: vectors[li], VMac: lk.VMacShare, Offset: lk.Offset}
	}
	return results[0], results[1], results[2], nil
}
