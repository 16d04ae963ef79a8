// Package mac implements the information-theoretic MAC engine (spec §4.E):
// every opened value is paired with an alpha-MAC tag share, verification is
// deferred, and a single batched random-linear check at the end of the
// session either accepts every pending opening or aborts the whole
// protocol with no partial output (spec §4.E, §7 MacFailure; spec §9's
// guidance that ALL MAC checks are hard fatals, never best-effort).
package mac

import (
	"errors"
	"fmt"

	"github.com/obsidian-mpc/obsidian/internal/obserr"
	"github.com/obsidian-mpc/obsidian/internal/transcript"
	"github.com/obsidian-mpc/obsidian/pkg/field"
)

// Peer is the two-party opening primitive the MAC engine needs. It is
// satisfied structurally by internal/transport.Conn; mac does not import
// transport, keeping the dependency direction the same as the teacher's
// round package, which depends only on abstract message plumbing, never on
// a concrete socket type.
type Peer interface {
	OpenScalar(local field.Elem) (field.Elem, error)
	OpenVector(local []field.Elem) ([]field.Elem, error)
}

// Share is a MAC'd share of a field element v: a share of v itself, and a
// share of alpha*v (spec §3, "MAC'd share of v").
type Share struct {
	V field.Elem
	T field.Elem
}

// pending is one opened-but-not-yet-verified (value, tag share) pair.
type pending struct {
	v field.Elem
	t field.Elem
}

// Engine accumulates pending MAC checks for one session and drains them
// exactly once, at Finalize.
type Engine struct {
	tx      *transcript.Hasher
	pending []pending
}

// New creates a MAC engine whose challenge derivation is bound to the
// given session transcript.
func New(tx *transcript.Hasher) *Engine {
	return &Engine{tx: tx}
}

// Open reconstructs v from the two parties' shares via the peer, and
// records (v, t_share) in the pending list for later verification. It does
// not itself check the tag — per spec §4.E/§9, no branch on an opened
// value's correctness may occur before Finalize succeeds.
func (e *Engine) Open(peer Peer, share Share) (field.Elem, error) {
	v, err := peer.OpenScalar(share.V)
	if err != nil {
		return field.Zero(), fmt.Errorf("mac: Open: %w", err)
	}
	e.tx.WriteElem(v)
	e.pending = append(e.pending, pending{v: v, t: share.T})
	return v, nil
}

// OpenVector batches opening a slice of shares in one round, recording
// every resulting pair.
func (e *Engine) OpenVector(peer Peer, shares []Share) ([]field.Elem, error) {
	local := make([]field.Elem, len(shares))
	for i, s := range shares {
		local[i] = s.V
	}
	opened, err := peer.OpenVector(local)
	if err != nil {
		return nil, fmt.Errorf("mac: OpenVector: %w", err)
	}
	e.tx.WriteVector(opened)
	for i, v := range opened {
		e.pending = append(e.pending, pending{v: v, t: shares[i].T})
	}
	return opened, nil
}

// Pending returns the number of not-yet-verified openings, mostly useful
// for tests asserting the list drains to zero (spec §8's invariant).
func (e *Engine) Pending() int {
	return len(e.pending)
}

// Finalize drains the pending list with one randomized batched check
// (spec §4.E): for each pending (v_i, t_i), form z_i = v_i*alphaShare -
// t_i, combine Z = sum(rho^i * z_i) for a transcript-derived rho, exchange
// Z with the peer, and accept only if the reconstructed sum is zero.
func (e *Engine) Finalize(peer Peer, alphaShare field.Elem) error {
	n := len(e.pending)
	if n == 0 {
		return nil
	}

	e.tx.WriteDomain("mac-finalize")
	powers := e.tx.PowersFrom(n)

	acc := field.Zero()
	for i, p := range e.pending {
		zi := p.v.Mul(alphaShare).Sub(p.t)
		acc = acc.Add(powers[i].Mul(zi))
	}

	total, err := peer.OpenScalar(acc)
	if err != nil {
		return fmt.Errorf("mac: Finalize: %w", err)
	}
	e.pending = nil
	if !total.IsZero() {
		return obserr.New(obserr.KindMac, errors.New("batched check opened to non-zero"))
	}
	return nil
}
