// Package preprocess implements the offline phase (spec §4.H): minting the
// correlated randomness both parties need before a session starts (DPF key
// pairs, their alpha-MAC companions, and the Beaver triples pkg/sketch
// needs), and the online step that evaluates and sketch-verifies each
// batch before it is trusted.
//
// DPF key generation is inherently a trusted-dealer operation — whoever
// picks alpha, the secret offset, and splits the correction words must see
// both in the clear, exactly as pkg/dpf.Gen already requires. Dealer models
// that step directly; in a deployed system this correlated randomness
// would come from an OT-extension-based two-party generator instead (spec
// §4.H references this without specifying the sub-protocol), which is out
// of scope here — see DESIGN.md.
package preprocess

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/obsidian-mpc/obsidian/internal/prg"
	"github.com/obsidian-mpc/obsidian/pkg/dpf"
	"github.com/obsidian-mpc/obsidian/pkg/field"
	"github.com/obsidian-mpc/obsidian/pkg/mac"
	"github.com/obsidian-mpc/obsidian/pkg/sketch"
)

// LayerKey is one party's share of a single layer's point-function key and
// its supporting MAC/sketch material. Offset is MAC'd like any other
// session-lived secret (spec §9's "hard-fail every MAC check" decision,
// see DESIGN.md) — every opening protocols/auction makes goes through the
// MAC engine, including the scan loop's offset-minus-count opening.
type LayerKey struct {
	Key       *dpf.Key
	Offset    mac.Share
	VMacShare []field.Elem
	TripleZZ  sketch.Triple
	TripleAZ  sketch.Triple
}

// Bundle is everything one party needs to run the online protocol for one
// session: its share of the global MAC key, and the three DPF-key layers
// (spec §3's "Auction state"). Each layer is a single point function
// planted at its own secret random offset (L1 at r, L2 at r2, L3 at r3) —
// not one key per bidder: per-bidder participation enters only through the
// opened client-encoding shift x_c = (r − bid_c) mod D that
// protocols/auction.Sum consumes (spec §4.F's "each client holds one L1
// instance" names the shifted *view* of this single key, not a separate
// key per client).
type Bundle struct {
	AlphaShare field.Elem
	L1, L2, L3 LayerKey
}

// Dealer mints correlated randomness for both parties.
type Dealer struct {
	g *prg.G
}

// NewDealer builds a Dealer using the PRG's standard fixed key.
func NewDealer() (*Dealer, error) {
	g, err := prg.New(prg.FixedKey())
	if err != nil {
		return nil, fmt.Errorf("preprocess: NewDealer: %w", err)
	}
	return &Dealer{g: g}, nil
}

// Deal generates one full session's worth of material for numBidders
// bidders over a domain of 2^domainBits positions, building the L1/L2/L3
// layers concurrently (spec §4.H: "independently and in parallel"). L2's
// alphabet is numBidders+1 (the column-sum range), rounded up to a
// power-of-two DPF domain. L3's domain is the larger of the L1 domain and
// that same rounded-up numBidders+1, so every running count in [0,
// numBidders] that the scanner probes has its own slot.
func (d *Dealer) Deal(numBidders, domainBits int) (Bundle, Bundle, error) {
	b0, b1, _, _, err := d.deal(numBidders, domainBits)
	return b0, b1, err
}

// DealWithBids mints one session's preprocessing bundles exactly like
// Deal, and additionally computes, for each bidder c, the opened
// client-encoding value x_c = (r − bid_c) mod D that spec §4.F step 1
// takes as input (r is L1's secret offset — known to the dealer because it
// generated L1's key pair, and to no one else). Bid values are plaintext
// inputs a real deployment would authenticate via an interactive
// input-sharing sub-protocol between the two parties, out of scope here
// for the same reason spec.md itself excludes "auction-setup glue that
// randomly samples bids" (§1 Non-goals) — the real original source this
// spec distills from (original_source/obsidian/src/bin/party0.rs) takes
// the identical shortcut, computing x_val directly from a dealer-known bid
// and shipping it to the peer unauthenticated, since it is already an
// "opened" protocol input rather than a secret SUM derives.
func (d *Dealer) DealWithBids(numBidders, domainBits int, bids []int) (Bundle, Bundle, []field.Elem, error) {
	b0, b1, _, r, err := d.deal(numBidders, domainBits)
	if err != nil {
		return Bundle{}, Bundle{}, nil, err
	}
	domainSize := dpf.DomainSize(domainBits)
	xs := make([]field.Elem, len(bids))
	for i, bid := range bids {
		if bid < 0 || bid >= domainSize {
			return Bundle{}, Bundle{}, nil, fmt.Errorf("preprocess: DealWithBids: bid %d out of range [0, %d)", bid, domainSize)
		}
		xs[i] = field.New((r.Value() + uint64(domainSize) - uint64(bid)) % uint64(domainSize))
	}
	return b0, b1, xs, nil
}

// deal mints the three layers and also returns alpha and L1's plaintext
// offset r. DealWithBids uses r and discards alpha; Deal discards both.
func (d *Dealer) deal(numBidders, domainBits int) (b0, b1 Bundle, alpha, r field.Elem, err error) {
	alpha = field.MustRandom()
	alpha0, alpha1 := splitElem(alpha)

	l3Bits := domainBits
	if nb := dpf.BitsForDomain(numBidders + 1); nb > l3Bits {
		l3Bits = nb
	}
	bitsPerLayer := [3]int{domainBits, dpf.BitsForDomain(numBidders + 1), l3Bits}

	type dealt struct {
		k0, k1 LayerKey
		offset field.Elem
	}
	results := make([]dealt, 3)

	var eg errgroup.Group
	for li := 0; li < 3; li++ {
		li := li
		eg.Go(func() error {
			k0, k1, offset, derr := d.dealLayer(bitsPerLayer[li], alpha)
			if derr != nil {
				return derr
			}
			results[li] = dealt{k0, k1, offset}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Bundle{}, Bundle{}, field.Elem{}, field.Elem{}, err
	}

	b0 = Bundle{AlphaShare: alpha0, L1: results[0].k0, L2: results[1].k0, L3: results[2].k0}
	b1 = Bundle{AlphaShare: alpha1, L1: results[0].k1, L2: results[1].k1, L3: results[2].k1}
	return b0, b1, alpha, results[0].offset, nil
}

// dealLayer mints a single layer's point-function key pair, planted at a
// fresh random offset, plus the MAC/sketch material protocols/auction and
// internal/preprocess.VerifyBundle need to consume and verify it. It
// returns the plaintext offset alongside both parties' shares since the
// dealer — and only the dealer — is allowed to see it (L1's offset, r, is
// what DealWithBids needs to compute the opened client-encoding shift).
func (d *Dealer) dealLayer(domainBits int, alpha field.Elem) (k0, k1 LayerKey, offset field.Elem, err error) {
	offsetBits, err := randomBits(domainBits)
	if err != nil {
		return LayerKey{}, LayerKey{}, field.Elem{}, err
	}
	beta := field.One()
	key0, key1, err := dpf.Gen(d.g, offsetBits, beta)
	if err != nil {
		return LayerKey{}, LayerKey{}, field.Elem{}, fmt.Errorf("preprocess: dealLayer: %w", err)
	}

	domainSize := dpf.DomainSize(domainBits)
	v := make([]field.Elem, domainSize)
	for j := range v {
		v[j] = field.Zero()
	}
	v[offsetBits.Value] = beta

	vMac := make([]field.Elem, domainSize)
	for j, e := range v {
		vMac[j] = e.Mul(alpha)
	}
	vMac0, vMac1 := splitVec(vMac)

	offsetElem := field.New(offsetBits.Value)
	off0, off1 := splitElem(offsetElem)
	offsetTag := offsetElem.Mul(alpha)
	offTag0, offTag1 := splitElem(offsetTag)

	zz0, zz1 := mintTriple()
	az0, az1 := mintTriple()

	k0 = LayerKey{Key: key0, Offset: mac.Share{V: off0, T: offTag0}, VMacShare: vMac0, TripleZZ: zz0, TripleAZ: az0}
	k1 = LayerKey{Key: key1, Offset: mac.Share{V: off1, T: offTag1}, VMacShare: vMac1, TripleZZ: zz1, TripleAZ: az1}
	return k0, k1, offsetElem, nil
}

// randomBits picks a uniform index in [0, 2^n) for the DPF's secret
// offset. domainSize is always a power of two, so reducing an 8-byte
// random draw mod domainSize introduces no bias.
func randomBits(n int) (dpf.Bits, error) {
	domainSize := dpf.DomainSize(n)
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return dpf.Bits{}, err
	}
	v := leU64(buf[:]) % uint64(domainSize)
	return dpf.NewBits(v, n), nil
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func splitElem(v field.Elem) (field.Elem, field.Elem) {
	s0 := field.MustRandom()
	return s0, v.Sub(s0)
}

func splitVec(v []field.Elem) ([]field.Elem, []field.Elem) {
	a := make([]field.Elem, len(v))
	b := make([]field.Elem, len(v))
	for i, e := range v {
		a[i], b[i] = splitElem(e)
	}
	return a, b
}

func mintTriple() (sketch.Triple, sketch.Triple) {
	a := field.MustRandom()
	b := field.MustRandom()
	c := a.Mul(b)
	a0, a1 := splitElem(a)
	b0, b1 := splitElem(b)
	c0, c1 := splitElem(c)
	return sketch.Triple{A: a0, B: b0, C: c0}, sketch.Triple{A: a1, B: b1, C: c1}
}
