// Package field implements arithmetic in the prime field used throughout
// Obsidian: GF(p) with p = 2^61 - 1, a Mersenne prime whose modulus and
// products both fit comfortably in a 64/128-bit accumulator.
package field

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// p is the field modulus, the Mersenne prime 2^61 - 1.
const p uint64 = (1 << 61) - 1

const byteLen = 8

// Elem is an element of GF(p), always kept in canonical form (< p).
type Elem struct {
	v uint64
}

// Modulus returns the field's prime modulus, for callers that need to
// interpret a field element as a small signed integer (e.g. reconstructing
// a cyclic-shift amount from a subtraction that may have wrapped).
func Modulus() uint64 { return p }

// Zero is the additive identity.
func Zero() Elem { return Elem{0} }

// One is the multiplicative identity.
func One() Elem { return Elem{1} }

// New reduces x modulo p and returns the corresponding element.
func New(x uint64) Elem {
	const mask61 = (uint64(1) << 61) - 1
	folded := (x & mask61) + (x >> 61)
	if folded>>61 != 0 {
		folded = (folded & mask61) + (folded >> 61)
	}
	return Elem{reduceSum(folded)}
}

// Value returns the canonical representative in [0, p).
func (a Elem) Value() uint64 { return a.v }

// reduceSum folds a value that is known to be < 2p back into [0, p) without
// branching on the operand.
func reduceSum(x uint64) uint64 {
	// x can exceed p by at most p (since our callers only ever produce sums
	// of two canonical values, or single 64-bit reductions below p^2).
	d := x - p
	// mask is all-ones if d did not underflow (i.e. x >= p), else all-zero.
	mask := uint64(0) - (d >> 63 ^ 1)
	return (x &^ mask) | (d & mask)
}

// Add returns a+b mod p.
func (a Elem) Add(b Elem) Elem {
	s := a.v + b.v
	return Elem{reduceSum(s)}
}

// Sub returns a-b mod p.
func (a Elem) Sub(b Elem) Elem {
	// a.v, b.v < p, so a.v + p - b.v is in [0, 2p).
	return Elem{reduceSum(a.v + p - b.v)}
}

// Neg returns -a mod p.
func (a Elem) Neg() Elem {
	return Elem{reduceSum(p - a.v)}
}

// mulModP reduces a 128-bit product modulo the Mersenne prime p = 2^61-1
// using the identity 2^61 ≡ 1 (mod p): split the product at bit 61 and add
// the two halves, repeating until the result fits in [0, 2p).
func mulModP(hi, lo uint64) uint64 {
	const mask61 = (uint64(1) << 61) - 1
	// lo61 holds bits [0,61), rest holds everything from bit 61 upward,
	// spread across the low and high words of the 128-bit product.
	lo61 := lo & mask61
	rest := (lo >> 61) | (hi << 3)
	sum := lo61 + rest
	// sum can itself be >= 2^61 (needs folding again), but never more than
	// twice, since the input is < p^2 < 2^122.
	for sum>>61 != 0 {
		sum = (sum & mask61) + (sum >> 61)
	}
	return reduceSum(sum)
}

// Mul returns a*b mod p using a 128-bit accumulator and Mersenne reduction.
func (a Elem) Mul(b Elem) Elem {
	hi, lo := bits.Mul64(a.v, b.v)
	return Elem{mulModP(hi, lo)}
}

// SmallSignedMod interprets a as a small signed integer reduced modulo m,
// under the caller's guarantee that the true (possibly negative) value a
// represents has absolute value less than m. Subtracting two field
// elements that both lie in [0, m) wraps around p when the result is
// negative, leaving a value near p rather than near zero; SmallSignedMod
// undoes that wrap so the caller recovers the same residue mod m it would
// have gotten from ordinary signed integer subtraction. Used to turn a
// field-level offset difference back into a cyclic-shift amount (spec
// §4.F's SCAN/LOCATE probes, protocols/auction/scan.go).
func (a Elem) SmallSignedMod(m uint64) uint64 {
	if a.v < m {
		return a.v
	}
	// a.v is within m of p, representing -(p - a.v) in true signed terms.
	neg := p - a.v
	return (m - neg%m) % m
}

// Equal reports whether a and b represent the same field element.
func (a Elem) Equal(b Elem) bool {
	return a.v == b.v
}

// IsZero reports whether a is the additive identity.
func (a Elem) IsZero() bool {
	return a.v == 0
}

// Bytes serializes the element as 8 little-endian bytes.
func (a Elem) Bytes() [byteLen]byte {
	var out [byteLen]byte
	binary.LittleEndian.PutUint64(out[:], a.v)
	return out
}

// FromBytes decodes 8 little-endian bytes into a canonical element.
func FromBytes(b []byte) (Elem, error) {
	if len(b) != byteLen {
		return Elem{}, fmt.Errorf("field: FromBytes: expected %d bytes, got %d", byteLen, len(b))
	}
	x := binary.LittleEndian.Uint64(b)
	return New(x), nil
}

func (a Elem) String() string {
	return fmt.Sprintf("%d", a.v)
}
