// Package prg implements the length-doubling pseudorandom generator that
// drives the DPF's GGM-style seed tree (spec §4.B): AES-CTR keyed by a
// fixed public key, with the seed treated as the counter-mode IV and the
// resulting keystream sliced into two subseeds and two control bits. This
// mirrors the pack's Boyle-Gilboa-Ishai DPF reference implementations
// (`other_examples` mvmcconnell-pir dpf-client/server), which likewise
// treat a fixed-key AES block cipher as a random oracle over the seed.
package prg

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// SeedLen is the width of a PRG seed in bytes (128 bits).
const SeedLen = 16

// Seed is one node of the DPF seed tree.
type Seed [SeedLen]byte

// outLen is the keystream length consumed per Expand call: one block for
// the left subseed, a further byte's worth of keystream for the left
// control bit, then the same again for the right half. Three AES blocks of
// keystream (48 bytes) comfortably cover both halves' 34 bytes.
const outLen = 3 * aes.BlockSize

// G is the fixed-key AES-CTR random oracle.
type G struct {
	key cipher.Block
}

// New builds a PRG instance from a fixed 128-bit AES key. The key is
// public, identical for both parties and every session — it defines the
// random oracle, not a secret.
func New(key Seed) (*G, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("prg: New: %w", err)
	}
	return &G{key: block}, nil
}

// FixedKey returns the deterministic, public AES key used to seed the PRG.
// Using a fixed public key (rather than one sampled per session) lets both
// parties evaluate the same PRG independently with no handshake, at the
// cost of assuming neither party can invert AES under this key.
func FixedKey() Seed {
	return Seed{
		0x4f, 0x62, 0x73, 0x69, 0x64, 0x69, 0x61, 0x6e,
		0x2d, 0x64, 0x70, 0x66, 0x2d, 0x70, 0x72, 0x67,
	}
}

// Expand applies the PRG to seed, returning the left and right child seeds
// and their associated control bits, the four-tuple (s_L, s_R, t_L, t_R) of
// spec §4.B. Deterministic per seed; otherwise indistinguishable from
// random under the AES-as-random-oracle assumption.
func (g *G) Expand(seed Seed) (left, right Seed, bitL, bitR byte) {
	stream := cipher.NewCTR(g.key, seed[:])
	var out [outLen]byte
	stream.XORKeyStream(out[:], out[:])

	copy(left[:], out[:SeedLen])
	bitL = out[SeedLen] & 1

	copy(right[:], out[SeedLen+1:SeedLen+1+SeedLen])
	bitR = out[2*SeedLen+1] & 1

	return left, right, bitL, bitR
}

// Xor returns a ^ b, bytewise, used to combine a seed with a correction
// word share.
func (s Seed) Xor(b Seed) Seed {
	var out Seed
	for i := range out {
		out[i] = s[i] ^ b[i]
	}
	return out
}
