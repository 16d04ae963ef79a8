package preprocess

import (
	"fmt"

	"github.com/obsidian-mpc/obsidian/pkg/dpf"
	"github.com/obsidian-mpc/obsidian/pkg/field"
	"github.com/obsidian-mpc/obsidian/pkg/mac"
	"github.com/obsidian-mpc/obsidian/pkg/sketch"
)

// Encode/Decode give a Bundle a flat wire form so one process can act as
// the trusted dealer and ship the other party's half of the correlated
// randomness over the session connection's raw-frame channel (spec §4.H
// leaves the dealer-to-party transport unspecified; this module's own
// bespoke framing, already used for bulk field vectors in
// internal/transport, is the natural fit for bulk key material too,
// rather than reflection-based encoding over a type with deliberately
// unexported internals like dpf.Key).

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func encodeTriple(t sketch.Triple) []byte {
	a, b, c := t.A.Bytes(), t.B.Bytes(), t.C.Bytes()
	out := make([]byte, 0, 24)
	out = append(out, a[:]...)
	out = append(out, b[:]...)
	out = append(out, c[:]...)
	return out
}

func decodeTriple(buf []byte) (sketch.Triple, error) {
	if len(buf) != 24 {
		return sketch.Triple{}, fmt.Errorf("preprocess: decodeTriple: expected 24 bytes, got %d", len(buf))
	}
	a, err := field.FromBytes(buf[0:8])
	if err != nil {
		return sketch.Triple{}, err
	}
	b, err := field.FromBytes(buf[8:16])
	if err != nil {
		return sketch.Triple{}, err
	}
	c, err := field.FromBytes(buf[16:24])
	if err != nil {
		return sketch.Triple{}, err
	}
	return sketch.Triple{A: a, B: b, C: c}, nil
}

func encodeShare(s mac.Share) []byte {
	v, t := s.V.Bytes(), s.T.Bytes()
	out := make([]byte, 0, 16)
	out = append(out, v[:]...)
	out = append(out, t[:]...)
	return out
}

func decodeShare(buf []byte) (mac.Share, error) {
	if len(buf) != 16 {
		return mac.Share{}, fmt.Errorf("preprocess: decodeShare: expected 16 bytes, got %d", len(buf))
	}
	v, err := field.FromBytes(buf[0:8])
	if err != nil {
		return mac.Share{}, err
	}
	t, err := field.FromBytes(buf[8:16])
	if err != nil {
		return mac.Share{}, err
	}
	return mac.Share{V: v, T: t}, nil
}

func encodeLayerKey(lk LayerKey) []byte {
	keyBuf := lk.Key.Encode()
	vMacBuf := field.EncodeVector(lk.VMacShare)

	out := make([]byte, 0, 4+len(keyBuf)+16+4+len(vMacBuf)+24+24)
	var lenBuf [4]byte

	putU32(lenBuf[:], uint32(len(keyBuf)))
	out = append(out, lenBuf[:]...)
	out = append(out, keyBuf...)

	out = append(out, encodeShare(lk.Offset)...)

	putU32(lenBuf[:], uint32(len(vMacBuf)))
	out = append(out, lenBuf[:]...)
	out = append(out, vMacBuf...)

	out = append(out, encodeTriple(lk.TripleZZ)...)
	out = append(out, encodeTriple(lk.TripleAZ)...)
	return out
}

func decodeLayerKey(buf []byte) (LayerKey, int, error) {
	if len(buf) < 4 {
		return LayerKey{}, 0, fmt.Errorf("preprocess: decodeLayerKey: buffer too short")
	}
	off := 0
	keyLen := int(getU32(buf[off : off+4]))
	off += 4
	if len(buf) < off+keyLen {
		return LayerKey{}, 0, fmt.Errorf("preprocess: decodeLayerKey: truncated key")
	}
	key, err := dpf.DecodeKey(buf[off : off+keyLen])
	if err != nil {
		return LayerKey{}, 0, err
	}
	off += keyLen

	if len(buf) < off+16 {
		return LayerKey{}, 0, fmt.Errorf("preprocess: decodeLayerKey: truncated offset")
	}
	offset, err := decodeShare(buf[off : off+16])
	if err != nil {
		return LayerKey{}, 0, err
	}
	off += 16

	if len(buf) < off+4 {
		return LayerKey{}, 0, fmt.Errorf("preprocess: decodeLayerKey: truncated vMac length")
	}
	vMacLen := int(getU32(buf[off : off+4]))
	off += 4
	if len(buf) < off+vMacLen {
		return LayerKey{}, 0, fmt.Errorf("preprocess: decodeLayerKey: truncated vMac")
	}
	vMac, err := field.DecodeVector(buf[off : off+vMacLen])
	if err != nil {
		return LayerKey{}, 0, err
	}
	off += vMacLen

	if len(buf) < off+48 {
		return LayerKey{}, 0, fmt.Errorf("preprocess: decodeLayerKey: truncated triples")
	}
	zz, err := decodeTriple(buf[off : off+24])
	if err != nil {
		return LayerKey{}, 0, err
	}
	off += 24
	az, err := decodeTriple(buf[off : off+24])
	if err != nil {
		return LayerKey{}, 0, err
	}
	off += 24

	return LayerKey{Key: key, Offset: offset, VMacShare: vMac, TripleZZ: zz, TripleAZ: az}, off, nil
}

// EncodeXValues serializes the client-encoding shift values DealWithBids
// computes (x_c = (r − bid_c) mod D for each bidder c). These are already
// opened protocol inputs, not MAC-protected secrets — see DealWithBids's
// doc comment — so a plain field-vector encoding is enough.
func EncodeXValues(xs []field.Elem) []byte {
	return field.EncodeVector(xs)
}

// DecodeXValues reverses EncodeXValues.
func DecodeXValues(buf []byte) ([]field.Elem, error) {
	return field.DecodeVector(buf)
}

// Encode serializes a Bundle to a flat byte buffer for one-shot transfer
// to the party that does not hold it (see the comment at the top of this
// file).
func (b Bundle) Encode() []byte {
	alpha := b.AlphaShare.Bytes()
	out := make([]byte, 0)
	out = append(out, alpha[:]...)
	for _, lk := range [3]LayerKey{b.L1, b.L2, b.L3} {
		encoded := encodeLayerKey(lk)
		var lenBuf [4]byte
		putU32(lenBuf[:], uint32(len(encoded)))
		out = append(out, lenBuf[:]...)
		out = append(out, encoded...)
	}
	return out
}

// DecodeBundle reverses Encode.
func DecodeBundle(buf []byte) (Bundle, error) {
	if len(buf) < 8 {
		return Bundle{}, fmt.Errorf("preprocess: DecodeBundle: buffer too short")
	}
	alpha, err := field.FromBytes(buf[0:8])
	if err != nil {
		return Bundle{}, err
	}
	off := 8

	var layers [3]LayerKey
	names := [3]string{"L1", "L2", "L3"}
	for li := 0; li < 3; li++ {
		if len(buf) < off+4 {
			return Bundle{}, fmt.Errorf("preprocess: DecodeBundle: %s: truncated entry length", names[li])
		}
		entryLen := int(getU32(buf[off : off+4]))
		off += 4
		if len(buf) < off+entryLen {
			return Bundle{}, fmt.Errorf("preprocess: DecodeBundle: %s: truncated entry", names[li])
		}
		lk, consumed, err := decodeLayerKey(buf[off : off+entryLen])
		if err != nil {
			return Bundle{}, fmt.Errorf("preprocess: DecodeBundle: %s: %w", names[li], err)
		}
		if consumed != entryLen {
			return Bundle{}, fmt.Errorf("preprocess: DecodeBundle: %s: entry length mismatch", names[li])
		}
		layers[li] = lk
		off += entryLen
	}

	if off != len(buf) {
		return Bundle{}, fmt.Errorf("preprocess: DecodeBundle: %d trailing bytes", len(buf)-off)
	}

	return Bundle{AlphaShare: alpha, L1: layers[0], L2: layers[1], L3: layers[2]}, nil
}
