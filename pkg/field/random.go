package field

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// Random draws a uniform field element from the given entropy source.
// Rejection sampling keeps the distribution exactly uniform over [0, p).
func Random(r io.Reader) (Elem, error) {
	var buf [byteLen]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Elem{}, fmt.Errorf("field: Random: %w", err)
		}
		x := binary.LittleEndian.Uint64(buf[:]) & ((uint64(1) << 61) - 1)
		if x < p {
			return Elem{x}, nil
		}
	}
}

// MustRandom draws a uniform field element using crypto/rand, panicking on
// entropy-source failure (which indicates a broken host, not a usage bug
// the caller can recover from).
func MustRandom() Elem {
	e, err := Random(rand.Reader)
	if err != nil {
		panic(err)
	}
	return e
}
