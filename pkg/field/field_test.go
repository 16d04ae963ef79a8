package field_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-mpc/obsidian/pkg/field"
)

func TestRoundTrip(t *testing.T) {
	for i := 0; i < 200; i++ {
		x := field.MustRandom()
		b := x.Bytes()
		y, err := field.FromBytes(b[:])
		require.NoError(t, err)
		assert.True(t, x.Equal(y))
	}
}

func TestArithmeticClosed(t *testing.T) {
	a := field.MustRandom()
	b := field.MustRandom()
	sum := a.Add(b)
	diff := sum.Sub(b)
	assert.True(t, diff.Equal(a))

	neg := a.Neg()
	assert.True(t, a.Add(neg).IsZero())

	one := field.One()
	assert.True(t, a.Mul(one).Equal(a))

	zero := field.Zero()
	assert.True(t, a.Mul(zero).IsZero())
}

func TestMulDistributesOverAdd(t *testing.T) {
	alpha := field.MustRandom()
	a := field.MustRandom()
	b := field.MustRandom()

	lhs := alpha.Mul(a.Add(b))
	rhs := alpha.Mul(a).Add(alpha.Mul(b))
	assert.True(t, lhs.Equal(rhs))
}

func TestKnownValues(t *testing.T) {
	// p - 1 + 1 == 0
	pMinus1 := field.New((uint64(1)<<61 - 1) - 1)
	assert.True(t, pMinus1.Add(field.One()).IsZero())

	// New reduces values >= p.
	assert.True(t, field.New(uint64(1)<<61-1).IsZero())
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := make([]field.Elem, 37)
	for i := range vec {
		vec[i] = field.MustRandom()
	}
	buf := field.EncodeVector(vec)
	back, err := field.DecodeVector(buf)
	require.NoError(t, err)
	require.Len(t, back, len(vec))
	for i := range vec {
		assert.True(t, vec[i].Equal(back[i]))
	}
}

func TestSmallSignedModRecoversWrappedDifference(t *testing.T) {
	const d = 16
	for r3 := uint64(0); r3 < d; r3++ {
		for running := uint64(0); running < d; running++ {
			a := field.New(r3)
			b := field.New(running)
			diff := a.Sub(b)
			got := diff.SmallSignedMod(d)
			want := ((r3 - running) % d + d) % d
			assert.Equal(t, want, got, "r3=%d running=%d", r3, running)
		}
	}
}

func TestRotateLeft(t *testing.T) {
	vec := []field.Elem{field.New(0), field.New(1), field.New(2), field.New(3)}
	rot := field.RotateLeft(vec, 1)
	want := []field.Elem{field.New(1), field.New(2), field.New(3), field.New(0)}
	for i := range want {
		assert.True(t, want[i].Equal(rot[i]))
	}
}
