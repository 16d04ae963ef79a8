package preprocess_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-mpc/obsidian/internal/preprocess"
	"github.com/obsidian-mpc/obsidian/internal/prg"
)

func TestBundleEncodeDecodeRoundTrip(t *testing.T) {
	dealer, err := preprocess.NewDealer()
	require.NoError(t, err)

	b0, b1, err := dealer.Deal(3, 4)
	require.NoError(t, err)

	for _, original := range []preprocess.Bundle{b0, b1} {
		buf := original.Encode()
		decoded, err := preprocess.DecodeBundle(buf)
		require.NoError(t, err)

		assert.True(t, original.AlphaShare.Equal(decoded.AlphaShare))

		for li, layer := range [][2]preprocess.LayerKey{
			{original.L1, decoded.L1},
			{original.L2, decoded.L2},
			{original.L3, decoded.L3},
		} {
			want, got := layer[0], layer[1]
			assert.True(t, want.Offset.V.Equal(got.Offset.V), "layer %d offset.V", li)
			assert.True(t, want.Offset.T.Equal(got.Offset.T), "layer %d offset.T", li)
			require.Len(t, got.VMacShare, len(want.VMacShare))
			for j := range want.VMacShare {
				assert.True(t, want.VMacShare[j].Equal(got.VMacShare[j]))
			}
			assert.True(t, want.TripleZZ.A.Equal(got.TripleZZ.A))
			assert.True(t, want.TripleZZ.B.Equal(got.TripleZZ.B))
			assert.True(t, want.TripleZZ.C.Equal(got.TripleZZ.C))
			assert.True(t, want.TripleAZ.A.Equal(got.TripleAZ.A))
		}
	}
}

func TestDecodeBundleRejectsTruncatedBuffer(t *testing.T) {
	dealer, err := preprocess.NewDealer()
	require.NoError(t, err)
	b0, _, err := dealer.Deal(2, 3)
	require.NoError(t, err)

	buf := b0.Encode()
	_, err = preprocess.DecodeBundle(buf[:len(buf)-1])
	assert.Error(t, err)
}

func TestXValuesEncodeDecodeRoundTrip(t *testing.T) {
	dealer, err := preprocess.NewDealer()
	require.NoError(t, err)

	_, _, xs, err := dealer.DealWithBids(3, 4, []int{1, 2, 3})
	require.NoError(t, err)

	buf := preprocess.EncodeXValues(xs)
	decoded, err := preprocess.DecodeXValues(buf)
	require.NoError(t, err)
	require.Len(t, decoded, len(xs))
	for i := range xs {
		assert.True(t, xs[i].Equal(decoded[i]), "index %d", i)
	}
}

func TestDecodeXValuesRejectsTruncatedBuffer(t *testing.T) {
	dealer, err := preprocess.NewDealer()
	require.NoError(t, err)

	_, _, xs, err := dealer.DealWithBids(2, 3, []int{0, 1})
	require.NoError(t, err)

	buf := preprocess.EncodeXValues(xs)
	_, err = preprocess.DecodeXValues(buf[:len(buf)-1])
	assert.Error(t, err)
}

func TestDecodedKeyEvaluatesIdenticallyToOriginal(t *testing.T) {
	dealer, err := preprocess.NewDealer()
	require.NoError(t, err)
	b0, _, err := dealer.Deal(1, 3)
	require.NoError(t, err)

	buf := b0.Encode()
	decoded, err := preprocess.DecodeBundle(buf)
	require.NoError(t, err)

	g, err := prg.New(prg.FixedKey())
	require.NoError(t, err)

	want := b0.L1.Key.EvalAll(g)
	got := decoded.L1.Key.EvalAll(g)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "index %d", i)
	}
}
