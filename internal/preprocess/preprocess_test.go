package preprocess_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-mpc/obsidian/internal/preprocess"
	"github.com/obsidian-mpc/obsidian/internal/prg"
	"github.com/obsidian-mpc/obsidian/internal/transcript"
	"github.com/obsidian-mpc/obsidian/pkg/field"
)

type loopback struct {
	toPeer   chan any
	fromPeer chan any
}

func newLoopbackPair() (*loopback, *loopback) {
	ab := make(chan any, 8)
	ba := make(chan any, 8)
	return &loopback{toPeer: ab, fromPeer: ba}, &loopback{toPeer: ba, fromPeer: ab}
}

func (l *loopback) OpenScalar(local field.Elem) (field.Elem, error) {
	l.toPeer <- local
	peer := (<-l.fromPeer).(field.Elem)
	return local.Add(peer), nil
}

func (l *loopback) OpenVector(local []field.Elem) ([]field.Elem, error) {
	l.toPeer <- local
	peer := (<-l.fromPeer).([]field.Elem)
	return field.AddVec(local, peer), nil
}

func TestVerifyBundleAcceptsHonestDeal(t *testing.T) {
	const numBidders = 4
	const domainBits = 5 // domain size 32

	dealer, err := preprocess.NewDealer()
	require.NoError(t, err)

	b0, b1, err := dealer.Deal(numBidders, domainBits)
	require.NoError(t, err)

	g, err := prg.New(prg.FixedKey())
	require.NoError(t, err)

	p0, p1 := newLoopbackPair()
	tx0 := transcript.New([]byte("preprocess-session"))
	tx1 := transcript.New([]byte("preprocess-session"))

	var wg sync.WaitGroup
	var err0, err1 error
	var v1a, v2a, v3a *preprocess.Verified
	var v1b, v2b, v3b *preprocess.Verified
	wg.Add(2)
	go func() {
		defer wg.Done()
		v1a, v2a, v3a, err0 = preprocess.VerifyBundle(p0, tx0, g, 0, b0)
	}()
	go func() {
		defer wg.Done()
		v1b, v2b, v3b, err1 = preprocess.VerifyBundle(p1, tx1, g, 1, b1)
	}()
	wg.Wait()

	require.NoError(t, err0)
	require.NoError(t, err1)
	require.NotNil(t, v1a)
	require.NotNil(t, v1b)

	// Reconstruct each layer's point and assert it's a single one-hot
	// coordinate.
	for li, layer := range [][2]*preprocess.Verified{{v1a, v1b}, {v2a, v2b}, {v3a, v3b}} {
		a, b := layer[0], layer[1]
		ones := 0
		for j := range a.Vector {
			sum := a.Vector[j].Add(b.Vector[j])
			if !sum.IsZero() {
				ones++
				assert.True(t, sum.Equal(field.One()), "layer %d index %d", li, j)
			}
		}
		assert.Equal(t, 1, ones, "layer %d should have exactly one hot coordinate", li)
	}
}

func TestDealWithBidsComputesClientEncodingValues(t *testing.T) {
	const domainBits = 4 // domain size 16
	bids := []int{3, 7, 5, 7}

	dealer, err := preprocess.NewDealer()
	require.NoError(t, err)

	b0, b1, xs, err := dealer.DealWithBids(len(bids), domainBits, bids)
	require.NoError(t, err)
	require.Len(t, xs, len(bids))

	g, err := prg.New(prg.FixedKey())
	require.NoError(t, err)

	l1 := b0.L1.Key.EvalAll(g)
	l1b := b1.L1.Key.EvalAll(g)
	r := -1
	for i := range l1 {
		if l1[i].Add(l1b[i]).Equal(field.One()) {
			r = i
			break
		}
	}
	require.GreaterOrEqual(t, r, 0, "L1 key should be hot somewhere")

	for i, bid := range bids {
		const d = 1 << domainBits
		want := field.New(uint64((r - bid + d) % d))
		assert.True(t, want.Equal(xs[i]), "bidder %d: x_c mismatch", i)
	}
}

func TestDealWithBidsRejectsOutOfRangeBid(t *testing.T) {
	dealer, err := preprocess.NewDealer()
	require.NoError(t, err)

	_, _, _, err = dealer.DealWithBids(1, 3, []int{8})
	assert.Error(t, err)
}
