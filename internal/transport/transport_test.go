package transport_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-mpc/obsidian/internal/obserr"
	"github.com/obsidian-mpc/obsidian/internal/party"
	"github.com/obsidian-mpc/obsidian/pkg/field"

	"github.com/obsidian-mpc/obsidian/internal/transport"
)

func dialPair(t *testing.T, hello0, hello1 transport.Hello) (*transport.Conn, *transport.Conn) {
	t.Helper()
	ln, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var server *transport.Conn
	var serverErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server, serverErr = ln.Accept(party.Zero, hello0, nil)
	}()

	client, clientErr := transport.Dial(ln.Addr().String(), party.One, hello1, nil)
	wg.Wait()

	require.NoError(t, serverErr)
	require.NoError(t, clientErr)
	return server, client
}

func TestOpenScalarRoundTrip(t *testing.T) {
	hello := transport.Hello{SessionID: []byte("s"), NumClients: 10, DomainSize: 64}
	c0, c1 := dialPair(t, hello, hello)
	defer c0.Close()
	defer c1.Close()

	a := field.New(111)
	b := field.New(222)

	var wg sync.WaitGroup
	var got0, got1 field.Elem
	var err0, err1 error
	wg.Add(2)
	go func() {
		defer wg.Done()
		got0, err0 = c0.OpenScalar(a)
	}()
	go func() {
		defer wg.Done()
		got1, err1 = c1.OpenScalar(b)
	}()
	wg.Wait()

	require.NoError(t, err0)
	require.NoError(t, err1)
	want := a.Add(b)
	assert.True(t, got0.Equal(want))
	assert.True(t, got1.Equal(want))
}

func TestOpenVectorRoundTrip(t *testing.T) {
	hello := transport.Hello{SessionID: []byte("s"), NumClients: 10, DomainSize: 64}
	c0, c1 := dialPair(t, hello, hello)
	defer c0.Close()
	defer c1.Close()

	va := []field.Elem{field.New(1), field.New(2), field.New(3)}
	vb := []field.Elem{field.New(10), field.New(20), field.New(30)}

	var wg sync.WaitGroup
	var got0, got1 []field.Elem
	var err0, err1 error
	wg.Add(2)
	go func() {
		defer wg.Done()
		got0, err0 = c0.OpenVector(va)
	}()
	go func() {
		defer wg.Done()
		got1, err1 = c1.OpenVector(vb)
	}()
	wg.Wait()

	require.NoError(t, err0)
	require.NoError(t, err1)
	for i := range va {
		want := va[i].Add(vb[i])
		assert.True(t, got0[i].Equal(want))
		assert.True(t, got1[i].Equal(want))
	}
}

func TestHandshakeMismatchIsTransportError(t *testing.T) {
	ln, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var serverErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, serverErr = ln.Accept(party.Zero, transport.Hello{NumClients: 10, DomainSize: 64}, nil)
	}()

	_, clientErr := transport.Dial(ln.Addr().String(), party.One, transport.Hello{NumClients: 5, DomainSize: 64}, nil)
	wg.Wait()

	require.Error(t, serverErr)
	require.Error(t, clientErr)
	assert.True(t, obserr.Is(serverErr, obserr.KindTransport))
	assert.True(t, obserr.Is(clientErr, obserr.KindTransport))
}
