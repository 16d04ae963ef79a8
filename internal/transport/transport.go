// Package transport implements the two-party wire layer (spec §4.G): a
// single TCP connection per session, 4-byte big-endian length-prefixed
// framing, and a two-goroutine send/recv split so neither direction ever
// blocks the other.
//
// Small control structures (the session handshake) go over CBOR, the way
// the teacher's `pkg/protocol.Message` envelope does; bulk field-element
// vectors go over the wire as a flat, untagged byte buffer
// (`pkg/field.EncodeVector`) per spec §6's "raw concatenation, no
// per-element framing" requirement — CBOR-wrapping a few-hundred-element
// vector would triple its size for no benefit once both ends already agree
// on the element width.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/obsidian-mpc/obsidian/internal/obserr"
	"github.com/obsidian-mpc/obsidian/internal/party"
	"github.com/obsidian-mpc/obsidian/pkg/field"
)

// Hello is the session handshake payload exchanged once, at connection
// setup, over CBOR (spec §6: parties must agree on num_clients and
// domain_size before the protocol proper begins).
type Hello struct {
	SessionID  []byte
	NumClients int
	DomainSize int
}

const (
	frameScalar uint8 = iota
	frameVector
	frameHello
	frameRaw
)

// Conn wraps one TCP connection between the two parties, providing the
// OpenScalar/OpenVector primitives pkg/mac.Peer and pkg/sketch.Peer expect
// (satisfied structurally — neither package imports this one).
type Conn struct {
	nc   net.Conn
	self party.ID
	log  *zap.Logger

	writeMu sync.Mutex

	inbox chan frame
	errCh chan error
	done  chan struct{}
}

type frame struct {
	kind    uint8
	payload []byte
}

// Dial connects to addr as the given party and exchanges the handshake.
func Dial(addr string, self party.ID, hello Hello, log *zap.Logger) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, obserr.New(obserr.KindTransport, fmt.Errorf("transport: dial %s: %w", addr, err))
	}
	return newConn(nc, self, hello, log)
}

// Listener accepts a single incoming session connection.
type Listener struct {
	nl net.Listener
}

// Listen binds addr and returns a Listener accepting exactly one
// connection (Obsidian sessions are always exactly two parties).
func Listen(addr string) (*Listener, error) {
	nl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, obserr.New(obserr.KindTransport, fmt.Errorf("transport: listen %s: %w", addr, err))
	}
	return &Listener{nl: nl}, nil
}

func (l *Listener) Addr() net.Addr { return l.nl.Addr() }

// Accept blocks for the one session connection and exchanges the handshake.
func (l *Listener) Accept(self party.ID, hello Hello, log *zap.Logger) (*Conn, error) {
	nc, err := l.nl.Accept()
	if err != nil {
		return nil, obserr.New(obserr.KindTransport, fmt.Errorf("transport: accept: %w", err))
	}
	return newConn(nc, self, hello, log)
}

func (l *Listener) Close() error { return l.nl.Close() }

func newConn(nc net.Conn, self party.ID, hello Hello, log *zap.Logger) (*Conn, error) {
	if tc, ok := nc.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Conn{
		nc:    nc,
		self:  self,
		log:   log,
		inbox: make(chan frame, 4),
		errCh: make(chan error, 1),
		done:  make(chan struct{}),
	}
	go c.recvLoop()

	helloBytes, err := cbor.Marshal(hello)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("transport: marshal hello: %w", err)
	}
	if err := c.writeFrame(frameHello, helloBytes); err != nil {
		nc.Close()
		return nil, err
	}
	peerHelloBytes, err := c.readKind(frameHello)
	if err != nil {
		nc.Close()
		return nil, err
	}
	var peerHello Hello
	if err := cbor.Unmarshal(peerHelloBytes, &peerHello); err != nil {
		nc.Close()
		return nil, fmt.Errorf("transport: unmarshal peer hello: %w", err)
	}
	if peerHello.NumClients != hello.NumClients || peerHello.DomainSize != hello.DomainSize {
		nc.Close()
		return nil, obserr.New(obserr.KindTransport, fmt.Errorf(
			"transport: handshake mismatch: local clients=%d domain=%d, peer clients=%d domain=%d",
			hello.NumClients, hello.DomainSize, peerHello.NumClients, peerHello.DomainSize))
	}
	log.Debug("session handshake complete", zap.String("party", self.String()))
	return c, nil
}

// recvLoop is the dedicated read goroutine: it owns nc.Read exclusively,
// decoupling inbound framing from whatever the caller's goroutine is doing
// on the write side (the teacher's handler keeps an analogous split
// between its `out` channel writer and the caller-driven Accept path).
func (c *Conn) recvLoop() {
	for {
		f, err := c.readFrame()
		if err != nil {
			select {
			case c.errCh <- err:
			default:
			}
			close(c.inbox)
			return
		}
		select {
		case c.inbox <- f:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readFrame() (frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.nc, lenBuf[:]); err != nil {
		return frame{}, obserr.New(obserr.KindTransport, fmt.Errorf("transport: read length: %w", err))
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return frame{}, obserr.New(obserr.KindTransport, fmt.Errorf("transport: empty frame"))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		return frame{}, obserr.New(obserr.KindTransport, fmt.Errorf("transport: read body: %w", err))
	}
	return frame{kind: buf[0], payload: buf[1:]}, nil
}

func (c *Conn) writeFrame(kind uint8, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	buf := make([]byte, 4+1+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(1+len(payload)))
	buf[4] = kind
	copy(buf[5:], payload)
	if _, err := c.nc.Write(buf); err != nil {
		return obserr.New(obserr.KindTransport, fmt.Errorf("transport: write: %w", err))
	}
	return nil
}

func (c *Conn) readKind(want uint8) ([]byte, error) {
	f, ok := <-c.inbox
	if !ok {
		select {
		case err := <-c.errCh:
			return nil, err
		default:
			return nil, obserr.New(obserr.KindTransport, fmt.Errorf("transport: connection closed"))
		}
	}
	if f.kind != want {
		return nil, obserr.New(obserr.KindTransport, fmt.Errorf("transport: expected frame kind %d, got %d", want, f.kind))
	}
	return f.payload, nil
}

// OpenScalar sends local and returns local+peer, satisfying mac.Peer and
// sketch.Peer.
func (c *Conn) OpenScalar(local field.Elem) (field.Elem, error) {
	b := local.Bytes()
	if err := c.writeFrame(frameScalar, b[:]); err != nil {
		return field.Zero(), err
	}
	payload, err := c.readKind(frameScalar)
	if err != nil {
		return field.Zero(), err
	}
	peer, err := field.FromBytes(payload)
	if err != nil {
		return field.Zero(), obserr.New(obserr.KindTransport, err)
	}
	return local.Add(peer), nil
}

// OpenVector sends local and returns local+peer elementwise.
func (c *Conn) OpenVector(local []field.Elem) ([]field.Elem, error) {
	if err := c.writeFrame(frameVector, field.EncodeVector(local)); err != nil {
		return nil, err
	}
	payload, err := c.readKind(frameVector)
	if err != nil {
		return nil, err
	}
	peer, err := field.DecodeVector(payload)
	if err != nil {
		return nil, obserr.New(obserr.KindTransport, err)
	}
	if len(peer) != len(local) {
		return nil, obserr.New(obserr.KindTransport, fmt.Errorf(
			"transport: vector length mismatch: sent %d, received %d", len(local), len(peer)))
	}
	return field.AddVec(local, peer), nil
}

// SendRaw transmits an opaque byte payload as a single frame, for
// transferring material that has its own bespoke codec (e.g.
// internal/preprocess's dealer-to-party Bundle transfer) rather than the
// scalar/vector field-element shapes OpenScalar/OpenVector assume.
func (c *Conn) SendRaw(payload []byte) error {
	return c.writeFrame(frameRaw, payload)
}

// RecvRaw blocks for the next raw-frame payload sent by the peer via
// SendRaw.
func (c *Conn) RecvRaw() ([]byte, error) {
	return c.readKind(frameRaw)
}

// Close tears down the connection and its receive goroutine.
func (c *Conn) Close() error {
	close(c.done)
	return c.nc.Close()
}
