package transport

import (
	"context"
	"sync"
)

// fakeProvider, fakeConnection and fakeStream are the test doubles named in
// SPEC_FULL.md §8: a Provider implementation driven entirely in-process, so
// Stream's logic can be exercised without a real QUIC socket. Grounded on
// the callback-trigger style of the teacher's quic/safe_stream_test.go
// loopback harness, adapted from a real listener to a synchronous fake.
type fakeProvider struct {
	mu    sync.Mutex
	conns []*fakeConnection
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{}
}

func (p *fakeProvider) OpenConnection(ctx context.Context, addr string, opts *Options, events ConnectionCallbacks) (ProviderConnection, error) {
	c := &fakeConnection{events: events}
	p.mu.Lock()
	p.conns = append(p.conns, c)
	p.mu.Unlock()
	return c, nil
}

func (p *fakeProvider) Close() {}

// lastConn returns the most recently opened fake connection.
func (p *fakeProvider) lastConn() *fakeConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[len(p.conns)-1]
}

type fakeConnection struct {
	events ConnectionCallbacks
	mu     sync.Mutex
	stream *fakeStream
	closed bool
}

func (c *fakeConnection) OpenStream(ctx context.Context, events StreamCallbacks) (ProviderStream, error) {
	s := &fakeStream{events: events}
	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()
	return s, nil
}

func (c *fakeConnection) SetResumptionTicket(ticket []byte) error { return nil }

func (c *fakeConnection) Shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConnection) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// fireConnected synchronously invokes OnConnected, the way a real provider
// would from its own goroutine once the handshake completes.
func (c *fakeConnection) fireConnected() {
	if c.events.OnConnected != nil {
		c.events.OnConnected()
	}
}

func (c *fakeConnection) fireShutdownByTransport(err error) {
	if c.events.OnShutdownByTransport != nil {
		c.events.OnShutdownByTransport(err)
	}
}

func (c *fakeConnection) fireShutdownByPeer(code uint64) {
	if c.events.OnShutdownByPeer != nil {
		c.events.OnShutdownByPeer(code)
	}
}

func (c *fakeConnection) fireShutdownComplete() {
	if c.events.OnShutdownComplete != nil {
		c.events.OnShutdownComplete()
	}
}

// fakeStream is a ProviderStream whose Send is recorded (not actually
// transmitted anywhere) and whose receive side is driven by the test
// calling deliver().
type fakeStream struct {
	events StreamCallbacks

	mu          sync.Mutex
	sent        [][][]byte
	recvEnabled bool
	closed      bool
}

func (s *fakeStream) Send(ctx context.Context, bufs [][]byte) error {
	s.mu.Lock()
	cp := make([][]byte, len(bufs))
	for i, b := range bufs {
		cp[i] = append([]byte(nil), b...)
	}
	s.sent = append(s.sent, cp)
	s.mu.Unlock()

	if s.events.OnSendComplete != nil {
		s.events.OnSendComplete()
	}
	return nil
}

func (s *fakeStream) SetReceiveEnabled(enabled bool) {
	s.mu.Lock()
	s.recvEnabled = enabled
	s.mu.Unlock()
}

func (s *fakeStream) ReceiveComplete(n int) {}

func (s *fakeStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// deliver hands data to OnReceive as if the peer had sent it, only if
// receive is currently enabled (mirrors a real provider's pull-model
// contract).
func (s *fakeStream) deliver(data []byte) {
	s.mu.Lock()
	enabled := s.recvEnabled
	s.mu.Unlock()
	if !enabled {
		return
	}
	if s.events.OnReceive != nil {
		s.events.OnReceive(data)
	}
}

func (s *fakeStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
