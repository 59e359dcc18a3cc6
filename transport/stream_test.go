package transport

import (
	"context"
	"crypto/tls"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nopPipe counts Close/Stop/Fini invocations so tests can assert the
// lifecycle handlers call each exactly the number of times the Pipe
// contract (transport/pipe.go) promises -- catching a double-teardown
// regression instead of merely exercising the happy path.
type nopPipe struct {
	initErr, startErr error

	mu         sync.Mutex
	closeCount int
	stopCount  int
	finiCount  int
}

func (p *nopPipe) Init(s *Stream) error { return p.initErr }
func (p *nopPipe) Start() error         { return p.startErr }

func (p *nopPipe) Close() {
	p.mu.Lock()
	p.closeCount++
	p.mu.Unlock()
}

func (p *nopPipe) Stop() {
	p.mu.Lock()
	p.stopCount++
	p.mu.Unlock()
}

func (p *nopPipe) Fini() {
	p.mu.Lock()
	p.finiCount++
	p.mu.Unlock()
}

func (p *nopPipe) counts() (closeN, stopN, finiN int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount, p.stopCount, p.finiCount
}

func testOptions() *Options {
	return &Options{
		TLSConfig:      &tls.Config{},
		PipeFactory:    func() Pipe { return &nopPipe{} },
		ReconnectDelay: 10 * time.Millisecond,
	}
}

// testOptionsCapturingPipe is testOptions, except the single *nopPipe built
// by PipeFactory is stashed into pipe so the caller can inspect its call
// counts after the fact.
func testOptionsCapturingPipe(pipe **nopPipe) *Options {
	return &Options{
		TLSConfig: &tls.Config{},
		PipeFactory: func() Pipe {
			p := &nopPipe{}
			*pipe = p
			return p
		},
		ReconnectDelay: 10 * time.Millisecond,
	}
}

func connectedStream(t *testing.T) (*Stream, *fakeProvider, *fakeConnection, *fakeStream) {
	t.Helper()
	provider := newFakeProvider()
	s := NewStream("example:4433", provider, testOptions(), nil)
	t.Cleanup(s.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))

	conn := provider.lastConn()
	conn.fireConnected()

	conn.mu.Lock()
	fs := conn.stream
	conn.mu.Unlock()
	require.NotNil(t, fs)

	return s, provider, conn, fs
}

func TestStreamConnectAndReceive(t *testing.T) {
	s, _, _, fs := connectedStream(t)

	done := make(chan Packet, 1)
	go func() {
		pkt, err := s.Receive(context.Background())
		require.NoError(t, err)
		done <- pkt
	}()

	// Give the receive goroutine a chance to register as the head waiter
	// and enable delivery before the fake stream delivers data.
	require.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return fs.recvEnabled
	}, time.Second, time.Millisecond)

	fs.deliver([]byte{0xD0, 0x00})

	select {
	case pkt := <-done:
		assert.Equal(t, []byte{0xD0, 0x00}, pkt.Header)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoded packet")
	}
}

func TestStreamSendDispatchesAndCompletes(t *testing.T) {
	s, _, _, fs := connectedStream(t)

	err := s.Send(context.Background(), &SendRequest{Header: []byte{0x30, 0x00}})
	require.NoError(t, err)
	assert.Equal(t, 1, fs.sentCount())
}

func TestStreamReceiveCancellation(t *testing.T) {
	s, _, _, _ := connectedStream(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Receive(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, ErrCancelled, kind)
	case <-time.After(time.Second):
		t.Fatal("cancellation did not unblock Receive")
	}
}

func TestStreamCloseFailsPendingReceive(t *testing.T) {
	s, _, _, _ := connectedStream(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Receive(context.Background())
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	s.Close()

	select {
	case err := <-errCh:
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, ErrClosed, kind)
	case <-time.After(time.Second):
		t.Fatal("close did not unblock Receive")
	}
}

func TestStreamOverflowDeliversWithoutWaiter(t *testing.T) {
	s, _, _, fs := connectedStream(t)

	s.mu.Lock()
	s.setReceiveEnabledLocked(true)
	s.mu.Unlock()

	fs.deliver([]byte{0xD0, 0x00})

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.overflow.empty()
	}, time.Second, time.Millisecond)

	pkt, err := s.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD0, 0x00}, pkt.Header)
}

func TestStreamReconnectAfterTransportShutdownWithTicket(t *testing.T) {
	s, provider, conn, _ := connectedStream(t)
	s.onResumptionTicket([]byte("ticket"))

	conn.fireShutdownByTransport(assertErr)
	conn.fireShutdownComplete()

	require.Eventually(t, func() bool {
		return len(provider.conns) == 2
	}, time.Second, time.Millisecond)
}

var assertErr = context.DeadlineExceeded

// connectedStreamWithPipe is connectedStream, but the Pipe built for the
// connection is a *nopPipe the test can inspect afterwards.
func connectedStreamWithPipe(t *testing.T) (*Stream, *fakeProvider, *fakeConnection, *nopPipe) {
	t.Helper()
	var pipe *nopPipe
	provider := newFakeProvider()
	s := NewStream("example:4433", provider, testOptionsCapturingPipe(&pipe), nil)
	t.Cleanup(s.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))

	conn := provider.lastConn()
	conn.fireConnected()

	require.Eventually(t, func() bool { return pipe != nil }, time.Second, time.Millisecond)
	return s, provider, conn, pipe
}

// TestStreamShutdownByTransportWithoutTicketClosesPipeExactlyOnce covers the
// no-ticket branch of onShutdownByTransport (previously untested): the pipe
// must be notified exactly once (Close+Stop+Fini), not twice via
// closeWithCause re-reading a never-nulled s.pipe.
func TestStreamShutdownByTransportWithoutTicketClosesPipeExactlyOnce(t *testing.T) {
	s, _, conn, pipe := connectedStreamWithPipe(t)

	conn.fireShutdownByTransport(assertErr)
	conn.fireShutdownComplete()

	require.Eventually(t, func() bool {
		kind, ok := KindOf(s.Err())
		return ok && kind == ErrTransport
	}, time.Second, time.Millisecond)

	closeN, stopN, finiN := pipe.counts()
	assert.Equal(t, 1, closeN, "Close should run exactly once")
	assert.Equal(t, 1, stopN, "Stop should run exactly once")
	assert.Equal(t, 1, finiN, "Fini should run exactly once")
}

// TestStreamShutdownByPeerWithoutTicketIsTerminal covers onShutdownByPeer's
// no-ticket path: terminal, pipe torn down exactly once.
func TestStreamShutdownByPeerWithoutTicketIsTerminal(t *testing.T) {
	s, _, conn, pipe := connectedStreamWithPipe(t)

	conn.fireShutdownByPeer(42)
	conn.fireShutdownComplete()

	require.Eventually(t, func() bool {
		kind, ok := KindOf(s.Err())
		return ok && kind == ErrTransport
	}, time.Second, time.Millisecond)

	closeN, stopN, finiN := pipe.counts()
	assert.Equal(t, 1, closeN)
	assert.Equal(t, 1, stopN)
	assert.Equal(t, 1, finiN)
}

// TestStreamReconnectAfterPeerShutdownWithTicket is the redesign's behavior
// change: a resumption ticket gates reconnect uniformly across shutdown
// events (spec §4.1/§4.4; original_source/quic_api.c's QuicConnectionCallback,
// ~lines 302-349), so a peer-initiated shutdown with a ticket in hand
// reconnects exactly like a transport-initiated one, instead of always being
// terminal.
func TestStreamReconnectAfterPeerShutdownWithTicket(t *testing.T) {
	s, provider, conn, pipe := connectedStreamWithPipe(t)
	s.onResumptionTicket([]byte("ticket"))

	conn.fireShutdownByPeer(42)
	conn.fireShutdownComplete()

	require.Eventually(t, func() bool {
		return len(provider.conns) == 2
	}, time.Second, time.Millisecond)

	closeN, stopN, finiN := pipe.counts()
	assert.Equal(t, 1, closeN)
	assert.Equal(t, 1, stopN)
	assert.Equal(t, 1, finiN)
	assert.Nil(t, s.Err())
}

func TestStreamProtocolErrorClosesStream(t *testing.T) {
	s, _, _, fs := connectedStream(t)

	s.mu.Lock()
	s.setReceiveEnabledLocked(true)
	s.mu.Unlock()

	// A fourth remaining-length byte with its continuation bit set is
	// invalid and must close the stream rather than hang or panic.
	fs.deliver([]byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF})

	require.Eventually(t, func() bool {
		kind, ok := KindOf(s.Err())
		return ok && kind == ErrProtocol
	}, time.Second, time.Millisecond)

	_, err := s.Receive(context.Background())
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrClosed, kind)
}

func TestStreamSendQueuesWhileDisconnectedThenDispatches(t *testing.T) {
	provider := newFakeProvider()
	s := NewStream("example:4433", provider, testOptions(), nil)
	t.Cleanup(s.Close)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Send(context.Background(), &SendRequest{Header: []byte{0x30, 0x00}})
	}()

	// No connection exists yet, so the send must sit queued rather than
	// erroring or blocking forever.
	time.Sleep(10 * time.Millisecond)
	select {
	case <-errCh:
		t.Fatal("send completed before a connection existed")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))
	conn := provider.lastConn()
	conn.fireConnected()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("queued send was never dispatched after connect")
	}
}
