package transport

import (
	"context"

	"github.com/quicmqtt/qst/retry"
)

// Connect dials addr: open the QUIC connection and its one stream. It
// returns once the provider has handed back both handles, or with an error;
// the transition to Ready and the construction and start of the Pipe happen
// in onConnected, which a provider may fire before or after Connect returns
// (provider/quicgo fires it before its OpenConnection returns; a provider
// that reports the handshake asynchronously fires it later). Grounded on quic_connect in
// quic_api.c and the teacher's QUICConnection.Connect (connection/quic.go),
// generalized to the explicit connState machine of SPEC_FULL.md §4.1.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return newErr(ErrClosed, "connect", nil)
	}
	if s.state != stateIdle && s.state != stateShutdownComplete {
		s.mu.Unlock()
		return newErr(ErrTransport, "connect", errAlreadyConnecting)
	}
	s.state = stateConnecting
	s.gen++
	gen := s.gen
	opts := *s.opts
	opts.ResumptionTicket = s.resumptionTicket
	s.mu.Unlock()

	conn, err := s.provider.OpenConnection(ctx, s.addr, &opts, ConnectionCallbacks{
		OnConnected:           func() { s.onConnected(gen) },
		OnShutdownByTransport: func(err error) { s.onShutdownByTransport(gen, err) },
		OnShutdownByPeer:      func(code uint64) { s.onShutdownByPeer(gen, code) },
		OnShutdownComplete:    func() { s.onShutdownComplete(gen) },
		OnResumptionTicket:    s.onResumptionTicket,
	})
	if err != nil {
		s.mu.Lock()
		s.state = stateIdle
		s.mu.Unlock()
		return wrapTransport("connect", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	streamHandle, err := conn.OpenStream(ctx, StreamCallbacks{
		OnReceive:      s.onProviderReceive,
		OnSendComplete: s.onProviderSendComplete,
	})
	if err != nil {
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.state = stateIdle
		s.mu.Unlock()
		return wrapTransport("connect", err)
	}

	s.mu.Lock()
	s.streamHandle = streamHandle
	// Receive delivery may already be marked enabled (by an onConnected that
	// ran before this handle existed, or by a previous connection); a fresh
	// provider stream starts disabled, so forward that state to it.
	if s.decode.recvEnabled {
		streamHandle.SetReceiveEnabled(true)
	}
	// onConnected may have already fired (it is connection-level, OpenStream
	// is a separate round trip) and found no streamHandle to replay against;
	// catch up here in case a send was queued in that window.
	s.replaySendHeadLocked()
	s.mu.Unlock()

	return nil
}

// Reconnect waits the configured ReconnectDelay and then re-dials, carrying
// forward any resumption ticket captured from the previous connection.
// Grounded on quic_reconnect in quic_api.c: fixed delay, single attempt, no
// exponential backoff (spec §4.1 explicitly calls this out as a deliberate
// simplification vs. cloudflared's BackoffHandler).
func (s *Stream) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return newErr(ErrClosed, "reconnect", nil)
	}
	delay := s.opts.ReconnectDelay
	s.mu.Unlock()

	s.observer().reconnecting()
	s.metrics.reconnects.Inc()

	if !retry.Wait(ctx, delay) {
		return newErr(ErrCancelled, "reconnect", ctx.Err())
	}
	return s.Connect(ctx)
}

// onConnected is the OnConnected callback (spec §4.1): transition to Ready,
// construct and start the Pipe, and replay any send request that was
// queued before the connection was available.
func (s *Stream) onConnected(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = stateReady
	pipe := s.opts.PipeFactory()
	s.pipe = pipe
	s.mu.Unlock()

	if err := pipe.Init(s); err != nil {
		s.failProtocol(wrapTransport("pipe_init", err))
		return
	}
	if err := pipe.Start(); err != nil {
		s.failProtocol(wrapTransport("pipe_start", err))
		return
	}

	s.mu.Lock()
	s.decode.reset()
	s.setReceiveEnabledLocked(true)
	s.replaySendHeadLocked()
	s.mu.Unlock()

	s.observer().connected()
}

// onShutdownByTransport is the OnShutdownByTransport callback (spec §4.1,
// §4.4): the connection died for a reason other than an explicit peer
// shutdown (commonly an idle timeout). Informational only, per
// transport/provider.go's doc comment: it notifies the pipe and records the
// cause, but the reconnect-vs-terminal decision is made once, later, in
// onShutdownComplete. Grounded on the teacher's quic.IdleTimeoutError
// handling in supervisor/tunnel.go and quic_reconnect's invocation point in
// quic_api.c.
func (s *Stream) onShutdownByTransport(gen uint64, err error) {
	s.drain(gen, wrapTransport("connection", err))
}

// onShutdownByPeer is the OnShutdownByPeer callback (spec §4.4): the remote
// peer explicitly closed the connection. Like onShutdownByTransport, it only
// notifies the pipe and records the cause; a resumption ticket captured
// before the peer's shutdown still gets a reconnect attempt, decided in
// onShutdownComplete, matching original_source/quic_api.c's
// QuicConnectionCallback, where SHUTDOWN_INITIATED_BY_PEER does nothing but
// pipe_close+pipe_stop and SHUTDOWN_COMPLETE owns fini and the reconnect
// gate (~lines 302-349).
func (s *Stream) onShutdownByPeer(gen uint64, errorCode uint64) {
	s.drain(gen, newErr(ErrTransport, "connection", errPeerShutdown(errorCode)))
}

// drain is the shared Draining-transition body for onShutdownByTransport and
// onShutdownByPeer (spec §4.4): record the cause, tell the pipe the
// connection is going away (Close, then Stop -- Fini is reserved for the
// ShutdownComplete transition per the Pipe contract), and drop the
// now-dead connection/stream handles.
func (s *Stream) drain(gen uint64, cause error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = stateDraining
	s.shutdownCause = cause
	pipe := s.pipe
	s.streamHandle = nil
	s.conn = nil
	s.mu.Unlock()

	if pipe != nil {
		pipe.Close()
		pipe.Stop()
	}

	s.mu.Lock()
	s.pipeDrained = true
	s.mu.Unlock()
}

// onShutdownComplete is the OnShutdownComplete callback (spec §4.4): both
// directions of the QUIC connection are fully torn down. This is the single
// place that finalizes the pipe (Fini) and decides whether to reconnect,
// gated only on resumption-ticket presence -- not on which shutdown event
// preceded it -- matching original_source/quic_api.c's
// QuicConnectionCallback SHUTDOWN_COMPLETE branch (~lines 302-349). A
// ShutdownComplete with no prior Draining transition means the connection
// died without either shutdown callback firing, which is unexpected and
// always terminal.
func (s *Stream) onShutdownComplete(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	if s.state != stateDraining {
		s.mu.Unlock()
		s.closeWithCause(newErr(ErrTransport, "connection", errUnexpectedShutdown))
		return
	}

	pipe := s.pipe
	cause := s.shutdownCause
	ticket := s.resumptionTicket
	s.pipe = nil
	s.pipeDrained = false
	s.mu.Unlock()

	if pipe != nil {
		pipe.Fini()
	}

	if len(ticket) == 0 {
		s.closeWithCause(cause)
		return
	}

	s.mu.Lock()
	s.state = stateShutdownComplete
	s.mu.Unlock()

	go func() {
		if rerr := s.Reconnect(context.Background()); rerr != nil {
			s.closeWithCause(wrapTransport("reconnect", rerr))
		}
	}()
}

// onResumptionTicket is the OnResumptionTicket callback (spec §4.1): capture
// a copy of the ticket for the next Reconnect. ticket must be copied because
// the provider reuses/frees the backing slice after this call returns.
func (s *Stream) onResumptionTicket(ticket []byte) {
	if len(ticket) > MaxResumptionTicketSize {
		ticket = ticket[:MaxResumptionTicketSize]
	}
	cp := append([]byte(nil), ticket...)

	s.mu.Lock()
	s.resumptionTicket = cp
	s.mu.Unlock()
}
