package transport

import "context"

// Provider is the QUIC provider contract QST is built against (SPEC_FULL.md
// §6.1). It is the external collaborator standing in for the QUIC stack:
// QST never imports a QUIC library directly, only this interface, so that
// provider/quicgo (and any future adapter) can translate a concrete QUIC
// implementation's API into the callback shape below.
type Provider interface {
	// OpenConnection dials addr (host:port) and returns a handle to the
	// connection once dial has been dispatched. Connection completion
	// (handshake done, or failure) is reported asynchronously through
	// events. OpenConnection itself only fails if dispatch could not even
	// be started (equivalent to spec §4.1's "on any failure prior to
	// dispatch"). An implementation may instead complete the handshake
	// before returning: provider/quicgo does, firing OnConnected before
	// OpenConnection returns and returning a handshake failure as its error.
	OpenConnection(ctx context.Context, addr string, opts *Options, events ConnectionCallbacks) (ProviderConnection, error)

	// Close releases process-wide provider resources (registration,
	// configuration). Called once at process teardown.
	Close()
}

// ProviderConnection is a single QUIC connection.
type ProviderConnection interface {
	// OpenStream starts the single bidirectional stream used for this
	// connection (Non-goals: no multiplexing). OnReceive fires on a
	// provider-owned goroutine; OnSendComplete may fire on the goroutine
	// calling Send, before Send returns.
	OpenStream(ctx context.Context, events StreamCallbacks) (ProviderStream, error)

	// SetResumptionTicket installs a previously captured ticket so the next
	// ConnectionStart attempts 0-RTT/1-RTT resumption. Must be called
	// before the connection is dialed.
	SetResumptionTicket(ticket []byte) error

	// Shutdown asks the provider to begin a graceful connection shutdown
	// (no flags, error code 0, per spec §6). OnShutdownComplete eventually
	// fires.
	Shutdown()

	// Close releases the connection handle immediately.
	Close()
}

// ProviderStream is the single bidirectional QUIC stream for a connection.
type ProviderStream interface {
	// Send submits bufs (at most two: header, body) as one QUIC send with
	// no flags. OnSendComplete fires once the provider is done with bufs.
	Send(ctx context.Context, bufs [][]byte) error

	// SetReceiveEnabled toggles the provider's explicit pull-model receive
	// delivery. Re-enabling while already enabled must be a no-op observed
	// by the caller (QST itself guards this with a boolean, per SPEC_FULL.md
	// §9, so a Provider is free to treat redundant calls as errors or
	// no-ops without QST ever triggering the redundant case).
	SetReceiveEnabled(enabled bool)

	// ReceiveComplete acknowledges n consumed bytes back to the provider so
	// it stops buffering them on its side.
	ReceiveComplete(n int)

	// Close releases the stream handle.
	Close()
}

// ConnectionCallbacks are the QUIC connection events QST handles, per spec
// §4.1. Each field is optional; a nil callback is simply not invoked.
type ConnectionCallbacks struct {
	// OnConnected fires once the handshake completes.
	OnConnected func()
	// OnShutdownByTransport fires when QUIC itself initiated shutdown
	// (e.g. idle timeout). Informational only; teardown follows via
	// OnShutdownComplete.
	OnShutdownByTransport func(err error)
	// OnShutdownByPeer fires when the remote peer explicitly shut the
	// connection down.
	OnShutdownByPeer func(errorCode uint64)
	// OnShutdownComplete fires once both directions are fully torn down
	// and the connection handle may be released.
	OnShutdownComplete func()
	// OnResumptionTicket fires when the provider receives a session
	// resumption ticket from the server. ticket must be copied by the
	// callee; the slice is not valid after the call returns.
	OnResumptionTicket func(ticket []byte)
}

// StreamCallbacks are the QUIC stream events QST handles, per spec §4.2-4.3.
type StreamCallbacks struct {
	// OnReceive fires with a chunk of bytes delivered by the peer. data
	// must be copied by the callee; the slice is not valid after the call
	// returns. The provider must not call OnReceive again until
	// SetReceiveEnabled(true) is called (explicit pull model).
	OnReceive func(data []byte)
	// OnSendComplete fires once a previously submitted Send has been fully
	// handed off by the provider.
	OnSendComplete func()
}
