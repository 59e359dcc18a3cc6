// Package quicgo adapts github.com/quic-go/quic-go into the transport.Provider
// contract (SPEC_FULL.md §6.1), the same role connection/quic.go plays
// between cloudflared's proxy logic and the QUIC library it dials with.
package quicgo

import (
	"context"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	qstquic "github.com/quicmqtt/qst/quic"
	"github.com/quicmqtt/qst/transport"
)

// Provider is a transport.Provider backed by quic-go. The zero value is not
// usable; construct with New.
type Provider struct {
	logger  *zerolog.Logger
	metrics *qstquic.ClientCollector

	cachesMu sync.Mutex
	caches   map[string]*sessionCache
}

// New returns a Provider that logs through logger. A nil logger disables
// logging (zerolog.Nop()), mirroring the teacher's logger-everywhere
// constructor convention.
func New(logger *zerolog.Logger) *Provider {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Provider{logger: logger, metrics: qstquic.NewClientCollector(), caches: make(map[string]*sessionCache)}
}

// cacheFor returns the persistent session cache for addr, creating one on
// first use. Kept per-address (not per-Stream) so a reconnect dialing the
// same addr through a fresh Stream.Connect call still offers the ticket
// captured by the previous connection attempt.
func (p *Provider) cacheFor(addr string, onNew func(ticket []byte)) *sessionCache {
	p.cachesMu.Lock()
	defer p.cachesMu.Unlock()
	c, ok := p.caches[addr]
	if !ok {
		c = newSessionCache(onNew, p.metrics)
		p.caches[addr] = c
	} else {
		c.mu.Lock()
		c.onNew = onNew
		c.mu.Unlock()
	}
	return c
}

// OpenConnection dials addr over QUIC, offering for 0-RTT/1-RTT resumption
// whatever TLS session this Provider's per-address session cache (installed
// on the TLS config) captured from an earlier connection to addr;
// opts.ResumptionTicket is not read. It blocks until the handshake completes
// and fires OnConnected before returning. Grounded on connection/quic.go's NewQUICConnection (quic.Dial +
// tlsConfig), updated to the context-taking quic.DialAddr signature this
// module's quic-go version exposes.
func (p *Provider) OpenConnection(ctx context.Context, addr string, opts *transport.Options, events transport.ConnectionCallbacks) (transport.ProviderConnection, error) {
	if opts.TLSConfig == nil {
		return nil, fmt.Errorf("qst/quicgo: Options.TLSConfig must not be nil")
	}
	tlsConf := opts.TLSConfig.Clone()
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{opts.ALPN}
	}
	tlsConf.ClientSessionCache = p.cacheFor(addr, events.OnResumptionTicket)

	qConf := &quic.Config{
		MaxIdleTimeout:  opts.IdleTimeout,
		KeepAlivePeriod: opts.IdleTimeout / 2,
		Allow0RTT:       true,
	}

	qconn, err := quic.DialAddr(ctx, addr, tlsConf, qConf)
	if err != nil {
		return nil, err
	}
	p.metrics.ConnectionOpened()

	c := &providerConnection{
		conn:    qconn,
		logger:  p.logger,
		metrics: p.metrics,
	}
	go c.watchShutdown(events)

	if events.OnConnected != nil {
		events.OnConnected()
	}
	return c, nil
}

// Close is a no-op: quic-go keeps no process-wide provider state to release,
// unlike MsQuic's registration/configuration handles that the source's
// quic_open/quic_close manage explicitly.
func (p *Provider) Close() {}

type providerConnection struct {
	conn    quic.Connection
	logger  *zerolog.Logger
	metrics *qstquic.ClientCollector
}

func (c *providerConnection) OpenStream(ctx context.Context, events transport.StreamCallbacks) (transport.ProviderStream, error) {
	qs, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return newProviderStream(qs, c.logger, c.metrics, events), nil
}

// SetResumptionTicket is a no-op here: resumption comes from the per-address
// TLS session cache installed at dial time (see Provider.OpenConnection), and
// the ticket bytes are not used, since quic-go's Dial already performs the
// handshake by the time a transport.ProviderConnection exists to call this
// on. Kept to satisfy transport.ProviderConnection for adapters whose
// underlying library supports a genuine two-phase connect/resume.
func (c *providerConnection) SetResumptionTicket(ticket []byte) error { return nil }

func (c *providerConnection) Shutdown() {
	c.conn.CloseWithError(0, "")
}

func (c *providerConnection) Close() {
	c.conn.CloseWithError(0, "")
}

// watchShutdown blocks until the connection's context is done and classifies
// why, dispatching the matching ConnectionCallbacks event. Grounded on
// quic_api.c's QuicConnectionCallback SHUTDOWN_INITIATED_BY_TRANSPORT/
// SHUTDOWN_INITIATED_BY_PEER/SHUTDOWN_COMPLETE cases.
func (c *providerConnection) watchShutdown(events transport.ConnectionCallbacks) {
	<-c.conn.Context().Done()
	cause := context.Cause(c.conn.Context())
	c.metrics.ConnectionClosed()

	var appErr *quic.ApplicationError
	switch {
	case asApplicationError(cause, &appErr):
		if events.OnShutdownByPeer != nil {
			events.OnShutdownByPeer(uint64(appErr.ErrorCode))
		}
	default:
		if events.OnShutdownByTransport != nil {
			events.OnShutdownByTransport(cause)
		}
	}
	if events.OnShutdownComplete != nil {
		events.OnShutdownComplete()
	}
}

func asApplicationError(err error, target **quic.ApplicationError) bool {
	ae, ok := err.(*quic.ApplicationError)
	if !ok {
		return false
	}
	*target = ae
	return true
}
