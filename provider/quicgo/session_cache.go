package quicgo

import (
	"crypto/tls"
	"sync"

	qstquic "github.com/quicmqtt/qst/quic"
)

// sessionCache is a tls.ClientSessionCache of exactly one entry, bridging
// quic-go's standard TLS session-ticket machinery into the single
// resumption ticket a transport.Stream carries across reconnects (spec
// §4.1). Grounded on quic_api.c's rticket/rticket_sz/rticket_active fields:
// one ticket, captured on RESUMPTION_TICKET_RECEIVED, offered on the next
// quic_connect.
//
// tls.ClientSessionState has no stable public serialization this module's
// Go version can round-trip through transport.Options.ResumptionTicket, so
// the live *tls.ClientSessionState is kept in-process, one cache per dial
// address, for the lifetime of the owning Provider (see Provider.cacheFor).
// onNew still reports a presence marker through the normal []byte-shaped
// callback so transport.Stream's reconnect-on-ticket logic needs no
// quic-go-specific knowledge.
type sessionCache struct {
	mu      sync.Mutex
	session *tls.ClientSessionState
	onNew   func(ticket []byte)
	metrics *qstquic.ClientCollector
}

func newSessionCache(onNew func(ticket []byte), metrics *qstquic.ClientCollector) *sessionCache {
	return &sessionCache{onNew: onNew, metrics: metrics}
}

func (c *sessionCache) Get(sessionKey string) (*tls.ClientSessionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, false
	}
	return c.session, true
}

func (c *sessionCache) Put(sessionKey string, cs *tls.ClientSessionState) {
	c.mu.Lock()
	c.session = cs
	c.mu.Unlock()

	if c.onNew == nil {
		return
	}
	if cs == nil {
		return
	}
	// The marker's content is irrelevant to transport.Stream -- only its
	// non-empty length matters, per spec §4.1's "if a resumption ticket is
	// present, attempt one reconnect".
	if c.metrics != nil {
		c.metrics.ResumptionTicketSeen()
	}
	c.onNew([]byte("ticket"))
}
