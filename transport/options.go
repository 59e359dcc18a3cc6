package transport

import (
	"crypto/tls"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultIdleTimeout is the QUIC idle timeout, per spec §4.1.
	DefaultIdleTimeout = 100 * time.Second
	// DefaultALPN is the ALPN token for MQTT-over-QUIC, per spec §4.1/§GLOSSARY.
	DefaultALPN = "mqtt"
	// DefaultReconnectDelay is the fixed wait before a resumption-backed
	// reconnect attempt, per spec §4.1.
	DefaultReconnectDelay = 3 * time.Second
	// DefaultOverflowInitialCap is the overflow queue's starting capacity,
	// per SPEC_FULL.md §4.2.2 (mirrors NanoNNG's NNG_MAX_RECV_LMQ default).
	DefaultOverflowInitialCap = 16
	// DefaultOverflowCeiling is the overflow queue's maximum capacity after
	// doubling, per SPEC_FULL.md §4.2.2.
	DefaultOverflowCeiling = 1024
	// MaxResumptionTicketSize bounds the resumption ticket copy, per
	// spec §4.1 ("length ≤ 2048").
	MaxResumptionTicketSize = 2048
)

// Options configures a Connect/Reconnect call. Zero values are replaced with
// the defaults above by withDefaults, following the teacher's pattern of
// applying defaults once at the edge (TunnelConfig/ConnectionOptionsSnapshot)
// rather than scattering them through the core.
type Options struct {
	// IdleTimeout is the QUIC idle timeout. Default DefaultIdleTimeout.
	IdleTimeout time.Duration
	// ALPN is the negotiated application protocol. Default DefaultALPN.
	ALPN string
	// ReconnectDelay is the fixed wait before reconnecting on a resumption
	// ticket. Default DefaultReconnectDelay.
	ReconnectDelay time.Duration
	// OverflowInitialCap and OverflowCeiling bound the overflow queue.
	OverflowInitialCap int
	OverflowCeiling    int
	// TLSConfig is the caller-supplied TLS client configuration (out of
	// scope per spec §1: "TLS credential provisioning"). Must not be nil.
	TLSConfig *tls.Config
	// Logger receives structured log events. Defaults to a disabled logger
	// (zerolog.Nop()) if nil.
	Logger *zerolog.Logger
	// PipeFactory constructs the protocol engine's per-stream state.
	PipeFactory PipeFactory
	// Observer receives optional application-level lifecycle notifications.
	Observer *Observer
	// ResumptionTicket is a session ticket captured from a prior connection,
	// offered to the provider before the next dial so it can attempt
	// 0-RTT/1-RTT resumption (spec §4.1). Stream.Connect sets it on its own
	// copy of the Options, before every dial, to the ticket the Stream
	// captured from an earlier connection (nil if none); a value the caller
	// puts here is overwritten.
	ResumptionTicket []byte
}

func (o *Options) withDefaults() *Options {
	out := *o
	if out.IdleTimeout <= 0 {
		out.IdleTimeout = DefaultIdleTimeout
	}
	if out.ALPN == "" {
		out.ALPN = DefaultALPN
	}
	if out.ReconnectDelay <= 0 {
		out.ReconnectDelay = DefaultReconnectDelay
	}
	if out.OverflowInitialCap <= 0 {
		out.OverflowInitialCap = DefaultOverflowInitialCap
	}
	if out.OverflowCeiling <= 0 {
		out.OverflowCeiling = DefaultOverflowCeiling
	}
	if out.Logger == nil {
		nop := zerolog.Nop()
		out.Logger = &nop
	}
	if out.Observer == nil {
		out.Observer = &Observer{}
	}
	return &out
}
