// Package transport implements the MQTT-over-QUIC stream transport (QST):
// the per-stream state machine that sits between a QUIC provider (delivering
// opaque byte chunks on an ordered, reliable bidirectional stream) and an
// MQTT protocol engine that submits and consumes whole control packets.
//
// The package owns stream framing, flow-controlled buffering, send/receive
// request queueing, and connection lifecycle (connect, graceful shutdown,
// 0-RTT resumption, automatic reconnect). It does not speak QUIC itself —
// see the Provider interface — nor does it interpret decoded MQTT packets —
// see the Pipe interface.
package transport
