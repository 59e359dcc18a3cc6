package transport

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrKind classifies the reason a Send, Receive, Connect or Reconnect call
// failed. See SPEC_FULL.md §7.
type ErrKind int

const (
	// ErrClosed means the stream is shut down; terminal and monotonic.
	ErrClosed ErrKind = iota
	// ErrCancelled means the request's context was cancelled before dispatch.
	ErrCancelled
	// ErrProtocol means the frame decoder found a malformed or inconsistent
	// fixed header / remaining length.
	ErrProtocol
	// ErrTransport means the QUIC provider returned a failing status.
	ErrTransport
	// ErrResourceExhausted means the overflow queue is full and cannot grow
	// past its ceiling.
	ErrResourceExhausted
)

func (k ErrKind) String() string {
	switch k {
	case ErrClosed:
		return "closed"
	case ErrCancelled:
		return "cancelled"
	case ErrProtocol:
		return "protocol"
	case ErrTransport:
		return "transport"
	case ErrResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every QST operation that fails for a
// reason classified in ErrKind. Op names the operation that failed
// ("connect", "send", "receive", ...).
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("qst: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("qst: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so
// errors.Is(err, &Error{Kind: ErrClosed}) matches any closed error whatever
// its Op or cause. KindOf extracts the kind directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind ErrKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// wrapTransport wraps cause (typically a provider error) into a Transport
// Error, preserving the original cause via github.com/pkg/errors the way the
// teacher's connection/quic.go wraps dial failures.
func wrapTransport(op string, cause error) *Error {
	return newErr(ErrTransport, op, pkgerrors.Wrap(cause, op))
}

// KindOf reports the ErrKind of err, or false if err is not a *Error.
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// errBadRemainingLength is the cause wrapped into a Protocol Error when the
// decoder cannot parse a valid MQTT remaining-length field (spec §6).
var errBadRemainingLength = errors.New("qst: invalid mqtt remaining-length encoding")

// errAlreadyConnecting is the cause wrapped when Connect is called while the
// stream is already Connecting or Ready.
var errAlreadyConnecting = errors.New("qst: stream is already connecting or connected")

// errPeerShutdown wraps the QUIC application error code the peer used to
// shut the connection down.
func errPeerShutdown(code uint64) error {
	return fmt.Errorf("qst: peer shut down connection with error code %d", code)
}

// errUnexpectedShutdown covers OnShutdownComplete firing without a prior
// OnShutdownByTransport/OnShutdownByPeer event.
var errUnexpectedShutdown = errors.New("qst: connection shutdown completed without a prior shutdown event")
