package transport

// Observer carries optional application-level lifecycle hooks, grounded on
// the teacher's connection.Observer / ConnAwareLogger pattern
// (supervisor/tunnel.go). Unlike the mandatory *zerolog.Logger (structured,
// for operators), Observer is for a caller that wants to react to lifecycle
// transitions in code (e.g. updating a UI connection indicator). Every field
// is optional.
type Observer struct {
	// OnConnected fires once the handshake completes and the pipe has
	// started.
	OnConnected func()
	// OnReconnecting fires before a reconnect attempt is dispatched.
	OnReconnecting func()
	// OnClosed fires once the Stream is fully torn down. err is nil for a
	// caller-initiated Close, non-nil for a transport-caused teardown.
	OnClosed func(err error)
	// OnProtocolError fires when the decoder detects a malformed frame,
	// immediately before the stream is marked closed.
	OnProtocolError func(err error)
}

func (o *Observer) connected() {
	if o != nil && o.OnConnected != nil {
		o.OnConnected()
	}
}

func (o *Observer) reconnecting() {
	if o != nil && o.OnReconnecting != nil {
		o.OnReconnecting()
	}
}

func (o *Observer) closed(err error) {
	if o != nil && o.OnClosed != nil {
		o.OnClosed(err)
	}
}

func (o *Observer) protocolError(err error) {
	if o != nil && o.OnProtocolError != nil {
		o.OnProtocolError(err)
	}
}
