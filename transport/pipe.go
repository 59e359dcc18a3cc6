package transport

// Pipe is the protocol engine contract exposed upward from QST (spec §4.1,
// §6.2): the per-stream state owned by the MQTT protocol engine, created
// once the QUIC handshake completes and torn down at the matching lifecycle
// transitions. QST holds exactly one Pipe per Stream.
//
// There is no Go analogue of the source's pipe_size/two-phase alloc-then-init
// — PipeFactory constructs an already-allocated Pipe value; Init wires it to
// the Stream it will submit I/O through, breaking the Stream<->Pipe cyclic
// reference the source expresses with a raw back-pointer (SPEC_FULL.md §9).
type Pipe interface {
	// Init binds the pipe to the stream it will use for Send/Receive. It is
	// called once, immediately after construction, before Start.
	Init(s *Stream) error
	// Start begins active processing (e.g. issuing CONNECT). Called once,
	// right after Init, on transition to the Ready state.
	Start() error
	// Close notifies the pipe that the underlying connection is going
	// away. Called on transition to Draining. Must not block.
	Close()
	// Stop waits for any in-flight pipe work to quiesce. Called
	// immediately after Close.
	Stop()
	// Fini releases all pipe-owned resources. Called once, after Stop, on
	// transition to ShutdownComplete. The pipe is not reused after Fini.
	Fini()
}

// PipeFactory constructs a new Pipe for a Stream. Invoked once per
// successful handshake (including every reconnect).
type PipeFactory func() Pipe
