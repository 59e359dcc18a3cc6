package transport

import (
	"container/list"
	"sync"

	"github.com/rs/zerolog"
)

// connState is the stream-level lifecycle state machine from SPEC_FULL.md
// §4.1/§4.4: Idle -> Connecting -> Ready -> Draining -> ShutdownComplete,
// with ShutdownComplete looping back to Connecting on a resumption-backed
// reconnect or terminating at Destroyed on an explicit Close.
type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateReady
	stateDraining
	stateShutdownComplete
	stateDestroyed
)

func (s connState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	case stateShutdownComplete:
		return "shutdown_complete"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Stream is a single MQTT-over-QUIC client transport, the package's central
// type (SPEC_FULL.md §3-§5). One Stream owns one logical connection attempt
// at a time plus everything needed to carry it across reconnects: the
// decode pipeline, the send/receive queues, and the resumption ticket.
// Grounded field-for-field on quic_strm_t (original_source/src/supplemental/
// quic/quic_api.c), generalized per SPEC_FULL.md §9 to use one *sync.Mutex
// serializing every field the way quic_strm_t's mtx does.
type Stream struct {
	id      StreamID
	addr    string
	opts    *Options
	pipe    Pipe
	logger_ *zerolog.Logger
	metrics *streamMetrics

	provider Provider

	mu       sync.Mutex
	state    connState
	closed   bool
	closeErr error
	// gen increments on every Connect call. Connection/stream event
	// callbacks close over the generation active when they were registered
	// so a stale event from a connection a reconnect has already superseded
	// is a no-op instead of corrupting the new connection's state.
	gen uint64

	conn         ProviderConnection
	streamHandle ProviderStream

	// shutdownCause is the error recorded by onShutdownByTransport/
	// onShutdownByPeer, consumed by onShutdownComplete once it decides
	// whether to reconnect (ticket present) or finalize (ticket absent).
	shutdownCause error
	// pipeDrained records whether pipe.Close/Stop have already run for the
	// current pipe, so closeWithCause does not repeat them when it runs
	// after a Draining transition already did.
	pipeDrained bool

	ring          *ring
	decode        decodeState
	decodeTrigger chan struct{}
	overflow      *overflowQueue

	recvQueue *list.List
	sendQueue *list.List

	resumptionTicket []byte

	registry *Registry

	wg sync.WaitGroup
}

// NewStream allocates a Stream bound to addr (host:port) using provider for
// all QUIC I/O. The stream starts Idle; call Connect to dial. Grounded on
// quic_open in quic_api.c (zero-value struct allocation plus queue init) and
// the teacher's QUICConnection constructor in connection/quic.go.
func NewStream(addr string, provider Provider, opts *Options, registry *Registry) *Stream {
	o := opts.withDefaults()
	s := &Stream{
		id:            newStreamID(),
		addr:          addr,
		opts:          o,
		logger_:       o.Logger,
		metrics:       newStreamMetrics(),
		provider:      provider,
		state:         stateIdle,
		ring:          &ring{},
		overflow:      newOverflowQueue(o.OverflowInitialCap, o.OverflowCeiling),
		recvQueue:     list.New(),
		sendQueue:     list.New(),
		decodeTrigger: make(chan struct{}, 1),
		registry:      registry,
	}
	s.decode.reset()
	if registry != nil {
		registry.add(s)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runDecodeLoop()
	}()
	return s
}

// ID returns the Stream's identity in its owning Registry, if any.
func (s *Stream) ID() StreamID { return s.id }

func (s *Stream) logger() *zerolog.Logger { return s.logger_ }

func (s *Stream) observer() *Observer { return s.opts.Observer }

// closeWithCause marks the stream permanently closed, fails every pending
// send/receive request, notifies the pipe and observer, and stops the
// decoder task. Safe to call more than once; only the first call has an
// effect. Grounded on quic_strm_t's closed flag and the mqtt_quic_strm_close/
// QUIC_STREAM_EVENT_SHUTDOWN_COMPLETE handling in quic_api.c.
func (s *Stream) closeWithCause(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = err
	s.state = stateDestroyed

	for e := s.recvQueue.Front(); e != nil; e = e.Next() {
		w := e.Value.(*recvWaiter)
		select {
		case w.result <- recvResult{Err: newErr(ErrClosed, "receive", err)}:
		default:
		}
	}
	s.recvQueue.Init()

	for e := s.sendQueue.Front(); e != nil; e = e.Next() {
		w := e.Value.(*sendWaiter)
		select {
		case w.result <- newErr(ErrClosed, "send", err):
		default:
		}
	}
	s.sendQueue.Init()

	close(s.decodeTrigger)

	handle := s.streamHandle
	conn := s.conn
	pipe := s.pipe
	drained := s.pipeDrained
	s.streamHandle = nil
	s.conn = nil
	s.pipe = nil
	s.mu.Unlock()

	if pipe != nil {
		if !drained {
			pipe.Close()
			pipe.Stop()
		}
		pipe.Fini()
	}
	if handle != nil {
		handle.Close()
	}
	if conn != nil {
		conn.Close()
	}
	if s.registry != nil {
		s.registry.remove(s.id)
	}

	s.observer().closed(err)
}

// Close tears the stream down permanently (spec §4.4 "explicit Close"); no
// further reconnect will be attempted.
func (s *Stream) Close() {
	s.closeWithCause(nil)
	s.wg.Wait()
}

// Err returns the error that caused the stream to close, or nil if it is
// still open or was closed explicitly via Close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}
