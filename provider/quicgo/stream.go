package quicgo

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	qstquic "github.com/quicmqtt/qst/quic"
	"github.com/quicmqtt/qst/transport"
)

const writeTimeout = 30 * time.Second

// idleTimeoutErr is compared against with errors.Is to tell a write timeout
// caused by a genuinely idle connection (nothing worth logging) apart from
// any other write timeout.
var idleTimeoutErr = quic.IdleTimeoutError{}

// providerStream adapts one quic.Stream into transport.ProviderStream's
// explicit pull-model receive contract. writeMu/closing fold in the
// write-deadline-then-cancel-on-timeout handling the stream needs around a
// bare quic.Stream.Write -- reads run on a dedicated goroutine gated by a
// receive-enabled signal, since quic-go's Read is blocking but
// transport.ProviderStream must not call OnReceive until told to.
type providerStream struct {
	raw     quic.Stream
	logger  *zerolog.Logger
	events  transport.StreamCallbacks
	metrics *qstquic.ClientCollector

	writeMu sync.Mutex
	closing atomic.Bool

	mu      sync.Mutex
	enabled bool
	wake    chan struct{}
	closed  bool
}

func newProviderStream(qs quic.Stream, logger *zerolog.Logger, metrics *qstquic.ClientCollector, events transport.StreamCallbacks) *providerStream {
	s := &providerStream{
		raw:     qs,
		logger:  logger,
		events:  events,
		metrics: metrics,
		wake:    make(chan struct{}, 1),
	}
	go s.readLoop()
	return s
}

// Send writes bufs (header, optional body) as one contiguous write -- quic-go
// streams are byte streams, so there is no separate "iov" concept the way
// MsQuic's QUIC_BUFFER array gives the source; concatenating preserves the
// same on-wire framing. OnSendComplete fires once the write returns.
func (s *providerStream) Send(ctx context.Context, bufs [][]byte) error {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range bufs {
		out = append(out, b...)
	}

	n, err := s.guardedWrite(out)
	if err != nil {
		return err
	}
	s.metrics.BytesSent(n)
	if s.events.OnSendComplete != nil {
		s.events.OnSendComplete()
	}
	return nil
}

// guardedWrite writes p under a write deadline and cancels the write on a
// timeout so a dead peer cannot pin the stream's send buffers forever.
func (s *providerStream) guardedWrite(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.raw.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		s.logger.Err(err).Msg("error setting write deadline for QUIC stream")
	}
	n, err := s.raw.Write(p)
	if err != nil {
		s.handleWriteError(err)
	}
	return n, err
}

// handleWriteError cancels the write side on a timeout, freeing its buffers;
// a timeout caused by Close setting a deadline in the past is expected and
// not logged.
func (s *providerStream) handleWriteError(err error) {
	if s.closing.Load() {
		return
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if !errors.Is(netErr, &idleTimeoutErr) {
			s.logger.Error().Err(netErr).Msg("closing QUIC stream due to timeout while writing")
		}
		s.raw.CancelWrite(0)
	}
}

// SetReceiveEnabled toggles whether readLoop is allowed to issue its next
// blocking Read, implementing the explicit pull model of spec §4.2 on top
// of quic-go's push-style blocking Read.
func (s *providerStream) SetReceiveEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	if enabled {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// ReceiveComplete is a no-op: quic-go's stream flow control already
// acknowledges bytes as Read consumes them, unlike MsQuic's explicit
// QuicStreamReceiveComplete call that the source's quic_strm_recv_cb issues.
func (s *providerStream) ReceiveComplete(n int) {}

// Close tears the stream down. It sets closing first so a writer blocked in
// guardedWrite stops logging the write-deadline timeout this induces, then
// forces that timeout (a past write deadline unblocks any in-flight Write
// without waiting on quic-go's own close path), and finally cancels the
// read side, since the bottom Close does not.
func (s *providerStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.closing.Store(true)
	_ = s.raw.SetWriteDeadline(time.Now())

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.raw.CancelRead(0)
	_ = s.raw.Close()
}

// readLoop bridges quic-go's blocking Read into OnReceive callbacks, only
// issuing a Read while receive is enabled. Grounded on the explicit
// rx_want-driven control flow of quic_strm_recv_cb, where the stream only
// accepts new data once the decoder is ready for it.
func (s *providerStream) readLoop() {
	buf := make([]byte, 16*1024)
	for {
		s.mu.Lock()
		enabled := s.enabled
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if !enabled {
			<-s.wake
			continue
		}

		n, err := s.raw.Read(buf)
		if n > 0 {
			s.metrics.BytesReceived(n)
			if s.events.OnReceive != nil {
				chunk := append([]byte(nil), buf[:n]...)
				// Delivery stays off after each chunk until the consumer
				// calls SetReceiveEnabled(true) again.
				s.mu.Lock()
				s.enabled = false
				s.mu.Unlock()
				s.events.OnReceive(chunk)
			}
		}
		if err != nil {
			if err == io.EOF {
				return
			}
			s.logger.Debug().Err(err).Str("component", "qst.quicgo").Msg("stream read ended")
			return
		}
	}
}
