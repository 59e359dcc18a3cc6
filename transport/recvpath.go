package transport

import (
	"container/list"
	"context"
)

// recvWaiter is a pending receive, parked on Stream.recvQueue while no
// decoded packet is available for it yet. Grounded on quic_strm_recv's aio
// parameter in quic_api.c.
type recvWaiter struct {
	result chan recvResult
}

type recvResult struct {
	Packet Packet
	Err    error
}

// Receive waits for the next decoded MQTT packet, or until ctx is done.
// Grounded on quic_strm_recv in quic_api.c: pop from the overflow queue if
// one is already available, otherwise enqueue as a waiter; the decoder runs
// independently of whether a waiter exists (spec §4.2), so no decoder state
// is touched here.
func (s *Stream) Receive(ctx context.Context) (Packet, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Packet{}, newErr(ErrClosed, "receive", nil)
	}
	if p, ok := s.overflow.pop(); ok {
		s.mu.Unlock()
		return p, nil
	}

	w := &recvWaiter{result: make(chan recvResult, 1)}
	elem := s.recvQueue.PushBack(w)
	s.setReceiveEnabledLocked(true)
	s.mu.Unlock()

	select {
	case res := <-w.result:
		return res.Packet, res.Err
	case <-ctx.Done():
		s.cancelRecv(elem, w)
		// The cancelled waiter may have already been completed by a
		// concurrent delivery racing the context cancellation; prefer that
		// result if it beat us to the channel.
		select {
		case res := <-w.result:
			return res.Packet, res.Err
		default:
		}
		return Packet{}, newErr(ErrCancelled, "receive", ctx.Err())
	}
}

// cancelRecv removes w from the queue wherever it sits, head included, if it
// is still queued. Spec §4.2/§5: head-of-queue receives CAN be cancelled -- the decoder's
// next tick will notice there is no waiter and park any completed packet in
// the overflow queue instead.
func (s *Stream) cancelRecv(elem *list.Element, w *recvWaiter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *list.Element
	for e := s.recvQueue.Front(); e != nil; e = e.Next() {
		if e == elem {
			found = e
			break
		}
	}
	if found == nil {
		return
	}
	s.recvQueue.Remove(found)
	select {
	case w.result <- recvResult{Err: newErr(ErrCancelled, "receive", nil)}:
	default:
	}
}

// setReceiveEnabledLocked toggles provider receive delivery, guarded so a
// redundant enable/disable is never forwarded to the provider (SPEC_FULL.md
// §9: resolves the re-enable-idempotency Open Question structurally instead
// of relying on provider tolerance).
func (s *Stream) setReceiveEnabledLocked(enabled bool) {
	if s.decode.recvEnabled == enabled {
		return
	}
	s.decode.recvEnabled = enabled
	if s.streamHandle != nil {
		s.streamHandle.SetReceiveEnabled(enabled)
	}
}

// onProviderReceive is the QUIC receive callback (spec §4.2): append data to
// the ring, acknowledge it in full to the provider, and kick the decoder
// task. Runs on a provider-owned goroutine; must not block.
func (s *Stream) onProviderReceive(data []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	// Delivery is off after each OnReceive until re-enabled (the provider's
	// pull-model contract); the decoder re-enables it once it needs more.
	s.decode.recvEnabled = false
	s.ring.append(data)
	s.metrics.bytesReceived.Add(float64(len(data)))
	s.mu.Unlock()

	if s.streamHandle != nil {
		s.streamHandle.ReceiveComplete(len(data))
	}
	// The decoder always runs on new data, waiter or not: an undecoded
	// packet with no receiver yet still needs to land in the overflow queue
	// (spec §4.2.2), not sit as raw bytes waiting for a future Receive call.
	s.scheduleDecode()
}

// scheduleDecode runs the decoder off the calling goroutine (spec §5: "the
// decoder task... runs outside the callback to avoid reentrancy"). A
// buffered, depth-1 trigger channel collapses redundant schedule requests
// the way the source's nni_aio_finish_sync(&qstrm->rraio, ...) collapses
// redundant task wakeups.
func (s *Stream) scheduleDecode() {
	select {
	case s.decodeTrigger <- struct{}{}:
	default:
	}
}

// runDecodeLoop is the decoder task goroutine (spec §4.2, §5). It blocks on
// decodeTrigger and, each time it fires, drains as many decode steps as
// possible under the stream lock.
func (s *Stream) runDecodeLoop() {
	for range s.decodeTrigger {
		s.drainDecode()
	}
}

// drainDecode repeatedly advances the decode state machine until it needs
// more bytes, hits a protocol error, or there is no more work.
func (s *Stream) drainDecode() {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		res := s.decode.decodeStep(s.ring)
		switch res {
		case stepNeedMore:
			s.ring.compact()
			s.setReceiveEnabledLocked(true)
			s.mu.Unlock()
			return
		case stepProtocolError:
			s.mu.Unlock()
			s.failProtocol(newErr(ErrProtocol, "decode", errBadRemainingLength))
			return
		case stepContinue:
			s.mu.Unlock()
			continue
		case stepDelivered:
			s.deliver()
			continue
		}
	}
}

// deliver implements the spec §4.2 delivery step: hand the just-decoded
// packet to the head receive waiter, or park it in the overflow queue.
// Called with s.mu held; returns with it released.
func (s *Stream) deliver() {
	pkt := *s.decode.msg
	s.decode.msg = nil
	s.decode.reset()
	s.metrics.packetsDecoded.Inc()

	front := s.recvQueue.Front()
	if front != nil {
		w := s.recvQueue.Remove(front).(*recvWaiter)
		s.mu.Unlock()
		select {
		case w.result <- recvResult{Packet: pkt}:
		default:
		}
	} else {
		ok := s.overflow.push(pkt)
		if !ok {
			s.logger().Warn().
				Str("component", "qst").
				Msg("overflow queue full, dropping decoded packet")
			s.metrics.overflowDropped.Inc()
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	if s.ring.len > 0 {
		s.scheduleDecode()
	}
	s.ring.compact()
	s.mu.Unlock()
}

// failProtocol implements spec §7's Protocol error policy: mark the stream
// closed and fail all pending requests; no reconnect follows.
func (s *Stream) failProtocol(err error) {
	s.logger().Error().Err(err).Str("component", "qst").Msg("protocol decode error, closing stream")
	s.metrics.protocolErrors.Inc()
	s.observer().protocolError(err)
	s.closeWithCause(err)
}
