package transport

import (
	"container/list"
	"context"
)

// SendRequest is one MQTT packet queued for transmission. Grounded on
// quic_strm_send in quic_api.c, which submits nni_msg's header+body as a
// single iov pair.
type SendRequest struct {
	Header []byte
	Body   []byte
}

type sendWaiter struct {
	req    *SendRequest
	result chan error
}

// Send submits req for transmission and waits for it to be handed off to the
// provider (spec §4.3: "Send completes once the provider reports
// OnSendComplete", i.e. transmission is dispatched, not peer-acknowledged).
// Only one request is ever in flight to the provider at a time; later
// requests queue FIFO, grounded on quic_strm_t's single sendq plus the
// "busy" gate implied by quic_api.c only ever having one aio outstanding on
// the QUIC stream's send side.
func (s *Stream) Send(ctx context.Context, req *SendRequest) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return newErr(ErrClosed, "send", nil)
	}

	w := &sendWaiter{req: req, result: make(chan error, 1)}
	elem := s.sendQueue.PushBack(w)
	isHead := s.sendQueue.Front() == elem
	if isHead {
		s.dispatchSendLocked(w)
	}
	s.mu.Unlock()

	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		s.cancelSend(elem, w)
		select {
		case err := <-w.result:
			return err
		default:
		}
		return newErr(ErrCancelled, "send", ctx.Err())
	}
}

// cancelSend removes w from the queue if it is not the in-flight head.
// Grounded on spec §4.3's "a Send already handed to the provider cannot be
// cancelled" -- only a queued-but-undispatched request can be pulled back.
func (s *Stream) cancelSend(elem *list.Element, w *sendWaiter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendQueue.Front() == elem {
		// Already dispatched (or about to be); cancellation has no effect.
		return
	}
	var found *list.Element
	for e := s.sendQueue.Front(); e != nil; e = e.Next() {
		if e == elem {
			found = e
			break
		}
	}
	if found == nil {
		return
	}
	s.sendQueue.Remove(found)
	select {
	case w.result <- newErr(ErrCancelled, "send", nil):
	default:
	}
}

// dispatchSendLocked hands the head-of-queue request to the provider. Called
// with s.mu held; s.mu is released around the provider's Send (a provider
// may fire OnSendComplete, which takes s.mu, before Send returns) and is held
// again when this returns.
func (s *Stream) dispatchSendLocked(w *sendWaiter) {
	bufs := [][]byte{w.req.Header}
	if len(w.req.Body) > 0 {
		bufs = append(bufs, w.req.Body)
	}
	handle := s.streamHandle
	if handle == nil {
		// No connection yet; stays queued until a (re)connect rewires
		// streamHandle and replays the head of sendQueue.
		return
	}
	s.mu.Unlock()
	if err := handle.Send(context.Background(), bufs); err != nil {
		s.failSend(w, wrapTransport("send", err))
		s.mu.Lock()
		return
	}
	s.metrics.bytesSent.Add(float64(len(w.req.Header) + len(w.req.Body)))
	s.mu.Lock()
}

// failSend completes w with err and advances the queue, without holding
// s.mu (it may itself need to lock to pop the next entry).
func (s *Stream) failSend(w *sendWaiter, err error) {
	s.mu.Lock()
	if s.sendQueue.Front() != nil && s.sendQueue.Front().Value.(*sendWaiter) == w {
		s.sendQueue.Remove(s.sendQueue.Front())
	}
	next := s.sendQueue.Front()
	s.mu.Unlock()

	select {
	case w.result <- err:
	default:
	}
	if next != nil {
		s.mu.Lock()
		s.dispatchSendLocked(next.Value.(*sendWaiter))
		s.mu.Unlock()
	}
}

// onProviderSendComplete is the QUIC OnSendComplete callback (spec §4.3):
// complete the head-of-queue request successfully and dispatch the next one,
// if any.
func (s *Stream) onProviderSendComplete() {
	s.mu.Lock()
	front := s.sendQueue.Front()
	if front == nil {
		s.mu.Unlock()
		return
	}
	w := s.sendQueue.Remove(front).(*sendWaiter)
	next := s.sendQueue.Front()
	if next != nil {
		s.dispatchSendLocked(next.Value.(*sendWaiter))
	}
	s.mu.Unlock()

	select {
	case w.result <- nil:
	default:
	}
}

// replaySendHeadLocked re-dispatches the current head of sendQueue, called once a
// (re)connect installs a fresh streamHandle (spec §4.4: in-flight sends
// submitted before a reconnect are retried on the new stream).
func (s *Stream) replaySendHeadLocked() {
	front := s.sendQueue.Front()
	if front == nil {
		return
	}
	s.dispatchSendLocked(front.Value.(*sendWaiter))
}
