package transport

// ring is a contiguous byte buffer with (start, len, cap), holding bytes
// delivered by the provider but not yet consumed by the decoder. Grounded on
// quic_strm_t's rrbuf/rrpos/rrlen/rrcap fields and the grow-then-append logic
// in quic_api.c's QUIC_STREAM_EVENT_RECEIVE handler, and the
// compact-on-drain memmove in quic_strm_recv_cb (original_source/src/
// supplemental/quic/quic_api.c).
type ring struct {
	buf   []byte
	start int
	len   int
}

// append adds data to the ring, growing buf if the remaining capacity after
// start is insufficient (spec §4.2: "if the incoming chunk would not fit in
// the ring's remaining capacity, grow the ring").
func (r *ring) append(data []byte) {
	needed := r.start + r.len + len(data)
	if needed > len(r.buf) {
		newCap := len(r.buf) * 2
		if newCap < needed {
			newCap = needed
		}
		if newCap < 4096 {
			newCap = 4096
		}
		grown := make([]byte, newCap)
		copy(grown, r.buf[r.start:r.start+r.len])
		r.buf = grown
		r.start = 0
	}
	copy(r.buf[r.start+r.len:], data)
	r.len += len(data)
}

// bytes returns the unconsumed bytes currently buffered.
func (r *ring) bytes() []byte {
	return r.buf[r.start : r.start+r.len]
}

// consume advances start past n bytes, shrinking len.
func (r *ring) consume(n int) {
	if n > r.len {
		n = r.len
	}
	r.start += n
	r.len -= n
}

// compact moves the unconsumed region to the front of buf, invariant 2 of
// spec §3 ("after each decode step, if start > 0 and more bytes are
// expected, the ring is compacted").
func (r *ring) compact() {
	if r.start == 0 {
		return
	}
	copy(r.buf, r.buf[r.start:r.start+r.len])
	r.start = 0
}
