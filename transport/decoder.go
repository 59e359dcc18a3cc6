package transport

// decodeState is the fixed-header assembly state described in spec §3/§4.2:
// rx_have (bytes accumulated into the scratch), rx_want (next total prefix
// length needed), rx_scratch (up to 5 fixed-header bytes), rx_msg (the
// in-progress packet, once its total length is known). Grounded field-for-
// field on quic_strm_t's rxlen/rwlen/rxbuf/rxmsg in quic_api.c.
type decodeState struct {
	have    int
	want    int
	scratch [5]byte
	msg     *Packet

	// recvEnabled tracks whether provider receive delivery is currently
	// enabled, so re-enabling is a guarded no-op rather than relying on the
	// provider tolerating a redundant call (SPEC_FULL.md §9 Open Question).
	recvEnabled bool
}

func (d *decodeState) reset() {
	d.have = 0
	d.want = 2
	d.msg = nil
}

// decodeRemainingLength parses the MQTT variable-length remaining-length
// integer starting at buf[0]. It is derived directly from the MQTT grammar
// (SPEC_FULL.md §4.2.1), not ported from the source's branch structure: each
// byte carries 7 value bits in bits 0-6 and a continuation flag in bit 7;
// the field is 1-4 bytes. Returns the decoded value, the number of bytes
// consumed (1-4), and false if buf runs out before a terminating byte is
// found, or if the 4th byte still has its continuation bit set (spec §6:
// "MUST NOT accept a remaining-length whose continuation bit is set on the
// fourth byte").
func decodeRemainingLength(buf []byte) (remain uint32, used int, ok bool) {
	var multiplier uint32 = 1
	for i := 0; i < 4 && i < len(buf); i++ {
		b := buf[i]
		remain += uint32(b&0x7f) * multiplier
		used = i + 1
		if b&0x80 == 0 {
			return remain, used, true
		}
		multiplier *= 128
	}
	return 0, 0, false
}

// decodeStep advances the decoder by at most one state transition and
// reports what happened. It never blocks and never calls into the provider;
// the caller (Stream.drainDecode) is responsible for re-enabling receive and
// re-scheduling.
type stepResult int

const (
	// stepNeedMore means the ring does not have enough bytes for the next
	// transition; the caller should compact the ring and re-enable receive.
	stepNeedMore stepResult = iota
	// stepDelivered means d.msg is now a complete packet ready for delivery.
	stepDelivered
	// stepContinue means a transition happened but the packet is not yet
	// complete; the caller should call decodeStep again.
	stepContinue
	// stepProtocolError means the ring contains data decodeStep cannot
	// interpret as a valid MQTT fixed header.
	stepProtocolError
)

func (d *decodeState) decodeStep(r *ring) stepResult {
	switch {
	case d.have == 0 && d.want == 2:
		return d.needTwoBytes(r)
	case d.scratch[1] == 2 && d.want == 4:
		return d.needFourBytes(r)
	case d.scratch[1] > 2 && d.want == 5:
		return d.needFiveBytes(r)
	case d.want > 5 && d.msg != nil:
		return d.needBody(r)
	default:
		return stepProtocolError
	}
}

// needTwoBytes implements spec §4.2 state 1.
func (d *decodeState) needTwoBytes(r *ring) stepResult {
	if r.len < 2 {
		return stepNeedMore
	}
	copy(d.scratch[0:2], r.bytes()[0:2])
	r.consume(2)
	d.have = 2

	if d.scratch[1] == 0 {
		// PINGRESP/DISCONNECT shape: exactly 2 bytes, empty body.
		d.msg = &Packet{Header: append([]byte(nil), d.scratch[0:2]...)}
		return stepDelivered
	}
	if d.scratch[1] == 2 {
		d.want = 4
	} else {
		d.want = 5
	}
	return stepContinue
}

// needFourBytes implements spec §4.2 state 2 (PUBACK/PUBREC/PUBREL/PUBCOMP
// shape: 2-byte header + 2-byte body, total 4 bytes).
func (d *decodeState) needFourBytes(r *ring) stepResult {
	if r.len < 2 {
		return stepNeedMore
	}
	copy(d.scratch[2:4], r.bytes()[0:2])
	r.consume(2)
	d.have = 4

	d.msg = &Packet{
		Header: append([]byte(nil), d.scratch[0:2]...),
		Body:   append([]byte(nil), d.scratch[2:4]...),
	}
	return stepDelivered
}

// needFiveBytes implements spec §4.2 state 3: accumulate 3 more bytes
// (scratch[2:5]), decode the remaining-length from scratch[1:], and either
// materialize immediately (when the whole packet is exactly 5 bytes) or
// move on to needBody.
func (d *decodeState) needFiveBytes(r *ring) stepResult {
	if r.len < 3 {
		return stepNeedMore
	}
	copy(d.scratch[2:5], r.bytes()[0:3])
	r.consume(3)
	d.have = 5

	remainU32, used, ok := decodeRemainingLength(d.scratch[1:])
	if !ok {
		return stepProtocolError
	}
	remain := int(remainU32)
	total := 1 + used + remain
	d.want = total

	body := make([]byte, remain)
	if total <= 5 {
		// Entire body already sits in scratch (SPEC_FULL.md §4.2.1: this is
		// the general rule's 5-byte-or-shorter special case, not a literal
		// 0x03 check).
		copy(body, d.scratch[1+used:1+used+remain])
		d.msg = &Packet{
			Header: append([]byte(nil), d.scratch[0:1+used]...),
			Body:   body,
		}
		return stepDelivered
	}

	d.msg = &Packet{
		Header: append([]byte(nil), d.scratch[0:1+used]...),
		Body:   body,
	}
	// Stash however much of the body already landed in scratch so needBody
	// only has to copy the remainder out of the ring.
	copy(d.msg.Body, d.scratch[1+used:5])
	return stepContinue
}

// needBody implements spec §4.2 state 4: pull the remaining body bytes out
// of the ring once they are all available.
func (d *decodeState) needBody(r *ring) stepResult {
	headerLen := len(d.msg.Header)
	already := 5 - headerLen // bytes of body already copied out of scratch
	remaining := len(d.msg.Body) - already
	if r.len < remaining {
		return stepNeedMore
	}
	copy(d.msg.Body[already:], r.bytes()[0:remaining])
	r.consume(remaining)
	d.have = d.want
	return stepDelivered
}
