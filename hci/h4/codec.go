// Package h4 implements the UART (H4) HCI framing: a packet-type
// byte followed by a type-specific header carrying the payload
// length. The stream may deliver frames split across reads, so the
// Assembler accumulates bytes until a full frame is available.
package h4

import (
	"encoding/binary"
	"errors"
	"time"
)

// H4 packet type bytes.
const (
	PktCommand uint8 = 0x01
	PktACLData uint8 = 0x02
	PktSCOData uint8 = 0x03
	PktEvent   uint8 = 0x04
	PktVendor  uint8 = 0xFF
)

var (
	// ErrNeedMoreData reports a truncated but so-far well-formed
	// frame. Not a failure; feed more bytes.
	ErrNeedMoreData = errors.New("need more data")

	// ErrMalformed reports an unknown packet-type byte or an
	// impossible length field. Recoverable: the consumer skips ahead.
	ErrMalformed = errors.New("malformed frame")
)

// header lengths by packet type, type byte included
const (
	cmdHdrLen = 4 // type, opcode (2), param length
	aclHdrLen = 5 // type, handle+flags (2), data length (2)
	scoHdrLen = 4 // type, handle (2), data length
	evtHdrLen = 3 // type, event code, param length
)

// Decode extracts one complete frame from the head of buf. It
// returns the frame (type byte included) and the unconsumed
// remainder. A truncated frame yields ErrNeedMoreData, an
// unrecognizable one ErrMalformed.
func Decode(buf []byte) (frame, rest []byte, err error) {
	if len(buf) == 0 {
		return nil, buf, ErrNeedMoreData
	}

	var total int
	switch buf[0] {
	case PktCommand:
		if len(buf) < cmdHdrLen {
			return nil, buf, ErrNeedMoreData
		}
		total = cmdHdrLen + int(buf[3])
	case PktACLData:
		if len(buf) < aclHdrLen {
			return nil, buf, ErrNeedMoreData
		}
		total = aclHdrLen + int(binary.LittleEndian.Uint16(buf[3:5]))
	case PktSCOData:
		if len(buf) < scoHdrLen {
			return nil, buf, ErrNeedMoreData
		}
		total = scoHdrLen + int(buf[3])
	case PktEvent:
		if len(buf) < evtHdrLen {
			return nil, buf, ErrNeedMoreData
		}
		total = evtHdrLen + int(buf[2])
	default:
		return nil, buf, ErrMalformed
	}

	if len(buf) < total {
		return nil, buf, ErrNeedMoreData
	}
	return buf[:total], buf[total:], nil
}

// EncodeCommand frames an HCI command packet.
func EncodeCommand(opcode uint16, params []byte) []byte {
	b := make([]byte, cmdHdrLen+len(params))
	b[0] = PktCommand
	binary.LittleEndian.PutUint16(b[1:], opcode)
	b[3] = byte(len(params))
	copy(b[4:], params)
	return b
}

// EncodeACL frames an HCI ACL data packet. flags carries the packet
// boundary and broadcast bits in its low nibble positions.
func EncodeACL(handle uint16, flags uint8, payload []byte) []byte {
	b := make([]byte, aclHdrLen+len(payload))
	b[0] = PktACLData
	binary.LittleEndian.PutUint16(b[1:], handle&0x0fff|uint16(flags)<<12)
	binary.LittleEndian.PutUint16(b[3:], uint16(len(payload)))
	copy(b[5:], payload)
	return b
}

// EncodeSCO frames an HCI synchronous data packet.
func EncodeSCO(handle uint16, payload []byte) []byte {
	b := make([]byte, scoHdrLen+len(payload))
	b[0] = PktSCOData
	binary.LittleEndian.PutUint16(b[1:], handle&0x0fff)
	b[3] = byte(len(payload))
	copy(b[4:], payload)
	return b
}

// staleAfter drops a partial frame that stopped growing; serial
// lines lose bytes and a wedged partial would jam the stream.
const staleAfter = 500 * time.Millisecond

// An Assembler reassembles frames from a byte stream delivered in
// arbitrary chunks. Complete frames are sent to out. Not safe for
// concurrent use; it is fed from the single reader loop.
type Assembler struct {
	buf      []byte
	deadline time.Time
	out      chan<- []byte
}

func NewAssembler(out chan<- []byte) *Assembler {
	return &Assembler{
		buf: make([]byte, 0, 256),
		out: out,
	}
}

// Write feeds stream bytes to the assembler, emitting every complete
// frame they finish. Malformed input is skipped byte by byte until a
// plausible packet-type byte turns up; the skip count is returned so
// the caller can log it.
func (a *Assembler) Write(b []byte) (skipped int) {
	if len(b) == 0 {
		return 0
	}
	if len(a.buf) > 0 && !a.deadline.IsZero() && time.Now().After(a.deadline) {
		skipped += len(a.buf)
		a.reset()
	}
	a.buf = append(a.buf, b...)

	for len(a.buf) > 0 {
		frame, rest, err := Decode(a.buf)
		switch err {
		case nil:
			out := make([]byte, len(frame))
			copy(out, frame)
			a.out <- out
			a.shift(rest)
		case ErrNeedMoreData:
			a.deadline = time.Now().Add(staleAfter)
			return skipped
		case ErrMalformed:
			skipped++
			a.shift(a.buf[1:])
		}
	}
	a.reset()
	return skipped
}

func (a *Assembler) shift(rest []byte) {
	n := copy(a.buf, rest)
	a.buf = a.buf[:n]
}

func (a *Assembler) reset() {
	a.buf = a.buf[:0]
	a.deadline = time.Time{}
}
