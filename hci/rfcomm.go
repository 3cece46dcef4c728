package hci

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
)

// Minimal RFCOMM control framing [ETSI TS 07.10, adapted by the
// Bluetooth RFCOMM spec]: enough to open, refuse, carry and close a
// server channel over an L2CAP basic frame. Multiplexer negotiation
// (PN/MSC) is left to the defaults.

const (
	rfcommSABM = 0x3F // set asynchronous balanced mode, P=1
	rfcommUA   = 0x73 // unnumbered acknowledgement, F=1
	rfcommDM   = 0x0F // disconnected mode, F=1
	rfcommDISC = 0x43 // disconnect, P=1
	rfcommUIH  = 0xEF // unnumbered information with header check
)

// The L2CAP channel carrying the RFCOMM session. A full L2CAP
// implementation would negotiate a dynamic CID; one RFCOMM session
// per link keeps this fixed.
const cidRFCOMM = 0x0040

// RFCOMM server channels live in 1..30.
const (
	minServerChannel = 1
	maxServerChannel = 30
)

type rfcommFrame struct {
	port    uint8 // server channel
	control uint8
	payload []byte
}

var crcTable [256]uint8

func init() {
	// reflected CRC-8, poly x^8+x^2+x+1
	for i := 0; i < 256; i++ {
		crc := uint8(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xE0
			} else {
				crc >>= 1
			}
		}
		crcTable[i] = crc
	}
}

func rfcommCRC(b []byte) uint8 {
	crc := uint8(0xFF)
	for _, v := range b {
		crc = crcTable[crc^v]
	}
	return crc
}

func rfcommFCS(b []byte) uint8 {
	return 0xFF - rfcommCRC(b)
}

func rfcommCheckFCS(b []byte, fcs uint8) bool {
	return crcTable[rfcommCRC(b)^fcs] == 0xCF
}

// marshalRfcomm emits addr, control, length, payload, fcs wrapped in
// an L2CAP basic frame. Control frames checksum the whole header,
// UIH frames only address and control.
func marshalRfcomm(f rfcommFrame, initiator bool) []byte {
	dlci := f.port << 1
	if initiator {
		dlci |= 1
	}
	addr := dlci<<2 | 0x03 // EA=1, C/R=1

	hdr := []byte{addr, f.control, byte(len(f.payload))<<1 | 1}
	var fcs uint8
	if f.control == rfcommUIH {
		fcs = rfcommFCS(hdr[:2])
	} else {
		fcs = rfcommFCS(hdr)
	}

	body := make([]byte, 0, len(hdr)+len(f.payload)+1)
	body = append(body, hdr...)
	body = append(body, f.payload...)
	body = append(body, fcs)

	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint16(out, uint16(len(body)))
	binary.LittleEndian.PutUint16(out[2:], cidRFCOMM)
	copy(out[4:], body)
	return out
}

// unmarshalRfcomm parses an L2CAP basic frame carrying one RFCOMM
// frame.
func unmarshalRfcomm(b []byte) (rfcommFrame, error) {
	var f rfcommFrame
	if len(b) < 4 {
		return f, errors.Wrap(bthost.ErrMalformed, "short l2cap frame")
	}
	plen := int(binary.LittleEndian.Uint16(b))
	cid := binary.LittleEndian.Uint16(b[2:])
	if cid != cidRFCOMM {
		return f, errors.Wrapf(bthost.ErrMalformed, "unexpected l2cap cid 0x%04x", cid)
	}
	body := b[4:]
	if len(body) != plen || len(body) < 4 {
		return f, errors.Wrap(bthost.ErrMalformed, "bad l2cap length")
	}

	addr, control := body[0], body[1]
	if body[2]&1 == 0 {
		return f, errors.Wrap(bthost.ErrMalformed, "two-byte rfcomm length not supported")
	}
	plLen := int(body[2] >> 1)
	if len(body) != 3+plLen+1 {
		return f, errors.Wrap(bthost.ErrMalformed, "bad rfcomm length")
	}

	fcs := body[len(body)-1]
	var hdr []byte
	if control == rfcommUIH {
		hdr = body[:2]
	} else {
		hdr = body[:3]
	}
	if !rfcommCheckFCS(hdr, fcs) {
		return f, errors.Wrap(bthost.ErrMalformed, "rfcomm fcs mismatch")
	}

	f.port = addr >> 3 // strip EA, C/R and the direction bit
	f.control = control
	f.payload = body[3 : 3+plLen]
	return f, nil
}
