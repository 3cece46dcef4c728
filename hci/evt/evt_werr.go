package evt

import (
	"encoding/binary"
	"fmt"
)

func (e InquiryComplete) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e InquiryResult) NumResponsesWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

// Inquiry Result packs its fields as parallel arrays:
// BD_ADDR[i] (6), PageScanRepetitionMode[i] (1), Reserved[i] (2),
// ClassOfDevice[i] (3), ClockOffset[i] (2).

func (e InquiryResult) AddressWErr(i int) ([6]byte, error) {
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return [6]byte{}, err
	}
	if i >= int(nr) {
		return [6]byte{}, fmt.Errorf("response index %v out of range", i)
	}
	return getAddr(e, 1+6*i)
}

func (e InquiryResult) ClassOfDeviceWErr(i int) (uint32, error) {
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return 0, err
	}
	if i >= int(nr) {
		return 0, fmt.Errorf("response index %v out of range", i)
	}
	si := 1 + int(nr)*9 + 3*i
	b, err := getBytes(e, si, 3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

func (e InquiryResult) ClockOffsetWErr(i int) (uint16, error) {
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return 0, err
	}
	if i >= int(nr) {
		return 0, fmt.Errorf("response index %v out of range", i)
	}
	return getUint16LE(e, 1+int(nr)*12+2*i, 0)
}

// Inquiry Result with RSSI drops the reserved byte and appends an
// RSSI array: BD_ADDR[i] (6), PageScanRepetitionMode[i] (1),
// Reserved[i] (1), ClassOfDevice[i] (3), ClockOffset[i] (2),
// RSSI[i] (1).

func (e InquiryResultWithRSSI) NumResponsesWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e InquiryResultWithRSSI) AddressWErr(i int) ([6]byte, error) {
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return [6]byte{}, err
	}
	if i >= int(nr) {
		return [6]byte{}, fmt.Errorf("response index %v out of range", i)
	}
	return getAddr(e, 1+6*i)
}

func (e InquiryResultWithRSSI) ClassOfDeviceWErr(i int) (uint32, error) {
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return 0, err
	}
	if i >= int(nr) {
		return 0, fmt.Errorf("response index %v out of range", i)
	}
	si := 1 + int(nr)*8 + 3*i
	b, err := getBytes(e, si, 3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

func (e InquiryResultWithRSSI) RSSIWErr(i int) (int8, error) {
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return 0, err
	}
	if i >= int(nr) {
		return 0, fmt.Errorf("response index %v out of range", i)
	}
	v, err := getByte(e, 1+int(nr)*13+i, 0)
	return int8(v), err
}

func (e ConnectionComplete) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e ConnectionComplete) ConnectionHandleWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e ConnectionComplete) AddressWErr() ([6]byte, error) {
	return getAddr(e, 3)
}

func (e ConnectionComplete) LinkTypeWErr() (uint8, error) {
	return getByte(e, 9, 0xff)
}

func (e ConnectionComplete) EncryptionEnabledWErr() (uint8, error) {
	return getByte(e, 10, 0)
}

func (e ConnectionRequest) AddressWErr() ([6]byte, error) {
	return getAddr(e, 0)
}

func (e ConnectionRequest) ClassOfDeviceWErr() (uint32, error) {
	b, err := getBytes(e, 6, 3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

func (e ConnectionRequest) LinkTypeWErr() (uint8, error) {
	return getByte(e, 9, 0xff)
}

func getByte(b []byte, i int, dflt uint8) (uint8, error) {
	if i >= len(b) {
		return dflt, fmt.Errorf("buffer too short (%v < %v)", len(b), i+1)
	}
	return b[i], nil
}

func getUint16LE(b []byte, i int, dflt uint16) (uint16, error) {
	if i+2 > len(b) {
		return dflt, fmt.Errorf("buffer too short (%v < %v)", len(b), i+2)
	}
	return binary.LittleEndian.Uint16(b[i:]), nil
}

func getUint32LE(b []byte, i int, dflt uint32) (uint32, error) {
	if i+4 > len(b) {
		return dflt, fmt.Errorf("buffer too short (%v < %v)", len(b), i+4)
	}
	return binary.LittleEndian.Uint32(b[i:]), nil
}

// getBytes returns n bytes at offset i, or the remainder when n is
// negative.
func getBytes(b []byte, i, n int) ([]byte, error) {
	if n < 0 {
		if i > len(b) {
			return nil, fmt.Errorf("buffer too short (%v < %v)", len(b), i)
		}
		return b[i:], nil
	}
	if i+n > len(b) {
		return nil, fmt.Errorf("buffer too short (%v < %v)", len(b), i+n)
	}
	return b[i : i+n], nil
}

func getAddr(b []byte, i int) ([6]byte, error) {
	bb, err := getBytes(b, i, 6)
	if err != nil {
		return [6]byte{}, err
	}
	var out [6]byte
	copy(out[:], bb)
	return out, nil
}
