package bthost

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Addr is a 6-byte Bluetooth device address (BD_ADDR), stored
// most-significant byte first. The canonical string form is
// uppercase hex-colon, e.g. "00:11:22:33:AA:BB".
type Addr [6]byte

// ParseAddr parses an address in hex-colon form. Case is not
// significant on input.
func ParseAddr(s string) (Addr, error) {
	var a Addr
	raw := strings.Replace(s, ":", "", -1)
	if len(raw) != 12 {
		return a, fmt.Errorf("invalid address %q", s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %v", s, err)
	}
	copy(a[:], b)
	return a, nil
}

// AddrFromLE builds an Addr from the 6-byte little-endian layout
// used on the HCI wire.
func AddrFromLE(b []byte) Addr {
	var a Addr
	for i := 0; i < 6 && i < len(b); i++ {
		a[5-i] = b[i]
	}
	return a
}

func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		a[0], a[1], a[2], a[3], a[4], a[5])
}

// Bytes returns the address most-significant byte first.
func (a Addr) Bytes() []byte {
	b := make([]byte, 6)
	copy(b, a[:])
	return b
}

// LE returns the address in HCI wire order (least-significant byte
// first).
func (a Addr) LE() []byte {
	return []byte{a[5], a[4], a[3], a[2], a[1], a[0]}
}

// IsZero reports whether the address is all zero, the "no peer"
// value on unconnected channels.
func (a Addr) IsZero() bool {
	return a == Addr{}
}
