package hci

import "fmt"

// ErrCommand is an HCI status code returned by the controller for a
// failed command [Vol 2, Part D, 1.3].
type ErrCommand byte

func (e ErrCommand) Error() string {
	if s, ok := errCmd[int(e)]; ok {
		return s
	}
	return fmt.Sprintf("unknown controller status 0x%02X", int(e))
}

// Status codes the engine inspects by name.
const (
	ErrUnknownConnID ErrCommand = 0x02
	ErrAuthFailure   ErrCommand = 0x05
	ErrNoKey         ErrCommand = 0x06
	ErrConnTimeout   ErrCommand = 0x08
	ErrDisallowed    ErrCommand = 0x0C
	ErrLocalHost     ErrCommand = 0x16
)

var errCmd = map[int]string{
	0x01: "unknown hci command",
	0x02: "unknown connection identifier",
	0x03: "hardware failure",
	0x04: "page timeout",
	0x05: "authentication failure",
	0x06: "pin or key missing",
	0x07: "memory capacity exceeded",
	0x08: "connection timeout",
	0x09: "connection limit exceeded",
	0x0A: "synchronous connection limit exceeded",
	0x0B: "connection already exists",
	0x0C: "command disallowed",
	0x0D: "connection rejected: limited resources",
	0x0E: "connection rejected: security reasons",
	0x0F: "connection rejected: unacceptable BD_ADDR",
	0x10: "connection accept timeout exceeded",
	0x11: "unsupported feature or parameter value",
	0x12: "invalid hci command parameters",
	0x13: "remote user terminated connection",
	0x14: "remote device terminated connection: low resources",
	0x15: "remote device terminated connection: power off",
	0x16: "connection terminated by local host",
	0x17: "repeated attempts",
	0x18: "pairing not allowed",
	0x1F: "unspecified error",
	0x22: "link layer response timeout",
	0x25: "encryption mode not acceptable",
	0x26: "link key cannot be changed",
	0x28: "instant passed",
	0x29: "pairing with unit key not supported",
	0x2F: "insufficient security",
	0x3D: "connection failed to be established",
}
