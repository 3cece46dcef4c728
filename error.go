package bthost

import "errors"

// Errors surfaced by the engine. Errors that prevent fulfilling a
// caller's explicit request are always returned, never silently
// defaulted; the sentinel-collapsing behavior of process bindings
// lives in host.Shim only.
var (
	// ErrInvalidState is returned when an operation is not valid in
	// the current adapter or channel state.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound is returned for an unknown device address.
	ErrNotFound = errors.New("device not found")

	// ErrClosed is returned for operations on a closed channel or a
	// closed engine.
	ErrClosed = errors.New("closed")

	// ErrTimeout is returned when a controller command or a blocking
	// call does not complete in time.
	ErrTimeout = errors.New("timeout")

	// ErrTransport is the cause carried by errors that indicate the
	// byte stream to the controller broke. Fatal: the adapter resets
	// to PowerOff.
	ErrTransport = errors.New("transport failure")

	// ErrMalformed is the cause carried by recoverable decode
	// failures; malformed frames are logged and skipped.
	ErrMalformed = errors.New("malformed frame")
)
