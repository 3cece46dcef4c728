package bthost

import (
	"io"
	"time"
)

// HostOption is the set of knobs the engine exposes for
// configuration. The hci engine implements it.
type HostOption interface {
	SetTransportHCISocket(id int) error
	SetTransportH4Uart(path string) error
	SetTransportH4Socket(addr string, timeout time.Duration) error
	SetTransportRWC(rwc io.ReadWriteCloser) error

	SetCommandTimeout(d time.Duration) error
	SetDialerTimeout(d time.Duration) error
	SetListenerTimeout(d time.Duration) error
	SetInquiryLength(d time.Duration) error

	SetLocalName(name string) error
	SetBondStorePath(path string) error
	SetErrorHandler(handler func(error)) error
}

// An Option is a configuration function, which configures the engine.
type Option func(HostOption) error

// OptTransportHCISocket uses a raw HCI socket of the given device id.
func OptTransportHCISocket(id int) Option {
	return func(opt HostOption) error {
		return opt.SetTransportHCISocket(id)
	}
}

// OptTransportH4Uart uses an H4 framed UART at the given path.
func OptTransportH4Uart(path string) Option {
	return func(opt HostOption) error {
		return opt.SetTransportH4Uart(path)
	}
}

// OptTransportH4Socket uses an H4 framed TCP stream.
func OptTransportH4Socket(addr string, timeout time.Duration) Option {
	return func(opt HostOption) error {
		return opt.SetTransportH4Socket(addr, timeout)
	}
}

// OptTransportRWC uses a caller-supplied duplex byte stream. No
// framing is assumed at that boundary; framing is the engine's job.
func OptTransportRWC(rwc io.ReadWriteCloser) Option {
	return func(opt HostOption) error {
		return opt.SetTransportRWC(rwc)
	}
}

// OptCommandTimeout bounds how long the engine waits for the
// controller to answer a command before failing it with ErrTimeout.
func OptCommandTimeout(d time.Duration) Option {
	return func(opt HostOption) error {
		return opt.SetCommandTimeout(d)
	}
}

// OptDialerTimeout sets the default timeout for outgoing connections.
func OptDialerTimeout(d time.Duration) Option {
	return func(opt HostOption) error {
		return opt.SetDialerTimeout(d)
	}
}

// OptListenerTimeout sets the default timeout for Accept.
func OptListenerTimeout(d time.Duration) Option {
	return func(opt HostOption) error {
		return opt.SetListenerTimeout(d)
	}
}

// OptInquiryLength sets the duration of a discovery session.
func OptInquiryLength(d time.Duration) Option {
	return func(opt HostOption) error {
		return opt.SetInquiryLength(d)
	}
}

// OptLocalName sets the initial friendly name written to the
// controller on power-on.
func OptLocalName(name string) Option {
	return func(opt HostOption) error {
		return opt.SetLocalName(name)
	}
}

// OptBondStore persists bonded devices to the given JSON file.
func OptBondStore(path string) Option {
	return func(opt HostOption) error {
		return opt.SetBondStorePath(path)
	}
}

// OptErrorHandler receives asynchronous engine errors.
func OptErrorHandler(handler func(error)) Option {
	return func(opt HostOption) error {
		return opt.SetErrorHandler(handler)
	}
}
