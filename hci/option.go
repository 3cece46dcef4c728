package hci

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
)

// Option applies the given options; engine construction fails on the
// first error.
func (h *HCI) Option(opts ...bthost.Option) error {
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return err
		}
	}
	return nil
}

func (h *HCI) SetTransportHCISocket(id int) error {
	h.transport = transport{hci: &transportHCI{id: id}}
	return nil
}

func (h *HCI) SetTransportH4Uart(path string) error {
	if path == "" {
		return errors.New("empty uart path")
	}
	h.transport = transport{h4u: &transportH4Uart{path: path}}
	return nil
}

func (h *HCI) SetTransportH4Socket(addr string, timeout time.Duration) error {
	if addr == "" {
		return errors.New("empty socket address")
	}
	h.transport = transport{h4s: &transportH4Socket{addr: addr, timeout: timeout}}
	return nil
}

func (h *HCI) SetTransportRWC(rwc io.ReadWriteCloser) error {
	if rwc == nil {
		return errors.New("nil transport")
	}
	h.transport = transport{rwc: rwc}
	return nil
}

func (h *HCI) SetCommandTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.New("non-positive command timeout")
	}
	h.cmdTimeout = d
	return nil
}

func (h *HCI) SetDialerTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.New("non-positive dialer timeout")
	}
	h.dialerTmo = d
	return nil
}

func (h *HCI) SetListenerTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.New("non-positive listener timeout")
	}
	h.listenerTmo = d
	return nil
}

func (h *HCI) SetInquiryLength(d time.Duration) error {
	if d < inquiryUnit {
		return errors.Errorf("inquiry length below %v", inquiryUnit)
	}
	h.inquiryLength = d
	return nil
}

func (h *HCI) SetLocalName(name string) error {
	if len(name) > 248 {
		return errors.New("local name too long")
	}
	h.localName = name
	return nil
}

func (h *HCI) SetBondStorePath(path string) error {
	h.bondPath = path
	return nil
}

func (h *HCI) SetErrorHandler(handler func(error)) error {
	h.errorHandler = handler
	return nil
}
