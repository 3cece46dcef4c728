package hci

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci/cmd"
	"github.com/btforge/bthost/hci/evt"
)

// Discovery runs classic inquiry scans. Result handling and the
// active flag share one mutex, and DeviceDiscovered events are
// emitted while it is held: once Cancel returns, no further sighting
// from the cancelled scan can surface.
type Discovery struct {
	h *HCI

	mu     sync.Mutex
	active bool
	seen   map[bthost.Addr]bool
}

func newDiscovery(h *HCI) *Discovery {
	return &Discovery{h: h}
}

func (d *Discovery) register() {
	d.h.Handle(evt.InquiryResultCode, d.handleInquiryResult)
	d.h.Handle(evt.InquiryResultWithRSSICode, d.handleInquiryResultWithRSSI)
	d.h.Handle(evt.InquiryCompleteCode, d.handleInquiryComplete)
}

func (d *Discovery) IsDiscovering() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Start kicks off an inquiry scan. Starting while a scan is already
// running is a no-op.
func (d *Discovery) Start() error {
	if d.h.Adapter.State() != bthost.PowerOn {
		return errors.Wrap(bthost.ErrInvalidState, "adapter not enabled")
	}

	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return nil
	}
	d.active = true
	d.seen = make(map[bthost.Addr]bool)
	d.h.notify(bthost.DiscoveryStateChanged{Discovering: true})
	d.mu.Unlock()

	units := int(d.h.inquiryLength / inquiryUnit)
	if units < 1 {
		units = 1
	}
	if units > maxInquiryUnits {
		units = maxInquiryUnits
	}

	err := d.h.Send(&cmd.Inquiry{
		LAP:           giacLAP,
		InquiryLength: uint8(units),
		NumResponses:  0x00,
	}, nil)
	if err != nil {
		d.mu.Lock()
		if d.active {
			d.active = false
			d.h.notify(bthost.DiscoveryStateChanged{Discovering: false})
		}
		d.mu.Unlock()
		return errors.Wrap(err, "inquiry")
	}
	return nil
}

// Cancel stops a running scan. Cancelling when idle is a no-op.
func (d *Discovery) Cancel() error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return nil
	}
	d.active = false
	d.h.notify(bthost.DiscoveryStateChanged{Discovering: false})
	d.mu.Unlock()

	if err := d.h.Send(&cmd.InquiryCancel{}, &cmd.InquiryCancelRP{}); err != nil {
		// the scan may have completed on its own in the meantime
		if ec, ok := errors.Cause(err).(ErrCommand); ok && ec == ErrDisallowed {
			return nil
		}
		return errors.Wrap(err, "inquiry cancel")
	}
	return nil
}

func (d *Discovery) handleInquiryResult(b []byte) error {
	e := evt.InquiryResult(b)
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return nil
	}
	for i := 0; i < int(nr); i++ {
		addr, err := e.AddressWErr(i)
		if err != nil {
			return err
		}
		class, err := e.ClassOfDeviceWErr(i)
		if err != nil {
			return err
		}
		d.sightingLocked(bthost.AddrFromLE(addr[:]), class, 0)
	}
	return nil
}

func (d *Discovery) handleInquiryResultWithRSSI(b []byte) error {
	e := evt.InquiryResultWithRSSI(b)
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return nil
	}
	for i := 0; i < int(nr); i++ {
		addr, err := e.AddressWErr(i)
		if err != nil {
			return err
		}
		class, err := e.ClassOfDeviceWErr(i)
		if err != nil {
			return err
		}
		rssi, err := e.RSSIWErr(i)
		if err != nil {
			return err
		}
		d.sightingLocked(bthost.AddrFromLE(addr[:]), class, rssi)
	}
	return nil
}

// sightingLocked records a response and emits DeviceDiscovered once
// per device per scan.
func (d *Discovery) sightingLocked(addr bthost.Addr, class uint32, rssi int8) {
	d.h.Registry.recordSighting(addr, class, rssi)
	if d.seen[addr] {
		return
	}
	d.seen[addr] = true
	d.h.notify(bthost.DeviceDiscovered{Addr: addr, Class: class, RSSI: rssi})
}

func (d *Discovery) handleInquiryComplete(b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return nil
	}
	d.active = false
	d.h.notify(bthost.DiscoveryStateChanged{Discovering: false})
	return nil
}

// reset abandons a scan without touching the controller; used on
// disable and transport loss.
func (d *Discovery) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return
	}
	d.active = false
	d.h.notify(bthost.DiscoveryStateChanged{Discovering: false})
}
