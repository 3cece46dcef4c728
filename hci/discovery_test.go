package hci

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
)

func inquiryResultFrame(addr bthost.Addr, class uint32) []byte {
	params := []byte{0x01}
	params = append(params, addr.LE()...)
	params = append(params, 0x01, 0x00, 0x00) // psrm, reserved
	params = append(params, byte(class), byte(class>>8), byte(class>>16))
	params = append(params, 0x00, 0x00) // clock offset
	return evtFrame(0x02, params...)
}

func inquiryResultWithRSSIFrame(addr bthost.Addr, class uint32, rssi int8) []byte {
	params := []byte{0x01}
	params = append(params, addr.LE()...)
	params = append(params, 0x01, 0x00) // psrm, reserved
	params = append(params, byte(class), byte(class>>8), byte(class>>16))
	params = append(params, 0x00, 0x00) // clock offset
	params = append(params, byte(rssi))
	return evtFrame(0x22, params...)
}

func discoveredAddrs(log *eventLog) []bthost.Addr {
	var out []bthost.Addr
	for _, e := range log.snapshot() {
		if d, ok := e.(bthost.DeviceDiscovered); ok {
			out = append(out, d.Addr)
		}
	}
	return out
}

func TestDiscoveryRequiresPowerOn(t *testing.T) {
	h, _, _ := newTestHCI(t)
	if err := h.Discovery.Start(); errors.Cause(err) != bthost.ErrInvalidState {
		t.Fatalf("err = %v", err)
	}
}

func TestDiscoveryLifecycle(t *testing.T) {
	h, ctrl, log := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("DE:AD:BE:EF:00:01")

	if err := h.Discovery.Start(); err != nil {
		t.Fatal(err)
	}
	if !h.Discovery.IsDiscovering() {
		t.Fatal("not discovering after start")
	}
	log.waitFor(t, func(e bthost.Event) bool {
		d, ok := e.(bthost.DiscoveryStateChanged)
		return ok && d.Discovering
	})

	// a second start while a scan runs is a no-op
	n := len(ctrl.sentCmds(0x0401))
	if err := h.Discovery.Start(); err != nil {
		t.Fatal(err)
	}
	if len(ctrl.sentCmds(0x0401)) != n {
		t.Fatal("second start issued another inquiry")
	}

	ctrl.inject(inquiryResultWithRSSIFrame(addr, 0x5A020C, -42))
	got := log.waitFor(t, func(e bthost.Event) bool {
		_, ok := e.(bthost.DeviceDiscovered)
		return ok
	}).(bthost.DeviceDiscovered)
	if got.Addr != addr || got.Class != 0x5A020C || got.RSSI != -42 {
		t.Fatalf("discovered = %+v", got)
	}

	// a repeat sighting in the same scan is deduplicated
	ctrl.inject(inquiryResultFrame(addr, 0x5A020C))
	syncpoint(t, h)
	if n := len(discoveredAddrs(log)); n != 1 {
		t.Fatalf("%d DeviceDiscovered events, want 1", n)
	}

	dev, err := h.Registry.Device(addr)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Class != 0x5A020C || dev.RSSI != -42 {
		t.Fatalf("registry device = %+v", dev)
	}

	ctrl.inject(evtFrame(0x01, 0x00)) // inquiry complete
	syncpoint(t, h)
	if h.Discovery.IsDiscovering() {
		t.Fatal("still discovering after inquiry complete")
	}
}

func TestDiscoveryCancel(t *testing.T) {
	h, ctrl, log := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("DE:AD:BE:EF:00:02")

	if err := h.Discovery.Start(); err != nil {
		t.Fatal(err)
	}
	if err := h.Discovery.Cancel(); err != nil {
		t.Fatal(err)
	}
	if h.Discovery.IsDiscovering() {
		t.Fatal("still discovering after cancel")
	}
	if len(ctrl.sentCmds(0x0402)) != 1 {
		t.Fatal("inquiry cancel not sent")
	}

	// cancelling when idle is a no-op
	if err := h.Discovery.Cancel(); err != nil {
		t.Fatal(err)
	}
	if len(ctrl.sentCmds(0x0402)) != 1 {
		t.Fatal("idle cancel reached the controller")
	}

	// late results from the cancelled scan stay silent
	ctrl.inject(inquiryResultFrame(addr, 0x1F00))
	syncpoint(t, h)
	if n := len(discoveredAddrs(log)); n != 0 {
		t.Fatalf("%d DeviceDiscovered events after cancel, want 0", n)
	}
}

func TestDiscoveryCancelToleratesCompletedScan(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)

	// controller answers the cancel with "command disallowed" when
	// the scan already finished on its own
	ctrl.stub(0x0402, func([]byte) {
		ctrl.inject(ccFrame(0x0402, 0x0C))
	})
	if err := h.Discovery.Start(); err != nil {
		t.Fatal(err)
	}
	if err := h.Discovery.Cancel(); err != nil {
		t.Fatalf("cancel err = %v", err)
	}
}

func TestDiscoveryNewScanResetsDedupe(t *testing.T) {
	h, ctrl, log := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("DE:AD:BE:EF:00:03")

	if err := h.Discovery.Start(); err != nil {
		t.Fatal(err)
	}
	ctrl.inject(inquiryResultFrame(addr, 0x1F00))
	ctrl.inject(evtFrame(0x01, 0x00))
	syncpoint(t, h)

	if err := h.Discovery.Start(); err != nil {
		t.Fatal(err)
	}
	ctrl.inject(inquiryResultFrame(addr, 0x1F00))
	syncpoint(t, h)

	if n := len(discoveredAddrs(log)); n != 2 {
		t.Fatalf("%d DeviceDiscovered events across two scans, want 2", n)
	}
}
