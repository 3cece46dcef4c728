package hci

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
)

func powerTransitions(log *eventLog) []bthost.PowerState {
	var out []bthost.PowerState
	for _, e := range log.snapshot() {
		if p, ok := e.(bthost.PowerStateChanged); ok {
			out = append(out, p.State)
		}
	}
	return out
}

func TestEnableDisableLifecycle(t *testing.T) {
	h, ctrl, log := newTestHCI(t)

	if h.Adapter.State() != bthost.PowerOff {
		t.Fatalf("initial state = %v", h.Adapter.State())
	}
	if err := h.Adapter.Enable(); err != nil {
		t.Fatal(err)
	}
	waitForPower(t, h, bthost.PowerOn)
	if got := h.Adapter.Addr(); got != ctrl.bdaddr {
		t.Fatalf("adapter addr = %v, want %v", got, ctrl.bdaddr)
	}

	want := []bthost.PowerState{bthost.PowerTurningOn, bthost.PowerOn}
	if got := powerTransitions(log); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("transitions = %v, want %v", got, want)
	}

	// reset, set event mask, read buffer size, read bdaddr, scan off
	for _, op := range []uint16{0x0C03, 0x0C01, 0x1005, 0x1009, 0x0C1A} {
		if len(ctrl.sentCmds(op)) == 0 {
			t.Errorf("command 0x%04X not sent during bring-up", op)
		}
	}

	if err := h.Adapter.Enable(); errors.Cause(err) != bthost.ErrInvalidState {
		t.Fatalf("second enable err = %v", err)
	}

	if err := h.Adapter.Disable(); err != nil {
		t.Fatal(err)
	}
	waitForPower(t, h, bthost.PowerOff)
	got := powerTransitions(log)
	want = []bthost.PowerState{bthost.PowerTurningOn, bthost.PowerOn, bthost.PowerTurningOff, bthost.PowerOff}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}

	if err := h.Adapter.Disable(); errors.Cause(err) != bthost.ErrInvalidState {
		t.Fatalf("second disable err = %v", err)
	}
}

func TestEnableDisableReturnMidTransition(t *testing.T) {
	h, ctrl, _ := newTestHCI(t)

	// hold the reset reply back so the bring-up cannot finish before
	// Enable returns
	gate := make(chan struct{})
	ctrl.stub(0x0C03, func([]byte) {
		go func() {
			<-gate
			ctrl.inject(ccFrame(0x0C03, 0x00))
		}()
	})

	if err := h.Adapter.Enable(); err != nil {
		t.Fatal(err)
	}
	if st := h.Adapter.State(); st != bthost.PowerTurningOn {
		t.Fatalf("state = %v right after enable, want TurningOn", st)
	}
	if err := h.Adapter.Enable(); errors.Cause(err) != bthost.ErrInvalidState {
		t.Fatalf("enable while turning on err = %v", err)
	}
	close(gate)
	waitForPower(t, h, bthost.PowerOn)

	gate2 := make(chan struct{})
	ctrl.stub(0x0C03, func([]byte) {
		go func() {
			<-gate2
			ctrl.inject(ccFrame(0x0C03, 0x00))
		}()
	})
	if err := h.Adapter.Disable(); err != nil {
		t.Fatal(err)
	}
	if st := h.Adapter.State(); st != bthost.PowerTurningOff {
		t.Fatalf("state = %v right after disable, want TurningOff", st)
	}
	close(gate2)
	waitForPower(t, h, bthost.PowerOff)
}

func TestSetScanModeRequiresPowerOn(t *testing.T) {
	h, _, _ := newTestHCI(t)

	err := h.Adapter.SetScanMode(bthost.ScanModeConnectable)
	if errors.Cause(err) != bthost.ErrInvalidState {
		t.Fatalf("err = %v", err)
	}
}

func TestSetScanMode(t *testing.T) {
	h, ctrl, log := enabledTestHCI(t)

	if err := h.Adapter.SetScanMode(bthost.ScanModeConnectable); err != nil {
		t.Fatal(err)
	}
	if h.Adapter.ScanMode() != bthost.ScanModeConnectable {
		t.Fatalf("scan mode = %v", h.Adapter.ScanMode())
	}
	cmds := ctrl.sentCmds(0x0C1A)
	if last := cmds[len(cmds)-1]; last.params[0] != scanPage {
		t.Fatalf("scan enable param = 0x%02X, want 0x%02X", last.params[0], scanPage)
	}
	log.waitFor(t, func(e bthost.Event) bool {
		s, ok := e.(bthost.ScanModeChanged)
		return ok && s.Mode == bthost.ScanModeConnectable
	})
}

func TestDiscoverableTimeoutFallsBack(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)

	if err := h.Adapter.SetDiscoverableTimeout(30 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := h.Adapter.SetScanMode(bthost.ScanModeConnectableDiscoverable); err != nil {
		t.Fatal(err)
	}
	cmds := ctrl.sentCmds(0x0C1A)
	if last := cmds[len(cmds)-1]; last.params[0] != scanInquiry|scanPage {
		t.Fatalf("scan enable param = 0x%02X", last.params[0])
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Adapter.ScanMode() != bthost.ScanModeConnectable {
		if time.Now().After(deadline) {
			t.Fatalf("scan mode = %v, discoverable window never expired", h.Adapter.ScanMode())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cmds = ctrl.sentCmds(0x0C1A)
	if last := cmds[len(cmds)-1]; last.params[0] != scanPage {
		t.Fatalf("scan enable param after expiry = 0x%02X", last.params[0])
	}
}

func TestSetName(t *testing.T) {
	h, ctrl, log := enabledTestHCI(t)

	if err := h.Adapter.SetName("gopher"); err != nil {
		t.Fatal(err)
	}
	if h.Adapter.Name() != "gopher" {
		t.Fatalf("name = %q", h.Adapter.Name())
	}
	cmds := ctrl.sentCmds(0x0C13)
	if len(cmds) == 0 {
		t.Fatal("write local name not sent")
	}
	last := cmds[len(cmds)-1]
	if len(last.params) != 248 || string(last.params[:6]) != "gopher" {
		t.Fatalf("local name params = % X", last.params[:8])
	}
	log.waitFor(t, func(e bthost.Event) bool {
		n, ok := e.(bthost.NameChanged)
		return ok && n.Name == "gopher"
	})

	if err := h.Adapter.SetName(""); err == nil {
		t.Fatal("empty name accepted")
	}
}

func TestSetNameCachedWhileOff(t *testing.T) {
	h, ctrl, _ := newTestHCI(t)

	if err := h.Adapter.SetName("offline"); err != nil {
		t.Fatal(err)
	}
	if len(ctrl.sentCmds(0x0C13)) != 0 {
		t.Fatal("write local name sent while off")
	}
	if err := h.Adapter.Enable(); err != nil {
		t.Fatal(err)
	}
	waitForPower(t, h, bthost.PowerOn)
	cmds := ctrl.sentCmds(0x0C13)
	if len(cmds) != 1 || string(cmds[0].params[:7]) != "offline" {
		t.Fatalf("cached name not written at bring-up: %v", cmds)
	}
}

func TestRemoteName(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("11:22:33:44:55:66")

	name, err := h.Adapter.RemoteName(addr)
	if err != nil {
		t.Fatal(err)
	}
	if name != ctrl.remoteName {
		t.Fatalf("name = %q, want %q", name, ctrl.remoteName)
	}

	// answered from the registry cache: no second request on the wire
	n := len(ctrl.sentCmds(0x0419))
	if _, err := h.Adapter.RemoteName(addr); err != nil {
		t.Fatal(err)
	}
	if len(ctrl.sentCmds(0x0419)) != n {
		t.Fatal("cached name triggered a remote name request")
	}
}

func TestRemoteNameFailure(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("11:22:33:44:55:67")

	ctrl.stub(0x0419, func(params []byte) {
		ctrl.inject(csFrame(0x00, 0x0419))
		p := append([]byte{0x04}, params[:6]...) // page timeout
		p = append(p, make([]byte, 248)...)
		ctrl.inject(evtFrame(0x07, p...))
	})

	_, err := h.Adapter.RemoteName(addr)
	if ec, ok := errors.Cause(err).(ErrCommand); !ok || ec != ErrCommand(0x04) {
		t.Fatalf("err = %v", err)
	}
}

func TestRemoteNameRequiresPowerOn(t *testing.T) {
	h, _, _ := newTestHCI(t)
	addr, _ := bthost.ParseAddr("11:22:33:44:55:66")

	if _, err := h.Adapter.RemoteName(addr); errors.Cause(err) != bthost.ErrInvalidState {
		t.Fatalf("err = %v", err)
	}
}
