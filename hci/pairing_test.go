package hci

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci/evt"
)

func linkKeyRequestFrame(addr bthost.Addr) []byte {
	return evtFrame(evt.LinkKeyRequestCode, addr.LE()...)
}

func linkKeyNotificationFrame(addr bthost.Addr, key [16]byte, keyType uint8) []byte {
	params := append([]byte{}, addr.LE()...)
	params = append(params, key[:]...)
	params = append(params, keyType)
	return evtFrame(evt.LinkKeyNotificationCode, params...)
}

func waitForBondState(t *testing.T, h *HCI, addr bthost.Addr, want bthost.BondState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Registry.bondState(addr) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("bond state = %v, want %v", h.Registry.bondState(addr), want)
}

func TestLinkKeyRequestWithoutKey(t *testing.T) {
	h, ctrl, log := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:01")

	ctrl.inject(linkKeyRequestFrame(addr))
	waitForCmds(t, ctrl, 0x040C, 1)
	waitForBondState(t, h, addr, bthost.Bonding)
	log.waitFor(t, func(e bthost.Event) bool {
		b, ok := e.(bthost.BondStateChanged)
		return ok && b.Addr == addr && b.State == bthost.Bonding
	})
}

func TestLinkKeyNotificationBonds(t *testing.T) {
	h, ctrl, log := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:02")
	key := [16]byte{0xA5, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

	ctrl.inject(linkKeyNotificationFrame(addr, key, 0x05))
	waitForBondState(t, h, addr, bthost.Bonded)
	log.waitFor(t, func(e bthost.Event) bool {
		b, ok := e.(bthost.BondStateChanged)
		return ok && b.Addr == addr && b.State == bthost.Bonded
	})

	got, ok := h.Registry.linkKey(addr)
	if !ok || got != key {
		t.Fatalf("stored key = % X, ok = %v", got, ok)
	}

	// a later lookup from the controller is answered with that key
	ctrl.inject(linkKeyRequestFrame(addr))
	cc := waitForCmds(t, ctrl, 0x040B, 1)
	if !bytes.Equal(cc[0].params[6:22], key[:]) {
		t.Fatalf("replied key = % X", cc[0].params[6:22])
	}
}

func TestPINCodeRequestWithResponder(t *testing.T) {
	h, ctrl, log := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:03")

	h.SetPINResponder(func(a bthost.Addr) (string, bool) {
		if a != addr {
			t.Errorf("pin responder called for %v", a)
		}
		return "1234", true
	})

	ctrl.inject(evtFrame(evt.PINCodeRequestCode, addr.LE()...))
	cc := waitForCmds(t, ctrl, 0x040D, 1)
	if cc[0].params[6] != 4 || string(cc[0].params[7:11]) != "1234" {
		t.Fatalf("pin reply params = % X", cc[0].params)
	}
	log.waitFor(t, func(e bthost.Event) bool {
		p, ok := e.(bthost.PairingRequest)
		return ok && p.Addr == addr && p.Variant == bthost.PairingVariantPIN
	})
}

func TestPINCodeRequestDeclined(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:04")

	h.SetPINResponder(func(bthost.Addr) (string, bool) { return "", false })
	ctrl.inject(evtFrame(evt.PINCodeRequestCode, addr.LE()...))
	waitForCmds(t, ctrl, 0x040E, 1)
}

func TestDeclinedPINResetsBond(t *testing.T) {
	h, ctrl, log := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:0B")

	// no key on file starts a legacy pairing
	ctrl.inject(linkKeyRequestFrame(addr))
	waitForCmds(t, ctrl, 0x040C, 1)
	waitForBondState(t, h, addr, bthost.Bonding)

	// no responder: the PIN request is declined and the half-built
	// bond is dropped
	ctrl.inject(evtFrame(evt.PINCodeRequestCode, addr.LE()...))
	waitForCmds(t, ctrl, 0x040E, 1)
	waitForBondState(t, h, addr, bthost.BondNone)
	log.waitFor(t, func(e bthost.Event) bool {
		b, ok := e.(bthost.BondStateChanged)
		return ok && b.Addr == addr && b.Prev == bthost.Bonding && b.State == bthost.BondNone
	})
}

func TestFailedAuthenticationResetsBond(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:0C")

	l, err := h.Channels.Listen(bthost.RFCOMM, false, 5)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	ctrl.inject(connRequestFrame(addr, evt.LinkTypeACL))
	waitForLink(t, h, 0x0001)

	ctrl.inject(linkKeyRequestFrame(addr))
	waitForBondState(t, h, addr, bthost.Bonding)

	// the remote-driven authentication fails mid-pairing
	ctrl.inject(evtFrame(evt.AuthenticationCompleteCode, 0x05, 0x01, 0x00))
	waitForBondState(t, h, addr, bthost.BondNone)
}

func TestFailedAuthenticationKeepsEstablishedBond(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:0D")
	key := [16]byte{1, 2, 3}

	l, err := h.Channels.Listen(bthost.RFCOMM, false, 5)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	ctrl.inject(connRequestFrame(addr, evt.LinkTypeACL))
	waitForLink(t, h, 0x0001)

	ctrl.inject(linkKeyNotificationFrame(addr, key, 0x05))
	waitForBondState(t, h, addr, bthost.Bonded)

	// a failed re-authentication does not destroy the stored bond
	ctrl.inject(evtFrame(evt.AuthenticationCompleteCode, 0x05, 0x01, 0x00))
	syncpoint(t, h)
	if st := h.Registry.bondState(addr); st != bthost.Bonded {
		t.Fatalf("bond state = %v, want Bonded", st)
	}
	if _, ok := h.Registry.linkKey(addr); !ok {
		t.Fatal("link key destroyed by failed re-authentication")
	}
}

func TestUserConfirmationAutoAccepts(t *testing.T) {
	_, ctrl, log := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:05")

	params := append([]byte{}, addr.LE()...)
	params = append(params, 0x40, 0xE2, 0x01, 0x00) // 123456
	ctrl.inject(evtFrame(evt.UserConfirmationRequestCode, params...))

	waitForCmds(t, ctrl, 0x042C, 1)
	got := log.waitFor(t, func(e bthost.Event) bool {
		p, ok := e.(bthost.PairingRequest)
		return ok && p.Variant == bthost.PairingVariantConfirmation
	}).(bthost.PairingRequest)
	if got.Addr != addr || got.Passkey != 123456 {
		t.Fatalf("pairing request = %+v", got)
	}
}

func TestUserConfirmationRejected(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:06")

	h.SetConfirmResponder(func(bthost.Addr, uint32) bool { return false })

	// advertising a display changes the io capability reply
	ctrl.inject(evtFrame(evt.IOCapabilityRequestCode, addr.LE()...))
	cc := waitForCmds(t, ctrl, 0x042B, 1)
	if cc[0].params[6] != ioCapDisplayYesNo {
		t.Fatalf("io capability = 0x%02X", cc[0].params[6])
	}

	params := append([]byte{}, addr.LE()...)
	params = append(params, 0x40, 0xE2, 0x01, 0x00)
	ctrl.inject(evtFrame(evt.UserConfirmationRequestCode, params...))
	waitForCmds(t, ctrl, 0x042D, 1)
}

func TestUserPasskeyRequest(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:07")

	h.SetPasskeyResponder(func(bthost.Addr) (uint32, bool) { return 123456, true })
	ctrl.inject(evtFrame(evt.UserPasskeyRequestCode, addr.LE()...))
	cc := waitForCmds(t, ctrl, 0x042E, 1)
	if binary.LittleEndian.Uint32(cc[0].params[6:]) != 123456 {
		t.Fatalf("passkey params = % X", cc[0].params)
	}

	h.SetPasskeyResponder(nil)
	ctrl.inject(evtFrame(evt.UserPasskeyRequestCode, addr.LE()...))
	waitForCmds(t, ctrl, 0x042F, 1)
}

func TestSimplePairingFailureClearsBond(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:08")

	h.Registry.recordBondState(addr, bthost.Bonding)
	params := append([]byte{0x05}, addr.LE()...) // authentication failure
	ctrl.inject(evtFrame(evt.SimplePairingCompleteCode, params...))
	waitForBondState(t, h, addr, bthost.BondNone)
}

func TestPair(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:09")

	if err := h.Pair(addr); err != nil {
		t.Fatal(err)
	}
	if len(ctrl.sentCmds(0x0411)) != 1 {
		t.Fatal("authentication not requested")
	}

	// the controller hands over the negotiated key
	key := [16]byte{9, 8, 7}
	ctrl.inject(linkKeyNotificationFrame(addr, key, 0x05))
	waitForBondState(t, h, addr, bthost.Bonded)

	// pairing an already bonded device is a no-op
	if err := h.Pair(addr); err != nil {
		t.Fatal(err)
	}
	if n := len(ctrl.sentCmds(0x0411)); n != 1 {
		t.Fatalf("%d authentication requests, want 1", n)
	}
}

func TestPairRequiresPowerOn(t *testing.T) {
	h, _, _ := newTestHCI(t)
	addr, _ := bthost.ParseAddr("77:88:99:AA:BB:0A")
	if err := h.Pair(addr); err == nil {
		t.Fatal("pair succeeded while off")
	}
}

func TestLocalOOBData(t *testing.T) {
	h, _, _ := newTestHCI(t)

	oob, err := h.LocalOOBData()
	if err != nil {
		t.Fatal(err)
	}
	if oob.R == [16]byte{} || oob.C == [16]byte{} {
		t.Fatal("zero oob block")
	}

	// the randomizer is fresh per invocation
	oob2, err := h.LocalOOBData()
	if err != nil {
		t.Fatal(err)
	}
	if oob.R == oob2.R {
		t.Fatal("oob randomizer repeated")
	}
}
