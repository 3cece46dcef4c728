package hci

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
)

// the registry only needs the notification sink from the engine
func newBareRegistry() *Registry {
	return newRegistry(&HCI{notify: func(bthost.Event) {}})
}

func TestRegistryDeviceNotFound(t *testing.T) {
	r := newBareRegistry()
	addr, _ := bthost.ParseAddr("00:11:22:33:44:55")

	if _, err := r.Device(addr); errors.Cause(err) != bthost.ErrNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestRegistrySighting(t *testing.T) {
	r := newBareRegistry()
	addr, _ := bthost.ParseAddr("00:11:22:33:44:55")

	r.recordSighting(addr, 0x5A020C, -60)
	dev, err := r.Device(addr)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Class != 0x5A020C || dev.RSSI != -60 || dev.LastSeen.IsZero() {
		t.Fatalf("device = %+v", dev)
	}
	if len(r.Devices()) != 1 {
		t.Fatalf("%d devices", len(r.Devices()))
	}
}

func TestRegistryListBondedExcludesBonding(t *testing.T) {
	r := newBareRegistry()
	a1, _ := bthost.ParseAddr("00:11:22:33:44:01")
	a2, _ := bthost.ParseAddr("00:11:22:33:44:02")

	r.recordBondState(a1, bthost.Bonding)
	r.storeLinkKey(a2, [16]byte{1, 2, 3}, 0x04)

	bb := r.ListBonded()
	if len(bb) != 1 || bb[0].Addr != a2 {
		t.Fatalf("bonded = %+v", bb)
	}
}

func TestRegistryForget(t *testing.T) {
	r := newBareRegistry()
	addr, _ := bthost.ParseAddr("00:11:22:33:44:55")

	if err := r.Forget(addr); errors.Cause(err) != bthost.ErrNotFound {
		t.Fatalf("forget unknown err = %v", err)
	}

	r.storeLinkKey(addr, [16]byte{1}, 0x04)
	if err := r.Forget(addr); err != nil {
		t.Fatal(err)
	}
	if r.bondState(addr) != bthost.BondNone {
		t.Fatalf("bond state = %v", r.bondState(addr))
	}
	if _, ok := r.linkKey(addr); ok {
		t.Fatal("link key survived forget")
	}
	if err := r.Forget(addr); errors.Cause(err) != bthost.ErrNotFound {
		t.Fatalf("second forget err = %v", err)
	}
}

func TestBondStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bonds", "store.json")
	addr, _ := bthost.ParseAddr("AA:BB:CC:00:11:22")
	key := [16]byte{0xDE, 0xAD, 0xBE, 0xEF, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	r := newBareRegistry()
	if err := r.loadBonds(path); err != nil {
		t.Fatal(err)
	}
	r.storeLinkKey(addr, key, 0x05)
	r.recordName(addr, "headset")

	r2 := newBareRegistry()
	if err := r2.loadBonds(path); err != nil {
		t.Fatal(err)
	}
	bb := r2.ListBonded()
	if len(bb) != 1 || bb[0].Addr != addr || bb[0].Name != "headset" {
		t.Fatalf("restored bonds = %+v", bb)
	}
	got, ok := r2.linkKey(addr)
	if !ok || got != key {
		t.Fatalf("restored key = % X, ok = %v", got, ok)
	}
}

func TestBondStoreForgetRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	a1, _ := bthost.ParseAddr("AA:BB:CC:00:11:01")
	a2, _ := bthost.ParseAddr("AA:BB:CC:00:11:02")

	r := newBareRegistry()
	if err := r.loadBonds(path); err != nil {
		t.Fatal(err)
	}
	r.storeLinkKey(a1, [16]byte{1}, 0x04)
	r.storeLinkKey(a2, [16]byte{2}, 0x04)
	if err := r.Forget(a1); err != nil {
		t.Fatal(err)
	}

	r2 := newBareRegistry()
	if err := r2.loadBonds(path); err != nil {
		t.Fatal(err)
	}
	bb := r2.ListBonded()
	if len(bb) != 1 || bb[0].Addr != a2 {
		t.Fatalf("restored bonds = %+v", bb)
	}
}

func TestBondStoreMissingFile(t *testing.T) {
	r := newBareRegistry()
	if err := r.loadBonds(filepath.Join(t.TempDir(), "nope.json")); err != nil {
		t.Fatal(err)
	}
	if len(r.ListBonded()) != 0 {
		t.Fatal("bonds from a missing file")
	}
}
