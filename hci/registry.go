package hci

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
)

// RemoteDevice is a read-only snapshot of what the registry knows
// about a peer.
type RemoteDevice struct {
	Addr     bthost.Addr
	Name     string
	Class    uint32
	RSSI     int8
	Bond     bthost.BondState
	Conn     bthost.ConnState
	LastSeen time.Time
}

type deviceRecord struct {
	addr     bthost.Addr
	name     string
	class    uint32
	rssi     int8
	bond     bthost.BondState
	conn     bthost.ConnState
	lastSeen time.Time

	hasKey  bool
	linkKey [16]byte
	keyType uint8
}

func (r *deviceRecord) snapshot() RemoteDevice {
	return RemoteDevice{
		Addr:     r.addr,
		Name:     r.name,
		Class:    r.class,
		RSSI:     r.rssi,
		Bond:     r.bond,
		Conn:     r.conn,
		LastSeen: r.lastSeen,
	}
}

// Registry tracks every remote device the engine has seen: inquiry
// sightings, connection state, bond state and link keys. Bonded
// entries survive restarts through the bond store.
type Registry struct {
	h *HCI

	mu      sync.RWMutex
	devices map[bthost.Addr]*deviceRecord
	path    string
}

func newRegistry(h *HCI) *Registry {
	return &Registry{
		h:       h,
		devices: make(map[bthost.Addr]*deviceRecord),
	}
}

func (r *Registry) recordLocked(addr bthost.Addr) *deviceRecord {
	rec, ok := r.devices[addr]
	if !ok {
		rec = &deviceRecord{addr: addr}
		r.devices[addr] = rec
	}
	return rec
}

// Device returns a snapshot of a known device.
func (r *Registry) Device(addr bthost.Addr) (RemoteDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.devices[addr]
	if !ok {
		return RemoteDevice{}, errors.Wrapf(bthost.ErrNotFound, "device %v", addr)
	}
	return rec.snapshot(), nil
}

// Devices returns snapshots of every known device.
func (r *Registry) Devices() []RemoteDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dd := make([]RemoteDevice, 0, len(r.devices))
	for _, rec := range r.devices {
		dd = append(dd, rec.snapshot())
	}
	return dd
}

// ListBonded returns devices whose bonding has completed. Devices
// mid-pairing are excluded.
func (r *Registry) ListBonded() []RemoteDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var dd []RemoteDevice
	for _, rec := range r.devices {
		if rec.bond == bthost.Bonded {
			dd = append(dd, rec.snapshot())
		}
	}
	return dd
}

// Forget removes a bond. The link key is destroyed and the store
// rewritten before the state change is announced.
func (r *Registry) Forget(addr bthost.Addr) error {
	r.mu.Lock()
	rec, ok := r.devices[addr]
	if !ok || rec.bond == bthost.BondNone {
		r.mu.Unlock()
		return errors.Wrapf(bthost.ErrNotFound, "no bond for %v", addr)
	}
	prev := rec.bond
	rec.bond = bthost.BondNone
	rec.hasKey = false
	rec.linkKey = [16]byte{}
	r.saveLocked()
	r.mu.Unlock()

	r.h.notify(bthost.BondStateChanged{Addr: addr, Prev: prev, State: bthost.BondNone})
	return nil
}

// recordSighting updates a device from an inquiry response and
// reports whether this is a new sighting for the current scan.
func (r *Registry) recordSighting(addr bthost.Addr, class uint32, rssi int8) {
	r.mu.Lock()
	rec := r.recordLocked(addr)
	rec.class = class
	rec.rssi = rssi
	rec.lastSeen = time.Now()
	r.mu.Unlock()
}

func (r *Registry) recordName(addr bthost.Addr, name string) {
	r.mu.Lock()
	rec := r.recordLocked(addr)
	if rec.name != name {
		rec.name = name
		if rec.bond == bthost.Bonded {
			r.saveLocked()
		}
	}
	r.mu.Unlock()
}

func (r *Registry) cachedName(addr bthost.Addr) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.devices[addr]; ok {
		return rec.name
	}
	return ""
}

func (r *Registry) recordConnectionState(addr bthost.Addr, s bthost.ConnState) {
	r.mu.Lock()
	rec := r.recordLocked(addr)
	prev := rec.conn
	if prev == s {
		r.mu.Unlock()
		return
	}
	rec.conn = s
	r.mu.Unlock()

	r.h.notify(bthost.ConnectionStateChanged{Addr: addr, Prev: prev, State: s})
}

func (r *Registry) connectionState(addr bthost.Addr) bthost.ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.devices[addr]; ok {
		return rec.conn
	}
	return bthost.Disconnected
}

func (r *Registry) recordBondState(addr bthost.Addr, s bthost.BondState) {
	r.mu.Lock()
	rec := r.recordLocked(addr)
	prev := rec.bond
	if prev == s {
		r.mu.Unlock()
		return
	}
	rec.bond = s
	if s == bthost.BondNone {
		rec.hasKey = false
		rec.linkKey = [16]byte{}
		r.saveLocked()
	}
	r.mu.Unlock()

	r.h.notify(bthost.BondStateChanged{Addr: addr, Prev: prev, State: s})
}

// bondFailed rolls a mid-pairing device back to BondNone. Devices in
// any other state are left alone, so a failed re-authentication does
// not destroy an established bond.
func (r *Registry) bondFailed(addr bthost.Addr) {
	r.mu.Lock()
	rec, ok := r.devices[addr]
	if !ok || rec.bond != bthost.Bonding {
		r.mu.Unlock()
		return
	}
	rec.bond = bthost.BondNone
	rec.hasKey = false
	rec.linkKey = [16]byte{}
	r.mu.Unlock()

	r.h.notify(bthost.BondStateChanged{Addr: addr, Prev: bthost.Bonding, State: bthost.BondNone})
}

func (r *Registry) bondState(addr bthost.Addr) bthost.BondState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.devices[addr]; ok {
		return rec.bond
	}
	return bthost.BondNone
}

// storeLinkKey persists a freshly negotiated link key and promotes
// the device to Bonded.
func (r *Registry) storeLinkKey(addr bthost.Addr, key [16]byte, keyType uint8) {
	r.mu.Lock()
	rec := r.recordLocked(addr)
	prev := rec.bond
	rec.hasKey = true
	rec.linkKey = key
	rec.keyType = keyType
	rec.bond = bthost.Bonded
	r.saveLocked()
	r.mu.Unlock()

	if prev != bthost.Bonded {
		r.h.notify(bthost.BondStateChanged{Addr: addr, Prev: prev, State: bthost.Bonded})
	}
}

func (r *Registry) linkKey(addr bthost.Addr) ([16]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.devices[addr]; ok && rec.hasKey {
		return rec.linkKey, true
	}
	return [16]byte{}, false
}
