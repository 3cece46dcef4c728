// Package host is the service facade over the hci engine. It owns
// the engine lifecycle and fans state-change events out to
// subscribers. All failures are explicit error returns; callers that
// want the original sentinel-default surface wrap a Host in a Shim.
package host

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci"
)

var logger = bthost.GetLogger().ChildLogger(map[string]interface{}{"pkg": "host"})

const subscriberBuffer = 32

// Host is the single entry point for applications. Synchronous
// getters read cached engine state and never touch the controller.
type Host struct {
	hci *hci.HCI

	muSubs sync.Mutex
	subs   map[*Subscription]struct{}

	muClose sync.Mutex
	closed  bool
}

// A Subscription receives every engine event from the moment
// Subscribe returns. Slow consumers lose events rather than stall
// the engine.
type Subscription struct {
	C    <-chan bthost.Event
	c    chan bthost.Event
	host *Host
}

// New builds a Host and opens the transport. The adapter comes up
// powered off; call Enable.
func New(opts ...bthost.Option) (*Host, error) {
	engine, err := hci.New(opts...)
	if err != nil {
		return nil, err
	}

	h := &Host{
		hci:  engine,
		subs: make(map[*Subscription]struct{}),
	}
	engine.SetNotifyFunc(h.broadcast)

	if err := engine.Init(); err != nil {
		return nil, errors.Wrap(err, "can't init hci")
	}
	return h, nil
}

func (h *Host) broadcast(e bthost.Event) {
	h.muSubs.Lock()
	defer h.muSubs.Unlock()
	for s := range h.subs {
		select {
		case s.c <- e:
		default:
			logger.Debugf("subscriber full, dropping %T", e)
		}
	}
}

// Subscribe registers an event consumer.
func (h *Host) Subscribe() *Subscription {
	c := make(chan bthost.Event, subscriberBuffer)
	s := &Subscription{C: c, c: c, host: h}
	h.muSubs.Lock()
	h.subs[s] = struct{}{}
	h.muSubs.Unlock()
	return s
}

// Unsubscribe removes the consumer and closes its channel.
func (s *Subscription) Unsubscribe() {
	h := s.host
	h.muSubs.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	h.muSubs.Unlock()
	if ok {
		close(s.c)
	}
}

// Enable requests power-on. A nil return means the request was
// accepted; On arrives later as a PowerStateChanged event, and a
// failed bring-up falls back to Off.
func (h *Host) Enable() error { return h.hci.Adapter.Enable() }

// Disable requests power-off; channels, discovery and links are torn
// down on the way, and Off arrives as a PowerStateChanged event.
func (h *Host) Disable() error { return h.hci.Adapter.Disable() }

func (h *Host) IsEnabled() bool { return h.hci.Adapter.State() == bthost.PowerOn }

func (h *Host) State() bthost.PowerState { return h.hci.Adapter.State() }

// Address returns the controller's public address; the zero address
// before the first enable.
func (h *Host) Address() bthost.Addr { return h.hci.Adapter.Addr() }

func (h *Host) Name() string { return h.hci.Adapter.Name() }

func (h *Host) SetName(name string) error { return h.hci.Adapter.SetName(name) }

func (h *Host) ScanMode() bthost.ScanMode { return h.hci.Adapter.ScanMode() }

func (h *Host) SetScanMode(mode bthost.ScanMode) error { return h.hci.Adapter.SetScanMode(mode) }

func (h *Host) DiscoverableTimeout() time.Duration { return h.hci.Adapter.DiscoverableTimeout() }

func (h *Host) SetDiscoverableTimeout(d time.Duration) error {
	return h.hci.Adapter.SetDiscoverableTimeout(d)
}

func (h *Host) StartDiscovery() error { return h.hci.Discovery.Start() }

func (h *Host) CancelDiscovery() error { return h.hci.Discovery.Cancel() }

func (h *Host) IsDiscovering() bool { return h.hci.Discovery.IsDiscovering() }

// Bonds returns a snapshot of bonded devices. Devices mid-pairing
// are not included.
func (h *Host) Bonds() []hci.RemoteDevice { return h.hci.Registry.ListBonded() }

// RemoveBond forgets a bonded device. ErrNotFound if no bond exists.
func (h *Host) RemoveBond(addr bthost.Addr) error { return h.hci.Registry.Forget(addr) }

// RemoteDevice returns what is known about a peer. ErrNotFound if it
// has never been seen.
func (h *Host) RemoteDevice(addr bthost.Addr) (hci.RemoteDevice, error) {
	return h.hci.Registry.Device(addr)
}

// RemoteName resolves the friendly name of a peer, from cache or
// over the air.
func (h *Host) RemoteName(addr bthost.Addr) (string, error) {
	return h.hci.Adapter.RemoteName(addr)
}

// Pair bonds with a remote device.
func (h *Host) Pair(addr bthost.Addr) error { return h.hci.Pair(addr) }

// SetPINResponder installs the legacy pairing PIN callback.
func (h *Host) SetPINResponder(fn hci.PINResponder) { h.hci.SetPINResponder(fn) }

// SetConfirmResponder installs the numeric comparison callback.
func (h *Host) SetConfirmResponder(fn hci.ConfirmResponder) { h.hci.SetConfirmResponder(fn) }

// SetPasskeyResponder installs the passkey entry callback.
func (h *Host) SetPasskeyResponder(fn hci.PasskeyResponder) { h.hci.SetPasskeyResponder(fn) }

// LocalOOBData returns the out-of-band pairing block for this host.
func (h *Host) LocalOOBData() (*hci.OOBData, error) { return h.hci.LocalOOBData() }

// ListenRFCOMM binds a secure RFCOMM listener. Port -1 picks a free
// server channel; read it back with Port().
func (h *Host) ListenRFCOMM(port int) (*hci.Channel, error) {
	return h.hci.Channels.Listen(bthost.RFCOMM, true, port)
}

// ListenInsecureRFCOMM binds an RFCOMM listener that does not demand
// authentication or encryption.
func (h *Host) ListenInsecureRFCOMM(port int) (*hci.Channel, error) {
	return h.hci.Channels.Listen(bthost.RFCOMM, false, port)
}

// ListenSCO binds the synchronous (audio) listener.
func (h *Host) ListenSCO() (*hci.Channel, error) {
	return h.hci.Channels.Listen(bthost.SCO, false, 0)
}

// Connect opens an outgoing channel to a peer. RFCOMM connections
// need the remote server channel in port; SCO ignores it.
func (h *Host) Connect(addr bthost.Addr, typ bthost.ChannelType, secure bool, port int) (*hci.Channel, error) {
	return h.hci.Channels.Connect(addr, typ, secure, port)
}

// Close shuts the engine down and closes every subscription.
func (h *Host) Close() error {
	h.muClose.Lock()
	if h.closed {
		h.muClose.Unlock()
		return nil
	}
	h.closed = true
	h.muClose.Unlock()

	err := h.hci.Close()

	h.muSubs.Lock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.c)
	}
	h.muSubs.Unlock()
	return err
}
