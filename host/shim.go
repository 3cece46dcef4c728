package host

import (
	"time"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci"
)

// Shim reproduces the legacy binding surface on top of the explicit
// API: failures collapse into sentinel defaults (false, -1, "", nil)
// instead of errors. New code should use Host directly; the Shim
// exists for callers ported from the old interface.
type Shim struct {
	H *Host
}

func NewShim(h *Host) *Shim { return &Shim{H: h} }

func (s *Shim) IsEnabled() bool { return s.H.IsEnabled() }

func (s *Shim) GetState() int { return int(s.H.State()) }

// Enable reports whether the power-on request was accepted; like the
// legacy surface, reaching On is observed later through IsEnabled.
func (s *Shim) Enable() bool { return s.H.Enable() == nil }

func (s *Shim) Disable() bool { return s.H.Disable() == nil }

// GetAddress returns the colon form address, "" before the first
// enable.
func (s *Shim) GetAddress() string {
	a := s.H.Address()
	if a.IsZero() {
		return ""
	}
	return a.String()
}

func (s *Shim) GetName() string { return s.H.Name() }

func (s *Shim) SetName(name string) bool { return s.H.SetName(name) == nil }

func (s *Shim) GetScanMode() int { return int(s.H.ScanMode()) }

func (s *Shim) SetScanMode(mode int) bool {
	return s.H.SetScanMode(bthost.ScanMode(mode)) == nil
}

// GetDiscoverableTimeout reports whole seconds, -1 when the host is
// unreachable (kept for surface compatibility; it cannot happen
// here).
func (s *Shim) GetDiscoverableTimeout() int {
	return int(s.H.DiscoverableTimeout() / time.Second)
}

func (s *Shim) SetDiscoverableTimeout(seconds int) bool {
	return s.H.SetDiscoverableTimeout(time.Duration(seconds)*time.Second) == nil
}

func (s *Shim) StartDiscovery() bool { return s.H.StartDiscovery() == nil }

func (s *Shim) CancelDiscovery() bool { return s.H.CancelDiscovery() == nil }

func (s *Shim) IsDiscovering() bool { return s.H.IsDiscovering() }

// ListBonds returns the addresses of bonded devices in colon form.
func (s *Shim) ListBonds() []string {
	bonds := s.H.Bonds()
	out := make([]string, 0, len(bonds))
	for _, d := range bonds {
		out = append(out, d.Addr.String())
	}
	return out
}

func (s *Shim) CreateBond(address string) bool {
	addr, err := bthost.ParseAddr(address)
	if err != nil {
		return false
	}
	return s.H.Pair(addr) == nil
}

func (s *Shim) RemoveBond(address string) bool {
	addr, err := bthost.ParseAddr(address)
	if err != nil {
		return false
	}
	return s.H.RemoveBond(addr) == nil
}

// GetRemoteName returns the cached or resolved name, "" on any
// failure.
func (s *Shim) GetRemoteName(address string) string {
	addr, err := bthost.ParseAddr(address)
	if err != nil {
		return ""
	}
	name, err := s.H.RemoteName(addr)
	if err != nil {
		return ""
	}
	return name
}

// ListenUsingRfcommOn returns nil on any failure, including an
// adapter that is off. Port -1 allocates dynamically.
func (s *Shim) ListenUsingRfcommOn(port int) *hci.Channel {
	ch, err := s.H.ListenRFCOMM(port)
	if err != nil {
		return nil
	}
	return ch
}

func (s *Shim) ListenUsingInsecureRfcommOn(port int) *hci.Channel {
	ch, err := s.H.ListenInsecureRFCOMM(port)
	if err != nil {
		return nil
	}
	return ch
}

func (s *Shim) ListenUsingScoOn() *hci.Channel {
	ch, err := s.H.ListenSCO()
	if err != nil {
		return nil
	}
	return ch
}

func (s *Shim) ConnectRfcomm(address string, secure bool, port int) *hci.Channel {
	addr, err := bthost.ParseAddr(address)
	if err != nil {
		return nil
	}
	ch, err := s.H.Connect(addr, bthost.RFCOMM, secure, port)
	if err != nil {
		return nil
	}
	return ch
}

func (s *Shim) ConnectSco(address string) *hci.Channel {
	addr, err := bthost.ParseAddr(address)
	if err != nil {
		return nil
	}
	ch, err := s.H.Connect(addr, bthost.SCO, false, 0)
	if err != nil {
		return nil
	}
	return ch
}
