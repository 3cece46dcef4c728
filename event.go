package bthost

// Event is a state-change notification emitted by the engine and
// broadcast by the host facade. Consumers receive events after the
// fact; synchronous queries read cached state and never trigger I/O.
type Event interface {
	event()
}

// PowerStateChanged reports an adapter power transition.
type PowerStateChanged struct {
	Prev, State PowerState
}

// ScanModeChanged reports a change of the local scan mode.
type ScanModeChanged struct {
	Mode ScanMode
}

// NameChanged reports a change of the local friendly name.
type NameChanged struct {
	Name string
}

// DeviceDiscovered reports a device seen during an inquiry session.
type DeviceDiscovered struct {
	Addr  Addr
	Class uint32
	RSSI  int8
}

// DiscoveryStateChanged reports the start or end of an inquiry
// session.
type DiscoveryStateChanged struct {
	Discovering bool
}

// BondStateChanged reports a bond-state transition of a remote
// device.
type BondStateChanged struct {
	Addr        Addr
	Prev, State BondState
}

// ConnectionStateChanged reports a link-layer connection transition
// of a remote device.
type ConnectionStateChanged struct {
	Addr        Addr
	Prev, State ConnState
}

// PairingRequest asks the external pairing collaborator for user
// input. The engine emits it and consumes the reply through the
// facade; the prompt protocol itself is out of scope.
type PairingRequest struct {
	Addr    Addr
	Variant PairingVariant
	Passkey uint32
}

func (PowerStateChanged) event()      {}
func (ScanModeChanged) event()        {}
func (NameChanged) event()            {}
func (DeviceDiscovered) event()       {}
func (DiscoveryStateChanged) event()  {}
func (BondStateChanged) event()       {}
func (ConnectionStateChanged) event() {}
func (PairingRequest) event()         {}
