package bthost

import "fmt"

// PowerState is the adapter radio power state. Transitions are
// strictly sequential: Off, TurningOn, On, TurningOff, Off.
type PowerState int

const (
	PowerOff PowerState = iota
	PowerTurningOn
	PowerOn
	PowerTurningOff
)

func (s PowerState) String() string {
	switch s {
	case PowerOff:
		return "OFF"
	case PowerTurningOn:
		return "TURNING_ON"
	case PowerOn:
		return "ON"
	case PowerTurningOff:
		return "TURNING_OFF"
	}
	return fmt.Sprintf("UNKNOWN[%d]", int(s))
}

// ScanMode controls page scan (connectable) and inquiry scan
// (discoverable). The values mirror the original service surface,
// where connectable+discoverable is 3, not 2.
type ScanMode int

const (
	ScanModeNone                    ScanMode = 0
	ScanModeConnectable             ScanMode = 1
	ScanModeConnectableDiscoverable ScanMode = 3
)

func (m ScanMode) String() string {
	switch m {
	case ScanModeNone:
		return "NONE"
	case ScanModeConnectable:
		return "CONNECTABLE"
	case ScanModeConnectableDiscoverable:
		return "CONNECTABLE_DISCOVERABLE"
	}
	return fmt.Sprintf("UNKNOWN[%d]", int(m))
}

// Valid reports whether m is one of the three defined modes.
func (m ScanMode) Valid() bool {
	return m == ScanModeNone || m == ScanModeConnectable || m == ScanModeConnectableDiscoverable
}

// BondState tracks the persistent pairing relationship with a remote
// device.
type BondState int

const (
	BondNone BondState = iota
	Bonding
	Bonded
)

func (s BondState) String() string {
	switch s {
	case BondNone:
		return "NONE"
	case Bonding:
		return "BONDING"
	case Bonded:
		return "BONDED"
	}
	return fmt.Sprintf("UNKNOWN[%d]", int(s))
}

// ConnState tracks the link-layer connection to a remote device,
// independent of its bond state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	}
	return fmt.Sprintf("UNKNOWN[%d]", int(s))
}

// ChannelType is the protocol of a logical channel.
type ChannelType int

const (
	RFCOMM ChannelType = iota
	SCO
)

func (t ChannelType) String() string {
	switch t {
	case RFCOMM:
		return "RFCOMM"
	case SCO:
		return "SCO"
	}
	return fmt.Sprintf("UNKNOWN[%d]", int(t))
}

// ChannelState is the lifecycle state of a logical channel.
type ChannelState int

const (
	ChannelCreated ChannelState = iota
	ChannelListening
	ChannelConnecting
	ChannelConnected
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelCreated:
		return "CREATED"
	case ChannelListening:
		return "LISTENING"
	case ChannelConnecting:
		return "CONNECTING"
	case ChannelConnected:
		return "CONNECTED"
	case ChannelClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("UNKNOWN[%d]", int(s))
}

// Transport selects the physical bearer of a connection.
type Transport uint8

const (
	TransportAuto Transport = iota
	TransportBREDR
	TransportLE
	TransportDual
)

func (t Transport) String() string {
	switch t {
	case TransportAuto:
		return "BT_TRANSPORT_AUTO"
	case TransportBREDR:
		return "BT_TRANSPORT_BR_EDR"
	case TransportLE:
		return "BT_TRANSPORT_LE"
	case TransportDual:
		return "BT_TRANSPORT_DUAL"
	}
	return fmt.Sprintf("UNKNOWN[%d]", uint8(t))
}

// PairingVariant is the kind of user interaction a pairing attempt
// asks for. The prompt flow itself lives outside this module; the
// engine only consumes the resulting events.
type PairingVariant int

const (
	PairingVariantPIN PairingVariant = iota
	PairingVariantPasskey
	PairingVariantConfirmation
)

func (v PairingVariant) String() string {
	switch v {
	case PairingVariantPIN:
		return "PIN"
	case PairingVariantPasskey:
		return "PASSKEY"
	case PairingVariantConfirmation:
		return "CONFIRMATION"
	}
	return fmt.Sprintf("UNKNOWN[%d]", int(v))
}
