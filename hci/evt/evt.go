package evt

// Event codes handled by the engine [Vol 2, Part E, 7.7].
const (
	InquiryCompleteCode               = 0x01
	InquiryResultCode                 = 0x02
	ConnectionCompleteCode            = 0x03
	ConnectionRequestCode             = 0x04
	DisconnectionCompleteCode         = 0x05
	AuthenticationCompleteCode        = 0x06
	RemoteNameRequestCompleteCode     = 0x07
	EncryptionChangeCode              = 0x08
	CommandCompleteCode               = 0x0E
	CommandStatusCode                 = 0x0F
	NumberOfCompletedPacketsCode      = 0x13
	InquiryResultWithRSSICode         = 0x22
	PINCodeRequestCode                = 0x16
	LinkKeyRequestCode                = 0x17
	LinkKeyNotificationCode           = 0x18
	SynchronousConnectionCompleteCode = 0x2C
	IOCapabilityRequestCode           = 0x31
	UserConfirmationRequestCode       = 0x33
	UserPasskeyRequestCode            = 0x34
	SimplePairingCompleteCode         = 0x36
)

// Link types carried by connection events.
const (
	LinkTypeSCO  = 0x00
	LinkTypeACL  = 0x01
	LinkTypeESCO = 0x02
)

// Each event is the raw parameter block of the packet; accessors
// decode lazily. The WErr variants bounds-check, the plain ones
// return the zero value on short packets.

type InquiryComplete []byte
type InquiryResult []byte
type InquiryResultWithRSSI []byte
type ConnectionComplete []byte
type ConnectionRequest []byte
type DisconnectionComplete []byte
type AuthenticationComplete []byte
type RemoteNameRequestComplete []byte
type EncryptionChange []byte
type CommandComplete []byte
type CommandStatus []byte
type NumberOfCompletedPackets []byte
type PINCodeRequest []byte
type LinkKeyRequest []byte
type LinkKeyNotification []byte
type SynchronousConnectionComplete []byte
type IOCapabilityRequest []byte
type UserConfirmationRequest []byte
type UserPasskeyRequest []byte
type SimplePairingComplete []byte

func (e InquiryComplete) Status() uint8 { v, _ := e.StatusWErr(); return v }

func (e InquiryResult) NumResponses() uint8 { v, _ := e.NumResponsesWErr(); return v }

func (e InquiryResult) Address(i int) [6]byte { v, _ := e.AddressWErr(i); return v }

func (e InquiryResult) ClassOfDevice(i int) uint32 { v, _ := e.ClassOfDeviceWErr(i); return v }

func (e InquiryResultWithRSSI) NumResponses() uint8 { v, _ := e.NumResponsesWErr(); return v }

func (e InquiryResultWithRSSI) Address(i int) [6]byte { v, _ := e.AddressWErr(i); return v }

func (e InquiryResultWithRSSI) ClassOfDevice(i int) uint32 {
	v, _ := e.ClassOfDeviceWErr(i)
	return v
}

func (e InquiryResultWithRSSI) RSSI(i int) int8 { v, _ := e.RSSIWErr(i); return v }

func (e ConnectionComplete) Status() uint8 { v, _ := e.StatusWErr(); return v }

func (e ConnectionComplete) ConnectionHandle() uint16 { v, _ := e.ConnectionHandleWErr(); return v }

func (e ConnectionComplete) Address() [6]byte { v, _ := e.AddressWErr(); return v }

func (e ConnectionComplete) LinkType() uint8 { v, _ := e.LinkTypeWErr(); return v }

func (e ConnectionRequest) Address() [6]byte { v, _ := e.AddressWErr(); return v }

func (e ConnectionRequest) ClassOfDevice() uint32 { v, _ := e.ClassOfDeviceWErr(); return v }

func (e ConnectionRequest) LinkType() uint8 { v, _ := e.LinkTypeWErr(); return v }

func (e DisconnectionComplete) Status() uint8 { v, _ := getByte(e, 0, 0); return v }

func (e DisconnectionComplete) ConnectionHandle() uint16 { v, _ := getUint16LE(e, 1, 0xffff); return v }

func (e DisconnectionComplete) Reason() uint8 { v, _ := getByte(e, 3, 0); return v }

func (e AuthenticationComplete) Status() uint8 { v, _ := getByte(e, 0, 0); return v }

func (e AuthenticationComplete) ConnectionHandle() uint16 {
	v, _ := getUint16LE(e, 1, 0xffff)
	return v
}

func (e RemoteNameRequestComplete) Status() uint8 { v, _ := getByte(e, 0, 0); return v }

func (e RemoteNameRequestComplete) Address() [6]byte { v, _ := getAddr(e, 1); return v }

// RemoteName returns the UTF-8 name with trailing NULs stripped.
func (e RemoteNameRequestComplete) RemoteName() string {
	if len(e) < 8 {
		return ""
	}
	b := e[7:]
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	return string(b)
}

func (e EncryptionChange) Status() uint8 { v, _ := getByte(e, 0, 0); return v }

func (e EncryptionChange) ConnectionHandle() uint16 { v, _ := getUint16LE(e, 1, 0xffff); return v }

func (e EncryptionChange) EncryptionEnabled() uint8 { v, _ := getByte(e, 3, 0); return v }

func (e CommandComplete) NumHCICommandPackets() uint8 { v, _ := getByte(e, 0, 0); return v }

func (e CommandComplete) CommandOpcode() uint16 { v, _ := getUint16LE(e, 1, 0xffff); return v }

func (e CommandComplete) ReturnParameters() []byte { v, _ := getBytes(e, 3, -1); return v }

func (e CommandStatus) Status() uint8 { v, _ := getByte(e, 0, 0); return v }

func (e CommandStatus) NumHCICommandPackets() uint8 { v, _ := getByte(e, 1, 0); return v }

func (e CommandStatus) CommandOpcode() uint16 { v, _ := getUint16LE(e, 2, 0xffff); return v }

// Valid reports whether the packet is long enough to carry a command
// status block.
func (e CommandStatus) Valid() bool { return len(e) >= 4 }

func (e NumberOfCompletedPackets) NumberOfHandles() uint8 { v, _ := getByte(e, 0, 0); return v }

func (e NumberOfCompletedPackets) ConnectionHandle(i int) uint16 {
	v, _ := getUint16LE(e, 1+i*4, 0xffff)
	return v
}

func (e NumberOfCompletedPackets) NumOfCompletedPackets(i int) uint16 {
	v, _ := getUint16LE(e, 1+i*4+2, 0)
	return v
}

func (e PINCodeRequest) Address() [6]byte { v, _ := getAddr(e, 0); return v }

func (e LinkKeyRequest) Address() [6]byte { v, _ := getAddr(e, 0); return v }

func (e LinkKeyNotification) Address() [6]byte { v, _ := getAddr(e, 0); return v }

func (e LinkKeyNotification) LinkKey() [16]byte {
	var k [16]byte
	b, err := getBytes(e, 6, 16)
	if err == nil {
		copy(k[:], b)
	}
	return k
}

func (e LinkKeyNotification) KeyType() uint8 { v, _ := getByte(e, 22, 0); return v }

func (e SynchronousConnectionComplete) Status() uint8 { v, _ := getByte(e, 0, 0); return v }

func (e SynchronousConnectionComplete) ConnectionHandle() uint16 {
	v, _ := getUint16LE(e, 1, 0xffff)
	return v
}

func (e SynchronousConnectionComplete) Address() [6]byte { v, _ := getAddr(e, 3); return v }

func (e SynchronousConnectionComplete) LinkType() uint8 { v, _ := getByte(e, 9, 0); return v }

func (e IOCapabilityRequest) Address() [6]byte { v, _ := getAddr(e, 0); return v }

func (e UserConfirmationRequest) Address() [6]byte { v, _ := getAddr(e, 0); return v }

func (e UserConfirmationRequest) NumericValue() uint32 { v, _ := getUint32LE(e, 6, 0); return v }

func (e UserPasskeyRequest) Address() [6]byte { v, _ := getAddr(e, 0); return v }

func (e SimplePairingComplete) Status() uint8 { v, _ := getByte(e, 0, 0); return v }

func (e SimplePairingComplete) Address() [6]byte { v, _ := getAddr(e, 1); return v }
