package cmd

// Inquiry implements Inquiry (0x01|0x0001) [Vol 2, Part E, 7.1.1]
//
// Completion is signaled by a Command Status event; results arrive as
// Inquiry Result events until Inquiry Complete.
type Inquiry struct {
	LAP           [3]byte
	InquiryLength uint8
	NumResponses  uint8
}

func (c *Inquiry) OpCode() int            { return 0x0401 }
func (c *Inquiry) Len() int               { return 5 }
func (c *Inquiry) Marshal(b []byte) error { return marshal(c, b) }

// InquiryCancel implements Inquiry Cancel (0x01|0x0002) [Vol 2, Part E, 7.1.2]
type InquiryCancel struct{}

func (c *InquiryCancel) OpCode() int            { return 0x0402 }
func (c *InquiryCancel) Len() int               { return 0 }
func (c *InquiryCancel) Marshal(b []byte) error { return marshal(c, b) }

// InquiryCancelRP returns the status of InquiryCancel.
type InquiryCancelRP struct {
	Status uint8
}

func (c *InquiryCancelRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// CreateConnection implements Create Connection (0x01|0x0005) [Vol 2, Part E, 7.1.5]
type CreateConnection struct {
	BDADDR                 [6]byte
	PacketType             uint16
	PageScanRepetitionMode uint8
	Reserved               uint8
	ClockOffset            uint16
	AllowRoleSwitch        uint8
}

func (c *CreateConnection) OpCode() int            { return 0x0405 }
func (c *CreateConnection) Len() int               { return 13 }
func (c *CreateConnection) Marshal(b []byte) error { return marshal(c, b) }

// Disconnect implements Disconnect (0x01|0x0006) [Vol 2, Part E, 7.1.6]
type Disconnect struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (c *Disconnect) OpCode() int            { return 0x0406 }
func (c *Disconnect) Len() int               { return 3 }
func (c *Disconnect) Marshal(b []byte) error { return marshal(c, b) }

// AcceptConnectionRequest implements Accept Connection Request
// (0x01|0x0009) [Vol 2, Part E, 7.1.8]
type AcceptConnectionRequest struct {
	BDADDR [6]byte
	Role   uint8
}

func (c *AcceptConnectionRequest) OpCode() int            { return 0x0409 }
func (c *AcceptConnectionRequest) Len() int               { return 7 }
func (c *AcceptConnectionRequest) Marshal(b []byte) error { return marshal(c, b) }

// RejectConnectionRequest implements Reject Connection Request
// (0x01|0x000A) [Vol 2, Part E, 7.1.9]
type RejectConnectionRequest struct {
	BDADDR [6]byte
	Reason uint8
}

func (c *RejectConnectionRequest) OpCode() int            { return 0x040A }
func (c *RejectConnectionRequest) Len() int               { return 7 }
func (c *RejectConnectionRequest) Marshal(b []byte) error { return marshal(c, b) }

// LinkKeyRequestReply implements Link Key Request Reply (0x01|0x000B)
// [Vol 2, Part E, 7.1.10]
type LinkKeyRequestReply struct {
	BDADDR  [6]byte
	LinkKey [16]byte
}

func (c *LinkKeyRequestReply) OpCode() int            { return 0x040B }
func (c *LinkKeyRequestReply) Len() int               { return 22 }
func (c *LinkKeyRequestReply) Marshal(b []byte) error { return marshal(c, b) }

// LinkKeyRequestReplyRP returns the status of LinkKeyRequestReply.
type LinkKeyRequestReplyRP struct {
	Status uint8
	BDADDR [6]byte
}

func (c *LinkKeyRequestReplyRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// LinkKeyRequestNegativeReply implements Link Key Request Negative
// Reply (0x01|0x000C) [Vol 2, Part E, 7.1.11]
type LinkKeyRequestNegativeReply struct {
	BDADDR [6]byte
}

func (c *LinkKeyRequestNegativeReply) OpCode() int            { return 0x040C }
func (c *LinkKeyRequestNegativeReply) Len() int               { return 6 }
func (c *LinkKeyRequestNegativeReply) Marshal(b []byte) error { return marshal(c, b) }

// LinkKeyRequestNegativeReplyRP returns the status of
// LinkKeyRequestNegativeReply.
type LinkKeyRequestNegativeReplyRP struct {
	Status uint8
	BDADDR [6]byte
}

func (c *LinkKeyRequestNegativeReplyRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// PINCodeRequestReply implements PIN Code Request Reply (0x01|0x000D)
// [Vol 2, Part E, 7.1.12]
type PINCodeRequestReply struct {
	BDADDR        [6]byte
	PINCodeLength uint8
	PINCode       [16]byte
}

func (c *PINCodeRequestReply) OpCode() int            { return 0x040D }
func (c *PINCodeRequestReply) Len() int               { return 23 }
func (c *PINCodeRequestReply) Marshal(b []byte) error { return marshal(c, b) }

// PINCodeRequestReplyRP returns the status of PINCodeRequestReply.
type PINCodeRequestReplyRP struct {
	Status uint8
	BDADDR [6]byte
}

func (c *PINCodeRequestReplyRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// PINCodeRequestNegativeReply implements PIN Code Request Negative
// Reply (0x01|0x000E) [Vol 2, Part E, 7.1.13]
type PINCodeRequestNegativeReply struct {
	BDADDR [6]byte
}

func (c *PINCodeRequestNegativeReply) OpCode() int            { return 0x040E }
func (c *PINCodeRequestNegativeReply) Len() int               { return 6 }
func (c *PINCodeRequestNegativeReply) Marshal(b []byte) error { return marshal(c, b) }

// AuthenticationRequested implements Authentication Requested
// (0x01|0x0011) [Vol 2, Part E, 7.1.15]
type AuthenticationRequested struct {
	ConnectionHandle uint16
}

func (c *AuthenticationRequested) OpCode() int            { return 0x0411 }
func (c *AuthenticationRequested) Len() int               { return 2 }
func (c *AuthenticationRequested) Marshal(b []byte) error { return marshal(c, b) }

// SetConnectionEncryption implements Set Connection Encryption
// (0x01|0x0013) [Vol 2, Part E, 7.1.16]
type SetConnectionEncryption struct {
	ConnectionHandle uint16
	EncryptionEnable uint8
}

func (c *SetConnectionEncryption) OpCode() int            { return 0x0413 }
func (c *SetConnectionEncryption) Len() int               { return 3 }
func (c *SetConnectionEncryption) Marshal(b []byte) error { return marshal(c, b) }

// RemoteNameRequest implements Remote Name Request (0x01|0x0019)
// [Vol 2, Part E, 7.1.19]
type RemoteNameRequest struct {
	BDADDR                 [6]byte
	PageScanRepetitionMode uint8
	Reserved               uint8
	ClockOffset            uint16
}

func (c *RemoteNameRequest) OpCode() int            { return 0x0419 }
func (c *RemoteNameRequest) Len() int               { return 10 }
func (c *RemoteNameRequest) Marshal(b []byte) error { return marshal(c, b) }

// SetupSynchronousConnection implements Setup Synchronous Connection
// (0x01|0x0028) [Vol 2, Part E, 7.1.26]
type SetupSynchronousConnection struct {
	ConnectionHandle      uint16
	TransmitBandwidth     uint32
	ReceiveBandwidth      uint32
	MaxLatency            uint16
	VoiceSetting          uint16
	RetransmissionEffort  uint8
	PacketType            uint16
}

func (c *SetupSynchronousConnection) OpCode() int            { return 0x0428 }
func (c *SetupSynchronousConnection) Len() int               { return 17 }
func (c *SetupSynchronousConnection) Marshal(b []byte) error { return marshal(c, b) }

// AcceptSynchronousConnectionRequest implements Accept Synchronous
// Connection Request (0x01|0x0029) [Vol 2, Part E, 7.1.27]
type AcceptSynchronousConnectionRequest struct {
	BDADDR               [6]byte
	TransmitBandwidth    uint32
	ReceiveBandwidth     uint32
	MaxLatency           uint16
	VoiceSetting         uint16
	RetransmissionEffort uint8
	PacketType           uint16
}

func (c *AcceptSynchronousConnectionRequest) OpCode() int            { return 0x0429 }
func (c *AcceptSynchronousConnectionRequest) Len() int               { return 21 }
func (c *AcceptSynchronousConnectionRequest) Marshal(b []byte) error { return marshal(c, b) }

// IOCapabilityRequestReply implements IO Capability Request Reply
// (0x01|0x002B) [Vol 2, Part E, 7.1.29]
type IOCapabilityRequestReply struct {
	BDADDR             [6]byte
	IOCapability       uint8
	OOBDataPresent     uint8
	AuthenticationReqs uint8
}

func (c *IOCapabilityRequestReply) OpCode() int            { return 0x042B }
func (c *IOCapabilityRequestReply) Len() int               { return 9 }
func (c *IOCapabilityRequestReply) Marshal(b []byte) error { return marshal(c, b) }

// UserConfirmationRequestReply implements User Confirmation Request
// Reply (0x01|0x002C) [Vol 2, Part E, 7.1.30]
type UserConfirmationRequestReply struct {
	BDADDR [6]byte
}

func (c *UserConfirmationRequestReply) OpCode() int            { return 0x042C }
func (c *UserConfirmationRequestReply) Len() int               { return 6 }
func (c *UserConfirmationRequestReply) Marshal(b []byte) error { return marshal(c, b) }

// UserConfirmationRequestNegativeReply implements User Confirmation
// Request Negative Reply (0x01|0x002D) [Vol 2, Part E, 7.1.31]
type UserConfirmationRequestNegativeReply struct {
	BDADDR [6]byte
}

func (c *UserConfirmationRequestNegativeReply) OpCode() int            { return 0x042D }
func (c *UserConfirmationRequestNegativeReply) Len() int               { return 6 }
func (c *UserConfirmationRequestNegativeReply) Marshal(b []byte) error { return marshal(c, b) }

// UserPasskeyRequestReply implements User Passkey Request Reply
// (0x01|0x002E) [Vol 2, Part E, 7.1.32]
type UserPasskeyRequestReply struct {
	BDADDR       [6]byte
	NumericValue uint32
}

func (c *UserPasskeyRequestReply) OpCode() int            { return 0x042E }
func (c *UserPasskeyRequestReply) Len() int               { return 10 }
func (c *UserPasskeyRequestReply) Marshal(b []byte) error { return marshal(c, b) }

// UserPasskeyRequestNegativeReply implements User Passkey Request
// Negative Reply (0x01|0x002F) [Vol 2, Part E, 7.1.33]
type UserPasskeyRequestNegativeReply struct {
	BDADDR [6]byte
}

func (c *UserPasskeyRequestNegativeReply) OpCode() int            { return 0x042F }
func (c *UserPasskeyRequestNegativeReply) Len() int               { return 6 }
func (c *UserPasskeyRequestNegativeReply) Marshal(b []byte) error { return marshal(c, b) }
