package hci

import "time"

// Packet boundary flags of HCI ACL data packets [Vol 2, Part E, 5.4.2].
const (
	pbfHostToControllerStart = 0x00
	pbfContinuing            = 0x01
)

const (
	chCmdCredits  = 16
	defCmdTimeout = 3 * time.Second

	defDialerTimeout   = 20 * time.Second
	defListenerTimeout = 30 * time.Second

	// inquiry length is expressed in 1.28 s units on the wire
	inquiryUnit      = 1280 * time.Millisecond
	defInquiryLength = 10240 * time.Millisecond
	maxInquiryUnits  = 0x30
)

// GIAC, the general inquiry access code [Vol 2, Part B, 1.2].
var giacLAP = [3]byte{0x33, 0x8B, 0x9E}

// Scan enable bits for Write Scan Enable [Vol 2, Part E, 7.3.18].
const (
	scanInquiry = 0x01
	scanPage    = 0x02
)

// DM1/DM3/DM5/DH1/DH3/DH5, the usual ACL packet type mask for
// Create Connection.
const defaultACLPacketTypes = 0xCC18

// Disconnect / reject reasons used by the engine.
const (
	reasonRemoteUserTerminated = 0x13
	reasonLimitedResources     = 0x0D
)

const (
	roleMaster = 0x00
	roleSlave  = 0x01
)
