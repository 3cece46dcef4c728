package cmd

// ReadBufferSize implements Read Buffer Size (0x04|0x0005) [Vol 2, Part E, 7.4.5]
type ReadBufferSize struct{}

func (c *ReadBufferSize) OpCode() int            { return 0x1005 }
func (c *ReadBufferSize) Len() int               { return 0 }
func (c *ReadBufferSize) Marshal(b []byte) error { return marshal(c, b) }

// ReadBufferSizeRP returns the controller data buffer geometry.
type ReadBufferSizeRP struct {
	Status                   uint8
	HCACLDataPacketLength    uint16
	HCSCODataPacketLength    uint8
	HCTotalNumACLDataPackets uint16
	HCTotalNumSCODataPackets uint16
}

func (c *ReadBufferSizeRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadBDADDR implements Read BD_ADDR (0x04|0x0009) [Vol 2, Part E, 7.4.6]
type ReadBDADDR struct{}

func (c *ReadBDADDR) OpCode() int            { return 0x1009 }
func (c *ReadBDADDR) Len() int               { return 0 }
func (c *ReadBDADDR) Marshal(b []byte) error { return marshal(c, b) }

// ReadBDADDRRP returns the public address of the controller, wire
// order (LSB first).
type ReadBDADDRRP struct {
	Status uint8
	BDADDR [6]byte
}

func (c *ReadBDADDRRP) Unmarshal(b []byte) error { return unmarshal(c, b) }
