package cmd

// SetEventMask implements Set Event Mask (0x03|0x0001) [Vol 2, Part E, 7.3.1]
type SetEventMask struct {
	EventMask uint64
}

func (c *SetEventMask) OpCode() int          { return 0x0C01 }
func (c *SetEventMask) Len() int             { return 8 }
func (c *SetEventMask) Marshal(b []byte) error { return marshal(c, b) }

// SetEventMaskRP returns the status of SetEventMask.
type SetEventMaskRP struct {
	Status uint8
}

func (c *SetEventMaskRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// Reset implements Reset (0x03|0x0003) [Vol 2, Part E, 7.3.2]
type Reset struct{}

func (c *Reset) OpCode() int            { return 0x0C03 }
func (c *Reset) Len() int               { return 0 }
func (c *Reset) Marshal(b []byte) error { return marshal(c, b) }

// ResetRP returns the status of Reset.
type ResetRP struct {
	Status uint8
}

func (c *ResetRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// WriteLocalName implements Write Local Name (0x03|0x0013) [Vol 2, Part E, 7.3.11]
type WriteLocalName struct {
	LocalName [248]byte
}

func (c *WriteLocalName) OpCode() int            { return 0x0C13 }
func (c *WriteLocalName) Len() int               { return 248 }
func (c *WriteLocalName) Marshal(b []byte) error { return marshal(c, b) }

// WriteLocalNameRP returns the status of WriteLocalName.
type WriteLocalNameRP struct {
	Status uint8
}

func (c *WriteLocalNameRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadLocalName implements Read Local Name (0x03|0x0014) [Vol 2, Part E, 7.3.12]
type ReadLocalName struct{}

func (c *ReadLocalName) OpCode() int            { return 0x0C14 }
func (c *ReadLocalName) Len() int               { return 0 }
func (c *ReadLocalName) Marshal(b []byte) error { return marshal(c, b) }

// ReadLocalNameRP returns the status and name of ReadLocalName.
type ReadLocalNameRP struct {
	Status    uint8
	LocalName [248]byte
}

func (c *ReadLocalNameRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadScanEnable implements Read Scan Enable (0x03|0x0019) [Vol 2, Part E, 7.3.17]
type ReadScanEnable struct{}

func (c *ReadScanEnable) OpCode() int            { return 0x0C19 }
func (c *ReadScanEnable) Len() int               { return 0 }
func (c *ReadScanEnable) Marshal(b []byte) error { return marshal(c, b) }

// ReadScanEnableRP returns the status and value of ReadScanEnable.
type ReadScanEnableRP struct {
	Status     uint8
	ScanEnable uint8
}

func (c *ReadScanEnableRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// WriteScanEnable implements Write Scan Enable (0x03|0x001A) [Vol 2, Part E, 7.3.18]
//
// Bit 0 enables inquiry scan (discoverable), bit 1 page scan
// (connectable).
type WriteScanEnable struct {
	ScanEnable uint8
}

func (c *WriteScanEnable) OpCode() int            { return 0x0C1A }
func (c *WriteScanEnable) Len() int               { return 1 }
func (c *WriteScanEnable) Marshal(b []byte) error { return marshal(c, b) }

// WriteScanEnableRP returns the status of WriteScanEnable.
type WriteScanEnableRP struct {
	Status uint8
}

func (c *WriteScanEnableRP) Unmarshal(b []byte) error { return unmarshal(c, b) }
