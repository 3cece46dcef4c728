package cmd

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Command is an HCI command the engine can send to the controller.
type Command interface {
	OpCode() int
	Len() int
	Marshal([]byte) error
}

// CommandRP is the return parameter block of a completed command.
type CommandRP interface {
	Unmarshal(b []byte) error
}

// Sender sends an HCI command and unmarshals the return parameters.
type Sender interface {
	Send(Command, CommandRP) error
}

func marshal(c Command, b []byte) error {
	buf := bytes.NewBuffer(b)
	buf.Reset()
	if buf.Cap() < c.Len() {
		return io.ErrShortBuffer
	}
	return binary.Write(buf, binary.LittleEndian, c)
}

func unmarshal(c CommandRP, b []byte) error {
	buf := bytes.NewBuffer(b)
	return binary.Read(buf, binary.LittleEndian, c)
}
