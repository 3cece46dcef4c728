package hci

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/btforge/bthost/hci/h4"
	"github.com/btforge/bthost/hci/socket"
)

// transport describes where the controller byte stream comes from.
// Exactly one member is set; the zero value means "raw HCI socket,
// first available device".
type transport struct {
	hci *transportHCI
	h4u *transportH4Uart
	h4s *transportH4Socket
	rwc io.ReadWriteCloser
}

type transportHCI struct {
	id int
}

type transportH4Uart struct {
	path string
}

type transportH4Socket struct {
	addr    string
	timeout time.Duration
}

func getTransport(t transport) (io.ReadWriteCloser, error) {
	switch {
	case t.h4u != nil:
		skt, err := h4.NewSerial(t.h4u.path)
		return skt, errors.Wrap(err, "h4 uart")
	case t.h4s != nil:
		skt, err := h4.NewSocket(t.h4s.addr, t.h4s.timeout)
		return skt, errors.Wrap(err, "h4 socket")
	case t.rwc != nil:
		return t.rwc, nil
	case t.hci != nil:
		skt, err := socket.NewSocket(t.hci.id)
		return skt, errors.Wrap(err, "hci socket")
	}

	skt, err := socket.NewSocket(-1)
	return skt, errors.Wrap(err, "hci socket")
}
