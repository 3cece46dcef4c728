package hci

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci/cmd"
	"github.com/btforge/bthost/hci/h4"
)

// link is an established HCI connection handle, shared by every
// channel to the same peer. The handle is released when the last
// reference goes away.
type link struct {
	h      *HCI
	handle uint16
	peer   bthost.Addr
	typ    uint8

	chInPkt chan []byte
	done    chan struct{}

	mu        sync.Mutex
	refs      int
	released  bool
	ended     bool
	encrypted bool

	chAuth chan error
	chEnc  chan error
}

func newLink(h *HCI, handle uint16, peer bthost.Addr, typ uint8) *link {
	return &link{
		h:       h,
		handle:  handle,
		peer:    peer,
		typ:     typ,
		chInPkt: make(chan []byte, 16),
		done:    make(chan struct{}),
		chAuth:  make(chan error, 1),
		chEnc:   make(chan error, 1),
	}
}

func (l *link) addRef() {
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
}

// release drops one reference; the last one releases the connection
// handle exactly once, even with concurrent closes racing.
func (l *link) release() {
	l.mu.Lock()
	l.refs--
	last := l.refs <= 0 && !l.released && !l.ended
	if last {
		l.released = true
	}
	l.mu.Unlock()

	if last {
		if err := l.h.Send(&cmd.Disconnect{
			ConnectionHandle: l.handle,
			Reason:           reasonRemoteUserTerminated,
		}, nil); err != nil {
			logger.Debugf("disconnect %04x: %v", l.handle, err)
		}
	}
}

// terminated is called from the disconnection event path.
func (l *link) terminated() {
	l.mu.Lock()
	already := l.ended
	l.ended = true
	l.mu.Unlock()
	if !already {
		close(l.done)
	}
}

func (l *link) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *link) authDone(err error) {
	select {
	case l.chAuth <- err:
	default:
	}
}

func (l *link) encryptionChanged(enabled bool, err error) {
	l.mu.Lock()
	l.encrypted = enabled && err == nil
	l.mu.Unlock()
	select {
	case l.chEnc <- err:
	default:
	}
}

// secure authenticates and encrypts the link. Secure channels call
// it before data may flow; insecure channels never do, so a link
// never upgrades transparently.
func (l *link) secure() error {
	l.mu.Lock()
	if l.encrypted {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.h.Send(&cmd.AuthenticationRequested{ConnectionHandle: l.handle}, nil); err != nil {
		return errors.Wrap(err, "authentication request")
	}
	select {
	case err := <-l.chAuth:
		if err != nil {
			return errors.Wrap(err, "authentication")
		}
	case <-l.done:
		return errors.Wrap(bthost.ErrClosed, "link lost during authentication")
	}

	if err := l.h.Send(&cmd.SetConnectionEncryption{
		ConnectionHandle: l.handle,
		EncryptionEnable: 1,
	}, nil); err != nil {
		return errors.Wrap(err, "encryption request")
	}
	select {
	case err := <-l.chEnc:
		if err != nil {
			return errors.Wrap(err, "encryption")
		}
	case <-l.done:
		return errors.Wrap(bthost.ErrClosed, "link lost during encryption")
	}
	return nil
}

func (l *link) writeRfcomm(f rfcommFrame, initiator bool) error {
	pdu := marshalRfcomm(f, initiator)
	frame := h4.EncodeACL(l.handle, pbfHostToControllerStart, pdu)
	if _, err := l.h.write(frame); err != nil {
		return errors.Wrap(bthost.ErrTransport, err.Error())
	}
	return nil
}

func (l *link) writeSCO(payload []byte) error {
	frame := h4.EncodeSCO(l.handle, payload)
	if _, err := l.h.write(frame); err != nil {
		return errors.Wrap(bthost.ErrTransport, err.Error())
	}
	return nil
}

// rfcommLoop demultiplexes inbound ACL data into RFCOMM frames and
// hands them to the channel manager. It must never block dispatch
// for long; channel rx queues absorb bursts.
func (l *link) rfcommLoop() {
	for {
		select {
		case <-l.done:
			return
		case pkt := <-l.chInPkt:
			f, err := unmarshalRfcomm(pkt)
			if err != nil {
				logger.Error("rfcomm", " ", err)
				continue
			}
			l.h.Channels.handleRfcommFrame(l, f)
		}
	}
}
