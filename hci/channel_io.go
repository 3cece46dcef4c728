package hci

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
)

// Channel is a single RFCOMM or SCO endpoint. Listening channels
// produce connected channels through Accept; connected channels are
// stream endpoints with Read/Write. Close is safe to call from any
// state and from multiple goroutines; the underlying link reference
// is released exactly once.
type Channel struct {
	m         *ChannelManager
	typ       bthost.ChannelType
	secure    bool
	port      int
	initiator bool

	mu    sync.Mutex
	state bthost.ChannelState
	peer  bthost.Addr
	lnk   *link
	acl   *link // SCO only: keeps the carrying ACL link alive

	chAccept chan *Channel
	rx       chan []byte
	rem      []byte
	done     chan struct{}
}

func (c *Channel) Type() bthost.ChannelType { return c.typ }

func (c *Channel) Secure() bool { return c.secure }

// Port reports the RFCOMM server channel, 0 for SCO.
func (c *Channel) Port() int { return c.port }

func (c *Channel) Peer() bthost.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *Channel) State() bthost.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Accept waits for an inbound connection on a listening channel.
// A zero timeout uses the engine default.
func (c *Channel) Accept(timeout time.Duration) (*Channel, error) {
	c.mu.Lock()
	if c.state != bthost.ChannelListening {
		c.mu.Unlock()
		return nil, errors.Wrap(bthost.ErrInvalidState, "not listening")
	}
	c.mu.Unlock()

	if timeout <= 0 {
		timeout = c.m.h.listenerTmo
	}
	select {
	case ch := <-c.chAccept:
		return ch, nil
	case <-time.After(timeout):
		return nil, errors.Wrap(bthost.ErrTimeout, "accept")
	case <-c.done:
		return nil, errors.Wrap(bthost.ErrClosed, "listener closed")
	}
}

// Read returns data from the channel, draining a partially consumed
// inbound frame before waiting for the next one.
func (c *Channel) Read(p []byte) (int, error) {
	if len(c.rem) > 0 {
		n := copy(p, c.rem)
		c.rem = c.rem[n:]
		return n, nil
	}
	if c.rx == nil {
		return 0, errors.Wrap(bthost.ErrInvalidState, "channel not readable")
	}
	select {
	case b := <-c.rx:
		n := copy(p, b)
		c.rem = b[n:]
		return n, nil
	case <-c.done:
		return 0, errors.Wrap(bthost.ErrClosed, "channel closed")
	}
}

func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.state != bthost.ChannelConnected {
		c.mu.Unlock()
		return 0, errors.Wrap(bthost.ErrInvalidState, "channel not connected")
	}
	lnk := c.lnk
	c.mu.Unlock()

	var err error
	switch c.typ {
	case bthost.RFCOMM:
		err = lnk.writeRfcomm(rfcommFrame{port: uint8(c.port), control: rfcommUIH, payload: p}, c.initiator)
	case bthost.SCO:
		err = lnk.writeSCO(p)
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close releases the channel. Closing an already closed channel is a
// no-op; concurrent closes both return nil.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == bthost.ChannelClosed {
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	c.state = bthost.ChannelClosed
	lnk, acl := c.lnk, c.acl
	c.lnk, c.acl = nil, nil
	c.mu.Unlock()

	close(c.done)

	if prev == bthost.ChannelListening {
		c.m.removeListener(listenKey{c.typ, c.port}, c)
		return nil
	}

	if lnk != nil {
		if c.typ == bthost.RFCOMM && prev == bthost.ChannelConnected && !lnk.closed() {
			_ = lnk.writeRfcomm(rfcommFrame{port: uint8(c.port), control: rfcommDISC}, c.initiator)
		}
		c.m.removeChannel(c)
		lnk.release()
	}
	if acl != nil {
		acl.release()
	}
	return nil
}

// closeLocal tears the channel down without touching the link; used
// when the link itself is already gone.
func (c *Channel) closeLocal() {
	c.mu.Lock()
	if c.state == bthost.ChannelClosed {
		c.mu.Unlock()
		return
	}
	c.state = bthost.ChannelClosed
	lnk, acl := c.lnk, c.acl
	c.lnk, c.acl = nil, nil
	c.mu.Unlock()

	close(c.done)
	if lnk != nil {
		lnk.release()
	}
	if acl != nil {
		acl.release()
	}
}
