package hci

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci/cmd"
	"github.com/btforge/bthost/hci/evt"
)

const acceptBacklog = 8

type listenKey struct {
	typ  bthost.ChannelType
	port int
}

type chanKey struct {
	lnk  *link
	port uint8
}

type pendingOpen struct {
	lnk  *link
	port uint8
}

type openResult struct {
	err error
}

type scoResult struct {
	lnk *link
	err error
}

// ChannelManager owns RFCOMM and SCO channel lifecycles on top of
// refcounted HCI links. The listener table doubles as the
// connection-request routing table: binding and routing are atomic
// under mu, and opens that race a bind queue instead of dropping.
type ChannelManager struct {
	h *HCI

	mu           sync.Mutex
	listeners    map[listenKey]*Channel
	channels     map[chanKey]*Channel
	openWaiters  map[chanKey]chan openResult
	scoWaiters   map[bthost.Addr]chan scoResult
	pendingOpens []pendingOpen
}

func newChannelManager(h *HCI) *ChannelManager {
	return &ChannelManager{
		h:           h,
		listeners:   make(map[listenKey]*Channel),
		channels:    make(map[chanKey]*Channel),
		openWaiters: make(map[chanKey]chan openResult),
		scoWaiters:  make(map[bthost.Addr]chan scoResult),
	}
}

func (m *ChannelManager) register() {
	m.h.Handle(evt.ConnectionRequestCode, m.handleConnectionRequest)
}

// Listen binds a listening channel. Port -1 allocates a free RFCOMM
// server channel; SCO listeners ignore the port. The bind is atomic
// with respect to inbound routing: queued opens for the port are
// drained before Listen returns.
func (m *ChannelManager) Listen(typ bthost.ChannelType, secure bool, port int) (*Channel, error) {
	if m.h.Adapter.State() != bthost.PowerOn {
		return nil, errors.Wrap(bthost.ErrInvalidState, "adapter not enabled")
	}
	if typ == bthost.SCO {
		port = 0
	}

	m.mu.Lock()
	if typ == bthost.RFCOMM {
		if port == -1 {
			port = m.freePortLocked()
			if port == -1 {
				m.mu.Unlock()
				return nil, errors.New("no free rfcomm channel")
			}
		} else if port < minServerChannel || port > maxServerChannel {
			m.mu.Unlock()
			return nil, errors.Errorf("invalid rfcomm channel %d", port)
		}
	}
	key := listenKey{typ, port}
	if _, busy := m.listeners[key]; busy {
		m.mu.Unlock()
		return nil, errors.Errorf("%v port %d already in use", typ, port)
	}

	ch := &Channel{
		m:        m,
		typ:      typ,
		secure:   secure,
		port:     port,
		state:    bthost.ChannelListening,
		chAccept: make(chan *Channel, acceptBacklog),
		done:     make(chan struct{}),
	}
	m.listeners[key] = ch

	// drain opens that arrived before this bind
	if typ == bthost.RFCOMM {
		var rest []pendingOpen
		var mine []pendingOpen
		for _, po := range m.pendingOpens {
			if int(po.port) == port {
				mine = append(mine, po)
			} else {
				rest = append(rest, po)
			}
		}
		m.pendingOpens = rest
		m.mu.Unlock()
		for _, po := range mine {
			m.establishInbound(ch, po.lnk, po.port)
		}
	} else {
		m.mu.Unlock()
	}

	return ch, nil
}

func (m *ChannelManager) freePortLocked() int {
	for p := minServerChannel; p <= maxServerChannel; p++ {
		if _, busy := m.listeners[listenKey{bthost.RFCOMM, p}]; !busy {
			return p
		}
	}
	return -1
}

// Connect opens an outgoing channel. RFCOMM needs the remote server
// channel; service discovery is outside this engine, so callers
// supply it.
func (m *ChannelManager) Connect(addr bthost.Addr, typ bthost.ChannelType, secure bool, port int) (*Channel, error) {
	switch typ {
	case bthost.RFCOMM:
		return m.connectRfcomm(addr, secure, port)
	case bthost.SCO:
		return m.connectSCO(addr)
	}
	return nil, errors.Errorf("unknown channel type %v", typ)
}

func (m *ChannelManager) connectRfcomm(addr bthost.Addr, secure bool, port int) (*Channel, error) {
	if port < minServerChannel || port > maxServerChannel {
		return nil, errors.Errorf("invalid rfcomm channel %d", port)
	}

	lnk, err := m.h.dialACL(addr)
	if err != nil {
		return nil, err
	}
	if secure {
		if err := lnk.secure(); err != nil {
			lnk.release()
			return nil, err
		}
	}

	ch := &Channel{
		m:         m,
		typ:       bthost.RFCOMM,
		secure:    secure,
		port:      port,
		state:     bthost.ChannelConnecting,
		peer:      addr,
		lnk:       lnk,
		initiator: true,
		rx:        make(chan []byte, 16),
		done:      make(chan struct{}),
	}

	key := chanKey{lnk, uint8(port)}
	wait := make(chan openResult, 1)

	m.mu.Lock()
	if _, busy := m.channels[key]; busy {
		m.mu.Unlock()
		lnk.release()
		return nil, errors.Errorf("channel %d to %v already open", port, addr)
	}
	m.channels[key] = ch
	m.openWaiters[key] = wait
	m.mu.Unlock()

	if err := lnk.writeRfcomm(rfcommFrame{port: uint8(port), control: rfcommSABM}, true); err != nil {
		m.dropChannel(key)
		lnk.release()
		return nil, err
	}

	select {
	case r := <-wait:
		if r.err != nil {
			m.dropChannel(key)
			lnk.release()
			return nil, r.err
		}
	case <-time.After(m.h.dialerTmo):
		m.dropChannel(key)
		lnk.release()
		return nil, errors.Wrap(bthost.ErrTimeout, "rfcomm open")
	case <-ch.done:
		m.dropChannel(key)
		lnk.release()
		return nil, errors.Wrap(bthost.ErrClosed, "channel closed")
	case <-lnk.done:
		m.dropChannel(key)
		lnk.release()
		return nil, errors.Wrap(bthost.ErrClosed, "link lost")
	}

	ch.mu.Lock()
	ch.state = bthost.ChannelConnected
	ch.mu.Unlock()
	return ch, nil
}

func (m *ChannelManager) connectSCO(addr bthost.Addr) (*Channel, error) {
	acl, err := m.h.dialACL(addr)
	if err != nil {
		return nil, err
	}

	wait := make(chan scoResult, 1)
	m.mu.Lock()
	if _, busy := m.scoWaiters[addr]; busy {
		m.mu.Unlock()
		acl.release()
		return nil, errors.Errorf("sco setup to %v already in flight", addr)
	}
	m.scoWaiters[addr] = wait
	m.mu.Unlock()

	err = m.h.Send(&cmd.SetupSynchronousConnection{
		ConnectionHandle:  acl.handle,
		TransmitBandwidth: 8000,
		ReceiveBandwidth:  8000,
		MaxLatency:        0xFFFF,
		VoiceSetting:      0x0060, // CVSD, 16-bit linear
		PacketType:        0x003F,
	}, nil)
	if err != nil {
		m.dropSCOWaiter(addr)
		acl.release()
		return nil, errors.Wrap(err, "sco setup")
	}

	select {
	case r := <-wait:
		if r.err != nil {
			acl.release()
			return nil, r.err
		}
		r.lnk.addRef()
		ch := &Channel{
			m:     m,
			typ:   bthost.SCO,
			state: bthost.ChannelConnected,
			peer:  addr,
			lnk:   r.lnk,
			acl:   acl,
			done:  make(chan struct{}),
		}
		return ch, nil
	case <-time.After(m.h.dialerTmo):
		m.dropSCOWaiter(addr)
		acl.release()
		return nil, errors.Wrap(bthost.ErrTimeout, "sco setup")
	}
}

func (m *ChannelManager) dropChannel(key chanKey) {
	m.mu.Lock()
	delete(m.channels, key)
	delete(m.openWaiters, key)
	m.mu.Unlock()
}

func (m *ChannelManager) dropSCOWaiter(addr bthost.Addr) {
	m.mu.Lock()
	delete(m.scoWaiters, addr)
	m.mu.Unlock()
}

// handleConnectionRequest decides whether to accept an inbound link.
// It runs on the dispatch path, so command exchanges go to a
// goroutine.
func (m *ChannelManager) handleConnectionRequest(b []byte) error {
	e := evt.ConnectionRequest(b)
	bd := e.Address()
	addr := bthost.AddrFromLE(bd[:])

	switch e.LinkType() {
	case evt.LinkTypeACL:
		if !m.hasRfcommListener() {
			go func() {
				_ = m.h.Send(&cmd.RejectConnectionRequest{BDADDR: bd, Reason: reasonLimitedResources}, nil)
			}()
			return nil
		}
		go func() {
			if err := m.h.Send(&cmd.AcceptConnectionRequest{BDADDR: bd, Role: roleSlave}, nil); err != nil {
				logger.Error("accept connection from ", addr.String(), ": ", err)
			}
		}()

	case evt.LinkTypeSCO, evt.LinkTypeESCO:
		m.mu.Lock()
		_, listening := m.listeners[listenKey{bthost.SCO, 0}]
		m.mu.Unlock()
		if !listening {
			go func() {
				_ = m.h.Send(&cmd.RejectConnectionRequest{BDADDR: bd, Reason: reasonLimitedResources}, nil)
			}()
			return nil
		}
		go func() {
			if err := m.h.Send(&cmd.AcceptSynchronousConnectionRequest{
				BDADDR:            bd,
				TransmitBandwidth: 8000,
				ReceiveBandwidth:  8000,
				MaxLatency:        0xFFFF,
				VoiceSetting:      0x0060,
				PacketType:        0x003F,
			}, nil); err != nil {
				logger.Error("accept sco from ", addr.String(), ": ", err)
			}
		}()
	}
	return nil
}

func (m *ChannelManager) hasRfcommListener() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.listeners {
		if k.typ == bthost.RFCOMM {
			return true
		}
	}
	return false
}

// linkEstablished is called for accepted inbound ACL links. The
// RFCOMM open follows as a SABM on the data path; nothing to do yet.
func (m *ChannelManager) linkEstablished(lnk *link) {}

func (m *ChannelManager) scoEstablished(lnk *link) {
	m.mu.Lock()
	wait, dialing := m.scoWaiters[lnk.peer]
	if dialing {
		delete(m.scoWaiters, lnk.peer)
	}
	listener := m.listeners[listenKey{bthost.SCO, 0}]
	m.mu.Unlock()

	if dialing {
		wait <- scoResult{lnk: lnk}
		return
	}
	if listener == nil {
		// nobody asked for it anymore
		lnk.addRef()
		lnk.release()
		return
	}

	lnk.addRef()
	ch := &Channel{
		m:     m,
		typ:   bthost.SCO,
		state: bthost.ChannelConnected,
		peer:  lnk.peer,
		lnk:   lnk,
		done:  make(chan struct{}),
	}
	select {
	case listener.chAccept <- ch:
	default:
		logger.Warn("sco accept backlog full, dropping connection from ", lnk.peer.String())
		ch.Close()
	}
}

func (m *ChannelManager) scoFailed(addr bthost.Addr, err error) {
	m.mu.Lock()
	wait, dialing := m.scoWaiters[addr]
	if dialing {
		delete(m.scoWaiters, addr)
	}
	m.mu.Unlock()
	if dialing {
		wait <- scoResult{err: err}
	}
}

// handleRfcommFrame routes RFCOMM control and data frames arriving
// on a link.
func (m *ChannelManager) handleRfcommFrame(lnk *link, f rfcommFrame) {
	key := chanKey{lnk, f.port}

	switch f.control {
	case rfcommSABM:
		m.mu.Lock()
		listener := m.listeners[listenKey{bthost.RFCOMM, int(f.port)}]
		if listener == nil {
			m.pendingOpens = append(m.pendingOpens, pendingOpen{lnk, f.port})
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.establishInbound(listener, lnk, f.port)

	case rfcommUA:
		m.mu.Lock()
		wait := m.openWaiters[key]
		delete(m.openWaiters, key)
		m.mu.Unlock()
		if wait != nil {
			wait <- openResult{}
		}

	case rfcommDM:
		m.mu.Lock()
		wait := m.openWaiters[key]
		delete(m.openWaiters, key)
		ch := m.channels[key]
		m.mu.Unlock()
		if wait != nil {
			wait <- openResult{err: errors.Errorf("rfcomm channel %d refused", f.port)}
			return
		}
		if ch != nil {
			ch.Close()
		}

	case rfcommDISC:
		m.mu.Lock()
		ch := m.channels[key]
		m.mu.Unlock()
		_ = lnk.writeRfcomm(rfcommFrame{port: f.port, control: rfcommUA}, false)
		if ch != nil {
			ch.Close()
		}

	case rfcommUIH:
		m.mu.Lock()
		ch := m.channels[key]
		m.mu.Unlock()
		if ch == nil {
			logger.Debugf("uih for unknown channel %d", f.port)
			return
		}
		payload := make([]byte, len(f.payload))
		copy(payload, f.payload)
		select {
		case ch.rx <- payload:
		case <-ch.done:
		}
	}
}

// establishInbound completes an inbound open on a listener: secure
// the link if the listener demands it, acknowledge the SABM, and
// deliver a connected channel to Accept.
func (m *ChannelManager) establishInbound(listener *Channel, lnk *link, port uint8) {
	if listener.secure {
		if err := lnk.secure(); err != nil {
			logger.Error("inbound channel security: ", err)
			_ = lnk.writeRfcomm(rfcommFrame{port: port, control: rfcommDM}, false)
			return
		}
	}

	lnk.addRef()
	ch := &Channel{
		m:      m,
		typ:    bthost.RFCOMM,
		secure: listener.secure,
		port:   int(port),
		state:  bthost.ChannelConnected,
		peer:   lnk.peer,
		lnk:    lnk,
		rx:     make(chan []byte, 16),
		done:   make(chan struct{}),
	}

	key := chanKey{lnk, port}
	m.mu.Lock()
	if _, busy := m.channels[key]; busy {
		m.mu.Unlock()
		lnk.release()
		_ = lnk.writeRfcomm(rfcommFrame{port: port, control: rfcommDM}, false)
		return
	}
	m.channels[key] = ch
	m.mu.Unlock()

	if err := lnk.writeRfcomm(rfcommFrame{port: port, control: rfcommUA}, false); err != nil {
		logger.Error("rfcomm ua: ", err)
		ch.Close()
		return
	}

	select {
	case listener.chAccept <- ch:
	case <-listener.done:
		ch.Close()
	default:
		logger.Warn("accept backlog full, refusing channel ", port, " from ", lnk.peer.String())
		ch.Close()
	}
}

// linkLost tears down every channel riding a lost link.
func (m *ChannelManager) linkLost(lnk *link) {
	m.mu.Lock()
	var lost []*Channel
	for k, ch := range m.channels {
		if k.lnk == lnk {
			delete(m.channels, k)
			lost = append(lost, ch)
		}
	}
	for k, wait := range m.openWaiters {
		if k.lnk == lnk {
			delete(m.openWaiters, k)
			wait <- openResult{err: errors.Wrap(bthost.ErrClosed, "link lost")}
		}
	}
	m.mu.Unlock()

	for _, ch := range lost {
		ch.closeLocal()
	}
}

// shutdown closes all channels and listeners; used on disable and on
// transport loss.
func (m *ChannelManager) shutdown() {
	m.mu.Lock()
	var all []*Channel
	for _, ch := range m.listeners {
		all = append(all, ch)
	}
	for _, ch := range m.channels {
		all = append(all, ch)
	}
	m.pendingOpens = nil
	m.mu.Unlock()

	for _, ch := range all {
		ch.Close()
	}
}

func (m *ChannelManager) removeListener(key listenKey, ch *Channel) {
	m.mu.Lock()
	if m.listeners[key] == ch {
		delete(m.listeners, key)
	}
	m.mu.Unlock()
}

func (m *ChannelManager) removeChannel(ch *Channel) {
	m.mu.Lock()
	for k, c := range m.channels {
		if c == ch {
			delete(m.channels, k)
		}
	}
	m.mu.Unlock()
}
