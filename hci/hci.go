// Package hci implements the Bluetooth host engine: HCI framing and
// command/event multiplexing over a byte-stream transport, adapter
// power and scan state, the remote-device registry, inquiry
// discovery, and RFCOMM/SCO channel lifecycles.
package hci

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci/cmd"
	"github.com/btforge/bthost/hci/evt"
	"github.com/btforge/bthost/hci/h4"
)

var logger = bthost.GetLogger().ChildLogger(map[string]interface{}{"pkg": "hci"})

type handlerFn func(b []byte) error

type pkt struct {
	cmd  cmd.Command
	done chan []byte
}

// New returns an engine configured by opts but not yet started; call
// Init to open the transport.
func New(opts ...bthost.Option) (*HCI, error) {
	h := &HCI{
		chCmdCredits: make(chan struct{}, chCmdCredits),
		sent:         make(map[int]*pkt),
		evth:         make(map[int]handlerFn),

		conns:       make(map[uint16]*link),
		connWaiters: make(map[bthost.Addr][]chan *connResult),

		cmdTimeout:    defCmdTimeout,
		dialerTmo:     defDialerTimeout,
		listenerTmo:   defListenerTimeout,
		inquiryLength: defInquiryLength,

		done:      make(chan struct{}),
		sktRxChan: make(chan []byte, 16),

		notify: func(bthost.Event) {},
	}

	h.Adapter = newAdapter(h)
	h.Registry = newRegistry(h)
	h.Discovery = newDiscovery(h)
	h.Channels = newChannelManager(h)
	h.pairing = newPairing(h)

	if err := h.Option(opts...); err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}
	return h, nil
}

// HCI owns the physical byte stream and multiplexes commands, events
// and data over it. Components register per-event-type interest and
// must not block the dispatch path.
type HCI struct {
	transport transport
	skt       io.ReadWriteCloser
	muWrite   sync.Mutex

	// Host to controller command flow control [Vol 2, Part E, 4.4]
	chCmdCredits chan struct{}
	muSent       sync.Mutex
	sent         map[int]*pkt

	muEvth sync.Mutex
	evth   map[int]handlerFn

	// established links by connection handle, plus waiters for
	// in-flight outgoing connections keyed by peer address
	muConns     sync.Mutex
	conns       map[uint16]*link
	connWaiters map[bthost.Addr][]chan *connResult

	cmdTimeout    time.Duration
	dialerTmo     time.Duration
	listenerTmo   time.Duration
	inquiryLength time.Duration
	localName     string
	bondPath      string

	Adapter   *Adapter
	Registry  *Registry
	Discovery *Discovery
	Channels  *ChannelManager
	pairing   *pairing

	errorHandler func(error)
	muErr        sync.Mutex
	err          error

	muClose   sync.Mutex
	done      chan struct{}
	sktRxChan chan []byte

	notify func(bthost.Event)
}

type connResult struct {
	lnk *link
	err error
}

// SetNotifyFunc installs the state-change notification sink. Must be
// set before Init; the facade owns the fan-out.
func (h *HCI) SetNotifyFunc(f func(bthost.Event)) {
	if f != nil {
		h.notify = f
	}
}

// Init opens the transport and starts the reader pump. The adapter
// stays in PowerOff until Enable is called.
func (h *HCI) Init() error {
	h.Handle(evt.CommandCompleteCode, h.handleCommandComplete)
	h.Handle(evt.CommandStatusCode, h.handleCommandStatus)
	h.Handle(evt.DisconnectionCompleteCode, h.handleDisconnectionComplete)
	h.Handle(evt.ConnectionCompleteCode, h.handleConnectionComplete)
	h.Handle(evt.SynchronousConnectionCompleteCode, h.handleSynchronousConnectionComplete)
	h.Handle(evt.AuthenticationCompleteCode, h.handleAuthenticationComplete)
	h.Handle(evt.EncryptionChangeCode, h.handleEncryptionChange)
	h.Adapter.register()
	h.Discovery.register()
	h.Channels.register()
	h.pairing.register()

	if h.bondPath != "" {
		if err := h.Registry.loadBonds(h.bondPath); err != nil {
			logger.Warn("hci", "can't load bond store: ", err)
		}
	}

	skt, err := getTransport(h.transport)
	if err != nil {
		return err
	}
	h.skt = skt

	h.setAllowedCommands(1)

	go h.sktReadLoop()
	go h.sktProcessLoop()
	return nil
}

// Handle registers fn for an event code. Registration is expected at
// Init time; later calls replace the previous handler.
func (h *HCI) Handle(code int, fn handlerFn) {
	h.muEvth.Lock()
	h.evth[code] = fn
	h.muEvth.Unlock()
}

// Close stops the engine. Idempotent.
func (h *HCI) Close() error {
	h.muClose.Lock()
	defer h.muClose.Unlock()

	select {
	case <-h.done:
	default:
		close(h.done)
	}
	return nil
}

// Error returns the fatal engine error, if any.
func (h *HCI) Error() error {
	h.muErr.Lock()
	defer h.muErr.Unlock()
	return h.err
}

// setError records the first fatal error; later ones are dropped so
// the root cause survives.
func (h *HCI) setError(e error) {
	h.muErr.Lock()
	if h.err == nil {
		h.err = e
	}
	h.muErr.Unlock()
}

func (h *HCI) isOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Send issues an HCI command and unmarshals its return parameters. A
// non-zero controller status is returned as ErrCommand.
func (h *HCI) Send(c cmd.Command, r cmd.CommandRP) error {
	b, err := h.send(c)
	if err != nil {
		return err
	}
	if len(b) > 0 && b[0] != 0x00 {
		return ErrCommand(b[0])
	}
	if r != nil {
		return r.Unmarshal(b)
	}
	return nil
}

func (h *HCI) checkOpCodeFree(opCode int) error {
	h.muSent.Lock()
	defer h.muSent.Unlock()

	if _, ok := h.sent[opCode]; ok {
		return fmt.Errorf("command with opcode 0x%04x pending", opCode)
	}
	return nil
}

func (h *HCI) send(c cmd.Command) ([]byte, error) {
	if err := h.Error(); err != nil {
		return nil, err
	}

	p := &pkt{c, make(chan []byte)}

	// at most one outstanding command per opcode
	if err := h.checkOpCodeFree(c.OpCode()); err != nil {
		return nil, err
	}

	// wait for a command credit
	select {
	case <-h.done:
		return nil, errors.Wrap(bthost.ErrClosed, "hci closed")
	case <-h.chCmdCredits:
	case <-time.After(h.cmdTimeout):
		err := errors.Wrap(bthost.ErrTimeout, "no command credit")
		h.dispatchError(err)
		return nil, err
	}

	params := make([]byte, c.Len())
	if err := c.Marshal(params); err != nil {
		return nil, errors.Wrap(err, "can't marshal command")
	}
	frame := h4.EncodeCommand(uint16(c.OpCode()), params)

	h.muSent.Lock()
	h.sent[c.OpCode()] = p
	h.muSent.Unlock()

	defer func() {
		h.muSent.Lock()
		delete(h.sent, c.OpCode())
		h.muSent.Unlock()
	}()

	if !h.isOpen() {
		return nil, errors.Wrap(bthost.ErrClosed, "hci closed")
	}
	if n, err := h.write(frame); err != nil {
		h.close(errors.Wrap(bthost.ErrTransport, "failed to send command"))
		return nil, h.Error()
	} else if n != len(frame) {
		h.close(errors.Wrap(bthost.ErrTransport, "short command write"))
		return nil, h.Error()
	}

	// Commands not completed within the bound fail with ErrTimeout
	// and are removed from the pending set by the deferred delete.
	select {
	case <-time.After(h.cmdTimeout):
		err := errors.Wrapf(bthost.ErrTimeout, "no response to command 0x%04x", c.OpCode())
		h.dispatchError(err)
		return nil, err
	case <-h.done:
		if err := h.Error(); err != nil {
			return nil, err
		}
		return nil, errors.Wrap(bthost.ErrClosed, "hci closed")
	case b := <-p.done:
		return b, nil
	}
}

// write serializes physical writes; two in-flight frames never
// interleave.
func (h *HCI) write(b []byte) (int, error) {
	h.muWrite.Lock()
	defer h.muWrite.Unlock()
	return h.skt.Write(b)
}

func (h *HCI) sktReadLoop() {
	defer close(h.sktRxChan)

	b := make([]byte, 4096)

	for {
		n, err := h.skt.Read(b)

		switch {
		case n == 0 && err == nil:
			// read timeout
			select {
			case <-h.done:
				return
			default:
				continue
			}

		case err != nil:
			h.setError(errors.Wrapf(bthost.ErrTransport, "skt read: %v", err))
			return

		default:
			p := make([]byte, n)
			copy(p, b)
			h.sktRxChan <- p
		}
	}
}

func (h *HCI) sktProcessLoop() {
	defer h.cleanup()

	for {
		var p []byte
		var ok bool

		select {
		case <-h.done:
			h.setError(io.EOF)
			return

		case p, ok = <-h.sktRxChan:
			if !ok {
				// reader loop died with the cause recorded
				h.dispatchError(h.Error())
				return
			}
		}

		if err := h.handlePkt(p); err != nil {
			// Malformed input is recoverable; log and move on.
			logger.Error("hci", "skt: ", err)
		}
	}
}

func (h *HCI) handlePkt(b []byte) error {
	if len(b) == 0 {
		return errors.Wrap(bthost.ErrMalformed, "empty packet")
	}
	t, b := b[0], b[1:]
	switch t {
	case h4.PktEvent:
		return h.handleEvt(b)
	case h4.PktACLData:
		return h.handleACL(b)
	case h4.PktSCOData:
		return h.handleSCO(b)
	case h4.PktCommand:
		return errors.Wrapf(bthost.ErrMalformed, "unmanaged cmd: % X", b)
	case h4.PktVendor:
		// some controllers append vendor packets; ignore them
		return nil
	default:
		return errors.Wrapf(bthost.ErrMalformed, "invalid packet: 0x%02X % X", t, b)
	}
}

func (h *HCI) handleEvt(b []byte) error {
	if len(b) < 2 {
		return errors.Wrapf(bthost.ErrMalformed, "short event packet: % X", b)
	}
	code, plen := int(b[0]), int(b[1])
	if plen != len(b[2:]) {
		return errors.Wrapf(bthost.ErrMalformed, "invalid event packet: % X", b)
	}

	h.muEvth.Lock()
	f := h.evth[code]
	h.muEvth.Unlock()

	if f != nil {
		return f(b[2:])
	}
	if code == 0xff { // vendor event
		return nil
	}
	logger.Debugf("unhandled event packet: % X", b)
	return nil
}

func (h *HCI) handleACL(b []byte) error {
	if len(b) < 4 {
		return errors.Wrapf(bthost.ErrMalformed, "short acl packet: % X", b)
	}
	handle := uint16(b[0]) | uint16(b[1])<<8&0x0f00

	h.muConns.Lock()
	c, ok := h.conns[handle]
	h.muConns.Unlock()

	if !ok {
		logger.Warn("invalid connection handle on ACL packet", " handle: ", handle)
		return nil
	}
	select {
	case c.chInPkt <- b[4:]:
	case <-c.done:
	}
	return nil
}

func (h *HCI) handleSCO(b []byte) error {
	if len(b) < 3 {
		return errors.Wrapf(bthost.ErrMalformed, "short sco packet: % X", b)
	}
	handle := uint16(b[0]) | uint16(b[1])<<8&0x0f00

	h.muConns.Lock()
	c, ok := h.conns[handle]
	h.muConns.Unlock()

	if !ok {
		logger.Warn("invalid connection handle on SCO packet", " handle: ", handle)
		return nil
	}
	select {
	case c.chInPkt <- b[3:]:
	case <-c.done:
	}
	return nil
}

func (h *HCI) handleCommandComplete(b []byte) error {
	e := evt.CommandComplete(b)
	h.setAllowedCommands(int(e.NumHCICommandPackets()))

	// NOP, used purely for flow control [Vol 2, Part E, 4.4]
	if e.CommandOpcode() == 0x0000 {
		return nil
	}

	h.muSent.Lock()
	p, found := h.sent[int(e.CommandOpcode())]
	h.muSent.Unlock()

	if !found {
		logger.Debugf("complete for unsent command: % X", b)
		return nil
	}

	select {
	case <-h.done:
	case p.done <- e.ReturnParameters():
	}
	return nil
}

func (h *HCI) handleCommandStatus(b []byte) error {
	e := evt.CommandStatus(b)
	if !e.Valid() {
		return errors.Wrapf(bthost.ErrMalformed, "invalid command status: % X", b)
	}

	h.setAllowedCommands(int(e.NumHCICommandPackets()))

	h.muSent.Lock()
	p, found := h.sent[int(e.CommandOpcode())]
	h.muSent.Unlock()

	if !found {
		logger.Debugf("status for unsent command: % X", b)
		return nil
	}

	select {
	case <-h.done:
	case p.done <- []byte{e.Status()}:
	}
	return nil
}

func (h *HCI) handleConnectionComplete(b []byte) error {
	e := evt.ConnectionComplete(b)
	bd := e.Address()
	addr := bthost.AddrFromLE(bd[:])

	if e.Status() != 0 {
		h.failConnWaiters(addr, ErrCommand(e.Status()))
		h.Registry.recordConnectionState(addr, bthost.Disconnected)
		return nil
	}

	lnk := newLink(h, e.ConnectionHandle(), addr, e.LinkType())
	h.muConns.Lock()
	h.conns[e.ConnectionHandle()] = lnk
	h.muConns.Unlock()

	if lnk.typ == evt.LinkTypeACL {
		go lnk.rfcommLoop()
	}

	h.Registry.recordConnectionState(addr, bthost.Connected)

	if !h.resolveConnWaiters(addr, lnk) {
		// nobody dialing: this is an accepted incoming link
		h.Channels.linkEstablished(lnk)
	}
	return nil
}

func (h *HCI) handleSynchronousConnectionComplete(b []byte) error {
	e := evt.SynchronousConnectionComplete(b)
	bd := e.Address()
	addr := bthost.AddrFromLE(bd[:])

	if e.Status() != 0 {
		h.Channels.scoFailed(addr, ErrCommand(e.Status()))
		return nil
	}

	lnk := newLink(h, e.ConnectionHandle(), addr, evt.LinkTypeSCO)
	h.muConns.Lock()
	h.conns[e.ConnectionHandle()] = lnk
	h.muConns.Unlock()

	h.Channels.scoEstablished(lnk)
	return nil
}

func (h *HCI) handleDisconnectionComplete(b []byte) error {
	e := evt.DisconnectionComplete(b)
	return h.cleanupConnectionHandle(e.ConnectionHandle())
}

func (h *HCI) handleAuthenticationComplete(b []byte) error {
	e := evt.AuthenticationComplete(b)

	h.muConns.Lock()
	lnk, found := h.conns[e.ConnectionHandle()]
	h.muConns.Unlock()
	if !found {
		logger.Debugf("authentication complete for unknown handle %04x", e.ConnectionHandle())
		return nil
	}

	var err error
	if e.Status() != 0 {
		err = ErrCommand(e.Status())
		h.Registry.bondFailed(lnk.peer)
	}
	lnk.authDone(err)
	return nil
}

func (h *HCI) handleEncryptionChange(b []byte) error {
	e := evt.EncryptionChange(b)

	h.muConns.Lock()
	lnk, found := h.conns[e.ConnectionHandle()]
	h.muConns.Unlock()
	if !found {
		logger.Debugf("encryption change for unknown handle %04x", e.ConnectionHandle())
		return nil
	}

	var err error
	if e.Status() != 0 {
		err = ErrCommand(e.Status())
	}
	lnk.encryptionChanged(e.EncryptionEnabled() == 1, err)
	return nil
}

// dialACL returns an established ACL link to addr, reusing one when
// present. Callers own a reference and must release it.
func (h *HCI) dialACL(addr bthost.Addr) (*link, error) {
	if h.Adapter.State() != bthost.PowerOn {
		return nil, errors.Wrap(bthost.ErrInvalidState, "adapter not enabled")
	}

	h.muConns.Lock()
	for _, lnk := range h.conns {
		if lnk.peer == addr && lnk.typ == evt.LinkTypeACL {
			lnk.addRef()
			h.muConns.Unlock()
			return lnk, nil
		}
	}
	ch := make(chan *connResult, 1)
	h.connWaiters[addr] = append(h.connWaiters[addr], ch)
	h.muConns.Unlock()

	h.Registry.recordConnectionState(addr, bthost.Connecting)

	var bd [6]byte
	copy(bd[:], addr.LE())
	if err := h.Send(&cmd.CreateConnection{
		BDADDR:     bd,
		PacketType: defaultACLPacketTypes,
	}, nil); err != nil {
		h.dropConnWaiter(addr, ch)
		h.Registry.recordConnectionState(addr, bthost.Disconnected)
		return nil, errors.Wrap(err, "create connection")
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		r.lnk.addRef()
		return r.lnk, nil
	case <-time.After(h.dialerTmo):
		h.dropConnWaiter(addr, ch)
		h.Registry.recordConnectionState(addr, bthost.Disconnected)
		return nil, errors.Wrap(bthost.ErrTimeout, "dial")
	case <-h.done:
		return nil, errors.Wrap(bthost.ErrClosed, "hci closed")
	}
}

func (h *HCI) resolveConnWaiters(addr bthost.Addr, lnk *link) bool {
	h.muConns.Lock()
	ww := h.connWaiters[addr]
	delete(h.connWaiters, addr)
	h.muConns.Unlock()

	for _, w := range ww {
		w <- &connResult{lnk: lnk}
	}
	return len(ww) > 0
}

func (h *HCI) failConnWaiters(addr bthost.Addr, err error) {
	h.muConns.Lock()
	ww := h.connWaiters[addr]
	delete(h.connWaiters, addr)
	h.muConns.Unlock()

	for _, w := range ww {
		w <- &connResult{err: err}
	}
}

func (h *HCI) dropConnWaiter(addr bthost.Addr, ch chan *connResult) {
	h.muConns.Lock()
	defer h.muConns.Unlock()
	ww := h.connWaiters[addr]
	for i, w := range ww {
		if w == ch {
			h.connWaiters[addr] = append(ww[:i], ww[i+1:]...)
			break
		}
	}
	if len(h.connWaiters[addr]) == 0 {
		delete(h.connWaiters, addr)
	}
}

func (h *HCI) cleanupConnectionHandle(handle uint16) error {
	h.muConns.Lock()
	lnk, found := h.conns[handle]
	if found {
		delete(h.conns, handle)
	}
	h.muConns.Unlock()

	if !found {
		return nil
	}

	lnk.terminated()
	h.Registry.recordConnectionState(lnk.peer, bthost.Disconnected)
	h.Channels.linkLost(lnk)
	return nil
}

// disconnectAll tears down every open link; used on Disable. The
// controller reset that follows cleans up whatever the remote side
// never acknowledged.
func (h *HCI) disconnectAll() {
	h.muConns.Lock()
	hh := make([]uint16, 0, len(h.conns))
	for handle := range h.conns {
		hh = append(hh, handle)
	}
	h.muConns.Unlock()

	for _, handle := range hh {
		_ = h.Send(&cmd.Disconnect{ConnectionHandle: handle, Reason: reasonRemoteUserTerminated}, nil)
		_ = h.cleanupConnectionHandle(handle)
	}
}

func (h *HCI) cleanup() {
	h.close(nil)

	h.muConns.Lock()
	hh := make([]uint16, 0, len(h.conns))
	for handle := range h.conns {
		hh = append(hh, handle)
	}
	waiters := h.connWaiters
	h.connWaiters = make(map[bthost.Addr][]chan *connResult)
	h.muConns.Unlock()

	for _, ww := range waiters {
		for _, w := range ww {
			w <- &connResult{err: errors.Wrap(bthost.ErrTransport, "hci closed")}
		}
	}

	logger.Debugf("cleanup(): %v connection handles", len(hh))
	for _, handle := range hh {
		h.cleanupConnectionHandle(handle)
	}

	h.muSent.Lock()
	for k := range h.sent {
		delete(h.sent, k)
	}
	h.muSent.Unlock()

	// stream loss is fatal: every component resets
	h.Channels.shutdown()
	h.Discovery.reset()
	h.Adapter.transportLost()
}

func (h *HCI) close(err error) {
	if err != nil {
		h.setError(err)
	}
	_ = h.skt.Close()
	_ = h.Close()
}

func (h *HCI) setAllowedCommands(n int) {
	if n > chCmdCredits {
		n = chCmdCredits
	}
	for len(h.chCmdCredits) < n {
		select {
		case <-h.done:
			return
		case h.chCmdCredits <- struct{}{}:
		default:
			return
		}
	}
}

func (h *HCI) dispatchError(e error) {
	switch {
	case h.errorHandler == nil:
		logger.Error("hci", " ", e)
	case !h.isOpen():
		logger.Error("hci closing: ", e)
	default:
		h.errorHandler(e)
	}
}
