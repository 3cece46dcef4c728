package hci

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci/cmd"
	"github.com/btforge/bthost/hci/evt"
)

// Default classic event mask: the core 4.2 defaults plus inquiry,
// connection, authentication, remote name, link key, synchronous
// connection and Secure Simple Pairing events.
const defEventMask = 0x3DBFF807FFFBFFFF

// Adapter drives the controller power and visibility state machine.
// All observable state transitions pass through setState so the
// Off -> TurningOn -> On -> TurningOff -> Off order is strict and
// every transition is notified exactly once.
type Adapter struct {
	h *HCI

	mu        sync.Mutex
	state     bthost.PowerState
	scanMode  bthost.ScanMode
	name      string
	addr      bthost.Addr
	discTmo   time.Duration
	discTimer *time.Timer

	aclPktLen uint16
	aclPkts   uint16

	nameWaiters map[bthost.Addr][]chan nameResult
}

type nameResult struct {
	name string
	err  error
}

func newAdapter(h *HCI) *Adapter {
	return &Adapter{
		h:           h,
		state:       bthost.PowerOff,
		discTmo:     120 * time.Second,
		name:        h.localName,
		nameWaiters: make(map[bthost.Addr][]chan nameResult),
	}
}

func (a *Adapter) register() {
	a.h.Handle(evt.RemoteNameRequestCompleteCode, a.handleRemoteName)
}

func (a *Adapter) State() bthost.PowerState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) ScanMode() bthost.ScanMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanMode
}

func (a *Adapter) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

func (a *Adapter) Addr() bthost.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

func (a *Adapter) DiscoverableTimeout() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.discTmo
}

func (a *Adapter) SetDiscoverableTimeout(d time.Duration) error {
	if d < 0 {
		return errors.New("negative discoverable timeout")
	}
	a.mu.Lock()
	a.discTmo = d
	a.mu.Unlock()
	return nil
}

// setState transitions under the adapter lock and emits the change
// before the lock drops, so observers see transitions in order.
func (a *Adapter) setState(s bthost.PowerState) {
	a.mu.Lock()
	prev := a.state
	if prev == s {
		a.mu.Unlock()
		return
	}
	a.state = s
	a.h.notify(bthost.PowerStateChanged{Prev: prev, State: s})
	a.mu.Unlock()
}

// Enable starts powering the controller on. It returns once the
// adapter has moved to TurningOn; the bring-up command sequence runs
// in the background and On is announced through PowerStateChanged.
// A bring-up failure falls back to Off. Enabling from any state but
// Off is an error.
func (a *Adapter) Enable() error {
	a.mu.Lock()
	if a.state != bthost.PowerOff {
		st := a.state
		a.mu.Unlock()
		return errors.Wrapf(bthost.ErrInvalidState, "enable in state %v", st)
	}
	a.state = bthost.PowerTurningOn
	a.h.notify(bthost.PowerStateChanged{Prev: bthost.PowerOff, State: bthost.PowerTurningOn})
	a.mu.Unlock()

	go func() {
		if err := a.bringUp(); err != nil {
			logger.Error("bring-up: ", err)
			a.setState(bthost.PowerOff)
			return
		}
		a.setState(bthost.PowerOn)
	}()
	return nil
}

func (a *Adapter) bringUp() error {
	h := a.h

	if err := h.Send(&cmd.Reset{}, nil); err != nil {
		return errors.Wrap(err, "reset")
	}
	h.setAllowedCommands(1)

	if err := h.Send(&cmd.SetEventMask{EventMask: defEventMask}, nil); err != nil {
		return errors.Wrap(err, "set event mask")
	}

	bufSize := cmd.ReadBufferSizeRP{}
	if err := h.Send(&cmd.ReadBufferSize{}, &bufSize); err != nil {
		return errors.Wrap(err, "read buffer size")
	}

	bdaddr := cmd.ReadBDADDRRP{}
	if err := h.Send(&cmd.ReadBDADDR{}, &bdaddr); err != nil {
		return errors.Wrap(err, "read bdaddr")
	}

	a.mu.Lock()
	a.aclPktLen = bufSize.HCACLDataPacketLength
	a.aclPkts = bufSize.HCTotalNumACLDataPackets
	a.addr = bthost.AddrFromLE(bdaddr.BDADDR[:])
	a.scanMode = bthost.ScanModeNone
	name := a.name
	a.mu.Unlock()

	if name != "" {
		if err := a.writeName(name); err != nil {
			return err
		}
	}
	if err := h.Send(&cmd.WriteScanEnable{ScanEnable: 0x00}, nil); err != nil {
		return errors.Wrap(err, "write scan enable")
	}
	return nil
}

// Disable starts powering the controller off. It returns once the
// adapter has moved to TurningOff; open channels are torn down and a
// pending discovery abandoned in the background, and Off is announced
// through PowerStateChanged once the controller has been reset.
func (a *Adapter) Disable() error {
	a.mu.Lock()
	if a.state != bthost.PowerOn {
		st := a.state
		a.mu.Unlock()
		return errors.Wrapf(bthost.ErrInvalidState, "disable in state %v", st)
	}
	a.state = bthost.PowerTurningOff
	a.h.notify(bthost.PowerStateChanged{Prev: bthost.PowerOn, State: bthost.PowerTurningOff})
	a.stopDiscTimerLocked()
	a.scanMode = bthost.ScanModeNone
	a.mu.Unlock()

	go func() {
		a.h.Discovery.reset()
		a.h.Channels.shutdown()
		a.h.disconnectAll()

		if err := a.h.Send(&cmd.Reset{}, nil); err != nil {
			logger.Error("reset: ", err)
		}
		a.h.setAllowedCommands(1)
		a.setState(bthost.PowerOff)
	}()
	return nil
}

// SetScanMode changes page/inquiry scan visibility. Only valid when
// the adapter is On. Entering ConnectableDiscoverable arms the
// discoverable timeout, after which the mode falls back to
// Connectable.
func (a *Adapter) SetScanMode(mode bthost.ScanMode) error {
	if !mode.Valid() {
		return errors.Errorf("invalid scan mode %d", mode)
	}
	a.mu.Lock()
	if a.state != bthost.PowerOn {
		st := a.state
		a.mu.Unlock()
		return errors.Wrapf(bthost.ErrInvalidState, "set scan mode in state %v", st)
	}
	tmo := a.discTmo
	a.mu.Unlock()

	if err := a.h.Send(&cmd.WriteScanEnable{ScanEnable: scanEnableFor(mode)}, nil); err != nil {
		return errors.Wrap(err, "write scan enable")
	}

	a.mu.Lock()
	a.stopDiscTimerLocked()
	a.scanMode = mode
	a.h.notify(bthost.ScanModeChanged{Mode: mode})
	if mode == bthost.ScanModeConnectableDiscoverable && tmo > 0 {
		a.discTimer = time.AfterFunc(tmo, a.discoverableExpired)
	}
	a.mu.Unlock()
	return nil
}

func scanEnableFor(mode bthost.ScanMode) uint8 {
	switch mode {
	case bthost.ScanModeConnectable:
		return scanPage
	case bthost.ScanModeConnectableDiscoverable:
		return scanInquiry | scanPage
	}
	return 0
}

func (a *Adapter) discoverableExpired() {
	a.mu.Lock()
	if a.state != bthost.PowerOn || a.scanMode != bthost.ScanModeConnectableDiscoverable {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	if err := a.SetScanMode(bthost.ScanModeConnectable); err != nil {
		logger.Error("discoverable timeout fallback: ", err)
	}
}

func (a *Adapter) stopDiscTimerLocked() {
	if a.discTimer != nil {
		a.discTimer.Stop()
		a.discTimer = nil
	}
}

// SetName updates the controller's local name. The cached name is
// kept even when Off so the next bring-up writes it.
func (a *Adapter) SetName(name string) error {
	if len(name) == 0 || len(name) > 248 {
		return errors.Errorf("invalid local name length %d", len(name))
	}
	a.mu.Lock()
	on := a.state == bthost.PowerOn
	a.mu.Unlock()

	if on {
		if err := a.writeName(name); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.name = name
	a.h.notify(bthost.NameChanged{Name: name})
	a.mu.Unlock()
	return nil
}

func (a *Adapter) writeName(name string) error {
	c := &cmd.WriteLocalName{}
	copy(c.LocalName[:], name)
	if err := a.h.Send(c, nil); err != nil {
		return errors.Wrap(err, "write local name")
	}
	return nil
}

// transportLost forces the adapter Off after an unrecoverable
// transport failure. No commands are sent; the controller is gone.
func (a *Adapter) transportLost() {
	a.mu.Lock()
	prev := a.state
	if prev == bthost.PowerOff {
		a.stopDiscTimerLocked()
		a.mu.Unlock()
		return
	}
	a.state = bthost.PowerOff
	a.scanMode = bthost.ScanModeNone
	a.stopDiscTimerLocked()
	a.h.notify(bthost.PowerStateChanged{Prev: prev, State: bthost.PowerOff})
	a.mu.Unlock()
}

// RemoteName resolves the user friendly name of a remote device with
// a Remote Name Request, caching the result in the registry.
func (a *Adapter) RemoteName(addr bthost.Addr) (string, error) {
	if a.State() != bthost.PowerOn {
		return "", errors.Wrap(bthost.ErrInvalidState, "adapter not enabled")
	}
	if name := a.h.Registry.cachedName(addr); name != "" {
		return name, nil
	}

	wait := make(chan nameResult, 1)
	a.mu.Lock()
	first := len(a.nameWaiters[addr]) == 0
	a.nameWaiters[addr] = append(a.nameWaiters[addr], wait)
	a.mu.Unlock()

	if first {
		var bd [6]byte
		copy(bd[:], addr.LE())
		if err := a.h.Send(&cmd.RemoteNameRequest{BDADDR: bd, PageScanRepetitionMode: 0x01}, nil); err != nil {
			a.failNameWaiters(addr, err)
			return "", errors.Wrap(err, "remote name request")
		}
	}

	select {
	case r := <-wait:
		return r.name, r.err
	case <-time.After(a.h.dialerTmo):
		a.dropNameWaiter(addr, wait)
		return "", errors.Wrap(bthost.ErrTimeout, "remote name request")
	case <-a.h.done:
		return "", errors.Wrap(bthost.ErrClosed, "hci closed")
	}
}

func (a *Adapter) handleRemoteName(b []byte) error {
	e := evt.RemoteNameRequestComplete(b)
	bd := e.Address()
	addr := bthost.AddrFromLE(bd[:])

	r := nameResult{}
	if e.Status() != 0 {
		r.err = errors.Wrap(ErrCommand(e.Status()), "remote name request")
	} else {
		r.name = e.RemoteName()
		a.h.Registry.recordName(addr, r.name)
	}

	a.mu.Lock()
	waiters := a.nameWaiters[addr]
	delete(a.nameWaiters, addr)
	a.mu.Unlock()
	for _, w := range waiters {
		w <- r
	}
	return nil
}

func (a *Adapter) failNameWaiters(addr bthost.Addr, err error) {
	a.mu.Lock()
	waiters := a.nameWaiters[addr]
	delete(a.nameWaiters, addr)
	a.mu.Unlock()
	for _, w := range waiters {
		w <- nameResult{err: err}
	}
}

func (a *Adapter) dropNameWaiter(addr bthost.Addr, wait chan nameResult) {
	a.mu.Lock()
	ws := a.nameWaiters[addr]
	for i, w := range ws {
		if w == wait {
			a.nameWaiters[addr] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	a.mu.Unlock()
}
