package hci

import (
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci/evt"
)

// fakeController is a scripted io.ReadWriteCloser standing in for a
// real controller. Commands written by the engine are answered by
// respond (or a per-opcode stub); frames injected with inject show up
// on the engine's read path.
type fakeController struct {
	t      *testing.T
	bdaddr bthost.Addr

	rx   chan []byte
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	cmds  []sentCmd
	acls  [][]byte
	scos  [][]byte
	stubs map[uint16]func(params []byte)
	onACL func(handle uint16, pdu []byte)

	remoteName string
}

type sentCmd struct {
	op     uint16
	params []byte
}

func newFakeController(t *testing.T) *fakeController {
	addr, _ := bthost.ParseAddr("AA:BB:CC:11:22:33")
	return &fakeController{
		t:          t,
		bdaddr:     addr,
		rx:         make(chan []byte, 64),
		done:       make(chan struct{}),
		stubs:      make(map[uint16]func([]byte)),
		remoteName: "peer",
	}
}

func (c *fakeController) Read(p []byte) (int, error) {
	select {
	case f := <-c.rx:
		return copy(p, f), nil
	case <-c.done:
		return 0, io.EOF
	}
}

func (c *fakeController) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	switch b[0] {
	case 0x01: // command
		op := binary.LittleEndian.Uint16(b[1:3])
		params := append([]byte{}, b[4:]...)
		c.mu.Lock()
		c.cmds = append(c.cmds, sentCmd{op, params})
		stub := c.stubs[op]
		c.mu.Unlock()
		if stub != nil {
			stub(params)
		} else {
			c.respond(op, params)
		}
	case 0x02: // acl
		handle := binary.LittleEndian.Uint16(b[1:3]) & 0x0fff
		pdu := append([]byte{}, b[5:]...)
		c.mu.Lock()
		c.acls = append(c.acls, pdu)
		onACL := c.onACL
		c.mu.Unlock()
		if onACL != nil {
			onACL(handle, pdu)
		}
	case 0x03: // sco
		c.mu.Lock()
		c.scos = append(c.scos, append([]byte{}, b[4:]...))
		c.mu.Unlock()
	}
	return len(b), nil
}

func (c *fakeController) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeController) inject(frame []byte) {
	select {
	case c.rx <- frame:
	case <-c.done:
	}
}

func (c *fakeController) stub(op uint16, fn func(params []byte)) {
	c.mu.Lock()
	c.stubs[op] = fn
	c.mu.Unlock()
}

func (c *fakeController) sentCmds(op uint16) []sentCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentCmd
	for _, s := range c.cmds {
		if s.op == op {
			out = append(out, s)
		}
	}
	return out
}

func (c *fakeController) sentACLs() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte{}, c.acls...)
}

func evtFrame(code uint8, params ...byte) []byte {
	f := []byte{0x04, code, byte(len(params))}
	return append(f, params...)
}

func ccFrame(op uint16, ret ...byte) []byte {
	params := []byte{0x01, byte(op), byte(op >> 8)}
	return evtFrame(evt.CommandCompleteCode, append(params, ret...)...)
}

func csFrame(status uint8, op uint16) []byte {
	return evtFrame(evt.CommandStatusCode, status, 0x01, byte(op), byte(op>>8))
}

func connCompleteFrame(status uint8, handle uint16, addr bthost.Addr, linkType uint8) []byte {
	params := []byte{status, byte(handle), byte(handle >> 8)}
	params = append(params, addr.LE()...)
	params = append(params, linkType, 0x00)
	return evtFrame(evt.ConnectionCompleteCode, params...)
}

// respond plays a well-behaved controller for any command the tests
// don't stub.
func (c *fakeController) respond(op uint16, params []byte) {
	switch op {
	case 0x1005: // read buffer size
		ret := []byte{0x00, 0xFD, 0x03, 0x40, 0x08, 0x00, 0x08, 0x00}
		c.inject(ccFrame(op, ret...))
	case 0x1009: // read bd_addr
		c.inject(ccFrame(op, append([]byte{0x00}, c.bdaddr.LE()...)...))
	case 0x0401: // inquiry
		c.inject(csFrame(0x00, op))
	case 0x0405: // create connection
		c.inject(csFrame(0x00, op))
		c.inject(connCompleteFrame(0x00, 0x0001, bthost.AddrFromLE(params[:6]), evt.LinkTypeACL))
	case 0x0409: // accept connection request
		c.inject(csFrame(0x00, op))
		c.inject(connCompleteFrame(0x00, 0x0001, bthost.AddrFromLE(params[:6]), evt.LinkTypeACL))
	case 0x0406: // disconnect
		handle := binary.LittleEndian.Uint16(params)
		c.inject(csFrame(0x00, op))
		c.inject(evtFrame(evt.DisconnectionCompleteCode, 0x00, byte(handle), byte(handle>>8), params[2]))
	case 0x0411: // authentication requested
		handle := binary.LittleEndian.Uint16(params)
		c.inject(csFrame(0x00, op))
		c.inject(evtFrame(evt.AuthenticationCompleteCode, 0x00, byte(handle), byte(handle>>8)))
	case 0x0413: // set connection encryption
		handle := binary.LittleEndian.Uint16(params)
		c.inject(csFrame(0x00, op))
		c.inject(evtFrame(evt.EncryptionChangeCode, 0x00, byte(handle), byte(handle>>8), 0x01))
	case 0x0419: // remote name request
		c.inject(csFrame(0x00, op))
		name := make([]byte, 248)
		copy(name, c.remoteName)
		p := append([]byte{0x00}, params[:6]...)
		c.inject(evtFrame(evt.RemoteNameRequestCompleteCode, append(p, name...)...))
	case 0x0428: // setup synchronous connection
		c.inject(csFrame(0x00, op))
	case 0x040B: // link key request reply
		c.inject(ccFrame(op, 0x00))
	case 0x040C:
		c.inject(ccFrame(op, 0x00))
	default:
		c.inject(ccFrame(op, 0x00))
	}
}

// eventLog collects notifications for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []bthost.Event
}

func (l *eventLog) add(e bthost.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []bthost.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bthost.Event{}, l.events...)
}

func (l *eventLog) waitFor(t *testing.T, pred func(bthost.Event) bool) bthost.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range l.snapshot() {
			if pred(e) {
				return e
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("event did not arrive")
	return nil
}

func newTestHCI(t *testing.T) (*HCI, *fakeController, *eventLog) {
	t.Helper()
	ctrl := newFakeController(t)
	h, err := New(
		bthost.OptTransportRWC(ctrl),
		bthost.OptCommandTimeout(time.Second),
		bthost.OptDialerTimeout(time.Second),
		bthost.OptListenerTimeout(time.Second),
	)
	if err != nil {
		t.Fatal(err)
	}
	log := &eventLog{}
	h.SetNotifyFunc(log.add)
	if err := h.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h, ctrl, log
}

func waitForPower(t *testing.T, h *HCI, want bthost.PowerState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Adapter.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", h.Adapter.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func enabledTestHCI(t *testing.T) (*HCI, *fakeController, *eventLog) {
	t.Helper()
	h, ctrl, log := newTestHCI(t)
	if err := h.Adapter.Enable(); err != nil {
		t.Fatal(err)
	}
	waitForPower(t, h, bthost.PowerOn)
	return h, ctrl, log
}

// syncpoint round-trips a command through the controller, so every
// frame injected before it is already processed when it returns.
func syncpoint(t *testing.T, h *HCI) {
	t.Helper()
	if err := h.Adapter.SetName("syncpoint"); err != nil {
		t.Fatal(err)
	}
}

func TestSendCommandStatusError(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)

	ctrl.stub(0x0401, func([]byte) { ctrl.inject(csFrame(0x0C, 0x0401)) })
	err := h.Discovery.Start()
	if err == nil {
		t.Fatal("expected error")
	}
	if ec, ok := errors.Cause(err).(ErrCommand); !ok || ec != ErrDisallowed {
		t.Fatalf("err = %v", err)
	}
}

func TestSendTimesOut(t *testing.T) {
	ctrl := newFakeController(t)
	errCh := make(chan error, 8)
	h, err := New(
		bthost.OptTransportRWC(ctrl),
		bthost.OptCommandTimeout(50*time.Millisecond),
		bthost.OptErrorHandler(func(e error) { errCh <- e }),
	)
	if err != nil {
		t.Fatal(err)
	}
	log := &eventLog{}
	h.SetNotifyFunc(log.add)
	if err := h.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.Close() })

	ctrl.stub(0x0C03, func([]byte) {}) // swallow reset
	if err := h.Adapter.Enable(); err != nil {
		t.Fatal(err)
	}

	// the unanswered reset fails the bring-up and the adapter falls
	// back to Off
	log.waitFor(t, func(e bthost.Event) bool {
		p, ok := e.(bthost.PowerStateChanged)
		return ok && p.Prev == bthost.PowerTurningOn && p.State == bthost.PowerOff
	})
	select {
	case err := <-errCh:
		if errors.Cause(err) != bthost.ErrTimeout {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never reported")
	}
	if h.Adapter.State() != bthost.PowerOff {
		t.Fatalf("state = %v after failed enable", h.Adapter.State())
	}
}

func TestTransportLossSurfacesError(t *testing.T) {
	h, ctrl, _ := enabledTestHCI(t)

	// the byte stream dies under an in-flight command
	ctrl.stub(0x0401, func([]byte) { _ = ctrl.Close() })
	err := h.Discovery.Start()
	if err == nil {
		t.Fatal("expected error")
	}
	if h.Error() == nil {
		t.Fatal("engine error not recorded")
	}
	if errors.Cause(h.Error()) != bthost.ErrTransport {
		t.Fatalf("engine error = %v", h.Error())
	}
	waitForPower(t, h, bthost.PowerOff)
}
