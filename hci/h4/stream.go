package h4

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

const rxQueueSize = 64

// stream adapts a raw H4 byte stream into a packet-per-Read
// transport: the rx loop reassembles frames and Read hands out one
// whole frame at a time.
type stream struct {
	rwc io.ReadWriteCloser
	rmu sync.Mutex
	wmu sync.Mutex
	cmu sync.Mutex

	rxQueue chan []byte
	done    chan struct{}
}

// NewSerial opens an H4 framed UART.
func NewSerial(path string) (io.ReadWriteCloser, error) {
	sp, err := serial.Open(serial.OpenOptions{
		PortName:              path,
		BaudRate:              115200,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't open serial port")
	}
	return newStream(sp), nil
}

// NewSocket connects to an H4 framed TCP server, typically a
// controller exposed by an emulator or a remote proxy.
func NewSocket(addr string, timeout time.Duration) (io.ReadWriteCloser, error) {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "can't dial h4 server")
	}
	return newStream(c), nil
}

func newStream(rwc io.ReadWriteCloser) *stream {
	s := &stream{
		rwc:     rwc,
		rxQueue: make(chan []byte, rxQueueSize),
		done:    make(chan struct{}),
	}
	go s.rxLoop()
	return s
}

// Read returns one whole frame. A quiet line yields (0, nil) so the
// caller can poll its own shutdown.
func (s *stream) Read(p []byte) (int, error) {
	if !s.isOpen() {
		return 0, io.EOF
	}

	s.rmu.Lock()
	defer s.rmu.Unlock()

	select {
	case f := <-s.rxQueue:
		if len(p) < len(f) {
			return 0, io.ErrShortBuffer
		}
		return copy(p, f), nil
	case <-s.done:
		return 0, io.EOF
	case <-time.After(time.Second):
		return 0, nil
	}
}

func (s *stream) Write(p []byte) (int, error) {
	if !s.isOpen() {
		return 0, io.EOF
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := s.rwc.Write(p)
	return n, errors.Wrap(err, "can't write h4")
}

func (s *stream) Close() error {
	s.cmu.Lock()
	defer s.cmu.Unlock()

	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
		return errors.Wrap(s.rwc.Close(), "can't close h4")
	}
}

func (s *stream) isOpen() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *stream) rxLoop() {
	asm := NewAssembler(s.rxQueue)

	tmp := make([]byte, 512)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.rwc.Read(tmp)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// EOF or a dead line; the engine sees it as a closed
			// transport
			s.Close()
			return
		}
		if n == 0 {
			continue
		}
		asm.Write(tmp[:n])
	}
}
