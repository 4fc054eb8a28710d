package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.bug.st/serial"

	"github.com/pwmlink/pwmlink-go/pkg/device"
)

// ErrTransportClosed is returned by Accept after Close.
var ErrTransportClosed = errors.New("relay transport closed")

// Conn is one peer session.
type Conn interface {
	io.ReadCloser

	// ID uniquely identifies the session (UUID).
	ID() string

	// RemoteAddr describes the peer.
	RemoteAddr() string
}

// Transport produces peer sessions.
type Transport interface {
	// Accept blocks until a peer is available.
	Accept(ctx context.Context) (Conn, error)

	// Close unblocks Accept and releases the transport.
	Close() error

	// Addr describes where peers connect.
	Addr() string
}

// TCPTransport accepts peers on a TCP listener.
type TCPTransport struct {
	listener net.Listener
	closed   atomic.Bool
}

// ListenTCP starts listening on address (e.g. ":7420").
func ListenTCP(address string) (*TCPTransport, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return &TCPTransport{listener: l}, nil
}

// Accept waits for the next TCP peer.
func (t *TCPTransport) Accept(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := t.listener.Accept()
	if err != nil {
		if t.closed.Load() {
			return nil, ErrTransportClosed
		}
		return nil, fmt.Errorf("accept error: %w", err)
	}
	return &netConn{Conn: c, id: uuid.NewString()}, nil
}

// Close closes the listener.
func (t *TCPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.listener.Close()
}

// Addr returns the listen address.
func (t *TCPTransport) Addr() string {
	return t.listener.Addr().String()
}

// Port returns the TCP port being listened on.
func (t *TCPTransport) Port() int {
	if a, ok := t.listener.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

type netConn struct {
	net.Conn
	id string
}

func (c *netConn) ID() string         { return c.id }
func (c *netConn) RemoteAddr() string { return c.Conn.RemoteAddr().String() }

// SerialTransport treats a serial device (such as /dev/rfcomm0) as a peer.
// The device is opened on Accept and reopened for every session, since an
// rfcomm node disappears when the Bluetooth link drops.
type SerialTransport struct {
	path        string
	baudRate    int
	readTimeout time.Duration

	mu     sync.Mutex
	active *serialConn
	closed bool
}

// NewSerialTransport creates a transport for the device at path.
func NewSerialTransport(path string, baudRate int, readTimeout time.Duration) *SerialTransport {
	if baudRate <= 0 {
		baudRate = device.DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = device.DefaultReadTimeout
	}
	return &SerialTransport{path: path, baudRate: baudRate, readTimeout: readTimeout}
}

// Accept opens the device. It fails immediately if the device is absent;
// the relay's backoff provides the retry.
func (t *SerialTransport) Accept(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}

	port, err := device.OpenPort(t.path, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.path, err)
	}
	if err := port.SetReadTimeout(t.readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	c := &serialConn{Port: port, id: uuid.NewString(), path: t.path}
	t.active = c
	return c, nil
}

// Close closes the transport and any open session.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.active != nil {
		return t.active.Close()
	}
	return nil
}

// Addr returns the device path.
func (t *SerialTransport) Addr() string {
	return t.path
}

type serialConn struct {
	device.Port
	id   string
	path string

	closeOnce sync.Once
	closeErr  error
}

func (c *serialConn) ID() string         { return c.id }
func (c *serialConn) RemoteAddr() string { return c.path }

func (c *serialConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.Port.Close() })
	return c.closeErr
}
