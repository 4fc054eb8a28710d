package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Default serial settings for the reference controller.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = time.Second
	DefaultResetDelay  = 2 * time.Second
)

// Errors returned by the channel.
var (
	ErrClosed = errors.New("device channel closed")
	ErrOpen   = errors.New("cannot open device")
)

// Channel is the write side the supervisor depends on.
type Channel interface {
	// Send writes one command for value.
	Send(value int) error

	// Write forwards raw bytes to the device unchanged.
	Write(p []byte) (int, error)

	// Close releases the device. Safe to call more than once.
	Close() error
}

// Port is the subset of serial.Port a SerialChannel needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Options configures Dial.
type Options struct {
	BaudRate    int
	ReadTimeout time.Duration
	ResetDelay  time.Duration
	Logger      *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.ResetDelay < 0 {
		o.ResetDelay = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// OpenPort opens a serial port. It is a variable so tests can replace it.
var OpenPort = func(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// Dial opens the serial device at path, waits for the controller to finish
// its reset and clears both buffers.
func Dial(ctx context.Context, path string, opts Options) (*SerialChannel, error) {
	opts.applyDefaults()

	port, err := OpenPort(path, &serial.Mode{BaudRate: opts.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, path, err)
	}

	if opts.ResetDelay > 0 {
		opts.Logger.Info("waiting for controller reset", "path", path, "delay", opts.ResetDelay)
		timer := time.NewTimer(opts.ResetDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			port.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	ch, err := NewSerialChannel(port, opts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, path, err)
	}
	ch.path = path
	return ch, nil
}

// SerialChannel is a Channel over a serial port.
type SerialChannel struct {
	port   Port
	path   string
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewSerialChannel wraps an already opened port. Buffers are reset and the
// read timeout applied.
func NewSerialChannel(port Port, opts Options) (*SerialChannel, error) {
	opts.applyDefaults()

	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		return nil, fmt.Errorf("reset output buffer: %w", err)
	}

	return &SerialChannel{
		port:   port,
		logger: opts.Logger,
	}, nil
}

// Path returns the device path, or "" when the channel wraps a port directly.
func (c *SerialChannel) Path() string {
	return c.path
}

// Send writes value as a newline-terminated decimal integer.
func (c *SerialChannel) Send(value int) error {
	buf := strconv.AppendInt(make([]byte, 0, 8), int64(value), 10)
	buf = append(buf, '\n')
	if _, err := c.Write(buf); err != nil {
		return err
	}
	return nil
}

// Write writes p under the channel's write lock.
func (c *SerialChannel) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return 0, ErrClosed
	}

	n, err := c.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("device write: %w", err)
	}
	if n < len(p) {
		return n, fmt.Errorf("device write: %w", io.ErrShortWrite)
	}
	return n, nil
}

// ReadLines reads newline-terminated lines printed by the controller and
// passes each trimmed, non-empty line to fn. It returns nil when ctx is
// cancelled or the channel is closed.
func (c *SerialChannel) ReadLines(ctx context.Context, fn func(line string)) error {
	buf := make([]byte, 256)
	var pending []byte

	for {
		if ctx.Err() != nil || c.isClosed() {
			return nil
		}

		// Returns 0, nil when the read timeout elapses.
		n, err := c.port.Read(buf)
		if err != nil {
			if c.isClosed() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("device read: %w", err)
		}

		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			line := bytes.TrimSpace(pending[:i])
			pending = pending[i+1:]
			if len(line) > 0 {
				fn(string(line))
			}
		}
	}
}

// Close closes the port. Subsequent writes return ErrClosed.
func (c *SerialChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.port.Close()
}

func (c *SerialChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
