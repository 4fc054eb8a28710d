package device

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// fakePort records writes and serves reads from a channel of chunks.
type fakePort struct {
	mu       sync.Mutex
	written  bytes.Buffer
	writeErr error
	timeout  time.Duration
	resets   int
	closed   bool

	reads chan []byte
	done  chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{
		reads: make(chan []byte, 16),
		done:  make(chan struct{}),
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.reads:
		return copy(b, chunk), nil
	case <-p.done:
		return 0, errors.New("port closed")
	case <-time.After(10 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.resets++
	return nil
}

func (p *fakePort) ResetOutputBuffer() error {
	p.resets++
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}

func (p *fakePort) output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func TestNewSerialChannelPreparesPort(t *testing.T) {
	port := newFakePort()
	_, err := NewSerialChannel(port, Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultReadTimeout, port.timeout)
	assert.Equal(t, 2, port.resets)
}

func TestSendWireFormat(t *testing.T) {
	port := newFakePort()
	ch, err := NewSerialChannel(port, Options{})
	require.NoError(t, err)

	require.NoError(t, ch.Send(1500))
	require.NoError(t, ch.Send(1525))
	require.NoError(t, ch.Send(1000))

	assert.Equal(t, "1500\n1525\n1000\n", port.output())
}

func TestSendConcurrentWritesDoNotInterleave(t *testing.T) {
	port := newFakePort()
	ch, err := NewSerialChannel(port, Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = ch.Send(1234)
			}
		}()
	}
	wg.Wait()

	out := port.output()
	assert.Equal(t, 400, bytes.Count([]byte(out), []byte("1234\n")))
	assert.Len(t, out, 400*5)
}

func TestSendWriteError(t *testing.T) {
	port := newFakePort()
	ch, err := NewSerialChannel(port, Options{})
	require.NoError(t, err)

	port.writeErr = io.ErrClosedPipe
	err = ch.Send(1500)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestCloseIdempotent(t *testing.T) {
	port := newFakePort()
	ch, err := NewSerialChannel(port, Options{})
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	assert.ErrorIs(t, ch.Send(1500), ErrClosed)
}

func TestReadLines(t *testing.T) {
	port := newFakePort()
	ch, err := NewSerialChannel(port, Options{})
	require.NoError(t, err)

	port.reads <- []byte("PWM set: 15")
	port.reads <- []byte("00\r\n\nready\n")

	var mu sync.Mutex
	var lines []string
	done := make(chan error, 1)
	go func() {
		done <- ch.ReadLines(context.Background(), func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		})
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lines) == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, ch.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ReadLines did not return after Close")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"PWM set: 1500", "ready"}, lines)
}

func TestReadLinesStopsOnContext(t *testing.T) {
	port := newFakePort()
	ch, err := NewSerialChannel(port, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.ReadLines(ctx, func(string) {}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ReadLines did not return after cancel")
	}
}

func TestDial(t *testing.T) {
	port := newFakePort()
	orig := OpenPort
	t.Cleanup(func() { OpenPort = orig })

	var gotPath string
	var gotBaud int
	OpenPort = func(path string, mode *serial.Mode) (Port, error) {
		gotPath = path
		gotBaud = mode.BaudRate
		return port, nil
	}

	ch, err := Dial(context.Background(), "/dev/ttyUSB0", Options{ResetDelay: time.Millisecond})
	require.NoError(t, err)
	defer ch.Close()

	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, DefaultBaudRate, gotBaud)
	assert.Equal(t, "/dev/ttyUSB0", ch.Path())
}

func TestDialOpenFailure(t *testing.T) {
	orig := OpenPort
	t.Cleanup(func() { OpenPort = orig })

	OpenPort = func(string, *serial.Mode) (Port, error) {
		return nil, errors.New("no such file or directory")
	}

	_, err := Dial(context.Background(), "/dev/missing", Options{})
	assert.ErrorIs(t, err, ErrOpen)
}

func TestDialCancelledDuringReset(t *testing.T) {
	port := newFakePort()
	orig := OpenPort
	t.Cleanup(func() { OpenPort = orig })
	OpenPort = func(string, *serial.Mode) (Port, error) { return port, nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, "/dev/ttyUSB0", Options{ResetDelay: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, port.closed)
}
