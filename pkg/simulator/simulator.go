// Package simulator provides an in-process stand-in for the motor controller.
//
// A Device accepts the same newline-terminated integer commands as the
// ESP32 firmware, applies them to a simulated PWM output and prints a status
// line back for each one. Its failsafe watchdog returns the output to
// neutral when commands stop arriving, so the heartbeat behaviour of a
// session can be observed without hardware. Device satisfies device.Port.
package simulator

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pwmlink/pwmlink-go/pkg/failsafe"
)

// Errors returned by the simulated port.
var (
	ErrClosed       = errors.New("simulated port closed")
	ErrDisconnected = errors.New("simulated device disconnected")
)

// Config configures a Device.
type Config struct {
	// Min and Max bound the output like the firmware's constrain().
	Min, Max int

	// Neutral is the output at power-on and after a failsafe trip.
	Neutral int

	// Timeout is the failsafe watchdog timeout.
	Timeout time.Duration

	// Echo enables the "PWM: <value>" status line for each command.
	Echo bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// Device is a simulated controller.
type Device struct {
	cfg      Config
	watchdog *failsafe.Watchdog
	logger   *slog.Logger

	mu          sync.Mutex
	output      int
	commands    []int
	pending     []byte
	readTimeout time.Duration
	closed      bool
	writeErr    error

	// Lines queued for the host.
	out  chan []byte
	done chan struct{}
}

// New creates a Device with its output at neutral.
func New(cfg Config) (*Device, error) {
	if cfg.Min > cfg.Max || cfg.Neutral < cfg.Min || cfg.Neutral > cfg.Max {
		return nil, fmt.Errorf("simulator: invalid range min=%d max=%d neutral=%d", cfg.Min, cfg.Max, cfg.Neutral)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	wd, err := failsafe.NewWatchdog(failsafe.Config{Timeout: cfg.Timeout, Clock: cfg.Clock})
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}

	d := &Device{
		cfg:         cfg,
		watchdog:    wd,
		logger:      cfg.Logger,
		output:      cfg.Neutral,
		readTimeout: time.Second,
		out:         make(chan []byte, 64),
		done:        make(chan struct{}),
	}
	wd.OnTrip(d.onFailsafe)
	return d, nil
}

func (d *Device) onFailsafe() {
	d.mu.Lock()
	d.output = d.cfg.Neutral
	d.mu.Unlock()

	d.logger.Warn("simulator failsafe: no command within timeout", "timeout", d.watchdog.Timeout())
	d.emit("FAILSAFE")
}

// Write accepts command bytes. Complete lines are applied in order;
// unparsable lines are ignored, as the firmware does.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	if d.writeErr != nil {
		err := d.writeErr
		d.mu.Unlock()
		return 0, err
	}

	d.pending = append(d.pending, p...)
	var applied []int
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(d.pending[:i])
		d.pending = d.pending[i+1:]

		v, err := strconv.Atoi(string(line))
		if err != nil {
			continue
		}
		v = min(max(v, d.cfg.Min), d.cfg.Max)
		d.output = v
		d.commands = append(d.commands, v)
		applied = append(applied, v)
	}
	d.mu.Unlock()

	for _, v := range applied {
		d.watchdog.Feed()
		if d.cfg.Echo {
			d.emit("PWM: " + strconv.Itoa(v))
		}
	}
	return len(p), nil
}

func (d *Device) emit(line string) {
	select {
	case d.out <- []byte(line + "\n"):
	default:
		// Host is not reading; drop like a full UART FIFO.
	}
}

// Read returns the next status line, or 0, nil after the read timeout.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	timeout := d.readTimeout
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-d.out:
		return copy(p, line), nil
	case <-d.done:
		return 0, ErrClosed
	case <-timer.C:
		return 0, nil
	}
}

// SetReadTimeout sets how long Read waits for output.
func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readTimeout = t
	return nil
}

// ResetInputBuffer discards queued status lines.
func (d *Device) ResetInputBuffer() error {
	for {
		select {
		case <-d.out:
		default:
			return nil
		}
	}
}

// ResetOutputBuffer discards a partially written command.
func (d *Device) ResetOutputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	return nil
}

// Close stops the watchdog. Subsequent writes fail with ErrClosed.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()

	d.watchdog.Stop()
	return nil
}

// Disconnect makes every later write fail with ErrDisconnected, like a
// controller unplugged mid-session.
func (d *Device) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeErr = ErrDisconnected
}

// Output returns the simulated PWM output.
func (d *Device) Output() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.output
}

// Commands returns every command applied so far.
func (d *Device) Commands() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.commands...)
}

// Watchdog exposes the failsafe watchdog.
func (d *Device) Watchdog() *failsafe.Watchdog {
	return d.watchdog
}
