// Package heartbeat re-sends the current setpoint at a fixed rate.
//
// The motor controller reverts to neutral when it stops hearing commands, so
// the value has to be repeated even when nothing changes. A Transmitter reads
// the setpoint, sends it, then waits for the next tick, for as long as the
// session's run flag is set. Heartbeat sends are not setpoint changes and
// are never written to the command log.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pwmlink/pwmlink-go/pkg/runflag"
)

// Rate limits in Hz.
const (
	DefaultRate = 30.0
	MinRate     = 0.1
	MaxRate     = 1000.0
)

// ErrInvalidRate is returned for a nonzero rate outside [MinRate, MaxRate].
var ErrInvalidRate = errors.New("invalid heartbeat rate")

// Config configures a Transmitter.
type Config struct {
	// Rate is the send frequency in Hz. Zero selects DefaultRate.
	Rate float64 `yaml:"rate"`
}

// Validate checks the rate.
func (c Config) Validate() error {
	if c.Rate == 0 {
		return nil
	}
	// Written so NaN fails too.
	if !(c.Rate >= MinRate && c.Rate <= MaxRate) {
		return fmt.Errorf("%w: %g Hz (want %g <= rate <= %g)", ErrInvalidRate, c.Rate, MinRate, MaxRate)
	}
	return nil
}

// Period returns the interval between sends.
func (c Config) Period() time.Duration {
	rate := c.Rate
	if rate == 0 {
		rate = DefaultRate
	}
	return time.Duration(float64(time.Second) / rate)
}

// Source supplies the value to send.
type Source interface {
	Read() int
}

// Sender writes one command to the device.
type Sender interface {
	Send(value int) error
}

// Option configures a Transmitter.
type Option func(*Transmitter)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(t *Transmitter) { t.clock = c }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transmitter) { t.logger = l }
}

// Transmitter is the periodic sender.
type Transmitter struct {
	period time.Duration
	source Source
	sender Sender
	flag   *runflag.Flag
	clock  clock.Clock
	logger *slog.Logger

	sent    atomic.Uint64
	started atomic.Bool
	done    chan struct{}
}

// New creates a Transmitter. It does not start sending until Run.
func New(cfg Config, source Source, sender Sender, flag *runflag.Flag, opts ...Option) (*Transmitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Transmitter{
		period: cfg.Period(),
		source: source,
		sender: sender,
		flag:   flag,
		clock:  clock.New(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Period returns the interval between sends.
func (t *Transmitter) Period() time.Duration {
	return t.period
}

// Sent returns the number of successful sends.
func (t *Transmitter) Sent() uint64 {
	return t.sent.Load()
}

// Done is closed when Run returns.
func (t *Transmitter) Done() <-chan struct{} {
	return t.done
}

// Run sends until the flag stops or ctx is cancelled. A send failure stops
// the flag with the error and is returned; there is no retry. Run may only
// be called once.
func (t *Transmitter) Run(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return errors.New("heartbeat already running")
	}
	defer close(t.done)

	ticker := t.clock.Ticker(t.period)
	defer ticker.Stop()

	t.logger.Debug("heartbeat started", "period", t.period)
	defer func() {
		t.logger.Debug("heartbeat stopped", "sent", t.sent.Load())
	}()

	for {
		if !t.flag.Running() {
			return nil
		}

		if err := t.sender.Send(t.source.Read()); err != nil {
			err = fmt.Errorf("heartbeat send: %w", err)
			t.flag.Stop(err)
			return err
		}
		t.sent.Add(1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.flag.Done():
			return nil
		case <-ticker.C:
		}
	}
}
