package failsafe

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Watchdog constants.
const (
	// MinTimeout is the minimum watchdog timeout.
	MinTimeout = 10 * time.Millisecond

	// MaxTimeout is the maximum watchdog timeout.
	MaxTimeout = 10 * time.Second

	// DefaultTimeout is the default watchdog timeout.
	DefaultTimeout = 250 * time.Millisecond
)

// ErrInvalidTimeout is returned for a timeout outside [MinTimeout, MaxTimeout].
var ErrInvalidTimeout = errors.New("invalid failsafe timeout")

// State represents the watchdog state.
type State uint8

const (
	// StateIdle indicates no command has been received.
	StateIdle State = iota

	// StateArmed indicates commands are arriving in time.
	StateArmed

	// StateFailsafe indicates the timeout elapsed.
	StateFailsafe
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArmed:
		return "ARMED"
	case StateFailsafe:
		return "FAILSAFE"
	default:
		return "UNKNOWN"
	}
}

// Config holds watchdog configuration.
type Config struct {
	Timeout time.Duration

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// Watchdog trips when Feed is not called within the timeout.
type Watchdog struct {
	mu sync.Mutex

	state   State
	timeout time.Duration
	clock   clock.Clock

	timer *clock.Timer
	// gen invalidates callbacks of timers replaced by a later Feed.
	gen     uint64
	fedAt   time.Time
	trips   uint64
	feedCnt uint64

	onStateChange func(oldState, newState State)
	onTrip        func()
}

// NewWatchdog creates a watchdog in StateIdle.
func NewWatchdog(cfg Config) (*Watchdog, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Timeout < MinTimeout || cfg.Timeout > MaxTimeout {
		return nil, ErrInvalidTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Watchdog{
		state:   StateIdle,
		timeout: cfg.Timeout,
		clock:   cfg.Clock,
	}, nil
}

// State returns the current state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// IsFailsafe returns true if the watchdog has tripped and not been fed since.
func (w *Watchdog) IsFailsafe() bool {
	return w.State() == StateFailsafe
}

// Timeout returns the configured timeout.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Trips returns how many times the watchdog has tripped.
func (w *Watchdog) Trips() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.trips
}

// Feeds returns how many commands have been fed.
func (w *Watchdog) Feeds() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.feedCnt
}

// Feed records a received command and restarts the timeout.
func (w *Watchdog) Feed() {
	w.mu.Lock()

	w.feedCnt++
	w.fedAt = w.clock.Now()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = w.clock.AfterFunc(w.timeout, func() {
		w.trip(gen)
	})

	oldState := w.state
	w.state = StateArmed
	stateChangeFn := w.onStateChange

	w.mu.Unlock()

	if oldState != StateArmed && stateChangeFn != nil {
		stateChangeFn(oldState, StateArmed)
	}
}

// Stop cancels the timer and returns to StateIdle.
func (w *Watchdog) Stop() {
	w.mu.Lock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++

	oldState := w.state
	w.state = StateIdle
	stateChangeFn := w.onStateChange

	w.mu.Unlock()

	if oldState != StateIdle && stateChangeFn != nil {
		stateChangeFn(oldState, StateIdle)
	}
}

// RemainingTime returns the time left before the watchdog trips.
// Returns 0 unless armed.
func (w *Watchdog) RemainingTime() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateArmed {
		return 0
	}
	remaining := w.timeout - w.clock.Since(w.fedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// trip is called when the timer for generation gen expires.
func (w *Watchdog) trip(gen uint64) {
	w.mu.Lock()

	if gen != w.gen || w.state != StateArmed {
		w.mu.Unlock()
		return
	}

	w.state = StateFailsafe
	w.timer = nil
	w.trips++

	stateChangeFn := w.onStateChange
	tripFn := w.onTrip

	w.mu.Unlock()

	if stateChangeFn != nil {
		stateChangeFn(StateArmed, StateFailsafe)
	}
	if tripFn != nil {
		tripFn()
	}
}

// OnStateChange sets a callback for state changes.
func (w *Watchdog) OnStateChange(fn func(oldState, newState State)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onStateChange = fn
}

// OnTrip sets a callback invoked when the watchdog trips.
func (w *Watchdog) OnTrip(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onTrip = fn
}
