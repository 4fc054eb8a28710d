// Package runflag provides the session-wide "keep running" signal.
//
// A Flag starts running and transitions to stopped exactly once. The first
// Stop call records the reason; later calls are no-ops. Blocked tasks select
// on Done() to observe the transition.
package runflag

import (
	"errors"
	"sync"
)

// Stop reasons used across pwmlink.
var (
	ErrQuit     = errors.New("quit requested")
	ErrSignal   = errors.New("terminated by signal")
	ErrShutdown = errors.New("shutdown requested")
)

// Flag is a one-shot running/stopped signal.
type Flag struct {
	mu     sync.Mutex
	done   chan struct{}
	reason error
}

// New creates a running flag.
func New() *Flag {
	return &Flag{done: make(chan struct{})}
}

// Running reports whether Stop has not been called yet.
func (f *Flag) Running() bool {
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

// Stop stops the flag with reason. It returns true if this call performed
// the transition. A nil reason is recorded as ErrShutdown.
func (f *Flag) Stop(reason error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.done:
		return false
	default:
	}

	if reason == nil {
		reason = ErrShutdown
	}
	f.reason = reason
	close(f.done)
	return true
}

// Done returns a channel closed when the flag stops.
func (f *Flag) Done() <-chan struct{} {
	return f.done
}

// Reason returns the error passed to the first Stop call, or nil while the
// flag is still running.
func (f *Flag) Reason() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// Clean reports whether the flag stopped for a reason that should end the
// process successfully (quit, signal or an explicit shutdown).
func (f *Flag) Clean() bool {
	r := f.Reason()
	return r != nil && (errors.Is(r, ErrQuit) || errors.Is(r, ErrSignal) || errors.Is(r, ErrShutdown))
}
