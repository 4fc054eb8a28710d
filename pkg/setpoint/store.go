package setpoint

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidLimits is returned when a Limits value violates its invariants.
var ErrInvalidLimits = errors.New("invalid setpoint limits")

// Limits bounds a setpoint.
type Limits struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Neutral int `yaml:"neutral"`
	Step    int `yaml:"step"`
}

// Validate checks that Min <= Neutral <= Max and Step > 0.
func (l Limits) Validate() error {
	if l.Min > l.Max {
		return fmt.Errorf("%w: min %d > max %d", ErrInvalidLimits, l.Min, l.Max)
	}
	if l.Neutral < l.Min || l.Neutral > l.Max {
		return fmt.Errorf("%w: neutral %d outside [%d, %d]", ErrInvalidLimits, l.Neutral, l.Min, l.Max)
	}
	if l.Step <= 0 {
		return fmt.Errorf("%w: step must be positive, got %d", ErrInvalidLimits, l.Step)
	}
	return nil
}

// Clamp returns v constrained to [Min, Max].
func (l Limits) Clamp(v int) int {
	if v < l.Min {
		return l.Min
	}
	if v > l.Max {
		return l.Max
	}
	return v
}

// Contains reports whether v lies within [Min, Max].
func (l Limits) Contains(v int) bool {
	return v >= l.Min && v <= l.Max
}

// Store is the mutex-guarded current setpoint.
type Store struct {
	mu     sync.Mutex
	limits Limits
	value  int
}

// NewStore creates a store holding limits.Neutral.
func NewStore(limits Limits) (*Store, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		limits: limits,
		value:  limits.Neutral,
	}, nil
}

// Limits returns the limits the store was created with.
func (s *Store) Limits() Limits {
	return s.limits
}

// Read returns the current value.
func (s *Store) Read() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Write clamps candidate, stores it and returns the stored value.
func (s *Store) Write(candidate int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = s.limits.Clamp(candidate)
	return s.value
}

// Adjust adds delta to the current value under a single lock hold and
// returns the clamped result.
func (s *Store) Adjust(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = s.limits.Clamp(s.value + delta)
	return s.value
}

// Increase raises the value by one step.
func (s *Store) Increase() int {
	return s.Adjust(s.limits.Step)
}

// Decrease lowers the value by one step.
func (s *Store) Decrease() int {
	return s.Adjust(-s.limits.Step)
}

// Reset sets the value back to neutral.
func (s *Store) Reset() int {
	return s.Write(s.limits.Neutral)
}
