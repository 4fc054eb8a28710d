package relay

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Re-accept delay defaults. A failed accept or a finished peer session waits
// InitialBackoff, growing by BackoffMultiplier up to MaxBackoff.
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 5 * time.Second
	BackoffMultiplier = 2.0

	// JitterFactor is the largest random extra wait, as a fraction of the delay.
	JitterFactor = 0.25
)

// BackoffConfig is the re-accept delay policy.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	// Jitter of zero selects JitterFactor; a negative value disables it.
	Jitter float64 `yaml:"jitter"`
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	c.Max = max(c.Max, c.Initial)
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	switch {
	case c.Jitter == 0:
		c.Jitter = JitterFactor
	case c.Jitter < 0:
		c.Jitter = 0
	}
	return c
}

// Backoff spaces out re-accepts while peers keep failing. The relay resets
// it once a peer session has run long enough to count as healthy.
type Backoff struct {
	cfg  BackoffConfig
	rand func() float64

	mu       sync.Mutex
	attempts int
}

// NewBackoff creates a Backoff for cfg.
func NewBackoff(cfg BackoffConfig) *Backoff {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Backoff{cfg: cfg.withDefaults(), rand: rng.Float64}
}

// Next returns the wait before the next accept and counts the attempt.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	base := b.base(b.attempts)
	b.attempts++
	if b.cfg.Jitter == 0 {
		return base
	}
	return base + time.Duration(float64(base)*b.cfg.Jitter*b.rand())
}

// base is the un-jittered delay after n earlier attempts.
func (b *Backoff) base(n int) time.Duration {
	d := float64(b.cfg.Initial) * math.Pow(b.cfg.Multiplier, float64(n))
	if d >= float64(b.cfg.Max) {
		return b.cfg.Max
	}
	return time.Duration(d)
}

// Reset starts over from the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
