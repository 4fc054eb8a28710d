package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pwmlink/pwmlink-go/pkg/runflag"
)

// DefaultBufferSize is the read buffer for one peer chunk.
const DefaultBufferSize = 256

// Sink receives peer payloads.
type Sink interface {
	Forward(peerID string, payload []byte) error
}

// DisconnectNotifier is implemented by sinks that keep per-peer state.
type DisconnectNotifier interface {
	Disconnected(peerID string)
}

// Config configures a Relay.
type Config struct {
	Backoff    BackoffConfig
	BufferSize int

	Clock  clock.Clock
	Logger *slog.Logger

	// OnConnect is called when a peer session starts.
	OnConnect func(conn Conn)

	// OnDisconnect is called when a peer session ends.
	OnDisconnect func(conn Conn, err error)
}

// Relay accepts peers from a Transport and forwards their bytes to a Sink.
type Relay struct {
	transport Transport
	sink      Sink
	flag      *runflag.Flag
	config    Config
	backoff   *Backoff
	clock     clock.Clock
	logger    *slog.Logger

	sessions atomic.Uint64
	running  atomic.Bool

	mu     sync.Mutex
	active Conn
}

// New creates a Relay.
func New(transport Transport, sink Sink, flag *runflag.Flag, cfg Config) *Relay {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Relay{
		transport: transport,
		sink:      sink,
		flag:      flag,
		config:    cfg,
		backoff:   NewBackoff(cfg.Backoff),
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("relay", transport.Addr()),
	}
}

// Sessions returns the number of peer sessions accepted so far.
func (r *Relay) Sessions() uint64 {
	return r.sessions.Load()
}

// Run accepts and serves peers until the flag stops or ctx is cancelled.
// It closes the transport on return. The only error returned is one that
// stopped the flag.
func (r *Relay) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("relay already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock Accept and Read once the session ends.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
		case <-r.flag.Done():
		}
		r.transport.Close()
		r.closeActive()
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	r.logger.Info("relay waiting for peers")

	for {
		if r.done(ctx) {
			return nil
		}

		conn, err := r.transport.Accept(ctx)
		if err != nil {
			if r.done(ctx) {
				return nil
			}
			delay := r.backoff.Next()
			r.logger.Warn("relay accept failed", "error", err, "retry_in", delay, "attempt", r.backoff.Attempts())
			if !r.wait(ctx, delay) {
				return nil
			}
			continue
		}

		if fatal := r.serve(ctx, conn); fatal != nil {
			return fatal
		}
		if r.done(ctx) {
			return nil
		}

		delay := r.backoff.Next()
		r.logger.Info("relay peer gone, accepting again", "retry_in", delay)
		if !r.wait(ctx, delay) {
			return nil
		}
	}
}

// serve reads from conn until the peer goes away. It returns a non-nil
// error only when the sink failed in a way that stopped the flag.
func (r *Relay) serve(ctx context.Context, conn Conn) (fatal error) {
	r.sessions.Add(1)
	r.setActive(conn)
	defer r.setActive(nil)
	defer conn.Close()

	// The stop goroutine may have looked for an active conn before this one
	// was registered.
	if r.done(ctx) {
		return nil
	}

	r.logger.Info("relay peer connected", "peer", conn.ID(), "remote", conn.RemoteAddr())
	if r.config.OnConnect != nil {
		r.config.OnConnect(conn)
	}

	var (
		err       error
		forwarded bool
		buf       = make([]byte, r.config.BufferSize)
	)
	for {
		var n int
		n, err = conn.Read(buf)
		if n > 0 {
			if !forwarded {
				forwarded = true
				r.backoff.Reset()
			}
			if ferr := r.sink.Forward(conn.ID(), buf[:n]); ferr != nil {
				if !r.flag.Running() {
					fatal, err = ferr, ferr
					break
				}
				r.logger.Debug("relay payload rejected", "peer", conn.ID(), "error", ferr)
			}
		}
		if err != nil {
			break
		}
		if !r.flag.Running() {
			break
		}
	}

	if dn, ok := r.sink.(DisconnectNotifier); ok {
		dn.Disconnected(conn.ID())
	}
	r.logger.Info("relay peer disconnected", "peer", conn.ID(), "reason", err)
	if r.config.OnDisconnect != nil {
		r.config.OnDisconnect(conn, err)
	}
	return fatal
}

func (r *Relay) done(ctx context.Context) bool {
	return ctx.Err() != nil || !r.flag.Running()
}

func (r *Relay) wait(ctx context.Context, d time.Duration) bool {
	timer := r.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-r.flag.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (r *Relay) setActive(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = c
}

func (r *Relay) closeActive() {
	r.mu.Lock()
	c := r.active
	r.mu.Unlock()

	if c != nil {
		c.Close()
	}
}
