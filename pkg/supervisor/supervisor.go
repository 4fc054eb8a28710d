package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/pwmlink/pwmlink-go/pkg/device"
	"github.com/pwmlink/pwmlink-go/pkg/keyboard"
	"github.com/pwmlink/pwmlink-go/pkg/log"
	"github.com/pwmlink/pwmlink-go/pkg/runflag"
	"github.com/pwmlink/pwmlink-go/pkg/setpoint"
)

// DefaultHeartbeatWait bounds how long Shutdown waits for the heartbeat to
// exit before the final neutral write.
const DefaultHeartbeatWait = time.Second

// Errors returned by the supervisor.
var (
	ErrStopped = errors.New("session stopped")
	ErrLog     = errors.New("command log append failed")
)

// Change describes a setpoint change, for status output.
type Change struct {
	Tag    log.Tag
	Value  int
	Source log.Source
	PeerID string
}

// Heartbeat is the part of heartbeat.Transmitter Shutdown waits on.
type Heartbeat interface {
	Done() <-chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock replaces the wall clock used for event timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(s *Supervisor) { s.sessionID = id }
}

// WithRelayMode selects how Forward interprets relay payloads.
func WithRelayMode(m RelayMode) Option {
	return func(s *Supervisor) { s.relayMode = m }
}

// WithKeymap sets the keymap used for keys-mode relay payloads.
func WithKeymap(km keyboard.Keymap) Option {
	return func(s *Supervisor) { s.keymap = km }
}

// WithHeartbeatWait overrides DefaultHeartbeatWait.
func WithHeartbeatWait(d time.Duration) Option {
	return func(s *Supervisor) { s.heartbeatWait = d }
}

// Supervisor owns the event path and the shutdown sequence of a session.
type Supervisor struct {
	store   *setpoint.Store
	channel device.Channel
	sink    log.Logger
	flag    *runflag.Flag

	clock         clock.Clock
	logger        *slog.Logger
	sessionID     string
	relayMode     RelayMode
	keymap        keyboard.Keymap
	heartbeatWait time.Duration
	start         time.Time

	// eventMu serializes mutate, send and log.
	eventMu sync.Mutex
	// peerBuf holds partial setpoint-mode lines per relay peer.
	peerBuf map[string][]byte
	// rawOpen is set while raw relay bytes end mid-line on the device.
	rawOpen bool

	mu        sync.Mutex
	heartbeat Heartbeat
	onChange  func(Change)

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Supervisor. sink may be nil to disable command logging.
func New(store *setpoint.Store, channel device.Channel, sink log.Logger, flag *runflag.Flag, opts ...Option) *Supervisor {
	if sink == nil {
		sink = log.NoopLogger{}
	}

	s := &Supervisor{
		store:         store,
		channel:       channel,
		sink:          sink,
		flag:          flag,
		clock:         clock.New(),
		logger:        slog.Default(),
		relayMode:     RelayRaw,
		keymap:        keyboard.DefaultKeymap(),
		heartbeatWait: DefaultHeartbeatWait,
		peerBuf:       make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessionID == "" {
		s.sessionID = uuid.NewString()
	}
	s.start = s.clock.Now()
	return s
}

// SessionID returns the session identifier written to every event.
func (s *Supervisor) SessionID() string {
	return s.sessionID
}

// Flag returns the session run flag.
func (s *Supervisor) Flag() *runflag.Flag {
	return s.flag
}

// Value returns the current setpoint.
func (s *Supervisor) Value() int {
	return s.store.Read()
}

// RelayMode returns the configured relay mode.
func (s *Supervisor) RelayMode() RelayMode {
	return s.relayMode
}

// AttachHeartbeat registers the heartbeat Shutdown waits for.
func (s *Supervisor) AttachHeartbeat(hb Heartbeat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeat = hb
}

// OnChange sets a callback invoked after every logged change.
func (s *Supervisor) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Start writes the neutral value and records START.
func (s *Supervisor) Start() error {
	return s.apply(log.TagStart, log.SourceSystem, "", s.store.Reset)
}

// HandleKey applies a local key press.
func (s *Supervisor) HandleKey(key keyboard.Key) error {
	return s.handleKey(key, log.SourceLocal, "")
}

func (s *Supervisor) handleKey(key keyboard.Key, source log.Source, peerID string) error {
	switch key {
	case keyboard.KeyIncrease:
		return s.apply(log.TagUp, source, peerID, s.store.Increase)
	case keyboard.KeyDecrease:
		return s.apply(log.TagDown, source, peerID, s.store.Decrease)
	case keyboard.KeyStop:
		return s.apply(log.TagStop, source, peerID, s.store.Reset)
	case keyboard.KeyQuit:
		if source != log.SourceLocal {
			s.logger.Debug("ignoring quit from relay peer", "peer", peerID)
			return nil
		}
		if s.flag.Stop(runflag.ErrQuit) {
			s.logger.Info("quit requested")
		}
		return nil
	default:
		return nil
	}
}

// apply runs one mutate, send, log cycle.
func (s *Supervisor) apply(tag log.Tag, source log.Source, peerID string, mutate func() int) error {
	s.eventMu.Lock()

	if !s.flag.Running() {
		s.eventMu.Unlock()
		return ErrStopped
	}

	value := mutate()
	if err := s.channel.Send(value); err != nil {
		s.eventMu.Unlock()
		err = fmt.Errorf("send %s %d: %w", tag, value, err)
		s.flag.Stop(err)
		s.logger.Error("device write failed", "error", err)
		return err
	}

	logErr := s.sink.Log(s.event(tag, value, source, peerID))
	s.eventMu.Unlock()

	if logErr != nil {
		s.logger.Warn("command log append failed", "tag", tag.String(), "value", value, "error", logErr)
		logErr = fmt.Errorf("%w: %v", ErrLog, logErr)
	}
	s.notify(Change{Tag: tag, Value: value, Source: source, PeerID: peerID})
	return logErr
}

func (s *Supervisor) event(tag log.Tag, value int, source log.Source, peerID string) log.Event {
	now := s.clock.Now()
	return log.Event{
		Timestamp: now,
		Elapsed:   now.Sub(s.start),
		SessionID: s.sessionID,
		Value:     value,
		Tag:       tag,
		Source:    source,
		PeerID:    peerID,
	}
}

func (s *Supervisor) notify(c Change) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(c)
	}
}

// Shutdown ends the session and leaves the actuator at neutral. Only the
// first call has any effect; later calls return the first result.
func (s *Supervisor) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown()
	})
	return s.shutdownErr
}

func (s *Supervisor) shutdown() error {
	var errs error
	step := func(name string, fn func() error) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%s: panic: %v", name, r)
				s.logger.Error("shutdown step failed", "step", name, "error", err)
				errs = multierr.Append(errs, err)
			}
		}()
		if err := fn(); err != nil {
			s.logger.Error("shutdown step failed", "step", name, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("stop", func() error {
		s.flag.Stop(runflag.ErrShutdown)
		s.logger.Info("shutting down", "reason", s.flag.Reason())
		return nil
	})

	// An event already past its flag check finishes before the reset.
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	neutral := s.store.Limits().Neutral
	step("neutral write", func() error {
		neutral = s.store.Reset()
		s.waitHeartbeat()
		if err := s.closeRawLine(); err != nil {
			return err
		}
		return s.channel.Send(neutral)
	})

	step("exit record", func() error {
		return s.sink.Log(s.event(log.TagExit, neutral, log.SourceSystem, ""))
	})

	step("close device", s.channel.Close)

	step("close log", func() error {
		if c, ok := s.sink.(io.Closer); ok {
			return c.Close()
		}
		return nil
	})

	s.notify(Change{Tag: log.TagExit, Value: neutral, Source: log.SourceSystem})
	return errs
}

func (s *Supervisor) waitHeartbeat() {
	s.mu.Lock()
	hb := s.heartbeat
	s.mu.Unlock()

	if hb == nil {
		return
	}

	timer := s.clock.Timer(s.heartbeatWait)
	defer timer.Stop()
	select {
	case <-hb.Done():
	case <-timer.C:
		s.logger.Warn("heartbeat did not stop in time", "wait", s.heartbeatWait)
	}
}
