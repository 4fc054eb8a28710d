package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pwmlink/pwmlink-go/pkg/keyboard"
	"github.com/pwmlink/pwmlink-go/pkg/log"
	"github.com/pwmlink/pwmlink-go/pkg/runflag"
)

// RelayMode selects how relay payloads are interpreted.
type RelayMode string

const (
	// RelayRaw forwards payload bytes to the device unchanged.
	RelayRaw RelayMode = "raw"
	// RelaySetpoint parses newline-delimited integers as absolute setpoints.
	RelaySetpoint RelayMode = "setpoint"
	// RelayKeys interprets each byte as a key press.
	RelayKeys RelayMode = "keys"
)

// ParseRelayMode parses a relay mode name.
func ParseRelayMode(s string) (RelayMode, error) {
	switch m := RelayMode(strings.ToLower(s)); m {
	case RelayRaw, RelaySetpoint, RelayKeys:
		return m, nil
	case "":
		return RelayRaw, nil
	default:
		return "", fmt.Errorf("unknown relay mode %q (want raw, setpoint or keys)", s)
	}
}

// OwnsSetpoint reports whether the supervisor's store drives the device in
// this mode. In raw mode the peer owns the command stream.
func (m RelayMode) OwnsSetpoint() bool {
	return m != RelayRaw
}

// maxLine bounds a buffered setpoint-mode line.
const maxLine = 64

// RunKeys dispatches keys from src until quit, an input error, a stopped
// flag or ctx cancellation. Cancellation is treated as a termination signal.
// The caller closes src afterwards to release the pump goroutine.
func (s *Supervisor) RunKeys(ctx context.Context, src keyboard.Source) error {
	keys := make(chan keyboard.Key)
	errc := make(chan error, 1)

	go func() {
		for {
			k, err := src.Next()
			if err != nil {
				errc <- err
				return
			}
			select {
			case keys <- k:
			case <-s.flag.Done():
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.flag.Stop(runflag.ErrSignal)
			return nil

		case <-s.flag.Done():
			return nil

		case err := <-errc:
			if !s.flag.Running() {
				return nil
			}
			err = fmt.Errorf("key input: %w", err)
			s.flag.Stop(err)
			return err

		case k := <-keys:
			if err := s.HandleKey(k); err != nil && !errors.Is(err, ErrLog) {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				return err
			}
		}
	}
}

// Forward handles a payload received from relay peer peerID. A non-nil
// error that leaves the flag running is recoverable for the relay.
func (s *Supervisor) Forward(peerID string, payload []byte) error {
	switch s.relayMode {
	case RelaySetpoint:
		return s.forwardSetpoints(peerID, payload)
	case RelayKeys:
		return s.forwardKeys(peerID, payload)
	default:
		return s.forwardRaw(payload)
	}
}

// Disconnected drops buffered input of a peer that went away. In raw mode a
// line the peer left unfinished is cancelled so the controller discards it.
func (s *Supervisor) Disconnected(peerID string) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	delete(s.peerBuf, peerID)

	if !s.flag.Running() {
		return
	}
	if err := s.closeRawLine(); err != nil {
		err = fmt.Errorf("relay write: %w", err)
		s.flag.Stop(err)
		s.logger.Error("device write failed", "error", err)
	}
}

// cancelLine ends a partial command line so it no longer parses as a number.
// ASCII CAN is never part of a command.
var cancelLine = []byte{0x18, '\n'}

// closeRawLine terminates a partial raw line. Callers hold eventMu.
func (s *Supervisor) closeRawLine() error {
	if !s.rawOpen {
		return nil
	}
	if _, err := s.channel.Write(cancelLine); err != nil {
		return err
	}
	s.rawOpen = false
	return nil
}

func (s *Supervisor) forwardRaw(payload []byte) error {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	if !s.flag.Running() {
		return ErrStopped
	}
	if _, err := s.channel.Write(payload); err != nil {
		err = fmt.Errorf("relay write: %w", err)
		s.flag.Stop(err)
		s.logger.Error("device write failed", "error", err)
		return err
	}
	if len(payload) > 0 {
		s.rawOpen = payload[len(payload)-1] != '\n'
	}
	return nil
}

func (s *Supervisor) forwardSetpoints(peerID string, payload []byte) error {
	s.eventMu.Lock()
	buf := append(s.peerBuf[peerID], payload...)
	var lines [][]byte
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, bytes.TrimSpace(buf[:i]))
		buf = buf[i+1:]
	}
	if len(buf) > maxLine {
		s.logger.Debug("dropping oversized relay line", "peer", peerID, "len", len(buf))
		buf = nil
	}
	s.peerBuf[peerID] = append([]byte(nil), buf...)
	s.eventMu.Unlock()

	var logErr error
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		v, err := strconv.Atoi(string(line))
		if err != nil {
			s.logger.Debug("dropping unparsable relay line", "peer", peerID, "line", string(line))
			continue
		}
		err = s.apply(log.TagRelay, log.SourceRelay, peerID, func() int {
			return s.store.Write(v)
		})
		if errors.Is(err, ErrLog) {
			logErr = err
			continue
		}
		if err != nil {
			return err
		}
	}
	return logErr
}

func (s *Supervisor) forwardKeys(peerID string, payload []byte) error {
	var logErr error
	for _, b := range payload {
		err := s.handleKey(s.keymap.Lookup(rune(b)), log.SourceRelay, peerID)
		if errors.Is(err, ErrLog) {
			logErr = err
			continue
		}
		if err != nil {
			return err
		}
	}
	return logErr
}
