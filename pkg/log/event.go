package log

import (
	"fmt"
	"strings"
	"time"
)

// Event is one recorded setpoint change.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp is the wall clock time of the change.
	Timestamp time.Time `cbor:"1,keyasint"`

	// Elapsed is the time since the session started.
	Elapsed time.Duration `cbor:"2,keyasint"`

	// SessionID identifies the pwmlink run (UUID).
	SessionID string `cbor:"3,keyasint"`

	// Value is the setpoint after clamping.
	Value int `cbor:"4,keyasint"`

	// Tag names the transition.
	Tag Tag `cbor:"5,keyasint"`

	// Source is the input that caused the change.
	Source Source `cbor:"6,keyasint"`

	// PeerID identifies the relay peer for relay-driven changes.
	PeerID string `cbor:"7,keyasint,omitempty"`
}

// Tag names a setpoint transition.
type Tag uint8

const (
	// TagStart marks the initial neutral command of a session.
	TagStart Tag = 0
	// TagUp is a one-step increase.
	TagUp Tag = 1
	// TagDown is a one-step decrease.
	TagDown Tag = 2
	// TagStop is a reset to neutral requested by the operator.
	TagStop Tag = 3
	// TagExit is the neutral command written at shutdown.
	TagExit Tag = 4
	// TagRelay is an absolute value received from a relay peer.
	TagRelay Tag = 5
)

var tagNames = [...]string{
	TagStart: "START",
	TagUp:    "UP",
	TagDown:  "DOWN",
	TagStop:  "STOP",
	TagExit:  "EXIT",
	TagRelay: "RELAY",
}

// String returns the tag name as written to the CSV log.
func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "UNKNOWN"
}

// ParseTag parses a tag name, case-insensitively.
func ParseTag(s string) (Tag, error) {
	for i, name := range tagNames {
		if strings.EqualFold(s, name) {
			return Tag(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event tag %q", s)
}

// Source identifies what produced an event.
type Source uint8

const (
	// SourceSystem is the supervisor itself (START, EXIT).
	SourceSystem Source = 0
	// SourceLocal is the local keyboard.
	SourceLocal Source = 1
	// SourceRelay is a relay peer.
	SourceRelay Source = 2
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceSystem:
		return "SYSTEM"
	case SourceLocal:
		return "LOCAL"
	case SourceRelay:
		return "RELAY"
	default:
		return "UNKNOWN"
	}
}

// ParseSource parses a source name, case-insensitively.
func ParseSource(s string) (Source, error) {
	switch strings.ToUpper(s) {
	case "SYSTEM":
		return SourceSystem, nil
	case "LOCAL":
		return SourceLocal, nil
	case "RELAY":
		return SourceRelay, nil
	default:
		return 0, fmt.Errorf("unknown event source %q", s)
	}
}
