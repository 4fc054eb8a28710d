package keyboard

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
)

// Key is a decoded operator command.
type Key uint8

const (
	// KeyNone is an unmapped rune.
	KeyNone Key = iota
	// KeyIncrease raises the setpoint one step.
	KeyIncrease
	// KeyDecrease lowers the setpoint one step.
	KeyDecrease
	// KeyStop returns the setpoint to neutral.
	KeyStop
	// KeyQuit ends the session.
	KeyQuit
)

// String returns the key name.
func (k Key) String() string {
	switch k {
	case KeyNone:
		return "NONE"
	case KeyIncrease:
		return "INCREASE"
	case KeyDecrease:
		return "DECREASE"
	case KeyStop:
		return "STOP"
	case KeyQuit:
		return "QUIT"
	default:
		return "UNKNOWN"
	}
}

// Runes produced for the arrow keys and a lone ESC. Readline consumes ESC
// as a meta prefix, so only a Decoder ever produces RuneEscape.
const (
	RuneUp     = readline.CharPrev
	RuneDown   = readline.CharNext
	RuneEscape = 0x1b
)

// Keymap maps runes to keys.
type Keymap map[rune]Key

// DefaultKeymap returns the standard bindings.
func DefaultKeymap() Keymap {
	return Keymap{
		'w':                    KeyIncrease,
		'W':                    KeyIncrease,
		RuneUp:                 KeyIncrease,
		's':                    KeyDecrease,
		'S':                    KeyDecrease,
		RuneDown:               KeyDecrease,
		' ':                    KeyStop,
		'q':                    KeyQuit,
		'Q':                    KeyQuit,
		RuneEscape:             KeyQuit,
		readline.CharInterrupt: KeyQuit,
		readline.CharDelete:    KeyQuit,
	}
}

// Lookup returns the key bound to r, or KeyNone.
func (m Keymap) Lookup(r rune) Key {
	return m[r]
}

// Bind adds the keys of an entry such as "increase=w,k" to m.
func (m Keymap) Bind(binding string) error {
	name, runes, ok := strings.Cut(binding, "=")
	if !ok {
		return fmt.Errorf("key binding %q: want name=keys", binding)
	}

	var key Key
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "increase", "up":
		key = KeyIncrease
	case "decrease", "down":
		key = KeyDecrease
	case "stop":
		key = KeyStop
	case "quit":
		key = KeyQuit
	default:
		return fmt.Errorf("key binding %q: unknown action %q", binding, name)
	}

	for _, field := range strings.Split(runes, ",") {
		r, err := parseRune(field)
		if err != nil {
			return fmt.Errorf("key binding %q: %w", binding, err)
		}
		m[r] = key
	}
	return nil
}

func parseRune(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "space":
		return ' ', nil
	case "up":
		return RuneUp, nil
	case "down":
		return RuneDown, nil
	case "esc", "escape":
		return RuneEscape, nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("want a single character, got %q", s)
	}
	return r[0], nil
}

// Source delivers keys.
type Source interface {
	// Next blocks until a key is available. Unmapped input is returned as
	// KeyNone. Next returns an error once the input is exhausted or closed.
	Next() (Key, error)

	// Close releases the input and unblocks Next.
	Close() error
}
