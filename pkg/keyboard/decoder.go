package keyboard

import (
	"bufio"
	"io"
	"unicode/utf8"

	"golang.org/x/term"
)

// Decoder reads keys from a byte stream.
type Decoder struct {
	r      *bufio.Reader
	closer io.Closer
	keymap Keymap
}

// NewDecoder creates a Decoder over r. If r is an io.Closer, Close closes it.
func NewDecoder(r io.Reader, keymap Keymap) *Decoder {
	d := &Decoder{
		r:      bufio.NewReaderSize(r, 16),
		keymap: keymap,
	}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	return d
}

// Next returns the next key. ESC [ A and ESC [ B decode to the arrow runes.
// An ESC that does not start a CSI sequence is a key of its own; other CSI
// sequences decode to KeyNone.
func (d *Decoder) Next() (Key, error) {
	r, err := d.readRune()
	if err != nil {
		return KeyNone, err
	}
	return d.keymap.Lookup(r), nil
}

func (d *Decoder) readRune() (rune, error) {
	r, _, err := d.r.ReadRune()
	if err != nil || r != RuneEscape {
		return r, err
	}

	// A terminal sends a sequence in one write; nothing buffered means the
	// operator pressed ESC alone.
	if d.r.Buffered() == 0 {
		return RuneEscape, nil
	}
	next, _, err := d.r.ReadRune()
	if err != nil {
		return RuneEscape, nil
	}
	if next != '[' {
		// Not a CSI sequence; leave the byte for the next call.
		_ = d.r.UnreadRune()
		return RuneEscape, nil
	}

	if d.r.Buffered() == 0 {
		return utf8.RuneError, nil
	}
	final, _, err := d.r.ReadRune()
	if err != nil {
		return utf8.RuneError, nil
	}
	switch final {
	case 'A':
		return RuneUp, nil
	case 'B':
		return RuneDown, nil
	default:
		return utf8.RuneError, nil
	}
}

// Close closes the underlying reader when it supports closing.
func (d *Decoder) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

var _ Source = (*Decoder)(nil)

// MakeRaw puts the terminal on fd into raw mode so single key presses reach
// a Decoder without waiting for Enter. The returned func restores the
// previous state.
func MakeRaw(fd int) (restore func() error, err error) {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() error { return term.Restore(fd, state) }, nil
}

// IsTerminal reports whether fd is a terminal.
func IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}
