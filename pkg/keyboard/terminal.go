package keyboard

import (
	"errors"
	"io"
	"sync"

	"github.com/chzyer/readline"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("key source closed")

// TerminalSource listens for key presses on the local terminal. Each rune
// is intercepted before readline buffers it, so keys act immediately.
type TerminalSource struct {
	rl     *readline.Instance
	keymap Keymap

	keys chan Key
	errc chan error

	closeOnce sync.Once
	done      chan struct{}
}

// NewTerminalSource starts listening on stdin.
func NewTerminalSource(keymap Keymap, prompt string) (*TerminalSource, error) {
	s := newTerminalSource(keymap)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:              prompt,
		FuncFilterInputRune: s.filter,
	})
	if err != nil {
		return nil, err
	}
	s.rl = rl

	go s.loop()
	return s, nil
}

func newTerminalSource(keymap Keymap) *TerminalSource {
	return &TerminalSource{
		keymap: keymap,
		keys:   make(chan Key, 32),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// filter receives every rune readline reads. Nothing is passed on to the
// line buffer.
func (s *TerminalSource) filter(r rune) (rune, bool) {
	key := s.keymap.Lookup(r)
	if key == KeyNone {
		return r, false
	}

	select {
	case s.keys <- key:
	case <-s.done:
	default:
		// Operator is typing faster than the supervisor drains; drop.
	}
	return r, false
}

// loop keeps readline reading. Readline only returns on EOF, interrupt or
// Close, since the filter swallows every rune.
func (s *TerminalSource) loop() {
	for {
		_, err := s.rl.Readline()
		if err == nil || errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			err = io.EOF
		}
		select {
		case s.errc <- err:
		default:
		}
		return
	}
}

// Next blocks until a key is pressed or the terminal closes.
func (s *TerminalSource) Next() (Key, error) {
	select {
	case k := <-s.keys:
		return k, nil
	default:
	}

	select {
	case k := <-s.keys:
		return k, nil
	case err := <-s.errc:
		return KeyNone, err
	case <-s.done:
		return KeyNone, ErrClosed
	}
}

// Stdout returns a writer that prints above the prompt.
func (s *TerminalSource) Stdout() io.Writer {
	if s.rl == nil {
		return io.Discard
	}
	return s.rl.Stdout()
}

// Close stops listening and restores the terminal.
func (s *TerminalSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.rl != nil {
			err = s.rl.Close()
		}
	})
	return err
}

var _ Source = (*TerminalSource)(nil)
