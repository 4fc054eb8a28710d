// Package keyboard turns operator key presses into setpoint commands.
//
// Two sources are provided. Decoder reads single bytes from any io.Reader
// (a raw terminal, an SSH session) and blocks until a key arrives.
// TerminalSource listens on the local terminal through readline and delivers
// keys as they are typed, without waiting for Enter.
//
// Both translate runes through a Keymap. DefaultKeymap:
//
//	w W  up arrow      increase
//	s S  down arrow    decrease
//	space              stop (back to neutral)
//	q Q  Ctrl-C Ctrl-D quit
//
// Arrow keys are represented by readline's CharPrev and CharNext runes, so
// one Keymap serves both sources. Anything not in the map is KeyNone and is
// ignored by the supervisor.
package keyboard
