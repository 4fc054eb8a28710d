// Command pwmlink drives a PWM motor controller over a serial link.
//
// It keeps a setpoint, sends it to the controller at a fixed rate so the
// controller's failsafe never trips, changes it on key presses or relay
// input, logs every change and always leaves the motor at neutral on exit.
//
// Usage:
//
//	pwmlink [global flags] <command> [flags]
//
// Commands:
//
//	control  Drive the motor from the keyboard (and optionally a relay peer)
//	bridge   Forward a remote peer's bytes to the motor controller
//	config   Print the effective configuration
//	discover List relays advertised on the local network
//
// Keys (control):
//
//	w / up arrow     increase by one step
//	s / down arrow   decrease by one step
//	space            stop (back to neutral)
//	q / Ctrl-C       quit
//	Esc              quit (with --raw-keys or when stdin is not a terminal)
//
// Examples:
//
//	# Drive a boat ESC on the default port
//	pwmlink control
//
//	# Try it without hardware
//	pwmlink --device sim:// --log-level debug control
//
//	# Accept setpoints from the network and advertise the relay
//	pwmlink --relay tcp --relay-mode setpoint --advertise bridge
//
//	# Classic Bluetooth bridge: forward rfcomm bytes verbatim
//	pwmlink --relay serial --relay-path /dev/rfcomm0 bridge
//
//	# Find advertised relays
//	pwmlink discover --timeout 3s
//
// Exit status is 0 after a clean quit or signal, 1 when the configuration is
// invalid or the device cannot be opened, and 2 when the session ended on a
// device or input failure.
package main

import (
	"errors"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/pwmlink/pwmlink-go/pkg/config"
	"github.com/pwmlink/pwmlink-go/pkg/discovery"
)

// Exit codes.
const (
	exitOK      = 0
	exitSetup   = 1
	exitSession = 2
)

// options are the global flags shared by every command.
type options struct {
	config.Flags
}

// exitError carries a process exit code through go-flags.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func setupError(err error) error   { return &exitError{code: exitSetup, err: err} }
func sessionError(err error) error { return &exitError{code: exitSession, err: err} }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	parser := newParser(&opts)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return exitOK
		}
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		return exitSetup
	}
	return exitOK
}

func newParser(opts *options) *flags.Parser {
	parser := flags.NewParser(opts, flags.Default)
	parser.ShortDescription = "serial PWM setpoint supervisor"

	mustAdd(parser.AddCommand("control",
		"Drive the motor from the keyboard",
		"Runs the heartbeat and reads keys from the terminal: w/up increases, s/down decreases, space stops, q quits. "+
			"A relay in setpoint or keys mode may feed the same session.",
		&controlCommand{opts: opts}))

	mustAdd(parser.AddCommand("bridge",
		"Forward a relay peer to the motor controller",
		"Accepts one peer at a time on the configured relay transport. In raw mode the peer's bytes go to the "+
			"controller unchanged and the peer is responsible for the command stream; in setpoint or keys mode "+
			"the heartbeat runs as in control.",
		&bridgeCommand{opts: opts}))

	mustAdd(parser.AddCommand("config",
		"Print the effective configuration",
		"Prints the configuration after applying the file, the environment and the flags, then validates it.",
		&configCommand{opts: opts}))

	mustAdd(parser.AddCommand("discover",
		"List relays advertised on the local network",
		"Browses mDNS for "+discovery.ServiceType+" services and lists those speaking a compatible relay protocol version.",
		&discoverCommand{}))

	return parser
}

func mustAdd(_ *flags.Command, err error) {
	if err != nil {
		panic(err)
	}
}
