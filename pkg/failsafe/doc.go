// Package failsafe implements the command watchdog of a motor controller.
//
// A controller that stops hearing from its host must not keep driving the
// motors at the last commanded value. The Watchdog is fed on every received
// command and trips when no command arrives within its timeout; the owner
// then forces the outputs to neutral until commands resume.
//
// # States
//
//	IDLE      no command received yet, or watchdog stopped
//	ARMED     commands arriving, timer running
//	FAILSAFE  timeout elapsed; outputs held at neutral
//
// A Feed in IDLE or FAILSAFE arms the watchdog again.
//
// # Timeout
//
// Configurable range: 10 ms to 10 s (default: 250 ms). The host must send at
// a rate comfortably faster than the timeout; pwmlink's 30 Hz heartbeat
// leaves room for several lost commands at the default.
package failsafe
