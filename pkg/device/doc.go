// Package device implements the byte channel to the motor controller.
//
// The controller (an ESP32 driving ESCs in the reference hardware) listens on
// a serial line for ASCII decimal integers terminated by a newline:
//
//	1500\n
//	1525\n
//
// There is no acknowledgement. The controller has its own failsafe: if no
// command arrives within its timeout it reverts the outputs to neutral, which
// is why callers keep re-sending the current value.
//
// Opening the port resets most ESP32 boards. Dial waits Options.ResetDelay
// after opening and then discards anything buffered in either direction
// before the first command is written.
//
// Writes are serialized by the channel, so the heartbeat goroutine, the
// event handler and the shutdown path may share one SerialChannel. The
// controller may print diagnostic lines back; ReadLines surfaces them.
package device
