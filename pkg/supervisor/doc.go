// Package supervisor coordinates a pwmlink session.
//
// A Supervisor ties the shared setpoint, the device channel, the command log
// and the run flag together. Input sources call into it; the heartbeat runs
// beside it; Shutdown ends the session.
//
// # Events
//
// Every setpoint change goes through one path, under the supervisor's event
// mutex:
//
//  1. mutate the store (the store clamps)
//  2. send the stored value to the device immediately
//  3. append a command event carrying the stored value
//
// Holding one mutex across the three steps keeps the log in the same order
// as the mutations when local keys and a relay peer act at the same time.
// A failed send stops the run flag and nothing is logged for that event.
// Once the flag is stopped no further mutation is accepted, so nothing can
// overwrite the neutral value written by Shutdown.
//
// # Local keys
//
//	increase  value + step   UP
//	decrease  value - step   DOWN
//	stop      neutral        STOP
//	quit      end session    (EXIT is written by Shutdown)
//
// # Relay modes
//
//	raw       payload bytes are written to the device unchanged, not logged
//	setpoint  newline-delimited integers are clamped, sent and logged (RELAY)
//	keys      each byte is a key press; quit from a peer is ignored
//
// # Shutdown
//
// Shutdown stops the flag, resets the store to neutral, waits briefly for
// the heartbeat to exit, writes neutral one final time, appends EXIT and
// releases the device and the log. Each step runs even if an earlier one
// failed. Only the first call does any work.
package supervisor
