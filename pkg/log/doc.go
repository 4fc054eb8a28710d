// Package log records setpoint command events for pwmlink.
//
// Every setpoint change made by an input source (and the session START and
// EXIT markers) becomes one Event. Periodic heartbeat re-sends are never
// recorded. This is separate from operational logging (slog): the command
// log is the durable, machine-readable trace of what the actuator was told.
//
// # Basic Usage
//
//	// The CSV record read by plotting scripts
//	csvLog, _ := log.NewCSVLogger("pwm_log.csv")
//
//	// Binary record for pwmlink-log
//	binLog, _ := log.NewFileLogger("session.plog")
//
//	// Both, plus a debug mirror on the console
//	sink := log.NewMultiLogger(csvLog, binLog, log.NewSlogAdapter(slog.Default()))
//
// # CSV Format
//
// One header line followed by one row per event:
//
//	t_s,pwm,event
//	0.000000,1500,START
//	1.204311,1525,UP
//
// t_s is seconds since the session started with six decimals. Each row is
// flushed and synced to disk before Log returns. The file is truncated when
// a session opens it.
//
// # Binary Format
//
// Binary logs are a stream of CBOR-encoded Events with integer keys
// (.plog extension). Sessions append to the same file and are told apart by
// SessionID. The pwmlink-log CLI views, filters and exports them.
package log
