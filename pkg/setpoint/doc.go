// Package setpoint holds the actuator command value shared by every task of
// a pwmlink session.
//
// A Store owns one bounded integer (a PWM pulse width in microseconds for
// the ESC controllers pwmlink drives). Every write path clamps into
// [Min, Max] before storing, and every read and write is serialized by the
// store's mutex, so a reader never observes a value outside the limits.
//
// # Limits
//
//	Min      lowest value ever stored or transmitted
//	Max      highest value ever stored or transmitted
//	Neutral  failsafe value used at startup, on STOP and on shutdown
//	Step     granularity of Increase / Decrease
//
// Callers that log or display a value must use the value returned by the
// write method, not their candidate, so records reflect what was stored.
package setpoint
