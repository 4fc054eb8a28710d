// Package relay forwards bytes from a remote peer into a pwmlink session.
//
// The reference setup pairs a phone or laptop with the Raspberry Pi over
// Bluetooth (an rfcomm serial device); a TCP listener serves the same role
// on a network. A Relay accepts one peer at a time, reads whatever it sends
// and hands each chunk to its Sink. What the bytes mean is up to the sink.
//
// Peers coming and going is normal. When a peer disconnects, or accepting
// fails, the relay waits a short backoff and accepts again, indefinitely,
// until the session's run flag stops or its context is cancelled. Only an
// error that stopped the flag (a failed device write in the sink) ends Run.
package relay
