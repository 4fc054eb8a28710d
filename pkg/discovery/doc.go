// Package discovery implements mDNS/DNS-SD discovery for pwmlink relays.
//
// A bridge that listens for relay peers on TCP advertises itself so that a
// phone or laptop on the same network can find it without knowing the
// Raspberry Pi's address.
//
// # Relay Discovery (_pwmlink._tcp)
//
// Instance name format: pwmlink-<host> (or a user-chosen name).
// TXT records:
//   - mode: how relay payloads are interpreted (raw, setpoint, keys)
//   - dev: the actuator's serial device path
//   - ver: relay protocol version ("major.minor")
//
// Browsers skip services whose ver has a different major version.
package discovery
