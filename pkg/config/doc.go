// Package config holds the pwmlink runtime configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// command line flags (each with an environment variable fallback). Validate
// checks the result; the configuration is not changed once a session starts.
//
// Example file:
//
//	device:
//	  path: /dev/ttyACM0
//	  reset_delay: 2s
//	profile: surface
//	limits:
//	  step: 50
//	heartbeat:
//	  rate: 30
//	log:
//	  csv: pwm_log.csv
//	  binary: pwm_log.plog
//	relay:
//	  transport: tcp
//	  listen: ":7420"
//	  mode: setpoint
//	  advertise: true
package config
