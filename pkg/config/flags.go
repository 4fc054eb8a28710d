package config

import (
	"time"
)

// Flags are the command line overrides. Every field is optional; only values
// that were set (on the command line or through the environment) replace
// the file and default values.
type Flags struct {
	Config string `short:"c" long:"config" env:"PWMLINK_CONFIG" description:"YAML configuration file"`

	Device      string        `short:"d" long:"device" env:"PWMLINK_DEVICE" description:"Actuator serial device, or sim:// for the built-in simulator"`
	Baud        int           `short:"b" long:"baud" env:"PWMLINK_BAUD" description:"Actuator baud rate"`
	ReadTimeout time.Duration `long:"read-timeout" env:"PWMLINK_READ_TIMEOUT" description:"Device read timeout"`
	ResetDelay  time.Duration `long:"reset-delay" env:"PWMLINK_RESET_DELAY" description:"Wait after opening the device while the controller reboots"`

	Profile string  `short:"p" long:"profile" env:"PWMLINK_PROFILE" choice:"surface" choice:"rc-plane" description:"Setpoint profile"`
	Min     int     `long:"min" description:"Override the profile's minimum"`
	Max     int     `long:"max" description:"Override the profile's maximum"`
	Neutral int     `long:"neutral" description:"Override the profile's neutral value"`
	Step    int     `long:"step" description:"Override the profile's step"`
	Rate    float64 `short:"r" long:"rate" env:"PWMLINK_RATE" description:"Heartbeat rate in Hz"`

	Bind    []string `long:"bind" description:"Extra key binding, e.g. increase=k,up (repeatable)"`
	RawKeys bool     `long:"raw-keys" env:"PWMLINK_RAW_KEYS" description:"Read keys from stdin in raw mode (SSH sessions) instead of readline"`

	CSV       string `long:"csv" env:"PWMLINK_CSV" description:"CSV command log path"`
	BinaryLog string `long:"binary-log" env:"PWMLINK_BINARY_LOG" description:"Binary command log path (.plog)"`
	LogLevel  string `short:"l" long:"log-level" env:"PWMLINK_LOG_LEVEL" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Operational log level"`
	LogFile   string `long:"log-file" env:"PWMLINK_LOG_FILE" description:"Also write the operational log to this rotated file"`

	RelayTransport string `long:"relay" env:"PWMLINK_RELAY" choice:"none" choice:"tcp" choice:"serial" description:"Relay input transport"`
	RelayListen    string `long:"relay-listen" env:"PWMLINK_RELAY_LISTEN" description:"TCP relay listen address"`
	RelayPath      string `long:"relay-path" env:"PWMLINK_RELAY_PATH" description:"Serial relay device, e.g. /dev/rfcomm0"`
	RelayMode      string `long:"relay-mode" env:"PWMLINK_RELAY_MODE" choice:"raw" choice:"setpoint" choice:"keys" description:"How relay bytes are interpreted"`
	Advertise      bool   `long:"advertise" env:"PWMLINK_ADVERTISE" description:"Advertise the TCP relay over mDNS"`
}

// Apply overlays the flags that were set onto c.
func (f *Flags) Apply(c *Config) {
	setString(&c.Device.Path, f.Device)
	setInt(&c.Device.BaudRate, f.Baud)
	setDuration(&c.Device.ReadTimeout, f.ReadTimeout)
	setDuration(&c.Device.ResetDelay, f.ResetDelay)

	setString(&c.Profile, f.Profile)
	setInt(&c.Limits.Min, f.Min)
	setInt(&c.Limits.Max, f.Max)
	setInt(&c.Limits.Neutral, f.Neutral)
	setInt(&c.Limits.Step, f.Step)
	if f.Rate != 0 {
		c.Heartbeat.Rate = f.Rate
	}

	c.Keys.Bind = append(c.Keys.Bind, f.Bind...)
	if f.RawKeys {
		c.Keys.Raw = true
	}

	setString(&c.Log.CSV, f.CSV)
	setString(&c.Log.Binary, f.BinaryLog)
	setString(&c.Log.Level, f.LogLevel)
	setString(&c.Log.File, f.LogFile)

	setString(&c.Relay.Transport, f.RelayTransport)
	setString(&c.Relay.Listen, f.RelayListen)
	setString(&c.Relay.Path, f.RelayPath)
	setString(&c.Relay.Mode, f.RelayMode)
	if f.Advertise {
		c.Relay.Advertise = true
	}
}

// Resolve returns the defaults overlaid with the file named by f.Config and
// then with f. The result is not validated.
func (f *Flags) Resolve() (*Config, error) {
	cfg, err := Load(f.Config)
	if err != nil {
		return nil, err
	}
	f.Apply(cfg)
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
