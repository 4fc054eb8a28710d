package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/pwmlink/pwmlink-go/pkg/device"
	"github.com/pwmlink/pwmlink-go/pkg/heartbeat"
	"github.com/pwmlink/pwmlink-go/pkg/relay"
	"github.com/pwmlink/pwmlink-go/pkg/setpoint"
	"github.com/pwmlink/pwmlink-go/pkg/supervisor"
)

// SimulatedDevice selects the in-process simulator instead of a serial port.
const SimulatedDevice = "sim://"

// Relay transports.
const (
	TransportNone   = "none"
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

// Profile names.
const (
	ProfileSurface = "surface"
	ProfileRCPlane = "rc-plane"
)

// Profiles are the built-in setpoint ranges.
var Profiles = map[string]setpoint.Limits{
	// Boat or rover ESC with reverse: neutral in the middle.
	ProfileSurface: {Min: 1100, Max: 1900, Neutral: 1500, Step: 25},
	// Aircraft ESC: throttle starts at the bottom of the range.
	ProfileRCPlane: {Min: 1000, Max: 2000, Neutral: 1000, Step: 25},
}

// Errors.
var (
	ErrInvalid        = errors.New("invalid configuration")
	ErrUnknownProfile = errors.New("unknown profile")
	ErrRawControl     = errors.New("raw relay mode cannot share the device with the heartbeat")
)

// Config is the complete runtime configuration.
type Config struct {
	Device    DeviceConfig     `yaml:"device"`
	Profile   string           `yaml:"profile"`
	Limits    setpoint.Limits  `yaml:"limits"`
	Heartbeat heartbeat.Config `yaml:"heartbeat"`
	Keys      KeysConfig       `yaml:"keys"`
	Log       LogConfig        `yaml:"log"`
	Relay     RelayConfig      `yaml:"relay"`
	Simulator SimulatorConfig  `yaml:"simulator"`
}

// DeviceConfig holds the actuator's serial settings.
type DeviceConfig struct {
	Path        string        `yaml:"path"`
	BaudRate    int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	ResetDelay  time.Duration `yaml:"reset_delay"`
}

// KeysConfig holds local key input settings.
type KeysConfig struct {
	// Bind entries extend the default keymap, e.g. "increase=k,up".
	Bind []string `yaml:"bind"`

	// Raw reads stdin directly in raw mode instead of through readline.
	Raw bool `yaml:"raw"`
}

// LogConfig holds command log and operational log settings.
type LogConfig struct {
	CSV    string `yaml:"csv"`
	Binary string `yaml:"binary"`

	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// RelayConfig holds relay input settings.
type RelayConfig struct {
	Transport string              `yaml:"transport"`
	Listen    string              `yaml:"listen"`
	Path      string              `yaml:"path"`
	BaudRate  int                 `yaml:"baud"`
	Mode      string              `yaml:"mode"`
	Backoff   relay.BackoffConfig `yaml:"backoff"`
	Advertise bool                `yaml:"advertise"`
	Instance  string              `yaml:"instance"`
}

// SimulatorConfig configures the sim:// device.
type SimulatorConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Echo    bool          `yaml:"echo"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Path:        "/dev/ttyACM0",
			BaudRate:    device.DefaultBaudRate,
			ReadTimeout: device.DefaultReadTimeout,
			ResetDelay:  device.DefaultResetDelay,
		},
		Profile:   ProfileSurface,
		Heartbeat: heartbeat.Config{Rate: heartbeat.DefaultRate},
		Log: LogConfig{
			CSV:        "pwm_log.csv",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Relay: RelayConfig{
			Transport: TransportNone,
			Listen:    ":7420",
			Path:      "/dev/rfcomm0",
			BaudRate:  device.DefaultBaudRate,
			Mode:      string(supervisor.RelayRaw),
			Backoff: relay.BackoffConfig{
				Initial: relay.InitialBackoff,
				Max:     relay.MaxBackoff,
			},
		},
		Simulator: SimulatorConfig{
			Timeout: 250 * time.Millisecond,
			Echo:    true,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// decode overlays YAML onto c. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ProfileNames returns the built-in profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for name := range Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetpointLimits returns the profile's limits with every non-zero field of
// c.Limits applied over it.
func (c *Config) SetpointLimits() (setpoint.Limits, error) {
	limits, ok := Profiles[c.Profile]
	if !ok {
		return setpoint.Limits{}, fmt.Errorf("%w %q (want %s)", ErrUnknownProfile, c.Profile, strings.Join(ProfileNames(), ", "))
	}
	if c.Limits.Min != 0 {
		limits.Min = c.Limits.Min
	}
	if c.Limits.Max != 0 {
		limits.Max = c.Limits.Max
	}
	if c.Limits.Neutral != 0 {
		limits.Neutral = c.Limits.Neutral
	}
	if c.Limits.Step != 0 {
		limits.Step = c.Limits.Step
	}
	return limits, nil
}

// RelayMode returns the parsed relay mode.
func (c *Config) RelayMode() (supervisor.RelayMode, error) {
	return supervisor.ParseRelayMode(c.Relay.Mode)
}

// RelayEnabled reports whether a relay transport is configured.
func (c *Config) RelayEnabled() bool {
	return c.Relay.Transport != "" && c.Relay.Transport != TransportNone
}

// Simulated reports whether the device is the in-process simulator.
func (c *Config) Simulated() bool {
	return c.Device.Path == SimulatedDevice
}

// LogLevel returns the parsed operational log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, c.Log.Level)
	}
	return level, nil
}

// DeviceOptions returns the device.Dial options.
func (c *Config) DeviceOptions(logger *slog.Logger) device.Options {
	return device.Options{
		BaudRate:    c.Device.BaudRate,
		ReadTimeout: c.Device.ReadTimeout,
		ResetDelay:  c.Device.ResetDelay,
		Logger:      logger,
	}
}

// Validate checks the configuration as a whole.
func (c *Config) Validate() error {
	var errs []error

	if c.Device.Path == "" {
		errs = append(errs, fmt.Errorf("%w: device path is required", ErrInvalid))
	}
	if c.Device.BaudRate < 0 {
		errs = append(errs, fmt.Errorf("%w: baud rate %d", ErrInvalid, c.Device.BaudRate))
	}
	if c.Device.ReadTimeout < 0 || c.Device.ResetDelay < 0 {
		errs = append(errs, fmt.Errorf("%w: negative device timeout", ErrInvalid))
	}

	if limits, err := c.SetpointLimits(); err != nil {
		errs = append(errs, err)
	} else if err := limits.Validate(); err != nil {
		errs = append(errs, err)
	}

	if err := c.Heartbeat.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Log.CSV == "" {
		errs = append(errs, fmt.Errorf("%w: csv log path is required", ErrInvalid))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, c.validateRelay()...)

	return multierr.Combine(errs...)
}

func (c *Config) validateRelay() []error {
	var errs []error

	switch c.Relay.Transport {
	case "", TransportNone:
		return nil
	case TransportTCP:
		if c.Relay.Listen == "" {
			errs = append(errs, fmt.Errorf("%w: relay listen address is required", ErrInvalid))
		}
	case TransportSerial:
		if c.Relay.Path == "" {
			errs = append(errs, fmt.Errorf("%w: relay device path is required", ErrInvalid))
		}
		if c.Relay.Path == c.Device.Path {
			errs = append(errs, fmt.Errorf("%w: relay and actuator share %s", ErrInvalid, c.Relay.Path))
		}
		if c.Relay.Advertise {
			errs = append(errs, fmt.Errorf("%w: advertise needs the tcp relay", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: relay transport %q (want none, tcp or serial)", ErrInvalid, c.Relay.Transport))
	}

	if _, err := c.RelayMode(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalid, err))
	}
	return errs
}

// ValidateControl checks the configuration for the control command, which
// runs the heartbeat. A raw relay would interleave foreign bytes with the
// heartbeat's commands.
func (c *Config) ValidateControl() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if mode, _ := c.RelayMode(); c.RelayEnabled() && !mode.OwnsSetpoint() {
		return fmt.Errorf("%w: use relay mode setpoint or keys", ErrRawControl)
	}
	return nil
}

// ValidateBridge checks the configuration for the bridge command, which
// needs a relay.
func (c *Config) ValidateBridge() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.RelayEnabled() {
		return fmt.Errorf("%w: bridge needs a relay transport", ErrInvalid)
	}
	return nil
}
