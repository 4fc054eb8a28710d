package discovery

import (
	"errors"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of a relay listener.
	ServiceType = "_pwmlink._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default relay TCP port.
	DefaultPort = 7420

	// InstancePrefix prefixes generated instance names.
	InstancePrefix = "pwmlink-"
)

// TXT record key constants.
const (
	TXTKeyMode    = "mode" // Relay mode
	TXTKeyDevice  = "dev"  // Serial device path
	TXTKeyVersion = "ver"  // Relay protocol version
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for FindRelay.
	BrowseTimeout = 5 * time.Second

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Size limits.
const (
	// MaxInstanceNameLen is the maximum length of an instance name (DNS label).
	MaxInstanceNameLen = 63

	// MaxTXTValueLen is the maximum length of one TXT key=value string.
	MaxTXTValueLen = 255
)

// Errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrIncompatible        = errors.New("incompatible relay protocol version")
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// RelayInfo describes the relay being advertised.
type RelayInfo struct {
	// InstanceName is the DNS-SD instance name. Empty means pwmlink-<hostname>.
	InstanceName string

	// Port is the relay TCP port.
	Port uint16

	// Mode is the relay mode name.
	Mode string

	// Device is the actuator's serial device path.
	Device string

	// Version is the relay protocol version. Empty means version.Current.
	Version string
}

// RelayService is a relay found by browsing.
type RelayService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Mode    string
	Device  string
	Version string
}

// ServiceEntry is the library-independent form of a browsed mDNS entry.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToRelayService converts a ServiceEntry to RelayService.
func (e *ServiceEntry) ToRelayService() (*RelayService, error) {
	info, err := DecodeRelayTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}

	return &RelayService{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
		Mode:         info.Mode,
		Device:       info.Device,
		Version:      info.Version,
	}, nil
}
