package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pwmlink/pwmlink-go/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeRelayTXT creates TXT records for relay discovery.
func EncodeRelayTXT(info *RelayInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyMode] = info.Mode
	txt[TXTKeyVersion] = info.Version
	if txt[TXTKeyVersion] == "" {
		txt[TXTKeyVersion] = version.Current
	}

	// Optional fields
	if info.Device != "" {
		txt[TXTKeyDevice] = info.Device
	}

	return txt
}

// DecodeRelayTXT parses TXT records from relay discovery. It fails with
// ErrIncompatible when the advertised version has another major version.
func DecodeRelayTXT(txt TXTRecordMap) (*RelayInfo, error) {
	info := &RelayInfo{}

	var ok bool
	info.Version, ok = txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if _, err := version.Parse(info.Version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
	}
	if !version.CompatibleString(info.Version) {
		return nil, fmt.Errorf("%w: %s", ErrIncompatible, info.Version)
	}

	info.Mode, ok = txt[TXTKeyMode]
	if !ok || info.Mode == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyMode)
	}

	// Optional fields
	info.Device = txt[TXTKeyDevice]

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a sorted slice of
// "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateTXT checks that every record fits in a single TXT string.
func ValidateTXT(txt TXTRecordMap) error {
	for k, v := range txt {
		if len(k)+1+len(v) > MaxTXTValueLen {
			return fmt.Errorf("%w: %s too long", ErrInvalidTXTRecord, k)
		}
	}
	return nil
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// DefaultInstanceName returns pwmlink-<host>, truncated to fit a DNS label.
func DefaultInstanceName(host string) string {
	host, _, _ = strings.Cut(host, ".")
	if host == "" {
		host = "relay"
	}
	name := InstancePrefix + host
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}
