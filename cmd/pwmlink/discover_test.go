package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwmlink/pwmlink-go/pkg/discovery"
)

// staticFinder serves a fixed relay list.
type staticFinder struct {
	relays []*discovery.RelayService
}

func (f staticFinder) Browse(ctx context.Context) (<-chan *discovery.RelayService, error) {
	out := make(chan *discovery.RelayService)
	go func() {
		defer close(out)
		for _, r := range f.relays {
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}

func (f staticFinder) FindRelay(_ context.Context, instance string) (*discovery.RelayService, error) {
	for _, r := range f.relays {
		if r.InstanceName == instance {
			return r, nil
		}
	}
	return nil, discovery.ErrNotFound
}

var testRelays = staticFinder{relays: []*discovery.RelayService{
	{InstanceName: "pwmlink-boat", Host: "boat.local.", Port: 7420, Addresses: []string{"192.168.1.10"}, Mode: "setpoint", Device: "/dev/ttyACM0", Version: "1.0"},
	{InstanceName: "pwmlink-rover", Host: "rover.local.", Port: 7421, Mode: "raw", Version: "1.2"},
}}

func TestDiscoverRelays(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, discoverRelays(context.Background(), testRelays, 20*time.Millisecond, "", &out))

	assert.Contains(t, out.String(), "Found 2 relay(s):")
	assert.Contains(t, out.String(), "1. pwmlink-boat (192.168.1.10:7420, mode: setpoint, version: 1.0)")
	assert.Contains(t, out.String(), "device: /dev/ttyACM0")
	assert.Contains(t, out.String(), "2. pwmlink-rover (rover.local.:7421, mode: raw, version: 1.2)")
}

func TestDiscoverRelaysNone(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, discoverRelays(context.Background(), staticFinder{}, 10*time.Millisecond, "", &out))
	assert.Contains(t, out.String(), "No relays found")
}

func TestDiscoverRelayByInstance(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, discoverRelays(context.Background(), testRelays, time.Second, "pwmlink-rover", &out))
	assert.Contains(t, out.String(), "1. pwmlink-rover")
	assert.NotContains(t, out.String(), "pwmlink-boat")

	err := discoverRelays(context.Background(), testRelays, time.Second, "pwmlink-plane", &out)
	assert.ErrorIs(t, err, discovery.ErrNotFound)
}

func TestRunDiscover(t *testing.T) {
	orig := newRelayFinder
	t.Cleanup(func() { newRelayFinder = orig })

	var got discovery.BrowserConfig
	newRelayFinder = func(cfg discovery.BrowserConfig) relayFinder {
		got = cfg
		return testRelays
	}

	assert.Equal(t, exitOK, run([]string{"discover", "--timeout", "10ms", "--interface", "eth0"}))
	assert.Equal(t, discovery.BrowserConfig{BrowseTimeout: 10 * time.Millisecond, Interface: "eth0"}, got)
	assert.Equal(t, exitSetup, run([]string{"discover", "--instance", "pwmlink-plane"}))
}
