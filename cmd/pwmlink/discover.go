package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pwmlink/pwmlink-go/pkg/discovery"
	"github.com/pwmlink/pwmlink-go/pkg/version"
)

// relayFinder is the part of discovery.MDNSBrowser discover uses.
type relayFinder interface {
	Browse(ctx context.Context) (<-chan *discovery.RelayService, error)
	FindRelay(ctx context.Context, instance string) (*discovery.RelayService, error)
}

// newRelayFinder is a variable so tests can replace the mDNS browser.
var newRelayFinder = func(cfg discovery.BrowserConfig) relayFinder {
	return discovery.NewMDNSBrowser(cfg)
}

type discoverCommand struct {
	Timeout   time.Duration `short:"t" long:"timeout" default:"5s" description:"How long to browse"`
	Instance  string        `short:"n" long:"instance" description:"Look for one relay by instance name"`
	Interface string        `short:"i" long:"interface" description:"Network interface to browse on"`

	out io.Writer
}

// Execute lists the relays advertised on the local network. Relays speaking
// an incompatible protocol version are not listed.
func (c *discoverCommand) Execute(_ []string) error {
	out := c.out
	if out == nil {
		out = os.Stdout
	}
	finder := newRelayFinder(discovery.BrowserConfig{
		BrowseTimeout: c.Timeout,
		Interface:     c.Interface,
	})
	if err := discoverRelays(context.Background(), finder, c.Timeout, c.Instance, out); err != nil {
		return setupError(err)
	}
	return nil
}

func discoverRelays(ctx context.Context, finder relayFinder, timeout time.Duration, instance string, w io.Writer) error {
	fmt.Fprintf(w, "Browsing for %s relays (protocol %s)...\n", discovery.ServiceType, version.Current)

	if instance != "" {
		svc, err := finder.FindRelay(ctx, instance)
		if err != nil {
			return fmt.Errorf("relay %q: %w", instance, err)
		}
		printRelay(w, 1, svc)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	services, err := finder.Browse(ctx)
	if err != nil {
		return err
	}
	var found []*discovery.RelayService
	for svc := range services {
		found = append(found, svc)
	}

	if len(found) == 0 {
		fmt.Fprintln(w, "No relays found")
		return nil
	}
	fmt.Fprintf(w, "Found %d relay(s):\n", len(found))
	for i, svc := range found {
		printRelay(w, i+1, svc)
	}
	return nil
}

func printRelay(w io.Writer, idx int, svc *discovery.RelayService) {
	host := svc.Host
	if len(svc.Addresses) > 0 {
		host = svc.Addresses[0]
	}
	fmt.Fprintf(w, "  %d. %s (%s, mode: %s, version: %s)\n",
		idx, svc.InstanceName, net.JoinHostPort(host, strconv.Itoa(int(svc.Port))), svc.Mode, svc.Version)
	if svc.Device != "" {
		fmt.Fprintf(w, "     device: %s\n", svc.Device)
	}
}
