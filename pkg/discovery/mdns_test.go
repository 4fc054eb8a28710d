package discovery

import (
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
)

type fakeServer struct {
	mu       sync.Mutex
	text     []string
	shutdown bool
}

func (s *fakeServer) SetText(text []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
}

func (s *fakeServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}

type registration struct {
	instance, service, domain string
	port                      int
	text                      []string
	server                    *fakeServer
}

// stubRegister replaces register for the duration of the test.
func stubRegister(t *testing.T, fail error) *[]registration {
	t.Helper()
	var regs []registration
	orig := register
	t.Cleanup(func() { register = orig })

	register = func(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (registeredServer, error) {
		if fail != nil {
			return nil, fail
		}
		s := &fakeServer{text: text}
		regs = append(regs, registration{instance, service, domain, port, text, s})
		return s, nil
	}
	return &regs
}

func TestAdvertise(t *testing.T) {
	regs := stubRegister(t, nil)
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())

	err := a.Advertise(context.Background(), &RelayInfo{
		InstanceName: "pwmlink-bench",
		Port:         7421,
		Mode:         "setpoint",
		Device:       "/dev/ttyACM0",
	})
	if err != nil {
		t.Fatalf("Advertise() error = %v", err)
	}

	if len(*regs) != 1 {
		t.Fatalf("registrations = %d, want 1", len(*regs))
	}
	r := (*regs)[0]
	if r.instance != "pwmlink-bench" || r.service != ServiceType || r.domain != Domain || r.port != 7421 {
		t.Errorf("registered %s %s.%s:%d", r.instance, r.service, r.domain, r.port)
	}
	want := []string{"dev=/dev/ttyACM0", "mode=setpoint", "ver=1.0"}
	if !reflect.DeepEqual(r.text, want) {
		t.Errorf("text = %v, want %v", r.text, want)
	}
	if a.Instance() != "pwmlink-bench" {
		t.Errorf("Instance() = %q", a.Instance())
	}
}

func TestAdvertise_DefaultsAndReplace(t *testing.T) {
	regs := stubRegister(t, nil)
	a := NewMDNSAdvertiser(AdvertiserConfig{})

	if err := a.Advertise(context.Background(), &RelayInfo{Mode: "raw"}); err != nil {
		t.Fatalf("Advertise() error = %v", err)
	}
	if err := a.Advertise(context.Background(), &RelayInfo{Mode: "keys"}); err != nil {
		t.Fatalf("second Advertise() error = %v", err)
	}

	if len(*regs) != 2 {
		t.Fatalf("registrations = %d, want 2", len(*regs))
	}
	first, second := (*regs)[0], (*regs)[1]
	if first.port != DefaultPort {
		t.Errorf("port = %d, want %d", first.port, DefaultPort)
	}
	if len(first.instance) <= len(InstancePrefix) || first.instance[:len(InstancePrefix)] != InstancePrefix {
		t.Errorf("instance = %q, want %s<host>", first.instance, InstancePrefix)
	}
	if !first.server.shutdown {
		t.Error("previous advertisement should be shut down")
	}
	if second.server.shutdown {
		t.Error("current advertisement should be running")
	}
}

func TestAdvertise_Errors(t *testing.T) {
	errBind := errors.New("bind: address in use")
	stubRegister(t, errBind)
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())

	err := a.Advertise(context.Background(), &RelayInfo{InstanceName: "pwmlink-x", Mode: "raw"})
	if !errors.Is(err, errBind) {
		t.Errorf("Advertise() error = %v, want %v", err, errBind)
	}
	if a.Instance() != "" {
		t.Error("failed advertisement should leave nothing registered")
	}

	long := make([]byte, MaxInstanceNameLen+1)
	for i := range long {
		long[i] = 'n'
	}
	err = a.Advertise(context.Background(), &RelayInfo{InstanceName: string(long), Mode: "raw"})
	if !errors.Is(err, ErrInstanceNameTooLong) {
		t.Errorf("Advertise(long name) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Advertise(ctx, &RelayInfo{Mode: "raw"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Advertise(cancelled) error = %v", err)
	}
}

func TestUpdateAndStop(t *testing.T) {
	regs := stubRegister(t, nil)
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())

	if err := a.Update(&RelayInfo{Mode: "raw"}); !errors.Is(err, ErrNotAdvertising) {
		t.Errorf("Update() before Advertise error = %v", err)
	}

	if err := a.Advertise(context.Background(), &RelayInfo{InstanceName: "pwmlink-a", Mode: "raw"}); err != nil {
		t.Fatal(err)
	}
	if err := a.Update(&RelayInfo{Mode: "setpoint", Device: "sim://"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	s := (*regs)[0].server
	want := []string{"dev=sim://", "mode=setpoint", "ver=1.0"}
	if !reflect.DeepEqual(s.text, want) {
		t.Errorf("text = %v, want %v", s.text, want)
	}

	a.Stop()
	a.Stop()
	if !s.shutdown {
		t.Error("Stop() should shut the server down")
	}
	if a.Instance() != "" {
		t.Errorf("Instance() after Stop = %q", a.Instance())
	}
}

// stubBrowse replaces browse with one that replays entries.
func stubBrowse(t *testing.T, entries ...ServiceEntry) {
	t.Helper()
	orig := browse
	t.Cleanup(func() { browse = orig })

	browse = func(ctx context.Context, service, domain string, out chan<- ServiceEntry, opts ...zeroconf.ClientOption) error {
		if service != ServiceType || domain != Domain {
			t.Errorf("browse(%s, %s)", service, domain)
		}
		for _, e := range entries {
			select {
			case out <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

func relayEntry(instance, mode, ver string, addrs ...string) ServiceEntry {
	return ServiceEntry{
		Instance: instance,
		Service:  ServiceType,
		Domain:   Domain,
		Host:     instance + ".local.",
		Port:     DefaultPort,
		Text:     []string{"mode=" + mode, "ver=" + ver},
		Addrs:    addrs,
	}
}

func TestBrowse(t *testing.T) {
	stubBrowse(t,
		relayEntry("pwmlink-a", "raw", "1.0", "192.168.1.10"),
		relayEntry("pwmlink-old", "raw", "0.9", "192.168.1.11"),
		relayEntry("pwmlink-a", "raw", "1.0", "fe80::1"),
		ServiceEntry{Instance: "garbage", Text: []string{"x=y"}},
		relayEntry("pwmlink-b", "keys", "1.1", "192.168.1.12"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	services, err := NewMDNSBrowser(DefaultBrowserConfig()).Browse(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for svc := range services {
		got = append(got, svc.InstanceName+"/"+svc.Mode)
		if len(got) == 2 {
			cancel()
		}
	}

	want := []string{"pwmlink-a/raw", "pwmlink-b/keys"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("browsed %v, want %v", got, want)
	}
}

func TestFindRelay(t *testing.T) {
	stubBrowse(t,
		relayEntry("pwmlink-a", "raw", "1.0", "192.168.1.10"),
		relayEntry("pwmlink-b", "setpoint", "1.0", "192.168.1.12"),
	)
	b := NewMDNSBrowser(BrowserConfig{BrowseTimeout: time.Second})

	svc, err := b.FindRelay(context.Background(), "pwmlink-b")
	if err != nil {
		t.Fatalf("FindRelay() error = %v", err)
	}
	if svc.Mode != "setpoint" || svc.Port != DefaultPort {
		t.Errorf("FindRelay() = %+v", svc)
	}
	if !reflect.DeepEqual(svc.Addresses, []string{"192.168.1.12"}) {
		t.Errorf("Addresses = %v", svc.Addresses)
	}
}

func TestFindRelay_NotFound(t *testing.T) {
	stubBrowse(t, relayEntry("pwmlink-a", "raw", "1.0"))
	b := NewMDNSBrowser(BrowserConfig{BrowseTimeout: 50 * time.Millisecond})

	if _, err := b.FindRelay(context.Background(), "pwmlink-z"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindRelay() error = %v, want %v", err, ErrNotFound)
	}
}
