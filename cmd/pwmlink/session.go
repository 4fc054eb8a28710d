package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pwmlink/pwmlink-go/pkg/config"
	"github.com/pwmlink/pwmlink-go/pkg/device"
	"github.com/pwmlink/pwmlink-go/pkg/discovery"
	"github.com/pwmlink/pwmlink-go/pkg/heartbeat"
	"github.com/pwmlink/pwmlink-go/pkg/keyboard"
	"github.com/pwmlink/pwmlink-go/pkg/log"
	"github.com/pwmlink/pwmlink-go/pkg/relay"
	"github.com/pwmlink/pwmlink-go/pkg/runflag"
	"github.com/pwmlink/pwmlink-go/pkg/setpoint"
	"github.com/pwmlink/pwmlink-go/pkg/simulator"
	"github.com/pwmlink/pwmlink-go/pkg/supervisor"
	"github.com/pwmlink/pwmlink-go/pkg/version"
)

// session wires one supervisor run together.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	keymap keyboard.Keymap
	mode   supervisor.RelayMode

	flag    *runflag.Flag
	store   *setpoint.Store
	channel *device.SerialChannel
	sim     *simulator.Device
	sup     *supervisor.Supervisor
	hb      *heartbeat.Transmitter
	relay   *relay.Relay
	tcp     *relay.TCPTransport
}

// openSession opens the device and the command logs. Errors are setup
// failures; nothing has been sent to the device yet.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (s *session, err error) {
	limits, err := cfg.SetpointLimits()
	if err != nil {
		return nil, err
	}
	store, err := setpoint.NewStore(limits)
	if err != nil {
		return nil, err
	}
	mode, err := cfg.RelayMode()
	if err != nil {
		return nil, err
	}

	keymap, err := keymapFor(cfg)
	if err != nil {
		return nil, err
	}

	s = &session{
		cfg:    cfg,
		logger: logger,
		keymap: keymap,
		mode:   mode,
		flag:   runflag.New(),
		store:  store,
	}

	if err := s.openDevice(ctx, limits); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.channel.Close()
		}
	}()

	sink, err := s.openSinks()
	if err != nil {
		return nil, err
	}

	s.sup = supervisor.New(store, s.channel, sink, s.flag,
		supervisor.WithLogger(logger),
		supervisor.WithRelayMode(mode),
		supervisor.WithKeymap(keymap),
	)

	// A raw relay owns the command stream.
	if !s.cfg.RelayEnabled() || mode.OwnsSetpoint() {
		s.hb, err = heartbeat.New(cfg.Heartbeat, store, s.channel, s.flag, heartbeat.WithLogger(logger))
		if err != nil {
			sink.Close()
			return nil, err
		}
	}

	if cfg.RelayEnabled() {
		if err := s.openRelay(); err != nil {
			sink.Close()
			return nil, err
		}
	}

	logger.Info("session opened",
		"session", s.sup.SessionID(),
		"device", cfg.Device.Path,
		"min", limits.Min, "max", limits.Max, "neutral", limits.Neutral, "step", limits.Step,
		"heartbeat", s.hb != nil,
		"relay", cfg.Relay.Transport,
		"relay_mode", mode)
	return s, nil
}

func (s *session) openDevice(ctx context.Context, limits setpoint.Limits) error {
	opts := s.cfg.DeviceOptions(s.logger)

	if !s.cfg.Simulated() {
		ch, err := device.Dial(ctx, s.cfg.Device.Path, opts)
		if err != nil {
			return err
		}
		s.channel = ch
		return nil
	}

	sim, err := simulator.New(simulator.Config{
		Min:     limits.Min,
		Max:     limits.Max,
		Neutral: limits.Neutral,
		Timeout: s.cfg.Simulator.Timeout,
		Echo:    s.cfg.Simulator.Echo,
		Logger:  s.logger.With("component", "simulator"),
	})
	if err != nil {
		return err
	}
	ch, err := device.NewSerialChannel(sim, opts)
	if err != nil {
		sim.Close()
		return err
	}
	s.sim = sim
	s.channel = ch
	s.logger.Info("using simulated device", "failsafe_timeout", sim.Watchdog().Timeout())
	return nil
}

// openSinks builds the command log: the CSV file, the optional binary log
// and a debug mirror on the operational logger.
func (s *session) openSinks() (*log.MultiLogger, error) {
	csv, err := log.NewCSVLogger(s.cfg.Log.CSV)
	if err != nil {
		return nil, err
	}

	var binary log.Logger
	if s.cfg.Log.Binary != "" {
		fl, err := log.NewFileLogger(s.cfg.Log.Binary)
		if err != nil {
			csv.Close()
			return nil, err
		}
		binary = fl
	}

	return log.NewMultiLogger(csv, binary, log.NewSlogAdapter(s.logger)), nil
}

func (s *session) openRelay() error {
	var transport relay.Transport
	switch s.cfg.Relay.Transport {
	case config.TransportTCP:
		tcp, err := relay.ListenTCP(s.cfg.Relay.Listen)
		if err != nil {
			return err
		}
		s.tcp = tcp
		transport = tcp
	case config.TransportSerial:
		transport = relay.NewSerialTransport(s.cfg.Relay.Path, s.cfg.Relay.BaudRate, s.cfg.Device.ReadTimeout)
	default:
		return fmt.Errorf("unknown relay transport %q", s.cfg.Relay.Transport)
	}

	s.relay = relay.New(transport, s.sup, s.flag, relay.Config{
		Backoff: s.cfg.Relay.Backoff,
		Logger:  s.logger,
	})
	return nil
}

// run starts the session and blocks until it ends. keys may be nil.
func (s *session) run(ctx context.Context, keys keyboard.Source) error {
	if err := s.sup.Start(); err != nil && !errors.Is(err, supervisor.ErrLog) {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// Signals and failures both end up stopping the flag; the flag ends
	// everything else.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			if ctx.Err() != nil {
				s.flag.Stop(runflag.ErrSignal)
			}
		case <-s.flag.Done():
		}
		cancel()
		return nil
	})

	if s.hb != nil {
		s.sup.AttachHeartbeat(s.hb)
		g.Go(func() error {
			if err := s.hb.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if s.relay != nil {
		if s.tcp != nil && s.cfg.Relay.Advertise {
			adv := s.advertise(gctx)
			defer adv.Stop()
		}
		g.Go(func() error { return s.relay.Run(gctx) })
	}

	g.Go(func() error {
		err := s.channel.ReadLines(gctx, func(line string) {
			s.logger.Debug("device", "line", line)
		})
		if err != nil {
			s.logger.Warn("device telemetry stopped", "error", err)
		}
		return nil
	})

	if keys != nil {
		g.Go(func() error { return s.sup.RunKeys(gctx, keys) })
	}

	return g.Wait()
}

func (s *session) advertise(ctx context.Context) *discovery.MDNSAdvertiser {
	adv := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	err := adv.Advertise(ctx, &discovery.RelayInfo{
		InstanceName: s.cfg.Relay.Instance,
		Port:         uint16(s.tcp.Port()),
		Mode:         string(s.mode),
		Device:       s.cfg.Device.Path,
		Version:      version.Current,
	})
	if err != nil {
		s.logger.Warn("mDNS advertising failed", "error", err)
	} else {
		s.logger.Info("advertising relay", "instance", adv.Instance(), "service", discovery.ServiceType, "port", s.tcp.Port())
	}
	return adv
}

// finish runs the shutdown sequence and maps the outcome to an error for
// main. A clean quit or signal returns nil.
func (s *session) finish(runErr error) error {
	shutdownErr := s.sup.Shutdown()

	reason := s.flag.Reason()
	switch {
	case !s.flag.Clean():
		s.logger.Error("session failed", "reason", reason)
		return sessionError(reason)
	case shutdownErr != nil:
		return sessionError(shutdownErr)
	case runErr != nil:
		return sessionError(runErr)
	}

	s.logger.Info("session ended", "reason", reason, "value", s.store.Read())
	return nil
}

// keymapFor returns the default keymap extended with the configured bindings.
func keymapFor(cfg *config.Config) (keyboard.Keymap, error) {
	keymap := keyboard.DefaultKeymap()
	for _, binding := range cfg.Keys.Bind {
		if err := keymap.Bind(binding); err != nil {
			return nil, err
		}
	}
	return keymap, nil
}
