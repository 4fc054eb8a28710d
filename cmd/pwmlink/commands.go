package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pwmlink/pwmlink-go/pkg/config"
	"github.com/pwmlink/pwmlink-go/pkg/keyboard"
)

const prompt = "pwm> "

type controlCommand struct {
	opts *options
}

// Execute runs an interactive session.
func (c *controlCommand) Execute(_ []string) error {
	cfg, err := c.opts.Resolve()
	if err != nil {
		return setupError(err)
	}
	if err := cfg.ValidateControl(); err != nil {
		return setupError(err)
	}
	return execute(cfg, true)
}

type bridgeCommand struct {
	opts *options
}

// Execute runs a relay-only session. It ends on a signal.
func (c *bridgeCommand) Execute(_ []string) error {
	cfg, err := c.opts.Resolve()
	if err != nil {
		return setupError(err)
	}
	if err := cfg.ValidateBridge(); err != nil {
		return setupError(err)
	}
	return execute(cfg, false)
}

type configCommand struct {
	opts *options
}

// Execute prints the effective configuration and validates it.
func (c *configCommand) Execute(_ []string) error {
	cfg, err := c.opts.Resolve()
	if err != nil {
		return setupError(err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		return setupError(err)
	}
	os.Stdout.Write(data)

	if err := cfg.Validate(); err != nil {
		return setupError(err)
	}
	return nil
}

// execute sets up the console and signal handling around runSession.
func execute(cfg *config.Config, interactive bool) error {
	console := &consoleWriter{w: os.Stderr}
	status := &consoleWriter{w: os.Stdout}

	logger, logCloser, err := newLogger(cfg, console)
	if err != nil {
		return setupError(err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var keys keyboard.Source
	if interactive {
		src, restore, err := openKeys(cfg, console, status)
		if err != nil {
			logger.Error("cannot read keys", "error", err)
			return setupError(err)
		}
		defer restore()
		keys = src
	}

	return runSession(ctx, cfg, logger, keys, status)
}

// runSession opens a session, runs it to the end and shuts it down. keys
// is closed before the shutdown sequence.
func runSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, keys keyboard.Source, status io.Writer) error {
	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		if keys != nil {
			keys.Close()
		}
		logger.Error("setup failed", "error", err)
		return setupError(err)
	}
	s.sup.OnChange(printStatus(status))

	runErr := s.run(ctx, keys)
	if keys != nil {
		keys.Close()
	}
	return s.finish(runErr)
}

// openKeys picks the key source: readline on an interactive terminal,
// otherwise a byte decoder over stdin, in raw mode when requested.
func openKeys(cfg *config.Config, console, status *consoleWriter) (keyboard.Source, func(), error) {
	keymap, err := keymapFor(cfg)
	if err != nil {
		return nil, nil, err
	}

	fd := int(os.Stdin.Fd())
	tty := keyboard.IsTerminal(fd)

	if !cfg.Keys.Raw && tty {
		src, err := keyboard.NewTerminalSource(keymap, prompt)
		if err != nil {
			return nil, nil, fmt.Errorf("terminal: %w", err)
		}
		console.Set(src.Stdout())
		status.Set(src.Stdout())
		return src, func() {}, nil
	}

	restore := func() {}
	if cfg.Keys.Raw && tty {
		undo, err := keyboard.MakeRaw(fd)
		if err != nil {
			return nil, nil, fmt.Errorf("raw mode: %w", err)
		}
		console.SetRaw(true)
		status.SetRaw(true)
		restore = func() { _ = undo() }
	}
	// Stdin stays open so restore can still reach the terminal.
	return keyboard.NewDecoder(struct{ io.Reader }{os.Stdin}, keymap), restore, nil
}
