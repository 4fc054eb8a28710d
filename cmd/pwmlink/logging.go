package main

import (
	"bytes"
	"io"
	"log/slog"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pwmlink/pwmlink-go/pkg/config"
)

// consoleWriter lets the console handler move onto readline's output once
// the terminal source exists. In raw terminal mode line feeds need a
// carriage return.
type consoleWriter struct {
	mu   sync.Mutex
	w    io.Writer
	crlf bool
}

func (c *consoleWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.crlf {
		return c.w.Write(p)
	}
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *consoleWriter) Set(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w = w
}

func (c *consoleWriter) SetRaw(raw bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crlf = raw
}

// newLogger builds the operational logger: a text handler on the console
// and, when configured, a rotated log file. The returned closer releases the
// file.
func newLogger(cfg *config.Config, console *consoleWriter) (*slog.Logger, io.Closer, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = console
	var closer io.Closer = nopCloser{}
	if cfg.Log.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
		out = io.MultiWriter(console, file)
		closer = file
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
